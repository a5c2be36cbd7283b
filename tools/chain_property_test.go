package tools_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/telos-ai/telos/hooks"
	"github.com/telos-ai/telos/interrupt"
	"github.com/telos-ai/telos/tools"
)

// TestDecorateNamePreservationProperty verifies that for any tool name and
// any chain configuration, the decorated tool reports the same definition
// name as the raw tool.
func TestDecorateNamePreservationProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("decoration preserves the tool name", prop.ForAll(
		func(name, group string, withBus, withProcess bool) bool {
			raw := tools.Func(name, "probe", nil,
				func(context.Context, string) (tools.Result, error) {
					return tools.Text("ok"), nil
				})
			cfg := tools.ChainConfig{Group: &tools.Group{Name: group}}
			if withBus {
				cfg.Bus = hooks.NewBus(nil)
			}
			if withProcess {
				cfg.Process = newHandle("p", "a")
			}
			return tools.Decorate(raw, cfg).Definition().Name == name
		},
		genIdentifier(),
		genIdentifier(),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// TestDecorateSignalEscapeProperty verifies that for any signal payload the
// chain re-returns the signal with its payload intact instead of suppressing
// or transforming it.
func TestDecorateSignalEscapeProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("replan signals escape with their reason", prop.ForAll(
		func(reason string) bool {
			raw := tools.Func("signaling", "", nil,
				func(context.Context, string) (tools.Result, error) {
					return tools.Result{}, interrupt.Replan(reason)
				})
			decorated := tools.Decorate(raw, tools.ChainConfig{
				Bus:       hooks.NewBus(nil),
				Process:   newHandle("p", "a"),
				Transform: tools.Truncate(1),
			})
			_, err := decorated.Call(context.Background(), "{}")
			sig, ok := interrupt.AsReplan(err)
			return ok && sig.Reason == reason
		},
		gen.AnyString(),
	))

	properties.Property("user input signals escape with their prompt", prop.ForAll(
		func(prompt string) bool {
			raw := tools.Func("asking", "", nil,
				func(context.Context, string) (tools.Result, error) {
					return tools.Result{}, interrupt.NeedInput(prompt)
				})
			decorated := tools.Decorate(raw, tools.ChainConfig{})
			_, err := decorated.Call(context.Background(), "{}")
			sig, ok := interrupt.AsUserInput(err)
			return ok && sig.Prompt == prompt
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

// TestDecorateSuppressionProperty verifies that any non-signal error becomes
// a warning result and never surfaces as an error.
func TestDecorateSuppressionProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("plain errors never escape the chain", prop.ForAll(
		func(msg string) bool {
			raw := tools.Func("flaky", "", nil,
				func(context.Context, string) (tools.Result, error) {
					return tools.Result{}, errors.New(msg)
				})
			decorated := tools.Decorate(raw, tools.ChainConfig{})
			res, err := decorated.Call(context.Background(), "{}")
			return err == nil && res.Content() != ""
		},
		genIdentifier(),
	))

	properties.TestingRun(t)
}

func genIdentifier() gopter.Gen {
	return gen.IntRange(1, 24).FlatMap(func(length any) gopter.Gen {
		return gen.SliceOfN(length.(int), gen.AlphaChar()).Map(func(chars []rune) string {
			return string(chars)
		})
	}, reflect.TypeOf(""))
}
