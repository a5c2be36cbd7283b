// Command chef runs the bake-a-meal demo agent end to end. Without provider
// credentials it replays a scripted model so the demo works offline; export
// ANTHROPIC_API_KEY or OPENAI_API_KEY to drive the same agent with a live
// model.
//
//	go run ./example/cmd/chef
//	go run ./example/cmd/chef -input "something hearty with rye"
//	ANTHROPIC_API_KEY=... go run ./example/cmd/chef -supervise
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"

	"goa.design/clue/log"

	"github.com/telos-ai/telos/agent"
	"github.com/telos-ai/telos/blackboard"
	"github.com/telos-ai/telos/features/model/anthropic"
	"github.com/telos-ai/telos/features/model/openai"
	"github.com/telos-ai/telos/hooks"
	"github.com/telos-ai/telos/llm"
	"github.com/telos-ai/telos/model"
	"github.com/telos-ai/telos/planner"
	"github.com/telos-ai/telos/process"
	"github.com/telos-ai/telos/telemetry"
)

const (
	anthropicModel = "claude-sonnet-4-5"
	openaiModel    = "gpt-4o-mini"
)

type (
	// Recipe is the model's structured answer to the diner's craving.
	Recipe struct {
		Name        string   `json:"name"`
		Ingredients []string `json:"ingredients"`
	}

	// Dough, Bread and Meal are the intermediate products the kitchen
	// actions pass along the blackboard.
	Dough struct{ Recipe string }
	Bread struct{ Recipe string }
	Meal  struct {
		Recipe      string
		Ingredients []string
	}
)

func main() {
	var (
		inputF     = flag.String("input", "a rustic bread dinner for two", "what the diner is craving")
		superviseF = flag.Bool("supervise", false, "let the model orchestrate the kitchen (needs an API key)")
		dbgF       = flag.Bool("debug", false, "log debug messages")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
	}
	logger := telemetry.NewClueLogger()

	// 1) Model client: live provider when a key is present, scripted replay
	// otherwise.
	client, modelName, live := buildClient(ctx)
	log.Print(ctx, log.KV{K: "model", V: modelName}, log.KV{K: "live", V: live})

	registry := model.NewRegistry()
	registry.Register(modelName, client, model.TierBest)

	// 2) Event bus with a subscriber that prints every process event.
	bus := hooks.NewBus(logger)
	sub, err := bus.Subscribe(hooks.SubscriberFunc(printEvent(logger)))
	if err != nil {
		log.Fatalf(ctx, err, "subscribe")
	}
	defer sub.Close()

	ops, err := llm.New(llm.Config{Registry: registry, Bus: bus, Logger: logger})
	if err != nil {
		log.Fatalf(ctx, err, "llm operations")
	}

	// 3) Planner: goal-directed search by default, model supervision on
	// request. The supervisor needs a real model to be worth watching.
	opts := process.Options{
		LLM:      ops,
		Bus:      bus,
		Logger:   logger,
		Bindings: map[string]any{blackboard.Default: agent.NewUserInput(*inputF)},
	}
	if *superviseF {
		if !live {
			log.Printf(ctx, "no API key set, using goal-directed planner instead of supervisor")
		} else {
			sup, err := planner.NewSupervisor(planner.SupervisorConfig{Client: client})
			if err != nil {
				log.Fatalf(ctx, err, "supervisor")
			}
			opts.Planner = sup
		}
	}

	// 4) Run the chef until the meal is on the table.
	p, err := process.New(chefAgent(), opts)
	if err != nil {
		log.Fatalf(ctx, err, "new process")
	}
	res, err := p.Run(ctx)
	if err != nil {
		log.Fatalf(ctx, err, "run")
	}

	fmt.Println()
	fmt.Println("Process: ", res.ProcessID)
	fmt.Println("Status:  ", res.Status)
	fmt.Println("Reason:  ", res.Reason)
	fmt.Println("Actions: ", res.Actions)
	fmt.Println("Tokens:  ", res.Usage.TotalTokens)
	if meal, ok := res.First(agent.Type[Meal]()); ok {
		m := meal.(Meal)
		fmt.Println("Meal:    ", m.Recipe)
		fmt.Println("With:    ", m.Ingredients)
	}
	if res.LastMessage != "" {
		fmt.Println("Chef says:", res.LastMessage)
	}
}

// chefAgent wires the four kitchen actions. pickRecipe asks the model for a
// structured recipe; the remaining actions are plain Go that transforms the
// recipe into a served meal, so the goal-directed planner chains them by
// their blackboard types.
func chefAgent() *agent.Agent {
	return &agent.Agent{
		Name:        "chef",
		Description: "bakes a meal to order",
		Actions: []*agent.Action{
			{
				Name:        "pickRecipe",
				Description: "chooses a recipe matching the diner's craving",
				Inputs:      []agent.Binding{agent.Of[agent.UserInput]()},
				Outputs:     []agent.Binding{agent.Named[Recipe]("recipe")},
				Cost:        2,
				Run: func(ctx context.Context, ac *agent.ActionContext) (any, error) {
					in, _ := blackboard.First[agent.UserInput](ac.Board)
					msgs := []model.Message{
						model.SystemMessage("You are a bakery chef. Answer with a JSON object {\"name\": string, \"ingredients\": [string]} and nothing else."),
						model.UserMessage("The diner wants: " + in.Content),
					}
					return llm.CreateObject[Recipe](ctx, ac.LLM, msgs, llm.NewInteraction(llm.Options{}), ac.Process)
				},
			},
			{
				Name:        "makeDough",
				Description: "mixes the dough for the chosen recipe",
				Inputs:      []agent.Binding{agent.Of[Recipe]()},
				Outputs:     []agent.Binding{agent.Named[Dough]("dough")},
				Cost:        1,
				Run: func(_ context.Context, ac *agent.ActionContext) (any, error) {
					r, _ := blackboard.First[Recipe](ac.Board)
					return Dough{Recipe: r.Name}, nil
				},
			},
			{
				Name:        "bakeBread",
				Description: "bakes the dough",
				Inputs:      []agent.Binding{agent.Of[Dough]()},
				Outputs:     []agent.Binding{agent.Named[Bread]("bread")},
				Cost:        1,
				Run: func(_ context.Context, ac *agent.ActionContext) (any, error) {
					d, _ := blackboard.First[Dough](ac.Board)
					return Bread{Recipe: d.Recipe}, nil
				},
			},
			{
				Name:        "plateMeal",
				Description: "plates the bread as a finished meal",
				Inputs:      []agent.Binding{agent.Of[Bread](), agent.Of[Recipe]()},
				Outputs:     []agent.Binding{agent.Named[Meal]("meal")},
				Cost:        1,
				Achieves:    "dinner",
				Run: func(_ context.Context, ac *agent.ActionContext) (any, error) {
					b, _ := blackboard.First[Bread](ac.Board)
					r, _ := blackboard.First[Recipe](ac.Board)
					return Meal{Recipe: b.Recipe, Ingredients: r.Ingredients}, nil
				},
			},
		},
		Goals: []*agent.Goal{{Name: "dinner", Satisfies: agent.Type[Meal](), Value: 10}},
	}
}

// buildClient returns a live provider client when a key is exported and the
// scripted stand-in otherwise.
func buildClient(ctx context.Context) (model.Client, string, bool) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c, err := anthropic.NewFromAPIKey(key, anthropicModel)
		if err == nil {
			return c, anthropicModel, true
		}
		log.Errorf(ctx, err, "anthropic client, falling back")
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c, err := openai.NewFromAPIKey(key, openai.Options{DefaultModel: openaiModel})
		if err == nil {
			return c, openaiModel, true
		}
		log.Errorf(ctx, err, "openai client, falling back")
	}
	return &scripted{responses: []*model.Response{
		respond(`{"name": "Rustic Rye Boule", "ingredients": ["rye flour", "bread flour", "water", "salt", "caraway seeds"]}`),
	}}, "scripted", false
}

// printEvent returns a subscriber that logs each event with its flattened
// detail, keys sorted for stable output.
func printEvent(logger telemetry.Logger) func(context.Context, hooks.Event) error {
	return func(ctx context.Context, evt hooks.Event) error {
		detail := hooks.Detail(evt)
		keys := make([]string, 0, len(detail))
		for k := range detail {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		kv := []any{"seq", evt.Sequence()}
		for _, k := range keys {
			kv = append(kv, k, detail[k])
		}
		logger.Info(ctx, string(evt.Type()), kv...)
		return nil
	}
}

// scripted replays canned responses in order. The offline chef always bakes
// the same loaf no matter what the diner asks for.
type scripted struct {
	mu        sync.Mutex
	responses []*model.Response
}

func (c *scripted) Complete(_ context.Context, _ model.Request) (*model.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.responses) == 0 {
		return nil, errors.New("scripted model: out of responses")
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

func respond(text string) *model.Response {
	return &model.Response{
		Candidates: []model.Message{model.AssistantMessage(text)},
		Usage:      model.TokenUsage{InputTokens: 40, OutputTokens: 25, TotalTokens: 65},
	}
}
