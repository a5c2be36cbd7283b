package hooks_test

import (
	"errors"
	"testing"
	"time"

	"github.com/telos-ai/telos/hooks"
	"github.com/telos-ai/telos/model"
)

func TestDetailProcessLifecycle(t *testing.T) {
	d := hooks.Detail(hooks.NewProcessCreatedEvent("p", "chef", "meal_ready"))
	if d["goal"] != "meal_ready" {
		t.Fatalf("created detail = %v", d)
	}
	if d := hooks.Detail(hooks.NewProcessCreatedEvent("p", "chef", "")); d != nil {
		t.Fatalf("goalless created detail = %v, want nil", d)
	}

	d = hooks.Detail(hooks.NewGoalAchievedEvent("p", "chef", "meal_ready"))
	if d["goal"] != "meal_ready" {
		t.Fatalf("achieved detail = %v", d)
	}

	d = hooks.Detail(hooks.NewProcessFailedEvent("p", "chef", "oven broke", errors.New("E_HEAT")))
	if d["reason"] != "oven broke" || d["error"] != "E_HEAT" {
		t.Fatalf("failed detail = %v", d)
	}
	d = hooks.Detail(hooks.NewProcessFailedEvent("p", "chef", "gave up", nil))
	if _, ok := d["error"]; ok {
		t.Fatalf("failed detail without cause = %v", d)
	}

	d = hooks.Detail(hooks.NewProcessWaitingEvent("p", "chef", "salt or sugar?"))
	if d["prompt"] != "salt or sugar?" {
		t.Fatalf("waiting detail = %v", d)
	}

	if d := hooks.Detail(hooks.NewProcessResumedEvent("p", "chef")); d != nil {
		t.Fatalf("resumed detail = %v, want nil", d)
	}
}

func TestDetailActions(t *testing.T) {
	d := hooks.Detail(hooks.NewActionStartedEvent("p", "chef", "bake"))
	if d["action"] != "bake" {
		t.Fatalf("started detail = %v", d)
	}

	d = hooks.Detail(hooks.NewActionFinishedEvent("p", "chef", "bake", 90*time.Millisecond, []string{"cake"}, nil))
	if d["action"] != "bake" || d["duration_ms"] != int64(90) {
		t.Fatalf("finished detail = %v", d)
	}
	if b, ok := d["bindings"].([]string); !ok || len(b) != 1 || b[0] != "cake" {
		t.Fatalf("finished bindings = %v", d["bindings"])
	}
	if _, ok := d["error"]; ok {
		t.Fatalf("successful finish has error: %v", d)
	}

	d = hooks.Detail(hooks.NewActionFinishedEvent("p", "chef", "bake", time.Second, nil, errors.New("burnt")))
	if d["error"] != "burnt" {
		t.Fatalf("failed finish detail = %v", d)
	}
	if _, ok := d["bindings"]; ok {
		t.Fatalf("bindingless finish has bindings: %v", d)
	}

	d = hooks.Detail(hooks.NewReplanRequestedEvent("p", "chef", "bake", "missing flour"))
	if d["action"] != "bake" || d["reason"] != "missing flour" {
		t.Fatalf("replan detail = %v", d)
	}
}

func TestDetailInteractions(t *testing.T) {
	d := hooks.Detail(hooks.NewLlmRequestEvent("p", "chef", "int-1", "pick a dish", 3, []string{"oven"}))
	if d["interaction_id"] != "int-1" || d["criteria"] != "pick a dish" || d["messages"] != 3 {
		t.Fatalf("llm request detail = %v", d)
	}
	if tools, ok := d["tools"].([]string); !ok || tools[0] != "oven" {
		t.Fatalf("llm request tools = %v", d["tools"])
	}
	d = hooks.Detail(hooks.NewLlmRequestEvent("p", "chef", "int-2", "", 1, nil))
	if _, ok := d["tools"]; ok {
		t.Fatalf("toolless request has tools: %v", d)
	}

	usage := model.TokenUsage{InputTokens: 100, OutputTokens: 20, TotalTokens: 120}
	d = hooks.Detail(hooks.NewLlmResponseEvent("p", "chef", "int-1", 250*time.Millisecond, usage))
	if d["runtime_ms"] != int64(250) || d["input_tokens"] != 100 || d["output_tokens"] != 20 || d["total_tokens"] != 120 {
		t.Fatalf("llm response detail = %v", d)
	}

	d = hooks.Detail(hooks.NewToolCallRequestEvent("p", "chef", "oven.bake", `{"dish":"flan"}`))
	if d["tool"] != "oven.bake" || d["payload"] != `{"dish":"flan"}` {
		t.Fatalf("tool request detail = %v", d)
	}

	d = hooks.Detail(hooks.NewToolCallResponseEvent("p", "chef", "oven.bake", "done", "", 40*time.Millisecond))
	if d["tool"] != "oven.bake" || d["result"] != "done" || d["duration_ms"] != int64(40) {
		t.Fatalf("tool response detail = %v", d)
	}
	if _, ok := d["failure"]; ok {
		t.Fatalf("successful tool response has failure: %v", d)
	}
	d = hooks.Detail(hooks.NewToolCallResponseEvent("p", "chef", "oven.bake", "", "timeout", time.Second))
	if d["failure"] != "timeout" {
		t.Fatalf("failed tool response detail = %v", d)
	}
	if _, ok := d["result"]; ok {
		t.Fatalf("failed tool response has result: %v", d)
	}
}

func TestDetailUnknownEventIsNil(t *testing.T) {
	if d := hooks.Detail(nil); d != nil {
		t.Fatalf("Detail(nil) = %v", d)
	}
}
