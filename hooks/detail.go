package hooks

// Detail flattens the typed payload of an event into a string-keyed map.
// Persistence and streaming adapters use it to serialize events without
// depending on the concrete Go types. Identity fields (process, agent,
// sequence, timestamp) are not included; they travel on the enclosing record.
// Events with no payload beyond their identity return nil.
func Detail(evt Event) map[string]any {
	switch e := evt.(type) {
	case *ProcessCreatedEvent:
		if e.Goal == "" {
			return nil
		}
		return map[string]any{"goal": e.Goal}
	case *ActionStartedEvent:
		return map[string]any{"action": e.ActionName}
	case *ActionFinishedEvent:
		d := map[string]any{
			"action":      e.ActionName,
			"duration_ms": e.Duration.Milliseconds(),
		}
		if len(e.Bindings) > 0 {
			d["bindings"] = e.Bindings
		}
		if e.Error != nil {
			d["error"] = e.Error.Error()
		}
		return d
	case *GoalAchievedEvent:
		return map[string]any{"goal": e.GoalName}
	case *ProcessFailedEvent:
		d := map[string]any{"reason": e.Reason}
		if e.Error != nil {
			d["error"] = e.Error.Error()
		}
		return d
	case *ProcessWaitingEvent:
		return map[string]any{"prompt": e.Prompt}
	case *ReplanRequestedEvent:
		return map[string]any{"action": e.ActionName, "reason": e.Reason}
	case *LlmRequestEvent:
		d := map[string]any{
			"interaction_id": e.InteractionID,
			"criteria":       e.Criteria,
			"messages":       e.Messages,
		}
		if len(e.Tools) > 0 {
			d["tools"] = e.Tools
		}
		return d
	case *LlmResponseEvent:
		return map[string]any{
			"interaction_id": e.InteractionID,
			"runtime_ms":     e.Runtime.Milliseconds(),
			"input_tokens":   e.Usage.InputTokens,
			"output_tokens":  e.Usage.OutputTokens,
			"total_tokens":   e.Usage.TotalTokens,
		}
	case *ToolCallRequestEvent:
		return map[string]any{"tool": e.ToolName, "payload": e.Payload}
	case *ToolCallResponseEvent:
		d := map[string]any{
			"tool":        e.ToolName,
			"duration_ms": e.Duration.Milliseconds(),
		}
		if e.Result != "" {
			d["result"] = e.Result
		}
		if e.Failure != "" {
			d["failure"] = e.Failure
		}
		return d
	default:
		return nil
	}
}
