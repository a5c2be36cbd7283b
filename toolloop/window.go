package toolloop

import (
	"context"

	"github.com/telos-ai/telos/model"
)

// SlidingWindow returns a BeforeCall transformer that keeps the conversation
// at or under maxMessages. With preserveSystem set, system messages always
// survive and the window budget covers the most recent non-system messages;
// without it the window is simply the tail of the history.
func SlidingWindow(maxMessages int, preserveSystem bool) MessageTransformer {
	return func(_ context.Context, msgs []model.Message) []model.Message {
		if maxMessages <= 0 || len(msgs) <= maxMessages {
			return msgs
		}
		if !preserveSystem {
			return msgs[len(msgs)-maxMessages:]
		}
		var system, rest []model.Message
		for _, m := range msgs {
			if m.Role == model.RoleSystem {
				system = append(system, m)
			} else {
				rest = append(rest, m)
			}
		}
		keep := maxMessages - len(system)
		if keep < 0 {
			keep = 0
		}
		if keep > len(rest) {
			keep = len(rest)
		}
		out := make([]model.Message, 0, len(system)+keep)
		out = append(out, system...)
		out = append(out, rest[len(rest)-keep:]...)
		return out
	}
}
