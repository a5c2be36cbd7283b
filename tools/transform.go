package tools

import "unicode/utf8"

// Transformer rewrites the text of a successful tool result before it is fed
// back to the model. Transformers see only the content string; artifacts and
// error results pass through untouched.
type Transformer func(content string) string

// Truncate returns a Transformer that caps content at max bytes, cutting on a
// rune boundary and appending a marker so the model knows text was dropped.
func Truncate(max int) Transformer {
	const marker = "\n[truncated]"
	return func(content string) string {
		if max <= 0 || len(content) <= max {
			return content
		}
		cut := max
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		return content[:cut] + marker
	}
}

// Chain composes transformers left to right.
func Chain(ts ...Transformer) Transformer {
	return func(content string) string {
		for _, t := range ts {
			if t != nil {
				content = t(content)
			}
		}
		return content
	}
}
