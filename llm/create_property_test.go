package llm

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/telos-ai/telos/model"
)

// TestExtractJSONProperty pins down the fence stripping against arbitrary
// surrounding prose: whatever the model wraps around the document, the
// document itself comes back byte for byte.
func TestExtractJSONProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("fenced documents survive extraction", prop.ForAll(
		func(value, before, after string) bool {
			doc := fmt.Sprintf(`{"answer":%q}`, value)
			text := before + "\n```json\n" + doc + "\n```\n" + after
			return extractJSON(text) == doc
		},
		gen.AlphaString(), gen.AlphaString(), gen.AlphaString(),
	))

	properties.Property("bare documents pass through untouched", prop.ForAll(
		func(n int, s string) bool {
			doc := fmt.Sprintf(`{"n":%d,"s":%q}`, n, s)
			return extractJSON(doc) == doc
		},
		gen.Int(), gen.AlphaString(),
	))

	properties.Property("extraction never invents text", prop.ForAll(
		func(text string) bool {
			return strings.Contains(text, extractJSON(text))
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

// TestRetriableProperty verifies classification is stable under wrapping.
func TestRetriableProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	wrap := func(err error, depth int) error {
		for i := 0; i < depth; i++ {
			err = fmt.Errorf("layer %d: %w", i, err)
		}
		return err
	}

	properties.Property("rate limits stay retriable at any wrap depth", prop.ForAll(
		func(depth int) bool {
			return Retriable(wrap(&model.RateLimitError{Err: errors.New("throttled")}, depth))
		},
		gen.IntRange(0, 6),
	))

	properties.Property("plain failures stay permanent at any wrap depth", prop.ForAll(
		func(depth int, msg string) bool {
			return !Retriable(wrap(errors.New(msg), depth))
		},
		gen.IntRange(0, 6), gen.AlphaString(),
	))

	properties.TestingRun(t)
}
