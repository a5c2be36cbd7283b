package bedrock

import (
	"errors"
	"testing"

	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/require"

	"github.com/telos-ai/telos/model"
)

func TestTranslateStopReason(t *testing.T) {
	cases := []struct {
		in   brtypes.StopReason
		want model.StopReason
	}{
		{brtypes.StopReasonEndTurn, model.StopEndTurn},
		{brtypes.StopReasonStopSequence, model.StopEndTurn},
		{brtypes.StopReasonToolUse, model.StopToolUse},
		{brtypes.StopReasonMaxTokens, model.StopMaxTokens},
		{brtypes.StopReasonGuardrailIntervened, model.StopOther},
		{brtypes.StopReason("something-new"), model.StopOther},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, translateStopReason(tc.in), "stop reason %q", tc.in)
	}
}

func TestSanitizeToolName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"calc_tool", "calc_tool"},
		{"calc.tool", "calc_tool"},
		{"weather lookup", "weather_lookup"},
		{"db.query!", "db_query_"},
		{"", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, sanitizeToolName(tc.in))
	}
}

func TestToDocumentDefaultsEmptySchemas(t *testing.T) {
	doc, err := toDocument(nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"object","properties":{}}`, decodeDocument(doc))

	doc, err = toDocument([]byte(`{"type":"object","required":["x"]}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"object","required":["x"]}`, decodeDocument(doc))

	_, err = toDocument([]byte(`{not json`))
	require.Error(t, err)
}

func TestClassifyRateLimitIgnoresOtherErrors(t *testing.T) {
	require.Nil(t, classifyRateLimit(errors.New("network down")))
	require.Nil(t, classifyRateLimit(nil))
}
