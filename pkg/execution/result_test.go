package execution_test

import (
	"testing"

	"github.com/dukex/dagstudio/pkg/execution"
	"github.com/dukex/dagstudio/pkg/models"
	"github.com/dukex/dagstudio/pkg/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string {
	return &s
}

func TestNormalizeResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		exec *models.Execution
		want any
	}{
		{
			name: "nil execution",
			exec: nil,
			want: nil,
		},
		{
			name: "plain result without result_json",
			exec: &models.Execution{Result: map[string]any{"ok": true}},
			want: map[string]any{"ok": true},
		},
		{
			name: "string body holding JSON is parsed",
			exec: &models.Execution{ResultJSON: strPtr(`{"body":"{\"x\":1}"}`)},
			want: map[string]any{"x": float64(1)},
		},
		{
			name: "string body that is not JSON is kept raw",
			exec: &models.Execution{ResultJSON: strPtr(`{"body":"plain text"}`)},
			want: "plain text",
		},
		{
			name: "object body is used as is",
			exec: &models.Execution{ResultJSON: strPtr(`{"body":{"y":[1,2]}}`)},
			want: map[string]any{"y": []any{float64(1), float64(2)}},
		},
		{
			name: "null body falls back to the envelope",
			exec: &models.Execution{ResultJSON: strPtr(`{"body":null,"status":200}`)},
			want: map[string]any{"body": nil, "status": float64(200)},
		},
		{
			name: "object without body is returned whole",
			exec: &models.Execution{ResultJSON: strPtr(`{"status":204}`)},
			want: map[string]any{"status": float64(204)},
		},
		{
			name: "non-object value",
			exec: &models.Execution{ResultJSON: strPtr(`[1,"a"]`)},
			want: []any{float64(1), "a"},
		},
		{
			name: "empty result_json uses result",
			exec: &models.Execution{ResultJSON: strPtr(""), Result: "fallback"},
			want: "fallback",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := execution.NormalizeResult(tt.exec)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeResult_UnparseableFallsBack(t *testing.T) {
	t.Parallel()

	got, err := execution.NormalizeResult(&models.Execution{
		ResultJSON: strPtr(`{"body":`),
		Result:     "raw",
	})

	require.Error(t, err)
	assert.True(t, remote.IsParseError(err))
	assert.Equal(t, "raw", got)

	var perr *remote.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "result_json", perr.Field)
}
