package execution

import (
	"encoding/json"

	"github.com/dukex/dagstudio/pkg/models"
	"github.com/dukex/dagstudio/pkg/remote"
)

// NormalizeResult extracts the user-facing result of exec.
//
// result_json is parsed when present. An object carrying a "body" is
// unwrapped one level: a string body is parsed as JSON when possible and kept
// as the raw string otherwise, a null body falls back to the whole envelope.
// When result_json cannot be parsed the plain Result field is returned along
// with a *remote.ParseError the caller should treat as a warning.
func NormalizeResult(exec *models.Execution) (any, error) {
	if exec == nil {
		return nil, nil
	}

	if exec.ResultJSON == nil || *exec.ResultJSON == "" {
		return exec.Result, nil
	}

	var parsed any
	if err := json.Unmarshal([]byte(*exec.ResultJSON), &parsed); err != nil {
		return exec.Result, &remote.ParseError{Op: "GetExecution", Field: "result_json", Err: err}
	}

	envelope, ok := parsed.(map[string]any)
	if !ok {
		return parsed, nil
	}

	body, ok := envelope["body"]
	if !ok {
		return parsed, nil
	}

	switch b := body.(type) {
	case nil:
		return parsed, nil
	case string:
		var inner any
		if err := json.Unmarshal([]byte(b), &inner); err != nil {
			return b, nil
		}

		return inner, nil
	default:
		return b, nil
	}
}
