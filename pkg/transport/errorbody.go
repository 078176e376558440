package transport

import (
	"encoding/json"
	"strings"
)

// errorBody covers the error shapes the API returns: {"detail": "..."},
// {"detail": [{"loc": [...], "msg": "..."}]} for field validation, and
// {"message": "..."}.
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
}

type validationDetail struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// errorMessage extracts a human-readable message from an error body. It
// returns "" when the body has no recognizable message.
func errorMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	if len(eb.Detail) > 0 {
		var detail string
		if err := json.Unmarshal(eb.Detail, &detail); err == nil && strings.TrimSpace(detail) != "" {
			return detail
		}
		var details []validationDetail
		if err := json.Unmarshal(eb.Detail, &details); err == nil {
			msgs := make([]string, 0, len(details))
			for _, d := range details {
				if d.Msg != "" {
					msgs = append(msgs, d.Msg)
				}
			}
			if len(msgs) > 0 {
				return strings.Join(msgs, "; ")
			}
		}
	}
	return strings.TrimSpace(eb.Message)
}
