package recommend

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ParseQuery decodes {"query": "..."} or {"article_id": n}. Unknown fields
// are ignored; null counts as absent.
func ParseQuery(body []byte) (Query, error) {
	var q Query
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return q, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if raw, ok := fields["query"]; ok && !isNull(raw) {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return q, fmt.Errorf("%w: query must be a string", ErrInvalidInput)
		}
		q.Text = &text
	}
	if raw, ok := fields["article_id"]; ok && !isNull(raw) {
		var id int64
		if err := json.Unmarshal(raw, &id); err != nil {
			return q, fmt.Errorf("%w: article_id must be an integer", ErrInvalidInput)
		}
		q.ArticleID = &id
	}
	return q, q.Validate()
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
