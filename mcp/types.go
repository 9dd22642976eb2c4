package mcp

import "github.com/moreskylab/Sentio/recommend"

// RecommendInput carries exactly one of query or article_id.
type RecommendInput struct {
	Query     *string `json:"query,omitempty"`
	ArticleID *int64  `json:"article_id,omitempty"`
}

type RecommendOutput struct {
	Recommendations []recommend.Recommendation `json:"recommendations"`
}

type ReindexInput struct {
	Strict bool `json:"strict,omitempty"`
}

// ReindexFailure is an article that could not be embedded.
type ReindexFailure struct {
	ID    int64  `json:"id"`
	Error string `json:"error"`
}

type ReindexOutput struct {
	Outcome   string           `json:"outcome"`
	Processed int              `json:"processed"`
	Indexed   int              `json:"indexed"`
	Failures  []ReindexFailure `json:"failures,omitempty"`
	Warning   string           `json:"warning,omitempty"`
	Elapsed   string           `json:"elapsed"`
}
