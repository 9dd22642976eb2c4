package mcp

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/viant/jsonrpc"
	"github.com/viant/mcp-protocol/schema"
	protoserver "github.com/viant/mcp-protocol/server"

	"github.com/moreskylab/Sentio/recommend"
)

//go:embed tools/recommend.md
var descRecommend string

//go:embed tools/reindex.md
var descReindex string

func registerTools(registry *protoserver.Registry, h *Handler) error {
	if err := protoserver.RegisterTool[*RecommendInput, *RecommendOutput](registry, "recommend", descRecommend, func(ctx context.Context, in *RecommendInput) (*schema.CallToolResult, *jsonrpc.Error) {
		out, err := h.recommend(ctx, in)
		if err != nil {
			return buildErrorResult(err)
		}
		return buildSuccessResult(out)
	}); err != nil {
		return err
	}

	if err := protoserver.RegisterTool[*ReindexInput, *ReindexOutput](registry, "reindex", descReindex, func(ctx context.Context, in *ReindexInput) (*schema.CallToolResult, *jsonrpc.Error) {
		out, err := h.reindex(ctx, in)
		if err != nil {
			return buildErrorResult(err)
		}
		return buildSuccessResult(out)
	}); err != nil {
		return err
	}

	return nil
}

func buildErrorResult(err error) (*schema.CallToolResult, *jsonrpc.Error) {
	code := jsonrpc.InternalError
	if errors.Is(err, recommend.ErrInvalidInput) || errors.Is(err, recommend.ErrNotFound) {
		code = jsonrpc.InvalidParams
	}
	return nil, jsonrpc.NewError(code, err.Error(), nil)
}

func buildSuccessResult(payload any) (*schema.CallToolResult, *jsonrpc.Error) {
	b, _ := json.Marshal(payload)
	return &schema.CallToolResult{
		Content: []schema.CallToolResultContentElem{
			schema.TextContent{Type: "text", Text: string(b)},
		},
		StructuredContent: map[string]any{"result": payload},
	}, nil
}

func (h *Handler) recommend(ctx context.Context, in *RecommendInput) (*RecommendOutput, error) {
	start := time.Now()
	if h == nil || h.service == nil {
		return nil, fmt.Errorf("mcp: service unavailable")
	}
	if in == nil {
		in = &RecommendInput{}
	}
	recs, err := h.service.Recommend(ctx, recommend.Query{Text: in.Query, ArticleID: in.ArticleID})
	if err != nil {
		return nil, err
	}
	if h.metricsLog {
		log.Printf("mcp metric op=recommend matches=%d dur=%s", len(recs), time.Since(start))
	}
	return &RecommendOutput{Recommendations: recs}, nil
}

func (h *Handler) reindex(ctx context.Context, in *ReindexInput) (*ReindexOutput, error) {
	start := time.Now()
	if h == nil || h.service == nil {
		return nil, fmt.Errorf("mcp: service unavailable")
	}
	if in == nil {
		in = &ReindexInput{}
	}
	report, err := h.service.Reindex(ctx, in.Strict)
	if err != nil {
		return nil, err
	}
	out := &ReindexOutput{
		Outcome:   report.Outcome(),
		Processed: report.Processed,
		Indexed:   report.Indexed,
		Warning:   report.Warning,
		Elapsed:   report.Elapsed.Round(time.Millisecond).String(),
	}
	for _, failure := range report.Failures {
		out.Failures = append(out.Failures, ReindexFailure{ID: failure.ID, Error: failure.Err.Error()})
	}
	if h.metricsLog {
		log.Printf("mcp metric op=reindex indexed=%d failed=%d dur=%s", out.Indexed, len(out.Failures), time.Since(start))
	}
	return out, nil
}
