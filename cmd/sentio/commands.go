package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	emcp "github.com/moreskylab/Sentio/mcp"
	"github.com/moreskylab/Sentio/recommend"
)

var errAllFailed = errors.New("reindex: every article failed to embed")

func reindexCmd(ctx context.Context, args []string, stdout io.Writer) error {
	flags := flag.NewFlagSet("reindex", flag.ContinueOnError)
	common := addServiceFlags(flags)
	strict := flags.Bool("strict", false, "abort on the first embedding failure, leaving the index untouched")
	if err := flags.Parse(args); err != nil {
		return errUsage
	}
	svc, err := common.open(ctx, "reindex")
	if err != nil {
		return err
	}
	defer closeService(svc)

	report, err := svc.Reindex(ctx, *strict)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "outcome=%s processed=%d indexed=%d failed=%d elapsed=%s\n",
		report.Outcome(), report.Processed, report.Indexed, len(report.Failures), report.Elapsed.Round(time.Millisecond))
	for _, failure := range report.Failures {
		fmt.Fprintf(stdout, "failed id=%d err=%v\n", failure.ID, failure.Err)
	}
	if report.Warning != "" {
		fmt.Fprintf(stdout, "warning: %s\n", report.Warning)
	}
	if report.Processed > 0 && report.Indexed == 0 {
		return errAllFailed
	}
	return nil
}

func recommendCmd(ctx context.Context, args []string, stdout io.Writer) error {
	flags := flag.NewFlagSet("recommend", flag.ContinueOnError)
	common := addServiceFlags(flags)
	query := flags.String("query", "", "free-text query")
	articleID := flags.Int64("article-id", 0, "id of the reference article")
	mcpAddr := flags.String("mcp-addr", "", "query a running MCP server instead of opening the stores")
	plain := flags.Bool("plain", false, "print the markdown table without rendering")
	if err := flags.Parse(args); err != nil {
		return errUsage
	}
	var in emcp.RecommendInput
	flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "query":
			in.Query = query
		case "article-id":
			in.ArticleID = articleID
		}
	})

	var recs []recommend.Recommendation
	if *mcpAddr != "" {
		out, err := mcpRecommendWithRetry(ctx, *mcpAddr, &in)
		if err != nil {
			return err
		}
		recs = out.Recommendations
	} else {
		svc, err := common.open(ctx, "recommend")
		if err != nil {
			return err
		}
		defer closeService(svc)
		if recs, err = svc.Recommend(ctx, recommend.Query{Text: in.Query, ArticleID: in.ArticleID}); err != nil {
			return err
		}
	}

	table := recommendationTable(recs)
	if *plain {
		_, err := io.WriteString(stdout, table)
		return err
	}
	out, err := glamour.Render(table, "dark")
	if err != nil {
		return err
	}
	_, err = io.WriteString(stdout, out)
	return err
}

func recommendationTable(recs []recommend.Recommendation) string {
	if len(recs) == 0 {
		return "_No recommendations._\n"
	}
	var b strings.Builder
	b.WriteString("| # | ID | Title | Score |\n|---|---|---|---|\n")
	for i, rec := range recs {
		title := strings.ReplaceAll(rec.Title, "|", `\|`)
		fmt.Fprintf(&b, "| %d | %d | %s | %.4f |\n", i+1, rec.ID, title, rec.SimilarityScore)
	}
	return b.String()
}

func importCmd(ctx context.Context, args []string, stdout io.Writer) error {
	flags := flag.NewFlagSet("import", flag.ContinueOnError)
	common := addServiceFlags(flags)
	URL := flags.String("url", "", "articles file: .yaml, .json, .xlsx, .xls or .pdf (local path, gs://, s3://)")
	if err := flags.Parse(args); err != nil {
		return errUsage
	}
	if strings.TrimSpace(*URL) == "" {
		flags.Usage()
		return errUsage
	}
	svc, err := common.open(ctx, "import")
	if err != nil {
		return err
	}
	defer closeService(svc)

	result, err := svc.ImportArticles(ctx, *URL)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "imported=%d\n", result.Imported)
	if report := result.Reindex; report != nil {
		fmt.Fprintf(stdout, "reindex outcome=%s indexed=%d failed=%d\n", report.Outcome(), report.Indexed, len(report.Failures))
		if report.Warning != "" {
			fmt.Fprintf(stdout, "warning: %s\n", report.Warning)
		}
	}
	return nil
}

func checkCmd(ctx context.Context, args []string, stdout io.Writer) error {
	flags := flag.NewFlagSet("check", flag.ContinueOnError)
	common := addServiceFlags(flags)
	if err := flags.Parse(args); err != nil {
		return errUsage
	}
	svc, err := common.open(ctx, "check")
	if err != nil {
		return err
	}
	defer closeService(svc)

	result, err := svc.Check(ctx)
	if err != nil {
		return err
	}
	stats := result.Index
	fmt.Fprintf(stdout, "table=%s rows=%d distinct_ids=%d duplicate_ids=%d bad_dimensions=%d articles=%d missing=%d orphaned=%d\n",
		stats.Table, stats.Rows, stats.DistinctIDs, len(stats.DuplicateIDs), stats.BadDimensions, result.Articles, len(result.Missing), len(result.Orphaned))
	if len(result.Missing) > 0 {
		fmt.Fprintf(stdout, "missing ids: %v\n", result.Missing)
	}
	if len(result.Orphaned) > 0 {
		fmt.Fprintf(stdout, "orphaned ids: %v\n", result.Orphaned)
	}
	if !result.Healthy() {
		return fmt.Errorf("check: index is out of sync, run reindex")
	}
	fmt.Fprintln(stdout, "ok")
	return nil
}
