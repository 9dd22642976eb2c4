package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	"github.com/joho/godotenv"
	_ "github.com/viant/afsc/gs"
	_ "github.com/viant/afsc/s3"

	"github.com/moreskylab/Sentio/service"
)

var errUsage = errors.New("usage")

func main() {
	startGops()
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("dotenv: %v", err)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	err := run(ctx, os.Args[1:], os.Stdout)
	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		os.Exit(2)
	default:
		log.Printf("sentio: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) < 1 {
		usage()
		return errUsage
	}
	switch args[0] {
	case "serve":
		return serveCmd(ctx, args[1:])
	case "reindex":
		return reindexCmd(ctx, args[1:], stdout)
	case "recommend":
		return recommendCmd(ctx, args[1:], stdout)
	case "import":
		return importCmd(ctx, args[1:], stdout)
	case "check":
		return checkCmd(ctx, args[1:], stdout)
	default:
		usage()
		return errUsage
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: sentio <command> [options]")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  serve      Serve the JSON API and optionally MCP tools")
	fmt.Fprintln(os.Stderr, "  reindex    Rebuild the vector index from every article")
	fmt.Fprintln(os.Stderr, "  recommend  Show articles similar to --query or --article-id")
	fmt.Fprintln(os.Stderr, "  import     Load articles from YAML, JSON, xlsx, xls or PDF (local, gs://, s3://)")
	fmt.Fprintln(os.Stderr, "  check      Verify index integrity against the article store")
}

// serviceFlags are shared by every command that builds the service graph.
type serviceFlags struct {
	config      *string
	embedder    *string
	model       *string
	indexDSN    *string
	articlesDSN *string
	verbose     *bool
	debugSleep  *int
}

func addServiceFlags(flags *flag.FlagSet) *serviceFlags {
	return &serviceFlags{
		config:      flags.String("config", "", "config yaml (optional, defaults to $SENTIO_CONFIG or ~/sentio/config.yaml if present)"),
		embedder:    flags.String("embedder", "", "embedder: ollama|openai|vertexai|hashing (overrides config)"),
		model:       flags.String("model", "", "embedding model (overrides config)"),
		indexDSN:    flags.String("index-dsn", "", "vector index SQLite path (overrides config)"),
		articlesDSN: flags.String("articles-dsn", "", "article store DSN (overrides config)"),
		verbose:     flags.Bool("v", false, "log component activity"),
		debugSleep:  flags.Int("debug-sleep", 0, "debug: sleep N seconds before execution (for gops)"),
	}
}

func (f *serviceFlags) open(ctx context.Context, cmd string) (*service.Service, error) {
	maybeDebugSleep(cmd, *f.debugSleep)
	cfg, err := f.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	var opts []service.Option
	if *f.verbose {
		opts = append(opts, service.WithLogf(log.Printf))
	}
	return service.New(ctx, cfg, opts...)
}

func (f *serviceFlags) loadConfig(ctx context.Context) (*service.Config, error) {
	cfg := service.DefaultConfig()
	// LoadConfig has already expanded paths and secrets.
	initialized := false
	if path := resolveConfigPath(*f.config); path != "" {
		loaded, err := service.LoadConfig(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg, initialized = loaded, true
	}
	if *f.embedder != "" {
		cfg.Embedder.Provider = strings.ToLower(strings.TrimSpace(*f.embedder))
		cfg.Embedder.Model = ""
	}
	if *f.model != "" {
		cfg.Embedder.Model = *f.model
	}
	if *f.indexDSN != "" {
		cfg.Index.DSN = *f.indexDSN
	}
	if *f.articlesDSN != "" {
		cfg.Articles.DSN = *f.articlesDSN
		cfg.Articles.Driver = ""
	}
	prepare := cfg.Init
	if initialized {
		// Secrets are already resolved; only the flag overrides need expanding.
		prepare = func(context.Context) error {
			if err := cfg.ExpandPaths(); err != nil {
				return err
			}
			return cfg.Validate()
		}
	}
	if err := prepare(ctx); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolveConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if env := strings.TrimSpace(os.Getenv("SENTIO_CONFIG")); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	candidate := home + "/sentio/config.yaml"
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}

func closeService(svc *service.Service) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := svc.Close(ctx); err != nil {
		log.Printf("close: %v", err)
	}
}

func maybeDebugSleep(cmd string, seconds int) {
	if seconds <= 0 {
		seconds = debugSleepFromEnv()
	}
	if seconds <= 0 {
		return
	}
	log.Printf("debug: cmd=%s pid=%d sleep=%ds", cmd, os.Getpid(), seconds)
	time.Sleep(time.Duration(seconds) * time.Second)
}

func startGops() {
	if err := agent.Listen(agent.Options{ShutdownCleanup: true}); err != nil {
		log.Printf("gops: %v", err)
	}
}

func debugSleepFromEnv() int {
	val := strings.TrimSpace(os.Getenv("SENTIO_DEBUG_SLEEP"))
	if val == "" {
		return 0
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
