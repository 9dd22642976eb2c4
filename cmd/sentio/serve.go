package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/viant/mcp-protocol/schema"
	mcpsrv "github.com/viant/mcp/server"

	"github.com/moreskylab/Sentio/httpapi"
	emcp "github.com/moreskylab/Sentio/mcp"
	"github.com/moreskylab/Sentio/service"
)

func serveCmd(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("serve", flag.ContinueOnError)
	common := addServiceFlags(flags)
	httpAddr := flags.String("http-addr", "", "JSON API address (default from config or :8000)")
	mcpAddr := flags.String("mcp-addr", "", "MCP server address (default from config, disabled when empty)")
	metricsLog := flags.Bool("metrics-log", false, "log mcp metric lines")
	if err := flags.Parse(args); err != nil {
		return errUsage
	}
	svc, err := common.open(ctx, "serve")
	if err != nil {
		return err
	}
	defer closeService(svc)
	svc.Start(ctx)

	addr := *httpAddr
	if addr == "" {
		addr = svc.Config().HTTP.Addr
	}
	api := &http.Server{
		Addr:              addr,
		Handler:           httpapi.New(svc, svc.Articles(), httpapi.WithLogf(log.Printf)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	servers := []*http.Server{api}
	log.Printf("sentio api listening on %s", api.Addr)

	if listen := resolveMCPAddr(*mcpAddr, svc.Config()); listen != "" {
		server, err := mcpsrv.New(
			mcpsrv.WithImplementation(schema.Implementation{Name: "sentio-mcp", Version: "0.1.0"}),
			mcpsrv.WithNewHandler(emcp.NewHandler(svc, *metricsLog)),
			mcpsrv.WithEndpointAddress(listen),
			mcpsrv.WithRootRedirect(true),
			mcpsrv.WithStreamableURI("/mcp"),
		)
		if err != nil {
			return err
		}
		server.UseStreamableHTTP(true)
		httpServer := server.HTTP(ctx, listen)
		httpServer.ReadHeaderTimeout = 10 * time.Second
		httpServer.ReadTimeout = 60 * time.Second
		httpServer.WriteTimeout = 60 * time.Second
		httpServer.IdleTimeout = 120 * time.Second
		servers = append(servers, httpServer)
		log.Printf("sentio-mcp listening on %s", httpServer.Addr)
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			errCh <- srv.ListenAndServe()
		}(srv)
	}

	var serveErr error
	select {
	case <-ctx.Done():
		log.Printf("shutdown signal received")
	case serveErr = <-errCh:
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	for _, srv := range servers {
		if err := srv.Shutdown(ctxShutdown); err != nil {
			log.Printf("http shutdown error: %v", err)
		}
	}
	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	log.Printf("sentio stopped")
	return nil
}

func resolveMCPAddr(flagAddr string, cfg *service.Config) string {
	if flagAddr != "" {
		return flagAddr
	}
	if cfg != nil {
		if cfg.MCPServer.Addr != "" {
			return cfg.MCPServer.Addr
		}
		if cfg.MCPServer.Port > 0 {
			return fmt.Sprintf("127.0.0.1:%d", cfg.MCPServer.Port)
		}
	}
	return ""
}
