package mcp

import (
	"context"

	"github.com/viant/jsonrpc/transport"
	protoclient "github.com/viant/mcp-protocol/client"
	"github.com/viant/mcp-protocol/logger"
	protoserver "github.com/viant/mcp-protocol/server"

	"github.com/moreskylab/Sentio/service"
)

// Handler exposes the recommendation service as MCP tools.
type Handler struct {
	*protoserver.DefaultHandler
	service    *service.Service
	metricsLog bool
}

// NewHandler returns a handler factory for mcp server.WithNewHandler.
func NewHandler(svc *service.Service, metricsLog bool) protoserver.NewHandler {
	return func(_ context.Context, notifier transport.Notifier, logger logger.Logger, clientOperation protoclient.Operations) (protoserver.Handler, error) {
		base := protoserver.NewDefaultHandler(notifier, logger, clientOperation)
		h := &Handler{
			DefaultHandler: base,
			service:        svc,
			metricsLog:     metricsLog,
		}
		if err := registerTools(base.Registry, h); err != nil {
			return nil, err
		}
		return h, nil
	}
}
