// Package httpapi serves the JSON recommendation endpoint and a thin article
// CRUD surface whose mutations keep the index in sync.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/moreskylab/Sentio/recommend"
	"github.com/moreskylab/Sentio/recordstore"
)

const maxBodyBytes = 1 << 20

// Recommender answers similarity queries. *service.Service implements it.
type Recommender interface {
	Recommend(ctx context.Context, q recommend.Query) ([]recommend.Recommendation, error)
}

// Articles is the article store used by the CRUD handlers.
// *recordstore.Store implements it.
type Articles interface {
	recordstore.Reader
	Create(ctx context.Context, title, content string) (*recordstore.Article, error)
	Update(ctx context.Context, article recordstore.Article) (*recordstore.Article, error)
	Delete(ctx context.Context, id int64) error
}

// Option configures a Server.
type Option func(*Server)

// WithLogf sets the request error logger.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(s *Server) {
		if logf != nil {
			s.logf = logf
		}
	}
}

// Server routes the JSON API.
type Server struct {
	recommender Recommender
	articles    Articles
	logf        func(format string, args ...any)
	mux         *http.ServeMux
}

// New creates a server. articles may be nil, in which case only the
// recommend and health endpoints are mounted.
func New(recommender Recommender, articles Articles, opts ...Option) *Server {
	s := &Server{
		recommender: recommender,
		articles:    articles,
		logf:        func(string, ...any) {},
		mux:         http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.mux.HandleFunc("/api/recommend/", s.handleRecommend)
	s.mux.HandleFunc("/api/recommend", s.handleRecommend)
	if s.articles == nil {
		return
	}
	s.mux.HandleFunc("GET /api/articles/{$}", s.handleListArticles)
	s.mux.HandleFunc("POST /api/articles/{$}", s.handleCreateArticle)
	s.mux.HandleFunc("GET /api/articles/{id}/", s.handleGetArticle)
	s.mux.HandleFunc("PUT /api/articles/{id}/", s.handleReplaceArticle)
	s.mux.HandleFunc("PATCH /api/articles/{id}/", s.handlePatchArticle)
	s.mux.HandleFunc("DELETE /api/articles/{id}/", s.handleDeleteArticle)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorMessage flattens joined errors onto one line.
func errorMessage(err error) string {
	return strings.ReplaceAll(err.Error(), "\n", ": ")
}
