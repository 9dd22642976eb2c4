package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/moreskylab/Sentio/recordstore"
)

// articleResponse carries a warning when the article was stored but the
// index could not be updated.
type articleResponse struct {
	recordstore.Article
	Warning string `json:"warning,omitempty"`
}

type articleInput struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	articles, err := s.articles.All(r.Context())
	if err != nil {
		s.writeStoreError(w, "list", err)
		return
	}
	sort.SliceStable(articles, func(i, j int) bool {
		if articles[i].CreatedAt.Equal(articles[j].CreatedAt) {
			return articles[i].ID > articles[j].ID
		}
		return articles[i].CreatedAt.After(articles[j].CreatedAt)
	})
	if articles == nil {
		articles = []recordstore.Article{}
	}
	writeJSON(w, http.StatusOK, articles)
}

func (s *Server) handleCreateArticle(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeArticle(w, r)
	if !ok {
		return
	}
	if in.Title == nil {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	article, err := s.articles.Create(r.Context(), *in.Title, stringValue(in.Content))
	s.writeMutation(w, http.StatusCreated, "create", article, err)
}

func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	article, err := s.articles.GetByID(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, article)
}

func (s *Server) handleReplaceArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	in, ok := decodeArticle(w, r)
	if !ok {
		return
	}
	if in.Title == nil || in.Content == nil {
		writeError(w, http.StatusBadRequest, "title and content are required")
		return
	}
	article, err := s.articles.Update(r.Context(), recordstore.Article{ID: id, Title: *in.Title, Content: *in.Content})
	s.writeMutation(w, http.StatusOK, "update", article, err)
}

func (s *Server) handlePatchArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	in, ok := decodeArticle(w, r)
	if !ok {
		return
	}
	current, err := s.articles.GetByID(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, "patch", err)
		return
	}
	if in.Title != nil {
		current.Title = *in.Title
	}
	if in.Content != nil {
		current.Content = *in.Content
	}
	article, err := s.articles.Update(r.Context(), *current)
	s.writeMutation(w, http.StatusOK, "patch", article, err)
}

func (s *Server) handleDeleteArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	err := s.articles.Delete(r.Context(), id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, recordstore.ErrIndexSync):
		s.logf("httpapi: delete article %d: %v", id, err)
		writeJSON(w, http.StatusOK, map[string]string{"warning": errorMessage(err)})
	default:
		s.writeStoreError(w, "delete", err)
	}
}

func (s *Server) writeMutation(w http.ResponseWriter, status int, op string, article *recordstore.Article, err error) {
	if err != nil && (article == nil || !errors.Is(err, recordstore.ErrIndexSync)) {
		s.writeStoreError(w, op, err)
		return
	}
	resp := articleResponse{Article: *article}
	if err != nil {
		s.logf("httpapi: %s article %d: %v", op, article.ID, err)
		resp.Warning = errorMessage(err)
	}
	writeJSON(w, status, resp)
}

func (s *Server) writeStoreError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, recordstore.ErrNotFound):
		writeError(w, http.StatusNotFound, "Article not found")
	case errors.Is(err, recordstore.ErrInvalidArticle):
		writeError(w, http.StatusBadRequest, errorMessage(err))
	case errors.Is(err, recordstore.ErrReadOnly):
		writeError(w, http.StatusMethodNotAllowed, errorMessage(err))
	default:
		s.logf("httpapi: %s article: %v", op, err)
		writeError(w, http.StatusInternalServerError, errorMessage(err))
	}
}

func decodeArticle(w http.ResponseWriter, r *http.Request) (*articleInput, bool) {
	var in articleInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid input")
		return nil, false
	}
	return &in, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "Article not found")
		return 0, false
	}
	return id, true
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
