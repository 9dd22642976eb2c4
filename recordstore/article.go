// Package recordstore is the relational article store the recommendation core
// consumes: lookups by id, listing for reindex, and save/delete events.
package recordstore

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// TitleLimit bounds the article title, in characters.
const TitleLimit = 255

var (
	// ErrNotFound is returned when no article has the requested id.
	ErrNotFound = errors.New("article not found")
	// ErrInvalidArticle is returned for articles failing validation.
	ErrInvalidArticle = errors.New("invalid article")
	// ErrReadOnly is returned for mutations against a read-only source.
	ErrReadOnly = errors.New("article store is read-only")
	// ErrIndexSync marks a subscriber failure after a committed mutation.
	ErrIndexSync = errors.New("index sync failed")
)

// Article is a short text document.
type Article struct {
	ID        int64     `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Content   string    `json:"content" yaml:"content"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at,omitempty"`
}

// Validate checks the title is present and within TitleLimit.
func (a *Article) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return errors.Join(ErrInvalidArticle, errors.New("title is required"))
	}
	if utf8.RuneCountInString(a.Title) > TitleLimit {
		return errors.Join(ErrInvalidArticle, errors.New("title is too long"))
	}
	return nil
}

// Reader is the read side the query service and reindex depend on.
type Reader interface {
	GetByID(ctx context.Context, id int64) (*Article, error)
	All(ctx context.Context) ([]Article, error)
}

// Subscriber receives article mutations after they are committed.
type Subscriber interface {
	OnSaved(ctx context.Context, article Article) error
	OnDeleted(ctx context.Context, id int64) error
}
