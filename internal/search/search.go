package search

import (
	"context"
	"time"

	"github.com/UkralStul/comments-service/internal/domain"
)

// DefaultLimit - максимум результатов поиска.
const DefaultLimit = 50

// Result - одно найденное совпадение.
type Result struct {
	ID        string    `json:"id"`
	UserName  string    `json:"user_name"`
	Email     string    `json:"email"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Response - ответ эндпоинта поиска.
type Response struct {
	Query   string   `json:"query"`
	Count   int      `json:"count"`
	Results []Result `json:"results"`
}

// CommentRecord - данные комментария в поисковом индексе.
type CommentRecord struct {
	ID        string `json:"id"`
	UserName  string `json:"user_name"`
	Email     string `json:"email"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
	CreatedTS int64  `json:"created_ts"`
}

// Fallback - поиск средствами хранилища, когда Meilisearch недоступен.
type Fallback interface {
	SearchComments(ctx context.Context, query string, limit int) ([]*domain.Comment, error)
}

func recordFromComment(c *domain.Comment) CommentRecord {
	return CommentRecord{
		ID:        c.ID,
		UserName:  c.UserName,
		Email:     c.Email,
		Text:      c.Text,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339Nano),
		CreatedTS: c.CreatedAt.Unix(),
	}
}

func resultFromComment(c *domain.Comment) Result {
	return Result{ID: c.ID, UserName: c.UserName, Email: c.Email, Text: c.Text, CreatedAt: c.CreatedAt}
}
