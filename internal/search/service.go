// Package search - поиск комментариев: Meilisearch, если доступен, иначе хранилище.
package search

import (
	"context"
	"log/slog"
	"strings"

	"github.com/UkralStul/comments-service/internal/domain"
)

// Service - фасад, который сначала пробует Meilisearch, а затем хранилище.
type Service struct {
	meili    *Meili
	fallback Fallback
}

// NewService создает сервис поиска. meili может быть nil, если Meilisearch не настроен.
func NewService(meili *Meili, fallback Fallback) *Service {
	return &Service{meili: meili, fallback: fallback}
}

// Search ищет комментарии. Ошибки поиска не доходят до клиента: в худшем случае ответ пуст.
func (s *Service) Search(ctx context.Context, query string) Response {
	query = strings.TrimSpace(query)

	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(query, DefaultLimit)
		if err == nil {
			return Response{Query: query, Count: total, Results: nonNil(results)}
		}
		slog.Warn("search: meilisearch error, falling back to storage", "err", err)
	}

	if s.fallback == nil {
		return Response{Query: query, Results: []Result{}}
	}
	comments, err := s.fallback.SearchComments(ctx, query, DefaultLimit)
	if err != nil {
		slog.Error("search: storage search failed", "err", err)
		return Response{Query: query, Results: []Result{}}
	}
	results := make([]Result, 0, len(comments))
	for _, c := range comments {
		results = append(results, resultFromComment(c))
	}
	return Response{Query: query, Count: len(results), Results: results}
}

// IndexComment индексирует комментарий (fire-and-forget).
func (s *Service) IndexComment(c *domain.Comment) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	rec := recordFromComment(c)
	go func() {
		if err := s.meili.IndexComment(rec); err != nil {
			slog.Warn("search: index comment", "comment", rec.ID, "err", err)
		}
	}()
}

// DeleteComments убирает комментарии из индекса (fire-and-forget).
func (s *Service) DeleteComments(ids []string) {
	if s.meili == nil || !s.meili.Healthy() || len(ids) == 0 {
		return
	}
	go func() {
		for _, id := range ids {
			if err := s.meili.DeleteComment(id); err != nil {
				slog.Warn("search: delete comment", "comment", id, "err", err)
			}
		}
	}()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
