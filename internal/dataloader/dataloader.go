package dataloader

import (
	"context"
	"net/http"
	"time"

	"github.com/UkralStul/comments-service/internal/domain"
	"github.com/UkralStul/comments-service/internal/storage"
	"github.com/graph-gophers/dataloader"
)

type contextKey string

const key = contextKey("dataloaders")

// Loaders содержит все дата-лоадеры приложения.
type Loaders struct {
	ChildrenByCommentID    *dataloader.Loader
	AttachmentsByCommentID *dataloader.Loader
}

// New создает лоадеры поверх хранилища. Лоадер кэширует ответы,
// поэтому живёт не дольше одного запроса.
func New(store storage.Storage) *Loaders {
	children := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		// один запрос к хранилищу на весь батч
		byParent, err := store.GetCommentsByParentIDs(ctx, keys.Keys())
		if err != nil {
			return failAll(keys, err)
		}
		results := make([]*dataloader.Result, len(keys))
		for i, k := range keys {
			results[i] = &dataloader.Result{Data: byParent[k.String()]}
		}
		return results
	}

	attachments := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		byComment, err := store.GetAttachmentsByCommentIDs(ctx, keys.Keys())
		if err != nil {
			return failAll(keys, err)
		}
		results := make([]*dataloader.Result, len(keys))
		for i, k := range keys {
			results[i] = &dataloader.Result{Data: byComment[k.String()]}
		}
		return results
	}

	return &Loaders{
		ChildrenByCommentID:    dataloader.NewBatchedLoader(children, dataloader.WithWait(time.Millisecond*1)),
		AttachmentsByCommentID: dataloader.NewBatchedLoader(attachments, dataloader.WithWait(time.Millisecond*1)),
	}
}

func failAll(keys dataloader.Keys, err error) []*dataloader.Result {
	results := make([]*dataloader.Result, len(keys))
	for i := range results {
		results[i] = &dataloader.Result{Error: err}
	}
	return results
}

// Middleware для внедрения лоадеров в контекст запроса.
func Middleware(store storage.Storage, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), key, New(store))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// For извлекает лоадеры из контекста. Вне HTTP-запроса (публикация события,
// фоновая задача) создаются свежие лоадеры.
func For(ctx context.Context, store storage.Storage) *Loaders {
	if loaders, ok := ctx.Value(key).(*Loaders); ok {
		return loaders
	}
	return New(store)
}

// Children загружает детей для всех ids одним батчем.
func (l *Loaders) Children(ctx context.Context, ids []string) (map[string][]*domain.Comment, error) {
	if len(ids) == 0 {
		return map[string][]*domain.Comment{}, nil
	}
	data, errs := l.ChildrenByCommentID.LoadMany(ctx, dataloader.NewKeysFromStrings(ids))()
	if err := firstError(errs); err != nil {
		return nil, err
	}
	out := make(map[string][]*domain.Comment, len(ids))
	for i, id := range ids {
		if i >= len(data) {
			break
		}
		if list, ok := data[i].([]*domain.Comment); ok && len(list) > 0 {
			out[id] = list
		}
	}
	return out, nil
}

// Attachments загружает вложения для всех ids одним батчем.
func (l *Loaders) Attachments(ctx context.Context, ids []string) (map[string][]*domain.Attachment, error) {
	if len(ids) == 0 {
		return map[string][]*domain.Attachment{}, nil
	}
	data, errs := l.AttachmentsByCommentID.LoadMany(ctx, dataloader.NewKeysFromStrings(ids))()
	if err := firstError(errs); err != nil {
		return nil, err
	}
	out := make(map[string][]*domain.Attachment, len(ids))
	for i, id := range ids {
		if i >= len(data) {
			break
		}
		if list, ok := data[i].([]*domain.Attachment); ok && len(list) > 0 {
			out[id] = list
		}
	}
	return out, nil
}

func firstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
