package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/UkralStul/comments-service/internal/domain"
)

// Допустимые поля сортировки корневых комментариев.
const (
	OrderUserName  = "user_name"
	OrderEmail     = "email"
	OrderCreatedAt = "created_at"

	DefaultOrdering = "-" + OrderCreatedAt
)

// Ordering - разобранный параметр ordering ("-created_at", "email", ...).
type Ordering struct {
	Field string
	Desc  bool
}

// ParseOrdering разбирает строку в стиле "-field". Пустая строка - сортировка по умолчанию.
func ParseOrdering(raw string) (Ordering, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = DefaultOrdering
	}
	o := Ordering{Field: raw}
	if strings.HasPrefix(raw, "-") {
		o.Desc = true
		o.Field = raw[1:]
	}
	switch o.Field {
	case OrderUserName, OrderEmail, OrderCreatedAt:
		return o, nil
	}
	return Ordering{}, domain.NewValidationError("ordering", fmt.Sprintf("Unknown ordering field %q.", o.Field))
}

// ListArgs - аргументы постраничной выборки корневых комментариев.
type ListArgs struct {
	Ordering Ordering
	Page     int // с единицы
	PageSize int
}

// Offset возвращает смещение для страницы.
func (a ListArgs) Offset() int {
	if a.Page < 1 {
		return 0
	}
	return (a.Page - 1) * a.PageSize
}

// Deleted - результат каскадного удаления.
type Deleted struct {
	CommentIDs  []string
	Attachments []*domain.Attachment
}

// Page - страница корневых комментариев.
type Page struct {
	Comments []*domain.Comment
	Total    int64
}

// Tx - операции, выполняемые внутри одной единицы работы.
type Tx interface {
	// CreateComment проставляет ID и CreatedAt. Если родитель не найден - *domain.NotFoundError.
	CreateComment(ctx context.Context, comment *domain.Comment) error
	CommentExists(ctx context.Context, id string) (bool, error)
	CreateAttachment(ctx context.Context, attachment *domain.Attachment) error

	// LockOrphans блокирует строки ids и возвращает только те из них,
	// что ещё не привязаны и несут uploadKey.
	LockOrphans(ctx context.Context, ids []string, uploadKey string) ([]*domain.Attachment, error)
	// BindAttachment привязывает вложение к комментарию и очищает ключ загрузки.
	BindAttachment(ctx context.Context, id, commentID, file string) error
}

// Storage определяет контракт для хранилищ.
type Storage interface {
	// WithinTx выполняет fn атомарно: ошибка fn откатывает всё.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	ListRoots(ctx context.Context, args ListArgs) (Page, error)
	GetCommentByID(ctx context.Context, id string) (*domain.Comment, error)
	// GetCommentsByParentIDs - один запрос на уровень дерева, дети от старых к новым.
	GetCommentsByParentIDs(ctx context.Context, parentIDs []string) (map[string][]*domain.Comment, error)
	// DeleteCommentTree удаляет комментарий, всех потомков и их вложения.
	// Возвращает удалённые ID и вложения, чтобы вызывающий мог убрать файлы и индекс.
	DeleteCommentTree(ctx context.Context, id string) (Deleted, error)
	SearchComments(ctx context.Context, query string, limit int) ([]*domain.Comment, error)

	CreateAttachment(ctx context.Context, attachment *domain.Attachment) error
	GetAttachmentByID(ctx context.Context, id string) (*domain.Attachment, error)
	GetAttachmentsByCommentIDs(ctx context.Context, commentIDs []string) (map[string][]*domain.Attachment, error)
}
