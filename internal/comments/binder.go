package comments

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/UkralStul/comments-service/internal/domain"
	"github.com/UkralStul/comments-service/internal/files"
	"github.com/UkralStul/comments-service/internal/storage"
)

// DefaultMaxUploadBytes - предел размера одного файла.
const DefaultMaxUploadBytes = 5 << 20

// Upload - загружаемый файл.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Binder привязывает вложения к комментариям и переносит их файлы.
type Binder struct {
	store    storage.Storage
	files    files.Store
	maxBytes int64
}

// NewBinder создает Binder; maxBytes <= 0 означает DefaultMaxUploadBytes.
func NewBinder(store storage.Storage, fileStore files.Store, maxBytes int64) *Binder {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &Binder{store: store, files: fileStore, maxBytes: maxBytes}
}

func (b *Binder) check(field string, up Upload) error {
	if up.Body == nil {
		return domain.NewValidationError(field, "No file was submitted.")
	}
	if up.Size > b.maxBytes {
		return domain.NewValidationError(field, fmt.Sprintf("File %q exceeds the maximum size of %d bytes.", up.FileName, b.maxBytes))
	}
	return nil
}

// UploadOrphan сохраняет файл во временную область и заводит "осиротевшее" вложение.
// Пустой uploadKey означает новый ключ; переданный ключ группирует несколько загрузок.
func (b *Binder) UploadOrphan(ctx context.Context, up Upload, uploadKey string) (*domain.Attachment, error) {
	if err := b.check("file", up); err != nil {
		return nil, err
	}
	if uploadKey == "" {
		uploadKey = uuid.NewString()
	} else if _, err := uuid.Parse(uploadKey); err != nil {
		return nil, domain.NewValidationError("upload_key", "Must be a valid UUID.")
	}

	key := files.TempKey(up.FileName)
	if err := b.files.Save(ctx, key, up.Body, up.Size, up.ContentType); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	attachment := &domain.Attachment{
		File:        key,
		FileName:    files.CleanName(up.FileName),
		ContentType: up.ContentType,
		Size:        up.Size,
		UploadKey:   &uploadKey,
	}
	if err := b.store.CreateAttachment(ctx, attachment); err != nil {
		if rmErr := b.files.Remove(ctx, key); rmErr != nil {
			slog.Error("comments: failed to remove orphaned upload", "key", key, "err", rmErr)
		}
		return nil, fmt.Errorf("failed to save attachment: %w", err)
	}
	return attachment, nil
}

// BindExisting сохраняет файл сразу в область комментария и заводит привязанное вложение.
func (b *Binder) BindExisting(ctx context.Context, tx storage.Tx, commentID string, up Upload, j *journal) (*domain.Attachment, error) {
	if err := b.check("files", up); err != nil {
		return nil, err
	}

	key := files.AttachmentKey(commentID, up.FileName)
	if err := b.files.Save(ctx, key, up.Body, up.Size, up.ContentType); err != nil {
		return nil, fmt.Errorf("failed to store attachment: %w", err)
	}
	j.created = append(j.created, key)

	attachment := &domain.Attachment{
		CommentID:   &commentID,
		File:        key,
		FileName:    files.CleanName(up.FileName),
		ContentType: up.ContentType,
		Size:        up.Size,
	}
	if err := tx.CreateAttachment(ctx, attachment); err != nil {
		return nil, fmt.Errorf("failed to save attachment: %w", err)
	}
	return attachment, nil
}

// BindOrphans привязывает все ids с ключом uploadKey к комментарию или ни одного.
// Если часть ids не найдена, уже привязана или несёт другой ключ - *domain.ConflictError.
func (b *Binder) BindOrphans(ctx context.Context, tx storage.Tx, commentID string, ids []string, uploadKey string, j *journal) ([]*domain.Attachment, error) {
	ids = unique(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	locked, err := tx.LockOrphans(ctx, ids, uploadKey)
	if err != nil {
		return nil, fmt.Errorf("failed to lock attachments: %w", err)
	}
	if len(locked) != len(ids) {
		found := make(map[string]bool, len(locked))
		for _, a := range locked {
			found[a.ID] = true
		}
		var unresolved []string
		for _, id := range ids {
			if !found[id] {
				unresolved = append(unresolved, id)
			}
		}
		return nil, &domain.ConflictError{IDs: unresolved, Message: "attachments could not be bound"}
	}

	bound := make([]*domain.Attachment, 0, len(locked))
	for _, a := range locked {
		to := files.AttachmentKey(commentID, a.FileName)
		if err := b.files.Move(ctx, a.File, to); err != nil {
			return nil, fmt.Errorf("failed to move attachment %s: %w", a.ID, err)
		}
		j.moved = append(j.moved, move{from: a.File, to: to})

		if err := tx.BindAttachment(ctx, a.ID, commentID, to); err != nil {
			return nil, fmt.Errorf("failed to bind attachment %s: %w", a.ID, err)
		}
		cp := *a
		cp.CommentID = &commentID
		cp.UploadKey = nil
		cp.File = to
		bound = append(bound, &cp)
	}
	return bound, nil
}

// AttachToComment привязывает новый файл к уже существующему комментарию.
func (b *Binder) AttachToComment(ctx context.Context, commentID string, up Upload) (*domain.Attachment, error) {
	var j journal
	var attachment *domain.Attachment
	err := b.store.WithinTx(ctx, func(tx storage.Tx) error {
		ok, err := tx.CommentExists(ctx, commentID)
		if err != nil {
			return err
		}
		if !ok {
			return &domain.NotFoundError{Entity: "comment", ID: commentID}
		}
		attachment, err = b.BindExisting(ctx, tx, commentID, up, &j)
		return err
	})
	if err != nil {
		j.rollback(context.WithoutCancel(ctx), b.files)
		return nil, err
	}
	return attachment, nil
}

func unique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
