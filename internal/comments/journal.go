package comments

import (
	"context"
	"log/slog"

	"github.com/UkralStul/comments-service/internal/files"
)

type move struct {
	from, to string
}

// journal запоминает файловые операции внутри транзакции,
// чтобы вернуть файлы на место, если транзакция не зафиксируется.
type journal struct {
	moved   []move
	created []string
}

func (j *journal) rollback(ctx context.Context, store files.Store) {
	for i := len(j.moved) - 1; i >= 0; i-- {
		m := j.moved[i]
		if err := store.Move(ctx, m.to, m.from); err != nil {
			slog.Error("comments: failed to restore attachment file", "from", m.to, "to", m.from, "err", err)
		}
	}
	for _, key := range j.created {
		if err := store.Remove(ctx, key); err != nil {
			slog.Error("comments: failed to remove attachment file", "key", key, "err", err)
		}
	}
	j.moved, j.created = nil, nil
}
