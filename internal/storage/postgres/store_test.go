package postgres

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/UkralStul/comments-service/internal/domain"
	"github.com/UkralStul/comments-service/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm/logger"
)

// newTestStore поднимает хранилище поверх sqlite-файла во временном каталоге.
// Если задан TEST_DATABASE_URL, используется настоящий PostgreSQL.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		store, err := New(dsn, logger.Silent)
		require.NoError(t, err)
		require.NoError(t, store.db.Exec("TRUNCATE attachments, comments").Error)
		t.Cleanup(func() { _ = store.Close() })
		return store
	}

	store, err := Open(sqlite.Open(filepath.Join(t.TempDir(), "comments.db")), logger.Silent)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createComment(t *testing.T, s *Store, name string, parentID *string) *domain.Comment {
	t.Helper()
	c := &domain.Comment{UserName: name, Email: name + "@example.com", Text: "text by " + name, ParentID: parentID}
	err := s.WithinTx(context.Background(), func(tx storage.Tx) error {
		return tx.CreateComment(context.Background(), c)
	})
	require.NoError(t, err)
	// created_at должен различаться между вставками
	time.Sleep(2 * time.Millisecond)
	return c
}

func createOrphan(t *testing.T, s *Store, key string) *domain.Attachment {
	t.Helper()
	a := &domain.Attachment{File: "tmp/" + key + "/f.png", FileName: "f.png", UploadKey: &key}
	require.NoError(t, s.CreateAttachment(context.Background(), a))
	return a
}

func ids(comments []*domain.Comment) []string {
	out := make([]string, len(comments))
	for i, c := range comments {
		out[i] = c.ID
	}
	return out
}

func TestStore_CreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	c := createComment(t, store, "alice", nil)
	require.NotEmpty(t, c.ID)
	assert.False(t, c.CreatedAt.IsZero())

	got, err := store.GetCommentByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserName)
	assert.True(t, got.IsRoot())

	_, err = store.GetCommentByID(ctx, "missing")
	var nf *domain.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestStore_CreateReply_ParentNotFound(t *testing.T) {
	store := newTestStore(t)
	missing := "missing"

	err := store.WithinTx(context.Background(), func(tx storage.Tx) error {
		return tx.CreateComment(context.Background(), &domain.Comment{UserName: "bob", Email: "b@example.com", Text: "x", ParentID: &missing})
	})
	var nf *domain.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "missing", nf.ID)
}

func TestStore_ListRootsAndChildren(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	c := createComment(t, store, "carol", nil)
	a := createComment(t, store, "alice", nil)
	b := createComment(t, store, "bob", nil)
	r1 := createComment(t, store, "reply1", &a.ID)
	r2 := createComment(t, store, "reply2", &a.ID)

	newest, err := store.ListRoots(ctx, storage.ListArgs{Ordering: storage.Ordering{Field: storage.OrderCreatedAt, Desc: true}, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(3), newest.Total)
	assert.Equal(t, []string{b.ID, a.ID, c.ID}, ids(newest.Comments))

	byEmail, err := store.ListRoots(ctx, storage.ListArgs{Ordering: storage.Ordering{Field: storage.OrderEmail}, Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID}, ids(byEmail.Comments))

	children, err := store.GetCommentsByParentIDs(ctx, []string{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{r1.ID, r2.ID}, ids(children[a.ID]))
	assert.Empty(t, children[b.ID])
}

func TestStore_RollbackDiscardsEverything(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	orphan := createOrphan(t, store, "key-1")

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(tx storage.Tx) error {
		c := &domain.Comment{UserName: "x", Email: "x@example.com", Text: "x"}
		require.NoError(t, tx.CreateComment(ctx, c))
		require.NoError(t, tx.BindAttachment(ctx, orphan.ID, c.ID, "attachments/"+c.ID+"/f.png"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	page, err := store.ListRoots(ctx, storage.ListArgs{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Comments)

	got, err := store.GetAttachmentByID(ctx, orphan.ID)
	require.NoError(t, err)
	assert.True(t, got.IsOrphan())
}

func TestStore_LockOrphansAndBind(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	parent := createComment(t, store, "p", nil)

	mine := createOrphan(t, store, "mine")
	other := createOrphan(t, store, "other")
	bound := &domain.Attachment{CommentID: &parent.ID, File: "attachments/x", FileName: "x"}
	require.NoError(t, store.CreateAttachment(ctx, bound))

	var commentID string
	err := store.WithinTx(ctx, func(tx storage.Tx) error {
		locked, err := tx.LockOrphans(ctx, []string{mine.ID, other.ID, bound.ID, "nope"}, "mine")
		require.NoError(t, err)
		require.Len(t, locked, 1)
		assert.Equal(t, mine.ID, locked[0].ID)

		c := &domain.Comment{UserName: "x", Email: "x@example.com", Text: "x"}
		require.NoError(t, tx.CreateComment(ctx, c))
		commentID = c.ID
		return tx.BindAttachment(ctx, mine.ID, c.ID, "attachments/"+c.ID+"/f.png")
	})
	require.NoError(t, err)

	got, err := store.GetAttachmentByID(ctx, mine.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CommentID)
	assert.Equal(t, commentID, *got.CommentID)
	assert.Nil(t, got.UploadKey)

	// повторная попытка с тем же ключом уже ничего не находит
	err = store.WithinTx(ctx, func(tx storage.Tx) error {
		locked, err := tx.LockOrphans(ctx, []string{mine.ID}, "mine")
		require.NoError(t, err)
		assert.Empty(t, locked)
		return nil
	})
	require.NoError(t, err)

	byComment, err := store.GetAttachmentsByCommentIDs(ctx, []string{commentID, parent.ID})
	require.NoError(t, err)
	assert.Len(t, byComment[commentID], 1)
	assert.Len(t, byComment[parent.ID], 1)
}

func TestStore_CreateAttachment_UnknownComment(t *testing.T) {
	store := newTestStore(t)
	missing := "missing"

	err := store.CreateAttachment(context.Background(), &domain.Attachment{CommentID: &missing, File: "f", FileName: "f"})
	var nf *domain.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestStore_DeleteCommentTree_Cascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	root := createComment(t, store, "root", nil)
	child := createComment(t, store, "child", &root.ID)
	grandchild := createComment(t, store, "grandchild", &child.ID)
	deep := createComment(t, store, "deep", &grandchild.ID)
	sibling := createComment(t, store, "sibling", nil)

	for _, c := range []*domain.Comment{root, deep, sibling} {
		require.NoError(t, store.CreateAttachment(ctx, &domain.Attachment{CommentID: &c.ID, File: "f-" + c.ID, FileName: "f"}))
	}

	deleted, err := store.DeleteCommentTree(ctx, root.ID)
	require.NoError(t, err)
	assert.Len(t, deleted.Attachments, 2)
	assert.ElementsMatch(t, []string{root.ID, child.ID, grandchild.ID, deep.ID}, deleted.CommentIDs)

	for _, c := range []*domain.Comment{root, child, grandchild, deep} {
		_, err := store.GetCommentByID(ctx, c.ID)
		var nf *domain.NotFoundError
		assert.True(t, errors.As(err, &nf), "comment %s should be gone", c.UserName)
	}

	left, err := store.GetAttachmentsByCommentIDs(ctx, []string{sibling.ID})
	require.NoError(t, err)
	assert.Len(t, left[sibling.ID], 1)

	_, err = store.DeleteCommentTree(ctx, root.ID)
	var nf *domain.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

// Ответ на потомка, пришедший во время каскадного удаления, либо удаляется
// вместе с деревом, либо получает NotFound. Висячих ответов не остаётся.
// SQLite не поддерживает блокировки строк, поэтому только PostgreSQL.
func TestStore_DeleteCommentTree_ConcurrentReply(t *testing.T) {
	if os.Getenv("TEST_DATABASE_URL") == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		root := createComment(t, store, "root", nil)
		child := createComment(t, store, "child", &root.ID)
		leaf := createComment(t, store, "leaf", &child.ID)

		var wg sync.WaitGroup
		var deleteErr, replyErr error
		reply := &domain.Comment{UserName: "late", Email: "late@example.com", Text: "late", ParentID: &leaf.ID}
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, deleteErr = store.DeleteCommentTree(ctx, root.ID)
		}()
		go func() {
			defer wg.Done()
			replyErr = store.WithinTx(ctx, func(tx storage.Tx) error {
				return tx.CreateComment(ctx, reply)
			})
		}()
		wg.Wait()

		require.NoError(t, deleteErr)
		if replyErr != nil {
			var nf *domain.NotFoundError
			require.True(t, errors.As(replyErr, &nf), "got %v", replyErr)
			continue
		}
		_, err := store.GetCommentByID(ctx, reply.ID)
		var nf *domain.NotFoundError
		assert.True(t, errors.As(err, &nf), "reply %s outlived its thread", reply.ID)
	}
}

func TestStore_SearchComments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	createComment(t, store, "Alice", nil)
	createComment(t, store, "bob", nil)
	createComment(t, store, "under_score", nil)

	found, err := store.SearchComments(ctx, "ALICE", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Alice", found[0].UserName)

	// спецсимволы LIKE ищутся буквально: "_" не совпадает с пробелом в "text by"
	found, err = store.SearchComments(ctx, "t_by", 10)
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = store.SearchComments(ctx, "r_s", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "under_score", found[0].UserName)

	found, err = store.SearchComments(ctx, "example.com", 2)
	require.NoError(t, err)
	assert.Len(t, found, 2)
}
