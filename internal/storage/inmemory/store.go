package inmemory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/UkralStul/comments-service/internal/domain"
	"github.com/UkralStul/comments-service/internal/storage"
	"github.com/google/uuid"
)

// Store реализует интерфейс Storage в памяти.
// Записи, сделанные внутри WithinTx, применяются только после успешного fn,
// а читатели ждут на RLock, поэтому незафиксированное состояние не видно.
type Store struct {
	mu                   sync.RWMutex
	comments             map[string]*domain.Comment
	roots                []string            // ID корневых комментариев
	commentsByParent     map[string][]string // map[parentID][]commentID
	attachments          map[string]*domain.Attachment
	attachmentsByComment map[string][]string // map[commentID][]attachmentID
	seq                  map[string]int64    // порядок вставки для стабильной сортировки
	nextSeq              int64
	now                  func() time.Time
}

// New создает новый экземпляр in-memory хранилища.
func New() *Store {
	return &Store{
		comments:             make(map[string]*domain.Comment),
		commentsByParent:     make(map[string][]string),
		attachments:          make(map[string]*domain.Attachment),
		attachmentsByComment: make(map[string][]string),
		seq:                  make(map[string]int64),
		now:                  func() time.Time { return time.Now().UTC() },
	}
}

// === Transactions ===

func (s *Store) WithinTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{
		s:          s,
		pendingIDs: make(map[string]bool),
		binds:      make(map[string]bind),
	}
	if err := fn(t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.apply()
	return nil
}

type bind struct {
	commentID string
	file      string
}

// tx накапливает изменения; s.mu удерживается на всё время жизни tx.
type tx struct {
	s           *Store
	comments    []*domain.Comment
	pendingIDs  map[string]bool
	attachments []*domain.Attachment
	binds       map[string]bind
}

func (t *tx) CreateComment(ctx context.Context, comment *domain.Comment) error {
	if comment.ParentID != nil {
		if ok, _ := t.CommentExists(ctx, *comment.ParentID); !ok {
			return &domain.NotFoundError{Entity: "parent comment", ID: *comment.ParentID}
		}
	}
	comment.ID = uuid.NewString()
	comment.CreatedAt = t.s.now()
	t.comments = append(t.comments, comment)
	t.pendingIDs[comment.ID] = true
	return nil
}

func (t *tx) CommentExists(ctx context.Context, id string) (bool, error) {
	if t.pendingIDs[id] {
		return true, nil
	}
	_, ok := t.s.comments[id]
	return ok, nil
}

func (t *tx) CreateAttachment(ctx context.Context, attachment *domain.Attachment) error {
	attachment.ID = uuid.NewString()
	attachment.CreatedAt = t.s.now()
	t.attachments = append(t.attachments, attachment)
	return nil
}

func (t *tx) LockOrphans(ctx context.Context, ids []string, uploadKey string) ([]*domain.Attachment, error) {
	seen := make(map[string]bool, len(ids))
	locked := make([]*domain.Attachment, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		a, ok := t.s.attachments[id]
		if !ok || !a.IsOrphan() || *a.UploadKey != uploadKey {
			continue
		}
		if _, claimed := t.binds[id]; claimed {
			continue
		}
		cp := *a
		locked = append(locked, &cp)
	}
	return locked, nil
}

func (t *tx) BindAttachment(ctx context.Context, id, commentID, file string) error {
	if _, ok := t.s.attachments[id]; !ok {
		return &domain.NotFoundError{Entity: "attachment", ID: id}
	}
	t.binds[id] = bind{commentID: commentID, file: file}
	return nil
}

func (t *tx) apply() {
	s := t.s
	for _, c := range t.comments {
		s.insertComment(c)
	}
	for _, a := range t.attachments {
		s.insertAttachment(a)
	}
	for id, b := range t.binds {
		// заменяем, а не мутируем: читатели могут держать старый указатель
		cp := *s.attachments[id]
		commentID := b.commentID
		cp.CommentID = &commentID
		cp.UploadKey = nil
		cp.File = b.file
		s.attachments[id] = &cp
		s.attachmentsByComment[commentID] = append(s.attachmentsByComment[commentID], id)
	}
}

// insertComment вызывается под s.mu.
func (s *Store) insertComment(c *domain.Comment) {
	s.comments[c.ID] = c
	s.nextSeq++
	s.seq[c.ID] = s.nextSeq
	if c.ParentID == nil {
		s.roots = append(s.roots, c.ID)
	} else {
		s.commentsByParent[*c.ParentID] = append(s.commentsByParent[*c.ParentID], c.ID)
	}
}

// insertAttachment вызывается под s.mu.
func (s *Store) insertAttachment(a *domain.Attachment) {
	s.attachments[a.ID] = a
	s.nextSeq++
	s.seq[a.ID] = s.nextSeq
	if a.CommentID != nil {
		s.attachmentsByComment[*a.CommentID] = append(s.attachmentsByComment[*a.CommentID], a.ID)
	}
}

// === Comment Methods ===

func (s *Store) GetCommentByID(ctx context.Context, id string) (*domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	comment, ok := s.comments[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "comment", ID: id}
	}
	return comment, nil
}

func (s *Store) ListRoots(ctx context.Context, args storage.ListArgs) (storage.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*domain.Comment, 0, len(s.roots))
	for _, id := range s.roots {
		all = append(all, s.comments[id])
	}

	o := args.Ordering
	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		var less, equal bool
		switch o.Field {
		case storage.OrderUserName:
			less, equal = a.UserName < b.UserName, a.UserName == b.UserName
		case storage.OrderEmail:
			less, equal = a.Email < b.Email, a.Email == b.Email
		default:
			less, equal = a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
		}
		if equal {
			less = s.seq[a.ID] < s.seq[b.ID]
		}
		if o.Desc {
			return !less
		}
		return less
	})

	page := storage.Page{Total: int64(len(all)), Comments: []*domain.Comment{}}
	start := args.Offset()
	if start >= len(all) {
		return page, nil
	}
	end := len(all)
	if args.PageSize > 0 && start+args.PageSize < end {
		end = start + args.PageSize
	}
	page.Comments = all[start:end]
	return page, nil
}

func (s *Store) GetCommentsByParentIDs(ctx context.Context, parentIDs []string) (map[string][]*domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make(map[string][]*domain.Comment, len(parentIDs))
	for _, pID := range parentIDs {
		childIDs := s.commentsByParent[pID]
		if len(childIDs) == 0 {
			continue
		}
		children := make([]*domain.Comment, 0, len(childIDs))
		for _, cID := range childIDs {
			if c, ok := s.comments[cID]; ok {
				children = append(children, c)
			}
		}
		sort.SliceStable(children, func(i, j int) bool {
			return s.seq[children[i].ID] < s.seq[children[j].ID]
		})
		results[pID] = children
	}
	return results, nil
}

func (s *Store) DeleteCommentTree(ctx context.Context, id string) (storage.Deleted, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	root, ok := s.comments[id]
	if !ok {
		return storage.Deleted{}, &domain.NotFoundError{Entity: "comment", ID: id}
	}

	// сначала полный набор потомков, потом удаление
	subtree := []string{id}
	for i := 0; i < len(subtree); i++ {
		subtree = append(subtree, s.commentsByParent[subtree[i]]...)
	}

	var removed []*domain.Attachment
	for _, cID := range subtree {
		for _, aID := range s.attachmentsByComment[cID] {
			if a, ok := s.attachments[aID]; ok {
				removed = append(removed, a)
				delete(s.attachments, aID)
				delete(s.seq, aID)
			}
		}
		delete(s.attachmentsByComment, cID)
	}
	for _, cID := range subtree {
		delete(s.comments, cID)
		delete(s.commentsByParent, cID)
		delete(s.seq, cID)
	}

	if root.ParentID == nil {
		s.roots = without(s.roots, id)
	} else {
		s.commentsByParent[*root.ParentID] = without(s.commentsByParent[*root.ParentID], id)
	}
	return storage.Deleted{CommentIDs: subtree, Attachments: removed}, nil
}

func (s *Store) SearchComments(ctx context.Context, query string, limit int) ([]*domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	var found []*domain.Comment
	for _, c := range s.comments {
		if strings.Contains(strings.ToLower(c.Text), q) ||
			strings.Contains(strings.ToLower(c.UserName), q) ||
			strings.Contains(strings.ToLower(c.Email), q) {
			found = append(found, c)
		}
	}
	sort.Slice(found, func(i, j int) bool {
		return s.seq[found[i].ID] > s.seq[found[j].ID]
	})
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	return found, nil
}

// === Attachment Methods ===

func (s *Store) CreateAttachment(ctx context.Context, attachment *domain.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if attachment.CommentID != nil {
		if _, ok := s.comments[*attachment.CommentID]; !ok {
			return &domain.NotFoundError{Entity: "comment", ID: *attachment.CommentID}
		}
	}
	attachment.ID = uuid.NewString()
	attachment.CreatedAt = s.now()
	s.insertAttachment(attachment)
	return nil
}

func (s *Store) GetAttachmentByID(ctx context.Context, id string) (*domain.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attachments[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "attachment", ID: id}
	}
	return a, nil
}

func (s *Store) GetAttachmentsByCommentIDs(ctx context.Context, commentIDs []string) (map[string][]*domain.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make(map[string][]*domain.Attachment, len(commentIDs))
	for _, cID := range commentIDs {
		ids := s.attachmentsByComment[cID]
		if len(ids) == 0 {
			continue
		}
		list := make([]*domain.Attachment, 0, len(ids))
		for _, aID := range ids {
			if a, ok := s.attachments[aID]; ok {
				list = append(list, a)
			}
		}
		sort.SliceStable(list, func(i, j int) bool {
			return s.seq[list[i].ID] < s.seq[list[j].ID]
		})
		results[cID] = list
	}
	return results, nil
}

func without(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
