package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/UkralStul/comments-service/internal/domain"
	"github.com/UkralStul/comments-service/internal/storage"
	"github.com/google/uuid"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store реализует интерфейс Storage с использованием PostgreSQL.
type Store struct {
	db *gorm.DB
}

// New создает новый экземпляр хранилища PostgreSQL.
func New(dsn string, logLevel logger.LogLevel) (*Store, error) {
	return Open(postgres.Open(dsn), logLevel)
}

// Open открывает хранилище поверх любого диалекта gorm и выполняет миграцию схемы.
func Open(dialector gorm.Dialector, logLevel logger.LogLevel) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.Comment{}, &domain.Attachment{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Ping проверяет соединение с базой.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close закрывает пул соединений.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// === Transactions ===

func (s *Store) WithinTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&tx{db: db})
	})
}

type tx struct {
	db *gorm.DB
}

func (t *tx) CreateComment(ctx context.Context, comment *domain.Comment) error {
	if comment.ParentID != nil {
		ok, err := t.CommentExists(ctx, *comment.ParentID)
		if err != nil {
			return err
		}
		if !ok {
			return &domain.NotFoundError{Entity: "parent comment", ID: *comment.ParentID}
		}
	}

	comment.ID = uuid.NewString()
	comment.CreatedAt = time.Now().UTC()
	return t.db.WithContext(ctx).Create(comment).Error
}

// CommentExists берёт FOR SHARE: комментарий не может быть удалён до фиксации.
// Postgres не допускает FOR SHARE с агрегатами, поэтому Pluck, а не Count.
func (t *tx) CommentExists(ctx context.Context, id string) (bool, error) {
	var found []string
	err := t.db.WithContext(ctx).Model(&domain.Comment{}).
		Clauses(clause.Locking{Strength: "SHARE"}).
		Where("id = ?", id).
		Limit(1).
		Pluck("id", &found).Error
	return len(found) > 0, err
}

func (t *tx) CreateAttachment(ctx context.Context, attachment *domain.Attachment) error {
	attachment.ID = uuid.NewString()
	attachment.CreatedAt = time.Now().UTC()
	return t.db.WithContext(ctx).Create(attachment).Error
}

func (t *tx) LockOrphans(ctx context.Context, ids []string, uploadKey string) ([]*domain.Attachment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []*domain.Attachment
	// строки блокируются до конца транзакции; конкурент, ждавший блокировку,
	// после нашей фиксации увидит comment_id IS NOT NULL и строку не получит
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ? AND comment_id IS NULL AND upload_key = ?", ids, uploadKey).
		Order("id").
		Find(&rows).Error
	return rows, err
}

func (t *tx) BindAttachment(ctx context.Context, id, commentID, file string) error {
	res := t.db.WithContext(ctx).Model(&domain.Attachment{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"comment_id": commentID,
			"upload_key": nil,
			"file":       file,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &domain.NotFoundError{Entity: "attachment", ID: id}
	}
	return nil
}

// === Comment Methods ===

func (s *Store) GetCommentByID(ctx context.Context, id string) (*domain.Comment, error) {
	var comment domain.Comment
	if err := s.db.WithContext(ctx).First(&comment, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &domain.NotFoundError{Entity: "comment", ID: id}
		}
		return nil, err
	}
	return &comment, nil
}

func (s *Store) ListRoots(ctx context.Context, args storage.ListArgs) (storage.Page, error) {
	page := storage.Page{Comments: []*domain.Comment{}}

	base := s.db.WithContext(ctx).Model(&domain.Comment{}).Where("parent_id IS NULL")
	if err := base.Count(&page.Total).Error; err != nil {
		return page, err
	}

	field := args.Ordering.Field
	if field == "" {
		field = storage.OrderCreatedAt
	}
	query := s.db.WithContext(ctx).
		Where("parent_id IS NULL").
		Order(clause.OrderByColumn{Column: clause.Column{Name: field}, Desc: args.Ordering.Desc}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: args.Ordering.Desc}).
		Offset(args.Offset())
	if args.PageSize > 0 {
		query = query.Limit(args.PageSize)
	}

	err := query.Find(&page.Comments).Error
	return page, err
}

func (s *Store) GetCommentsByParentIDs(ctx context.Context, parentIDs []string) (map[string][]*domain.Comment, error) {
	result := make(map[string][]*domain.Comment, len(parentIDs))
	if len(parentIDs) == 0 {
		return result, nil
	}

	var comments []*domain.Comment
	// Загружаем все дочерние комментарии для всех переданных parentID одним запросом
	err := s.db.WithContext(ctx).
		Where("parent_id IN ?", parentIDs).
		Order("parent_id, created_at ASC, id"). // Сортируем для правильной группировки и порядка
		Find(&comments).Error
	if err != nil {
		return nil, err
	}

	for _, c := range comments {
		if c.ParentID != nil {
			result[*c.ParentID] = append(result[*c.ParentID], c)
		}
	}
	return result, nil
}

func (s *Store) DeleteCommentTree(ctx context.Context, id string) (storage.Deleted, error) {
	var removed []*domain.Attachment
	var subtree []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var root domain.Comment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&root, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &domain.NotFoundError{Entity: "comment", ID: id}
			}
			return err
		}

		// полный набор потомков, по одному запросу на уровень. Каждый уровень
		// блокируется FOR UPDATE: ответ на потомка ждёт в CommentExists и после
		// фиксации получает NotFound, а уже зафиксированный ответ попадёт в следующий уровень
		subtree = []string{id}
		frontier := []string{id}
		for len(frontier) > 0 {
			var next []string
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Model(&domain.Comment{}).
				Where("parent_id IN ?", frontier).
				Order("id").
				Pluck("id", &next).Error
			if err != nil {
				return err
			}
			subtree = append(subtree, next...)
			frontier = next
		}

		if err := tx.Where("comment_id IN ?", subtree).Find(&removed).Error; err != nil {
			return err
		}
		if err := tx.Where("comment_id IN ?", subtree).Delete(&domain.Attachment{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", subtree).Delete(&domain.Comment{}).Error
	})
	if err != nil {
		return storage.Deleted{}, err
	}
	return storage.Deleted{CommentIDs: subtree, Attachments: removed}, nil
}

func (s *Store) SearchComments(ctx context.Context, query string, limit int) ([]*domain.Comment, error) {
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(query))) + "%"
	var comments []*domain.Comment
	q := s.db.WithContext(ctx).
		Where(`LOWER(text) LIKE ? ESCAPE '\' OR LOWER(user_name) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\'`, pattern, pattern, pattern).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&comments).Error
	return comments, err
}

// === Attachment Methods ===

func (s *Store) CreateAttachment(ctx context.Context, attachment *domain.Attachment) error {
	return s.WithinTx(ctx, func(t storage.Tx) error {
		if attachment.CommentID != nil {
			ok, err := t.CommentExists(ctx, *attachment.CommentID)
			if err != nil {
				return err
			}
			if !ok {
				return &domain.NotFoundError{Entity: "comment", ID: *attachment.CommentID}
			}
		}
		return t.CreateAttachment(ctx, attachment)
	})
}

func (s *Store) GetAttachmentByID(ctx context.Context, id string) (*domain.Attachment, error) {
	var a domain.Attachment
	if err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &domain.NotFoundError{Entity: "attachment", ID: id}
		}
		return nil, err
	}
	return &a, nil
}

func (s *Store) GetAttachmentsByCommentIDs(ctx context.Context, commentIDs []string) (map[string][]*domain.Attachment, error) {
	result := make(map[string][]*domain.Attachment, len(commentIDs))
	if len(commentIDs) == 0 {
		return result, nil
	}

	var rows []*domain.Attachment
	err := s.db.WithContext(ctx).
		Where("comment_id IN ?", commentIDs).
		Order("comment_id, created_at ASC, id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, a := range rows {
		result[*a.CommentID] = append(result[*a.CommentID], a)
	}
	return result, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
