// Package comments - дерево комментариев и сценарий создания комментария.
package comments

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/UkralStul/comments-service/internal/auth"
	"github.com/UkralStul/comments-service/internal/broadcast"
	"github.com/UkralStul/comments-service/internal/challenge"
	"github.com/UkralStul/comments-service/internal/config"
	"github.com/UkralStul/comments-service/internal/domain"
	"github.com/UkralStul/comments-service/internal/files"
	"github.com/UkralStul/comments-service/internal/markup"
	"github.com/UkralStul/comments-service/internal/storage"
)

// DefaultPageSize - корней на странице.
const DefaultPageSize = 25

// State - этап обработки запроса на создание.
type State string

const (
	StateReceived         State = "received"
	StateChallengeChecked State = "challenge_checked"
	StateTextValidated    State = "text_validated"
	StatePersisted        State = "persisted"
	StateAttachmentsBound State = "attachments_bound"
	StateCommitted        State = "committed"
	StateRejected         State = "rejected"
	StateAborted          State = "aborted"
)

// Publisher рассылает события подписчикам.
type Publisher interface {
	Publish(msg broadcast.Message) int
}

// Indexer обновляет поисковый индекс.
type Indexer interface {
	IndexComment(c *domain.Comment)
	DeleteComments(ids []string)
}

// Enqueuer ставит вложения в очередь нормализации.
type Enqueuer interface {
	Enqueue(attachmentID string) bool
}

// Deps - зависимости сервиса. Publisher, Indexer и Images могут быть nil.
type Deps struct {
	Store           storage.Storage
	Files           files.Store
	Gate            challenge.Gate
	Publisher       Publisher
	Indexer         Indexer
	Images          Enqueuer
	ChallengePolicy string
	PageSize        int
	MaxUploadBytes  int64
}

// Service - операции над комментариями.
type Service struct {
	store     storage.Storage
	files     files.Store
	gate      challenge.Gate
	binder    *Binder
	publisher Publisher
	indexer   Indexer
	images    Enqueuer
	policy    string
	pageSize  int
	validate  *validator.Validate
}

// NewService собирает сервис из зависимостей.
func NewService(d Deps) *Service {
	if d.PageSize <= 0 {
		d.PageSize = DefaultPageSize
	}
	if d.ChallengePolicy == "" {
		d.ChallengePolicy = config.ChallengeAnonymous
	}
	return &Service{
		store:     d.Store,
		files:     d.Files,
		gate:      d.Gate,
		binder:    NewBinder(d.Store, d.Files, d.MaxUploadBytes),
		publisher: d.Publisher,
		indexer:   d.Indexer,
		images:    d.Images,
		policy:    d.ChallengePolicy,
		pageSize:  d.PageSize,
		validate:  newValidator(),
	}
}

// ListResult - страница корневых комментариев с поддеревьями.
type ListResult struct {
	Count   int64   `json:"count"`
	Page    int     `json:"page"`
	Results []*Node `json:"results"`
}

// List возвращает страницу корней. ordering - "user_name", "-email", "created_at" и т.п.
func (s *Service) List(ctx context.Context, ordering string, page int) (*ListResult, error) {
	order, err := storage.ParseOrdering(ordering)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}

	args := storage.ListArgs{Ordering: order, Page: page, PageSize: s.pageSize}
	roots, err := s.store.ListRoots(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	if page > 1 && int64(args.Offset()) >= roots.Total {
		return nil, &domain.NotFoundError{Entity: "page", ID: fmt.Sprint(page)}
	}

	nodes, err := materialize(ctx, s.store, roots.Comments)
	if err != nil {
		return nil, err
	}
	return &ListResult{Count: roots.Total, Page: page, Results: nodes}, nil
}

// Get возвращает комментарий с поддеревом.
func (s *Service) Get(ctx context.Context, id string) (*Node, error) {
	c, err := s.store.GetCommentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	nodes, err := materialize(ctx, s.store, []*domain.Comment{c})
	if err != nil {
		return nil, err
	}
	return nodes[0], nil
}

// Create проходит этапы Received → ChallengeChecked → TextValidated → Persisted →
// AttachmentsBound → Committed. Событие публикуется только после фиксации.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Node, error) {
	state := StateReceived
	log := slog.With("op", "comments.create")
	reject := func(err error) (*Node, error) {
		log.Debug("comment rejected", "state", state, "err", err)
		return nil, err
	}

	in.normalize()
	id := auth.FromContext(ctx)
	if id != nil {
		// данные аккаунта важнее присланных клиентом
		if id.Name != "" {
			in.UserName = id.Name
		}
		if id.Email != "" {
			in.Email = id.Email
		}
	}
	if err := validateInput(s.validate, &in); err != nil {
		return reject(err)
	}

	if s.challengeRequired(id) {
		if err := s.gate.Consume(ctx, in.CaptchaKey, in.CaptchaValue); err != nil {
			return reject(err)
		}
	}
	state = StateChallengeChecked

	text, err := markup.Validate(in.Text)
	if err != nil {
		return reject(err)
	}
	state = StateTextValidated

	comment := &domain.Comment{
		UserName: in.UserName,
		Email:    in.Email,
		Text:     text,
	}
	if in.Homepage != "" {
		comment.Homepage = &in.Homepage
	}
	if in.ParentID != "" {
		comment.ParentID = &in.ParentID
	}

	var j journal
	var bound []*domain.Attachment
	persisted := false
	err = s.store.WithinTx(ctx, func(tx storage.Tx) error {
		if err := tx.CreateComment(ctx, comment); err != nil {
			return err
		}
		persisted = true

		for _, up := range in.Files {
			a, err := s.binder.BindExisting(ctx, tx, comment.ID, up, &j)
			if err != nil {
				return err
			}
			bound = append(bound, a)
		}
		if len(in.AttachmentIDs) > 0 {
			claimed, err := s.binder.BindOrphans(ctx, tx, comment.ID, in.AttachmentIDs, in.UploadKey, &j)
			if err != nil {
				return err
			}
			bound = append(bound, claimed...)
		}
		return nil
	})
	if err != nil {
		j.rollback(context.WithoutCancel(ctx), s.files)
		if persisted {
			state = StateAborted
		}
		log.Debug("comment not created", "state", state, "err", err)
		return nil, err
	}
	state = StateCommitted
	log.Debug("comment created", "state", state, "comment", comment.ID, "attachments", len(bound))

	node, err := s.Get(ctx, comment.ID)
	if err != nil {
		// комментарий уже зафиксирован; возвращаем его без поддерева
		log.Warn("failed to materialize created comment", "comment", comment.ID, "err", err)
		node = newNode(comment)
		node.Attachments = append(node.Attachments, bound...)
	}

	s.afterCommit(node, bound)
	return node, nil
}

func (s *Service) challengeRequired(id *auth.Identity) bool {
	if s.policy == config.ChallengeAlways {
		return true
	}
	return id == nil
}

func (s *Service) afterCommit(node *Node, bound []*domain.Attachment) {
	if s.publisher != nil {
		delivered := s.publisher.Publish(broadcast.Message{Kind: broadcast.KindCommentCreated, Payload: node})
		slog.Debug("comment published", "comment", node.ID, "subscribers", delivered)
	}
	if s.indexer != nil {
		s.indexer.IndexComment(node.Comment)
	}
	s.enqueue(bound...)
}

func (s *Service) enqueue(attachments ...*domain.Attachment) {
	if s.images == nil {
		return
	}
	for _, a := range attachments {
		s.images.Enqueue(a.ID)
	}
}

// Delete удаляет комментарий со всеми потомками, их вложения и файлы.
func (s *Service) Delete(ctx context.Context, id string) error {
	deleted, err := s.store.DeleteCommentTree(ctx, id)
	if err != nil {
		return err
	}
	for _, a := range deleted.Attachments {
		if err := s.files.Remove(ctx, a.File); err != nil {
			slog.Error("failed to remove attachment file", "attachment", a.ID, "key", a.File, "err", err)
		}
	}
	if s.indexer != nil {
		s.indexer.DeleteComments(deleted.CommentIDs)
	}
	slog.Info("comment tree deleted", "comment", id, "comments", len(deleted.CommentIDs), "attachments", len(deleted.Attachments))
	return nil
}

// Upload сохраняет "осиротевшее" вложение до создания комментария.
func (s *Service) Upload(ctx context.Context, up Upload, uploadKey string) (*domain.Attachment, error) {
	return s.binder.UploadOrphan(ctx, up, uploadKey)
}

// AttachToComment добавляет файл к существующему комментарию.
func (s *Service) AttachToComment(ctx context.Context, commentID string, up Upload) (*domain.Attachment, error) {
	a, err := s.binder.AttachToComment(ctx, commentID, up)
	if err != nil {
		return nil, err
	}
	s.enqueue(a)
	return a, nil
}

// IssueChallenge выдаёт новую CAPTCHA.
func (s *Service) IssueChallenge(ctx context.Context) (challenge.Challenge, error) {
	return s.gate.Issue(ctx)
}
