package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/martin3r-me/platforms-brands-sub000/internal/apperr"
	"github.com/martin3r-me/platforms-brands-sub000/internal/archive"
	"github.com/martin3r-me/platforms-brands-sub000/internal/auth"
	"github.com/martin3r-me/platforms-brands-sub000/internal/events"
	"github.com/martin3r-me/platforms-brands-sub000/internal/models"
	"github.com/martin3r-me/platforms-brands-sub000/internal/platforms"
	"github.com/martin3r-me/platforms-brands-sub000/internal/store"
)

// Dispatcher routes a publish request to the adapter for its platform.
// *platforms.Registry is the production implementation.
type Dispatcher interface {
	Publish(ctx context.Context, req platforms.Request) (platforms.Result, error)
}

type Config struct {
	// PublishConcurrency bounds parallel adapter calls; 1 is sequential.
	PublishConcurrency int
	AdapterTimeout     time.Duration
}

type Service struct {
	store      store.Store
	dispatcher Dispatcher
	notifier   events.Notifier
	archiver   archive.Archiver
	authz      auth.Authorizer
	logger     *zap.Logger
	cfg        Config
	now        func() time.Time
}

type Option func(*Service)

func WithNotifier(n events.Notifier) Option { return func(s *Service) { s.notifier = n } }
func WithArchiver(a archive.Archiver) Option { return func(s *Service) { s.archiver = a } }
func WithAuthorizer(a auth.Authorizer) Option { return func(s *Service) { s.authz = a } }
func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = l } }
func WithConfig(c Config) Option { return func(s *Service) { s.cfg = c } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func New(st store.Store, dispatcher Dispatcher, opts ...Option) *Service {
	s := &Service{
		store:      st,
		dispatcher: dispatcher,
		notifier:   events.Noop{},
		archiver:   archive.Noop{},
		authz:      auth.TeamPolicy{},
		logger:     zap.NewNop(),
		cfg:        Config{PublishConcurrency: 1, AdapterTimeout: 30 * time.Second},
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.PublishConcurrency < 1 {
		s.cfg.PublishConcurrency = 1
	}
	if s.cfg.AdapterTimeout <= 0 {
		s.cfg.AdapterTimeout = 30 * time.Second
	}
	return s
}

func (s *Service) Health(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return apperr.Wrap(apperr.ExecutionError, err, "store unavailable")
	}
	return nil
}

// translate maps store errors onto the public error kinds.
func translate(err error, what string) error {
	var ae *apperr.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ae):
		return err
	case errors.Is(err, store.ErrNotFound):
		return apperr.New(apperr.NotFound, "%s not found", what)
	case errors.Is(err, store.ErrContractImmutable):
		return apperr.Wrap(apperr.ValidationError, err, "contract is published and immutable")
	case errors.Is(err, store.ErrStatusConflict):
		return apperr.Wrap(apperr.ValidationError, err, what+" status changed concurrently")
	default:
		return apperr.Wrap(apperr.ExecutionError, err, what)
	}
}

func (s *Service) authorizeBoard(ctx context.Context, board models.Board) error {
	if err := s.authz.AuthorizeBoard(ctx, board); err != nil {
		return apperr.Wrap(apperr.AccessDenied, err, "not allowed to modify board "+board.ID.String())
	}
	return nil
}

// loadItem fetches an item and checks the caller may work on its board.
func (s *Service) loadItem(ctx context.Context, id uuid.UUID) (models.ContentItem, error) {
	item, err := s.store.GetContentItem(ctx, id)
	if err != nil {
		return models.ContentItem{}, translate(err, "content item")
	}
	board, err := s.store.GetBoard(ctx, item.BoardID)
	if err != nil {
		return models.ContentItem{}, translate(err, "board")
	}
	if err := s.authorizeBoard(ctx, board); err != nil {
		return models.ContentItem{}, err
	}
	return item, nil
}

func requireAdmin(ctx context.Context) error {
	if !auth.HasRole(auth.FromContext(ctx), auth.RoleAdmin) {
		return apperr.New(apperr.AccessDenied, "admin role required")
	}
	return nil
}

// notify and archive are best effort: failures are logged and never change
// the outcome of the operation that produced them.
func (s *Service) notify(ctx context.Context, evs ...events.Event) {
	if err := s.notifier.Notify(ctx, evs...); err != nil {
		s.logger.Warn("event delivery failed", zap.Int("events", len(evs)), zap.Error(err))
	}
}

func (s *Service) archiveDoc(ctx context.Context, kind, id string, at time.Time, doc interface{}) string {
	key, err := s.archiver.Archive(ctx, kind, id, at, doc)
	if err != nil {
		s.logger.Warn("archive failed", zap.String("kind", kind), zap.String("id", id), zap.Error(err))
		return ""
	}
	return key
}

func formatIndex(formats []models.PlatformFormat) map[uuid.UUID]models.PlatformFormat {
	out := make(map[uuid.UUID]models.PlatformFormat, len(formats))
	for _, f := range formats {
		out[f.ID] = f
	}
	return out
}
