package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/martin3r-me/platforms-brands-sub000/internal/models"
	"github.com/martin3r-me/platforms-brands-sub000/internal/schema"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrContractImmutable is returned for any write against a published contract.
	ErrContractImmutable = errors.New("contract is published and can no longer be modified")
	// ErrStatusConflict is returned when a guarded status transition finds the
	// row in an unexpected state.
	ErrStatusConflict = errors.New("status changed concurrently")
)

// Store is the persistence contract for boards, content items, platform
// formats and contracts.
type Store interface {
	CreateBoard(ctx context.Context, in BoardInput) (models.Board, error)
	GetBoard(ctx context.Context, id uuid.UUID) (models.Board, error)

	CreateContentItem(ctx context.Context, in ContentItemInput) (models.ContentItem, error)
	GetContentItem(ctx context.Context, id uuid.UUID) (models.ContentItem, error)
	ListContentItems(ctx context.Context, boardID uuid.UUID) ([]models.ContentItem, error)
	UpdateContentItemStatus(ctx context.Context, in ContentItemStatusUpdate) (models.ContentItem, error)

	UpsertPlatform(ctx context.Context, in PlatformInput) (models.Platform, error)
	GetPlatform(ctx context.Context, id uuid.UUID) (models.Platform, error)
	UpsertPlatformFormat(ctx context.Context, in PlatformFormatInput) (models.PlatformFormat, error)
	ListPlatformFormats(ctx context.Context, filter PlatformFormatFilter) ([]models.PlatformFormat, error)

	ListContracts(ctx context.Context, filter ContractFilter) ([]models.Contract, error)
	GetContract(ctx context.Context, id uuid.UUID) (models.Contract, error)
	UpdateContract(ctx context.Context, in ContractUpdate) (models.Contract, error)
	RecordPublishOutcome(ctx context.Context, in PublishOutcome) (models.Contract, error)
	DeleteContract(ctx context.Context, id uuid.UUID) error

	// WithTx runs fn in one unit of work. Writes made through tx are
	// committed only when fn returns nil.
	WithTx(ctx context.Context, fn func(tx ContractTx) error) error

	Ping(ctx context.Context) error
}

// ContractTx is the write surface available inside WithTx.
type ContractTx interface {
	// UpsertContract writes the payload for (ContentItemID, PlatformFormatID),
	// setting status ready and clearing any error message. It returns
	// ErrContractImmutable when the existing row is published.
	UpsertContract(ctx context.Context, in ContractUpsert) (models.Contract, error)
}

type BoardInput struct {
	ID        uuid.UUID
	TeamID    string
	Name      string
	CreatedBy string
}

type ContentItemInput struct {
	ID          uuid.UUID
	BoardID     uuid.UUID
	Title       string
	Body        string
	Description string
	CreatedBy   string
}

type ContentItemStatusUpdate struct {
	ID     uuid.UUID
	Status models.ContentStatus
	// From restricts the transition to rows currently in one of these
	// statuses. Empty means any status.
	From          []models.ContentStatus
	PublishedAt   *time.Time
	ScheduledAt   *time.Time
	ClearSchedule bool
}

type PlatformInput struct {
	ID   uuid.UUID
	Key  string
	Name string
}

type PlatformFormatInput struct {
	ID           uuid.UUID
	PlatformID   uuid.UUID
	Name         string
	Key          string
	MediaType    string
	OutputSchema schema.Schema
	Rules        map[string]any
	Active       bool
}

type PlatformFormatFilter struct {
	IDs         []uuid.UUID
	PlatformKey string
	ActiveOnly  bool
}

type ContractFilter struct {
	ContentItemIDs []uuid.UUID
	Status         models.ContractStatus
}

type ContractUpsert struct {
	ContentItemID    uuid.UUID
	PlatformFormatID uuid.UUID
	Payload          map[string]any
}

// ContractUpdate is a manual edit. A nil Payload keeps the stored payload.
type ContractUpdate struct {
	ID      uuid.UUID
	Payload map[string]any
	Status  models.ContractStatus
}

type PublishOutcome struct {
	ContractID     uuid.UUID
	Success        bool
	ExternalPostID string
	Error          string
	At             time.Time
}

func statusStrings(statuses []models.ContentStatus) []string {
	if len(statuses) == 0 {
		return nil
	}
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

func statusAllowed(current models.ContentStatus, from []models.ContentStatus) bool {
	if len(from) == 0 {
		return true
	}
	for _, s := range from {
		if s == current {
			return true
		}
	}
	return false
}
