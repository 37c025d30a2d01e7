package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/martin3r-me/platforms-brands-sub000/internal/schema"
)

type ContentStatus string

const (
	ContentStatusDraft      ContentStatus = "draft"
	ContentStatusScheduled  ContentStatus = "scheduled"
	ContentStatusPublishing ContentStatus = "publishing"
	ContentStatusPublished  ContentStatus = "published"
	ContentStatusFailed     ContentStatus = "failed"
)

// ContentStatuses lists every content item status in lifecycle order.
var ContentStatuses = []ContentStatus{
	ContentStatusDraft,
	ContentStatusScheduled,
	ContentStatusPublishing,
	ContentStatusPublished,
	ContentStatusFailed,
}

func (s ContentStatus) Valid() bool {
	for _, v := range ContentStatuses {
		if v == s {
			return true
		}
	}
	return false
}

type ContractStatus string

const (
	ContractStatusDraft     ContractStatus = "draft"
	ContractStatusReady     ContractStatus = "ready"
	ContractStatusPublished ContractStatus = "published"
	ContractStatusFailed    ContractStatus = "failed"
)

func (s ContractStatus) Valid() bool {
	switch s {
	case ContractStatusDraft, ContractStatusReady, ContractStatusPublished, ContractStatusFailed:
		return true
	}
	return false
}

type Board struct {
	ID        uuid.UUID `json:"id"`
	TeamID    string    `json:"teamId"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ContentItem is the platform-agnostic master content (a social card).
type ContentItem struct {
	ID          uuid.UUID     `json:"id"`
	BoardID     uuid.UUID     `json:"boardId"`
	Title       string        `json:"title"`
	Body        string        `json:"body,omitempty"`
	Description string        `json:"description,omitempty"`
	Status      ContentStatus `json:"status"`
	ScheduledAt *time.Time    `json:"scheduledAt,omitempty"`
	PublishedAt *time.Time    `json:"publishedAt,omitempty"`
	CreatedBy   string        `json:"createdBy,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

type Platform struct {
	ID        uuid.UUID `json:"id"`
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// PlatformFormat is a publishing target (platform + format). PlatformKey is
// denormalized from the owning platform on reads.
type PlatformFormat struct {
	ID           uuid.UUID      `json:"id"`
	PlatformID   uuid.UUID      `json:"platformId"`
	PlatformKey  string         `json:"platformKey"`
	Name         string         `json:"name"`
	Key          string         `json:"key"`
	MediaType    string         `json:"mediaType,omitempty"`
	OutputSchema schema.Schema  `json:"outputSchema"`
	Rules        map[string]any `json:"rules,omitempty"`
	Active       bool           `json:"active"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

type Contract struct {
	ID               uuid.UUID      `json:"id"`
	ContentItemID    uuid.UUID      `json:"contentItemId"`
	PlatformFormatID uuid.UUID      `json:"platformFormatId"`
	Payload          map[string]any `json:"payload"`
	Status           ContractStatus `json:"status"`
	PublishedAt      *time.Time     `json:"publishedAt,omitempty"`
	ExternalPostID   *string        `json:"externalPostId,omitempty"`
	ErrorMessage     *string        `json:"errorMessage,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}
