// Package events streams contract lifecycle events to Kafka.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	TypeContractsGenerated = "contracts.generated"
	TypeContractPublished  = "contract.published"
	TypeContractFailed     = "contract.failed"
	TypeContentItemStatus  = "content_item.status_changed"
)

type Event struct {
	ID            uuid.UUID      `json:"id"`
	Type          string         `json:"type"`
	ContentItemID uuid.UUID      `json:"contentItemId"`
	ContractID    *uuid.UUID     `json:"contractId,omitempty"`
	Status        string         `json:"status,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	At            time.Time      `json:"at"`
}

// Notifier delivers events. Callers treat delivery as best effort.
type Notifier interface {
	Notify(ctx context.Context, events ...Event) error
}

type Noop struct{}

func (Noop) Notify(ctx context.Context, events ...Event) error { return nil }

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(ctx context.Context, events ...Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}
