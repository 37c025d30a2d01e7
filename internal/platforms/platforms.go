// Package platforms holds the publish adapters for the external social
// networks and the registry the publish orchestrator dispatches through.
package platforms

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// UnsupportedPlatform is the failure text for a registry miss.
const UnsupportedPlatform = "unsupported platform"

// Request is what an adapter receives for one contract.
type Request struct {
	ContractID    uuid.UUID
	ContentItemID uuid.UUID
	PlatformKey   string
	FormatKey     string
	MediaType     string
	Payload       map[string]any
}

type Result struct {
	Success        bool   `json:"success"`
	ExternalPostID string `json:"externalPostId,omitempty"`
	Error          string `json:"error,omitempty"`
}

func Failed(msg string) Result {
	return Result{Success: false, Error: msg}
}

func Published(externalID string) Result {
	return Result{Success: true, ExternalPostID: externalID}
}

// Adapter publishes a contract to one platform. A returned error is treated
// by callers exactly like a failed Result.
type Adapter interface {
	Publish(ctx context.Context, req Request) (Result, error)
}

type AdapterFunc func(ctx context.Context, req Request) (Result, error)

func (f AdapterFunc) Publish(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// Registry maps platform keys to adapters. Keys are case-insensitive.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: map[string]Adapter{}}
}

func (r *Registry) Register(key string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[strings.ToLower(key)] = a
}

func (r *Registry) Lookup(key string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[strings.ToLower(key)]
	return a, ok
}

func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Publish resolves the adapter for req.PlatformKey. A miss is a failed
// result, never an error.
func (r *Registry) Publish(ctx context.Context, req Request) (Result, error) {
	a, ok := r.Lookup(req.PlatformKey)
	if !ok {
		return Failed(UnsupportedPlatform), nil
	}
	return a.Publish(ctx, req)
}

// DryRun succeeds without contacting any platform. It backs local setups
// that have no platform credentials.
type DryRun struct{}

func (DryRun) Publish(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Published("dryrun-" + req.PlatformKey + "-" + req.ContractID.String()), nil
}
