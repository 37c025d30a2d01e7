package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/martin3r-me/platforms-brands-sub000/internal/models"
	"github.com/martin3r-me/platforms-brands-sub000/internal/schema"
)

type contractKey struct {
	itemID   uuid.UUID
	formatID uuid.UUID
}

type MemoryStore struct {
	mu        sync.RWMutex
	boards    map[uuid.UUID]models.Board
	items     map[uuid.UUID]models.ContentItem
	platforms map[uuid.UUID]models.Platform
	formats   map[uuid.UUID]models.PlatformFormat
	contracts map[uuid.UUID]models.Contract
	byPair    map[contractKey]uuid.UUID
	// seq orders rows created within the same clock tick.
	seq map[uuid.UUID]int64
	n   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		boards:    map[uuid.UUID]models.Board{},
		items:     map[uuid.UUID]models.ContentItem{},
		platforms: map[uuid.UUID]models.Platform{},
		formats:   map[uuid.UUID]models.PlatformFormat{},
		contracts: map[uuid.UUID]models.Contract{},
		byPair:    map[contractKey]uuid.UUID{},
		seq:       map[uuid.UUID]int64{},
	}
}

func (m *MemoryStore) nextSeq(id uuid.UUID) {
	if _, ok := m.seq[id]; ok {
		return
	}
	m.n++
	m.seq[id] = m.n
}

func copyPayload(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *MemoryStore) CreateBoard(ctx context.Context, in BoardInput) (models.Board, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	b := models.Board{
		ID:        in.ID,
		TeamID:    in.TeamID,
		Name:      in.Name,
		CreatedBy: in.CreatedBy,
		CreatedAt: time.Now().UTC(),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boards[b.ID] = b
	return b, nil
}

func (m *MemoryStore) GetBoard(ctx context.Context, id uuid.UUID) (models.Board, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.boards[id]
	if !ok {
		return models.Board{}, ErrNotFound
	}
	return b, nil
}

func (m *MemoryStore) CreateContentItem(ctx context.Context, in ContentItemInput) (models.ContentItem, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	now := time.Now().UTC()
	item := models.ContentItem{
		ID:          in.ID,
		BoardID:     in.BoardID,
		Title:       in.Title,
		Body:        in.Body,
		Description: in.Description,
		Status:      models.ContentStatusDraft,
		CreatedBy:   in.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.boards[in.BoardID]; !ok {
		return models.ContentItem{}, ErrNotFound
	}
	m.items[item.ID] = item
	m.nextSeq(item.ID)
	return item, nil
}

func (m *MemoryStore) GetContentItem(ctx context.Context, id uuid.UUID) (models.ContentItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[id]
	if !ok {
		return models.ContentItem{}, ErrNotFound
	}
	return item, nil
}

func (m *MemoryStore) ListContentItems(ctx context.Context, boardID uuid.UUID) ([]models.ContentItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var items []models.ContentItem
	for _, item := range m.items {
		if item.BoardID == boardID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return m.seq[items[i].ID] < m.seq[items[j].ID]
	})
	return items, nil
}

func (m *MemoryStore) UpdateContentItemStatus(ctx context.Context, in ContentItemStatusUpdate) (models.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[in.ID]
	if !ok {
		return models.ContentItem{}, ErrNotFound
	}
	if !statusAllowed(item.Status, in.From) {
		return models.ContentItem{}, ErrStatusConflict
	}
	item.Status = in.Status
	if in.PublishedAt != nil {
		t := in.PublishedAt.UTC()
		item.PublishedAt = &t
	}
	switch {
	case in.ClearSchedule:
		item.ScheduledAt = nil
	case in.ScheduledAt != nil:
		t := in.ScheduledAt.UTC()
		item.ScheduledAt = &t
	}
	item.UpdatedAt = time.Now().UTC()
	m.items[item.ID] = item
	return item, nil
}

func (m *MemoryStore) UpsertPlatform(ctx context.Context, in PlatformInput) (models.Platform, error) {
	key := strings.ToLower(in.Key)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.platforms {
		if p.Key == key {
			p.Name = in.Name
			m.platforms[id] = p
			return p, nil
		}
	}
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	p := models.Platform{ID: in.ID, Key: key, Name: in.Name, CreatedAt: time.Now().UTC()}
	m.platforms[p.ID] = p
	return p, nil
}

func (m *MemoryStore) GetPlatform(ctx context.Context, id uuid.UUID) (models.Platform, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.platforms[id]
	if !ok {
		return models.Platform{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) UpsertPlatformFormat(ctx context.Context, in PlatformFormatInput) (models.PlatformFormat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	platform, ok := m.platforms[in.PlatformID]
	if !ok {
		return models.PlatformFormat{}, ErrNotFound
	}
	now := time.Now().UTC()
	f := models.PlatformFormat{
		ID:           in.ID,
		PlatformID:   in.PlatformID,
		PlatformKey:  platform.Key,
		Name:         in.Name,
		Key:          in.Key,
		MediaType:    in.MediaType,
		OutputSchema: append(schema.Schema(nil), in.OutputSchema...),
		Rules:        copyPayload(in.Rules),
		Active:       in.Active,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for id, existing := range m.formats {
		if existing.PlatformID == in.PlatformID && existing.Key == in.Key {
			f.ID = id
			f.CreatedAt = existing.CreatedAt
			break
		}
	}
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	m.formats[f.ID] = f
	return f, nil
}

func (m *MemoryStore) ListPlatformFormats(ctx context.Context, filter PlatformFormatFilter) ([]models.PlatformFormat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var wanted map[uuid.UUID]bool
	if filter.IDs != nil {
		wanted = make(map[uuid.UUID]bool, len(filter.IDs))
		for _, id := range filter.IDs {
			wanted[id] = true
		}
	}
	key := strings.ToLower(filter.PlatformKey)
	var formats []models.PlatformFormat
	for _, f := range m.formats {
		if wanted != nil && !wanted[f.ID] {
			continue
		}
		if key != "" && f.PlatformKey != key {
			continue
		}
		if filter.ActiveOnly && !f.Active {
			continue
		}
		formats = append(formats, f)
	}
	sort.Slice(formats, func(i, j int) bool {
		if formats[i].PlatformKey != formats[j].PlatformKey {
			return formats[i].PlatformKey < formats[j].PlatformKey
		}
		return formats[i].Key < formats[j].Key
	})
	return formats, nil
}

func (m *MemoryStore) ListContracts(ctx context.Context, filter ContractFilter) ([]models.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var wanted map[uuid.UUID]bool
	if filter.ContentItemIDs != nil {
		wanted = make(map[uuid.UUID]bool, len(filter.ContentItemIDs))
		for _, id := range filter.ContentItemIDs {
			wanted[id] = true
		}
	}
	var contracts []models.Contract
	for _, c := range m.contracts {
		if wanted != nil && !wanted[c.ContentItemID] {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		contracts = append(contracts, c)
	}
	sort.Slice(contracts, func(i, j int) bool {
		return m.seq[contracts[i].ID] < m.seq[contracts[j].ID]
	})
	return contracts, nil
}

func (m *MemoryStore) GetContract(ctx context.Context, id uuid.UUID) (models.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contracts[id]
	if !ok {
		return models.Contract{}, ErrNotFound
	}
	return c, nil
}

// writableContract must be called with m.mu held.
func (m *MemoryStore) writableContract(id uuid.UUID) (models.Contract, error) {
	c, ok := m.contracts[id]
	if !ok {
		return models.Contract{}, ErrNotFound
	}
	if c.Status == models.ContractStatusPublished {
		return models.Contract{}, ErrContractImmutable
	}
	return c, nil
}

func (m *MemoryStore) UpdateContract(ctx context.Context, in ContractUpdate) (models.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.writableContract(in.ID)
	if err != nil {
		return models.Contract{}, err
	}
	if in.Payload != nil {
		c.Payload = copyPayload(in.Payload)
	}
	c.Status = in.Status
	c.ErrorMessage = nil
	c.UpdatedAt = time.Now().UTC()
	m.contracts[c.ID] = c
	return c, nil
}

func (m *MemoryStore) RecordPublishOutcome(ctx context.Context, in PublishOutcome) (models.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.writableContract(in.ContractID)
	if err != nil {
		return models.Contract{}, err
	}
	if in.Success {
		at := in.At.UTC()
		ext := in.ExternalPostID
		c.Status = models.ContractStatusPublished
		c.PublishedAt = &at
		c.ExternalPostID = &ext
		c.ErrorMessage = nil
	} else {
		msg := in.Error
		c.Status = models.ContractStatusFailed
		c.ErrorMessage = &msg
	}
	c.UpdatedAt = time.Now().UTC()
	m.contracts[c.ID] = c
	return c, nil
}

func (m *MemoryStore) DeleteContract(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.writableContract(id)
	if err != nil {
		return err
	}
	delete(m.contracts, c.ID)
	delete(m.byPair, contractKey{itemID: c.ContentItemID, formatID: c.PlatformFormatID})
	return nil
}

// WithTx holds the write lock for the duration of fn and applies the staged
// contracts only when fn succeeds.
func (m *MemoryStore) WithTx(ctx context.Context, fn func(tx ContractTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memoryTx{m: m, staged: map[contractKey]models.Contract{}}
	if err := fn(tx); err != nil {
		return err
	}
	for _, key := range tx.order {
		c := tx.staged[key]
		m.contracts[c.ID] = c
		m.byPair[key] = c.ID
		m.nextSeq(c.ID)
	}
	return nil
}

type memoryTx struct {
	m      *MemoryStore
	staged map[contractKey]models.Contract
	order  []contractKey
}

func (t *memoryTx) UpsertContract(ctx context.Context, in ContractUpsert) (models.Contract, error) {
	key := contractKey{itemID: in.ContentItemID, formatID: in.PlatformFormatID}
	now := time.Now().UTC()

	c, staged := t.staged[key]
	if !staged {
		if id, ok := t.m.byPair[key]; ok {
			c = t.m.contracts[id]
		} else {
			c = models.Contract{
				ID:               uuid.New(),
				ContentItemID:    in.ContentItemID,
				PlatformFormatID: in.PlatformFormatID,
				CreatedAt:        now,
			}
		}
	}
	if c.Status == models.ContractStatusPublished {
		return models.Contract{}, ErrContractImmutable
	}
	c.Payload = copyPayload(in.Payload)
	c.Status = models.ContractStatusReady
	c.ErrorMessage = nil
	c.UpdatedAt = now
	if !staged {
		t.order = append(t.order, key)
	}
	t.staged[key] = c
	return c, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }
