package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martin3r-me/platforms-brands-sub000/internal/models"
	"github.com/martin3r-me/platforms-brands-sub000/internal/schema"
)

type memFixture struct {
	store  *MemoryStore
	item   models.ContentItem
	format models.PlatformFormat
}

func newMemFixture(t *testing.T) memFixture {
	t.Helper()
	ctx := context.Background()
	m := NewMemoryStore()
	board, err := m.CreateBoard(ctx, BoardInput{TeamID: "team-a", Name: "Launch"})
	require.NoError(t, err)
	item, err := m.CreateContentItem(ctx, ContentItemInput{BoardID: board.ID, Title: "Hello"})
	require.NoError(t, err)
	p, err := m.UpsertPlatform(ctx, PlatformInput{Key: "Facebook", Name: "Facebook"})
	require.NoError(t, err)
	f, err := m.UpsertPlatformFormat(ctx, PlatformFormatInput{
		PlatformID:   p.ID,
		Name:         "Post",
		Key:          "post",
		OutputSchema: schema.Schema{{Name: "text", Spec: schema.FieldSpec{Required: true}}},
		Active:       true,
	})
	require.NoError(t, err)
	return memFixture{store: m, item: item, format: f}
}

func TestMemoryUpsertPlatformFormatByKey(t *testing.T) {
	fx := newMemFixture(t)
	ctx := context.Background()

	again, err := fx.store.UpsertPlatformFormat(ctx, PlatformFormatInput{
		PlatformID: fx.format.PlatformID,
		Name:       "Post v2",
		Key:        "post",
		Active:     false,
	})
	require.NoError(t, err)
	assert.Equal(t, fx.format.ID, again.ID)
	assert.Equal(t, "facebook", again.PlatformKey)

	active, err := fx.store.ListPlatformFormats(ctx, PlatformFormatFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := fx.store.ListPlatformFormats(ctx, PlatformFormatFilter{PlatformKey: "FACEBOOK"})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Post v2", all[0].Name)
}

func TestMemoryWithTxDiscardsOnError(t *testing.T) {
	fx := newMemFixture(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := fx.store.WithTx(ctx, func(tx ContractTx) error {
		_, err := tx.UpsertContract(ctx, ContractUpsert{
			ContentItemID:    fx.item.ID,
			PlatformFormatID: fx.format.ID,
			Payload:          map[string]any{"text": "hi"},
		})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	contracts, err := fx.store.ListContracts(ctx, ContractFilter{ContentItemIDs: []uuid.UUID{fx.item.ID}})
	require.NoError(t, err)
	assert.Empty(t, contracts)
}

func TestMemoryUpsertKeepsIdentityAndResetsError(t *testing.T) {
	fx := newMemFixture(t)
	ctx := context.Background()
	upsert := func(text string) models.Contract {
		var c models.Contract
		require.NoError(t, fx.store.WithTx(ctx, func(tx ContractTx) error {
			var err error
			c, err = tx.UpsertContract(ctx, ContractUpsert{
				ContentItemID:    fx.item.ID,
				PlatformFormatID: fx.format.ID,
				Payload:          map[string]any{"text": text},
			})
			return err
		}))
		return c
	}

	first := upsert("one")
	_, err := fx.store.RecordPublishOutcome(ctx, PublishOutcome{ContractID: first.ID, Error: "rate limited"})
	require.NoError(t, err)

	second := upsert("two")
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.ContractStatusReady, second.Status)
	assert.Nil(t, second.ErrorMessage)

	stored, err := fx.store.GetContract(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "two", stored.Payload["text"])
}

func TestMemoryPublishedContractIsImmutable(t *testing.T) {
	fx := newMemFixture(t)
	ctx := context.Background()

	var c models.Contract
	require.NoError(t, fx.store.WithTx(ctx, func(tx ContractTx) error {
		var err error
		c, err = tx.UpsertContract(ctx, ContractUpsert{ContentItemID: fx.item.ID, PlatformFormatID: fx.format.ID, Payload: map[string]any{"text": "hi"}})
		return err
	}))
	published, err := fx.store.RecordPublishOutcome(ctx, PublishOutcome{ContractID: c.ID, Success: true, ExternalPostID: "ext-1", At: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, models.ContractStatusPublished, published.Status)

	err = fx.store.WithTx(ctx, func(tx ContractTx) error {
		_, err := tx.UpsertContract(ctx, ContractUpsert{ContentItemID: fx.item.ID, PlatformFormatID: fx.format.ID})
		return err
	})
	assert.ErrorIs(t, err, ErrContractImmutable)

	_, err = fx.store.UpdateContract(ctx, ContractUpdate{ID: c.ID, Status: models.ContractStatusDraft})
	assert.ErrorIs(t, err, ErrContractImmutable)
	_, err = fx.store.RecordPublishOutcome(ctx, PublishOutcome{ContractID: c.ID, Error: "late failure"})
	assert.ErrorIs(t, err, ErrContractImmutable)
	assert.ErrorIs(t, fx.store.DeleteContract(ctx, c.ID), ErrContractImmutable)

	stored, err := fx.store.GetContract(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "ext-1", *stored.ExternalPostID)
}

func TestMemoryGuardedStatusTransition(t *testing.T) {
	fx := newMemFixture(t)
	ctx := context.Background()
	notPublishing := []models.ContentStatus{models.ContentStatusDraft, models.ContentStatusScheduled, models.ContentStatusFailed, models.ContentStatusPublished}

	item, err := fx.store.UpdateContentItemStatus(ctx, ContentItemStatusUpdate{ID: fx.item.ID, Status: models.ContentStatusPublishing, From: notPublishing})
	require.NoError(t, err)
	assert.Equal(t, models.ContentStatusPublishing, item.Status)

	_, err = fx.store.UpdateContentItemStatus(ctx, ContentItemStatusUpdate{ID: fx.item.ID, Status: models.ContentStatusPublishing, From: notPublishing})
	assert.ErrorIs(t, err, ErrStatusConflict)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	item, err = fx.store.UpdateContentItemStatus(ctx, ContentItemStatusUpdate{
		ID:          fx.item.ID,
		Status:      models.ContentStatusPublished,
		From:        []models.ContentStatus{models.ContentStatusPublishing},
		PublishedAt: &at,
	})
	require.NoError(t, err)
	require.NotNil(t, item.PublishedAt)
	assert.True(t, at.Equal(*item.PublishedAt))

	_, err = fx.store.UpdateContentItemStatus(ctx, ContentItemStatusUpdate{ID: uuid.New(), Status: models.ContentStatusDraft})
	assert.ErrorIs(t, err, ErrNotFound)
}
