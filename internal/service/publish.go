package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/martin3r-me/platforms-brands-sub000/internal/apperr"
	"github.com/martin3r-me/platforms-brands-sub000/internal/canonical"
	"github.com/martin3r-me/platforms-brands-sub000/internal/events"
	"github.com/martin3r-me/platforms-brands-sub000/internal/models"
	"github.com/martin3r-me/platforms-brands-sub000/internal/platforms"
	"github.com/martin3r-me/platforms-brands-sub000/internal/store"
)

const (
	reportKind     = "publish-reports"
	msgTimedOut    = "adapter timed out"
	msgEmptyResult = "adapter reported failure without a reason"
)

// ContractResult is the outcome of dispatching one contract. PayloadDigest
// fingerprints the payload that was sent.
type ContractResult struct {
	ContractID       uuid.UUID `json:"contractId"`
	PlatformFormatID uuid.UUID `json:"platformFormatId"`
	Platform         string    `json:"platform"`
	Format           string    `json:"format"`
	Success          bool      `json:"success"`
	ExternalPostID   string    `json:"externalPostId,omitempty"`
	Error            string    `json:"error,omitempty"`
	PayloadDigest    string    `json:"payloadDigest,omitempty"`
}

type PublishResult struct {
	ContentItemID  uuid.UUID            `json:"contentItemId"`
	FinalStatus    models.ContentStatus `json:"finalStatus"`
	Results        []ContractResult     `json:"perContractResults"`
	PublishedCount int                  `json:"publishedCount"`
	FailedCount    int                  `json:"failedCount"`
	PublishedAt    *time.Time           `json:"publishedAt,omitempty"`
	ReportKey      string               `json:"reportKey,omitempty"`
}

// publishableFrom lists the item statuses a publish run may start from.
// Excluding publishing makes a second concurrent run lose the transition.
var publishableFrom = []models.ContentStatus{
	models.ContentStatusDraft,
	models.ContentStatusScheduled,
	models.ContentStatusPublished,
	models.ContentStatusFailed,
}

// PublishContentItem dispatches every ready contract of an item and settles
// the item status from the aggregated outcome.
func (s *Service) PublishContentItem(ctx context.Context, id uuid.UUID) (PublishResult, error) {
	item, err := s.loadItem(ctx, id)
	if err != nil {
		return PublishResult{}, err
	}
	ready, err := s.store.ListContracts(ctx, store.ContractFilter{
		ContentItemIDs: []uuid.UUID{item.ID},
		Status:         models.ContractStatusReady,
	})
	if err != nil {
		return PublishResult{}, translate(err, "contracts")
	}
	if len(ready) == 0 {
		return PublishResult{}, apperr.New(apperr.NoReadyContracts, "content item %s has no ready contracts", item.ID)
	}

	formatIDs := make([]uuid.UUID, 0, len(ready))
	for _, c := range ready {
		formatIDs = append(formatIDs, c.PlatformFormatID)
	}
	found, err := s.store.ListPlatformFormats(ctx, store.PlatformFormatFilter{IDs: dedupe(formatIDs)})
	if err != nil {
		return PublishResult{}, translate(err, "platform formats")
	}
	formats := formatIndex(found)

	_, err = s.store.UpdateContentItemStatus(ctx, store.ContentItemStatusUpdate{
		ID:     item.ID,
		Status: models.ContentStatusPublishing,
		From:   publishableFrom,
	})
	if errors.Is(err, store.ErrStatusConflict) {
		return PublishResult{}, apperr.New(apperr.ValidationError, "publish already in progress for content item %s", item.ID)
	}
	if err != nil {
		return PublishResult{}, translate(err, "content item")
	}

	s.notify(ctx, statusEvent(item.ID, models.ContentStatusPublishing, s.now()))
	log := s.logger.With(zap.String("content_item_id", item.ID.String()))
	log.Info("publishing content item", zap.Int("contracts", len(ready)))

	// The loop runs to completion even if the caller goes away.
	runCtx := context.WithoutCancel(ctx)
	results := make([]ContractResult, len(ready))
	var (
		mu        sync.Mutex
		published int
		failed    int
	)
	var g errgroup.Group
	g.SetLimit(s.cfg.PublishConcurrency)
	for i, c := range ready {
		f := formats[c.PlatformFormatID]
		g.Go(func() error {
			res, err := s.dispatch(runCtx, platforms.Request{
				ContractID:    c.ID,
				ContentItemID: item.ID,
				PlatformKey:   f.PlatformKey,
				FormatKey:     f.Key,
				MediaType:     f.MediaType,
				Payload:       c.Payload,
			})
			if err != nil {
				return fmt.Errorf("contract %s: %w", c.ID, err)
			}
			if _, err := s.store.RecordPublishOutcome(runCtx, store.PublishOutcome{
				ContractID:     c.ID,
				Success:        res.Success,
				ExternalPostID: res.ExternalPostID,
				Error:          res.Error,
				At:             s.now(),
			}); err != nil {
				return fmt.Errorf("record outcome for contract %s: %w", c.ID, err)
			}
			results[i] = ContractResult{
				ContractID:       c.ID,
				PlatformFormatID: c.PlatformFormatID,
				Platform:         f.PlatformKey,
				Format:           f.Name,
				Success:          res.Success,
				ExternalPostID:   res.ExternalPostID,
				Error:            res.Error,
				PayloadDigest:    payloadDigest(c.Payload),
			}
			mu.Lock()
			if res.Success {
				published++
			} else {
				failed++
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("publish run aborted", zap.Error(err))
		s.forceFailed(runCtx, log, item.ID)
		return PublishResult{}, apperr.Wrap(apperr.ExecutionError, err, "publish content item")
	}

	decision := DecidePublish(published, failed)
	update := store.ContentItemStatusUpdate{
		ID:     item.ID,
		Status: decision.Status,
		From:   []models.ContentStatus{models.ContentStatusPublishing},
	}
	if decision.StampPublishedAt {
		at := s.now()
		update.PublishedAt = &at
	}
	final, err := s.store.UpdateContentItemStatus(runCtx, update)
	if err != nil {
		log.Error("could not settle content item status", zap.Error(err))
		s.forceFailed(runCtx, log, item.ID)
		return PublishResult{}, apperr.Wrap(apperr.ExecutionError, err, "settle content item status")
	}

	out := PublishResult{
		ContentItemID:  item.ID,
		FinalStatus:    final.Status,
		Results:        results,
		PublishedCount: published,
		FailedCount:    failed,
		PublishedAt:    final.PublishedAt,
	}
	log.Info("publish finished",
		zap.String("status", string(out.FinalStatus)),
		zap.Int("published", published),
		zap.Int("failed", failed))

	s.notify(runCtx, publishEvents(out, s.now())...)
	out.ReportKey = s.archiveDoc(runCtx, reportKind, item.ID.String(), s.now(), out)
	return out, nil
}

// forceFailed moves an item out of publishing after a fault. It is best
// effort: a second store failure is logged and the item is left as is.
func (s *Service) forceFailed(ctx context.Context, log *zap.Logger, id uuid.UUID) {
	if _, err := s.store.UpdateContentItemStatus(ctx, store.ContentItemStatusUpdate{
		ID:     id,
		Status: models.ContentStatusFailed,
		From:   []models.ContentStatus{models.ContentStatusPublishing},
	}); err != nil {
		log.Error("could not mark content item failed", zap.Error(err))
		return
	}
	s.notify(ctx, statusEvent(id, models.ContentStatusFailed, s.now()))
}

type dispatchReply struct {
	res      platforms.Result
	err      error
	panicked interface{}
}

// dispatch calls the adapter under its own deadline. Adapter errors and
// timeouts come back as failed results; only a panic is returned as an error.
func (s *Service) dispatch(ctx context.Context, req platforms.Request) (platforms.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.AdapterTimeout)
	defer cancel()

	ch := make(chan dispatchReply, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- dispatchReply{panicked: p}
			}
		}()
		res, err := s.dispatcher.Publish(callCtx, req)
		ch <- dispatchReply{res: res, err: err}
	}()

	select {
	case r := <-ch:
		switch {
		case r.panicked != nil:
			return platforms.Result{}, fmt.Errorf("adapter for %q panicked: %v", req.PlatformKey, r.panicked)
		case r.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded):
			return platforms.Failed(msgTimedOut), nil
		case r.err != nil:
			return platforms.Failed(r.err.Error()), nil
		case !r.res.Success && r.res.Error == "":
			return platforms.Failed(msgEmptyResult), nil
		}
		return r.res, nil
	case <-callCtx.Done():
		return platforms.Failed(msgTimedOut), nil
	}
}

func payloadDigest(payload map[string]any) string {
	d, err := canonical.Digest(payload)
	if err != nil {
		return ""
	}
	return d
}

func statusEvent(itemID uuid.UUID, status models.ContentStatus, at time.Time) events.Event {
	return events.Event{
		ID:            uuid.New(),
		Type:          events.TypeContentItemStatus,
		ContentItemID: itemID,
		Status:        string(status),
		At:            at,
	}
}

func publishEvents(res PublishResult, at time.Time) []events.Event {
	out := make([]events.Event, 0, len(res.Results)+1)
	for _, r := range res.Results {
		ev := events.Event{
			ID:            uuid.New(),
			Type:          events.TypeContractFailed,
			ContentItemID: res.ContentItemID,
			ContractID:    &r.ContractID,
			Status:        string(models.ContractStatusFailed),
			Data:          map[string]any{"platform": r.Platform, "format": r.Format},
			At:            at,
		}
		if r.Success {
			ev.Type = events.TypeContractPublished
			ev.Status = string(models.ContractStatusPublished)
			ev.Data["externalPostId"] = r.ExternalPostID
		} else {
			ev.Data["error"] = r.Error
		}
		out = append(out, ev)
	}
	return append(out, statusEvent(res.ContentItemID, res.FinalStatus, at))
}
