package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/martin3r-me/platforms-brands-sub000/internal/apperr"
	"github.com/martin3r-me/platforms-brands-sub000/internal/auth"
	"github.com/martin3r-me/platforms-brands-sub000/internal/models"
	"github.com/martin3r-me/platforms-brands-sub000/internal/projection"
	"github.com/martin3r-me/platforms-brands-sub000/internal/schema"
	"github.com/martin3r-me/platforms-brands-sub000/internal/store"
)

type BoardRequest struct {
	TeamID string `json:"teamId"`
	Name   string `json:"name"`
}

type ContentItemRequest struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	Description string `json:"description"`
}

type PlatformRequest struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

type PlatformFormatRequest struct {
	Name         string         `json:"name"`
	Key          string         `json:"key"`
	MediaType    string         `json:"mediaType"`
	OutputSchema schema.Schema  `json:"outputSchema"`
	Rules        map[string]any `json:"rules"`
	// Active defaults to true.
	Active *bool `json:"active"`
}

// ContractEdit is a manual change to a contract. A nil Payload keeps the
// stored payload; an empty Status means draft.
type ContractEdit struct {
	Payload map[string]any        `json:"payload"`
	Status  models.ContractStatus `json:"status"`
}

func subject(ctx context.Context) string {
	if p := auth.FromContext(ctx); p != nil {
		return p.Subject
	}
	return ""
}

func (s *Service) CreateBoard(ctx context.Context, req BoardRequest) (models.Board, error) {
	req.TeamID = strings.TrimSpace(req.TeamID)
	req.Name = strings.TrimSpace(req.Name)
	if req.TeamID == "" || req.Name == "" {
		return models.Board{}, apperr.New(apperr.ValidationError, "teamId and name are required")
	}
	if err := s.authorizeBoard(ctx, models.Board{TeamID: req.TeamID}); err != nil {
		return models.Board{}, err
	}
	b, err := s.store.CreateBoard(ctx, store.BoardInput{
		ID:        uuid.New(),
		TeamID:    req.TeamID,
		Name:      req.Name,
		CreatedBy: subject(ctx),
	})
	if err != nil {
		return models.Board{}, translate(err, "board")
	}
	return b, nil
}

func (s *Service) loadBoard(ctx context.Context, id uuid.UUID) (models.Board, error) {
	b, err := s.store.GetBoard(ctx, id)
	if err != nil {
		return models.Board{}, translate(err, "board")
	}
	if err := s.authorizeBoard(ctx, b); err != nil {
		return models.Board{}, err
	}
	return b, nil
}

func (s *Service) CreateContentItem(ctx context.Context, boardID uuid.UUID, req ContentItemRequest) (models.ContentItem, error) {
	if strings.TrimSpace(req.Title) == "" {
		return models.ContentItem{}, apperr.New(apperr.ValidationError, "title is required")
	}
	b, err := s.loadBoard(ctx, boardID)
	if err != nil {
		return models.ContentItem{}, err
	}
	item, err := s.store.CreateContentItem(ctx, store.ContentItemInput{
		ID:          uuid.New(),
		BoardID:     b.ID,
		Title:       strings.TrimSpace(req.Title),
		Body:        req.Body,
		Description: req.Description,
		CreatedBy:   subject(ctx),
	})
	if err != nil {
		return models.ContentItem{}, translate(err, "content item")
	}
	return item, nil
}

func (s *Service) GetContentItem(ctx context.Context, id uuid.UUID) (models.ContentItem, error) {
	return s.loadItem(ctx, id)
}

// ScheduleContentItem moves a draft, scheduled or failed item to scheduled.
func (s *Service) ScheduleContentItem(ctx context.Context, id uuid.UUID, at time.Time) (models.ContentItem, error) {
	if at.IsZero() {
		return models.ContentItem{}, apperr.New(apperr.ValidationError, "scheduledAt is required")
	}
	if _, err := s.loadItem(ctx, id); err != nil {
		return models.ContentItem{}, err
	}
	return s.transition(ctx, store.ContentItemStatusUpdate{
		ID:          id,
		Status:      models.ContentStatusScheduled,
		From:        []models.ContentStatus{models.ContentStatusDraft, models.ContentStatusScheduled, models.ContentStatusFailed},
		ScheduledAt: &at,
	})
}

func (s *Service) UnscheduleContentItem(ctx context.Context, id uuid.UUID) (models.ContentItem, error) {
	if _, err := s.loadItem(ctx, id); err != nil {
		return models.ContentItem{}, err
	}
	return s.transition(ctx, store.ContentItemStatusUpdate{
		ID:            id,
		Status:        models.ContentStatusDraft,
		From:          []models.ContentStatus{models.ContentStatusScheduled},
		ClearSchedule: true,
	})
}

func (s *Service) transition(ctx context.Context, in store.ContentItemStatusUpdate) (models.ContentItem, error) {
	item, err := s.store.UpdateContentItemStatus(ctx, in)
	if errors.Is(err, store.ErrStatusConflict) {
		return models.ContentItem{}, apperr.New(apperr.ValidationError, "content item cannot move to %s from its current status", in.Status)
	}
	if err != nil {
		return models.ContentItem{}, translate(err, "content item")
	}
	s.notify(ctx, statusEvent(item.ID, item.Status, s.now()))
	return item, nil
}

func (s *Service) CreatePlatform(ctx context.Context, req PlatformRequest) (models.Platform, error) {
	if err := requireAdmin(ctx); err != nil {
		return models.Platform{}, err
	}
	key := strings.ToLower(strings.TrimSpace(req.Key))
	if key == "" {
		return models.Platform{}, apperr.New(apperr.ValidationError, "platform key is required")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = key
	}
	p, err := s.store.UpsertPlatform(ctx, store.PlatformInput{ID: uuid.New(), Key: key, Name: name})
	if err != nil {
		return models.Platform{}, translate(err, "platform")
	}
	return p, nil
}

// CreatePlatformFormat registers a format (or replaces the one with the same
// key on that platform). Schemas are data, so new formats need no release.
func (s *Service) CreatePlatformFormat(ctx context.Context, platformID uuid.UUID, req PlatformFormatRequest) (models.PlatformFormat, error) {
	if err := requireAdmin(ctx); err != nil {
		return models.PlatformFormat{}, err
	}
	key := strings.ToLower(strings.TrimSpace(req.Key))
	if key == "" || strings.TrimSpace(req.Name) == "" {
		return models.PlatformFormat{}, apperr.New(apperr.ValidationError, "format key and name are required")
	}
	if errs := schema.Check(req.OutputSchema); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		return models.PlatformFormat{}, apperr.New(apperr.ValidationError, "invalid output schema").
			WithDetails(map[string]any{"schemaErrors": msgs})
	}
	if _, err := s.store.GetPlatform(ctx, platformID); err != nil {
		return models.PlatformFormat{}, translate(err, "platform")
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	f, err := s.store.UpsertPlatformFormat(ctx, store.PlatformFormatInput{
		ID:           uuid.New(),
		PlatformID:   platformID,
		Name:         strings.TrimSpace(req.Name),
		Key:          key,
		MediaType:    req.MediaType,
		OutputSchema: req.OutputSchema,
		Rules:        req.Rules,
		Active:       active,
	})
	if err != nil {
		return models.PlatformFormat{}, translate(err, "platform format")
	}
	s.logger.Info("platform format saved",
		zap.String("platform", f.PlatformKey),
		zap.String("format", f.Key),
		zap.Bool("active", f.Active))
	return f, nil
}

func (s *Service) ListPlatformFormats(ctx context.Context, platformKey string, activeOnly bool) ([]models.PlatformFormat, error) {
	formats, err := s.store.ListPlatformFormats(ctx, store.PlatformFormatFilter{
		PlatformKey: strings.ToLower(strings.TrimSpace(platformKey)),
		ActiveOnly:  activeOnly,
	})
	if err != nil {
		return nil, translate(err, "platform formats")
	}
	return formats, nil
}

func (s *Service) ListContracts(ctx context.Context, itemID uuid.UUID, status models.ContractStatus) ([]models.Contract, error) {
	if status != "" && !status.Valid() {
		return nil, apperr.New(apperr.ValidationError, "unknown contract status %q", status)
	}
	if _, err := s.loadItem(ctx, itemID); err != nil {
		return nil, err
	}
	contracts, err := s.store.ListContracts(ctx, store.ContractFilter{
		ContentItemIDs: []uuid.UUID{itemID},
		Status:         status,
	})
	if err != nil {
		return nil, translate(err, "contracts")
	}
	return contracts, nil
}

// loadContract fetches a contract and authorizes access through its item.
func (s *Service) loadContract(ctx context.Context, id uuid.UUID) (models.Contract, error) {
	c, err := s.store.GetContract(ctx, id)
	if err != nil {
		return models.Contract{}, translate(err, "contract")
	}
	if _, err := s.loadItem(ctx, c.ContentItemID); err != nil {
		return models.Contract{}, err
	}
	return c, nil
}

// UpdateContract applies a manual edit. The payload is revalidated against
// the format schema; ready is only granted to a valid payload.
func (s *Service) UpdateContract(ctx context.Context, id uuid.UUID, edit ContractEdit) (models.Contract, error) {
	c, err := s.loadContract(ctx, id)
	if err != nil {
		return models.Contract{}, err
	}
	if c.Status == models.ContractStatusPublished {
		return models.Contract{}, translate(store.ErrContractImmutable, "contract")
	}
	status := edit.Status
	if status == "" {
		status = models.ContractStatusDraft
	}
	if status != models.ContractStatusDraft && status != models.ContractStatusReady {
		return models.Contract{}, apperr.New(apperr.ValidationError, "contract status can only be set to draft or ready")
	}

	payload := c.Payload
	if edit.Payload != nil {
		payload = edit.Payload
	}
	found, err := s.store.ListPlatformFormats(ctx, store.PlatformFormatFilter{IDs: []uuid.UUID{c.PlatformFormatID}})
	if err != nil {
		return models.Contract{}, translate(err, "platform format")
	}
	if len(found) == 0 {
		return models.Contract{}, apperr.New(apperr.NotFound, "platform format not found")
	}
	if errs := schema.Validate(payload, found[0].OutputSchema); len(errs) > 0 {
		return models.Contract{}, apperr.New(apperr.ValidationError, msgValidationFailed).WithDetails(errs)
	}

	updated, err := s.store.UpdateContract(ctx, store.ContractUpdate{ID: c.ID, Payload: edit.Payload, Status: status})
	if err != nil {
		return models.Contract{}, translate(err, "contract")
	}
	return updated, nil
}

func (s *Service) DeleteContract(ctx context.Context, id uuid.UUID) error {
	if _, err := s.loadContract(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteContract(ctx, id); err != nil {
		return translate(err, "contract")
	}
	return nil
}

// GetStatusProjection loads a board's items, their contracts and the formats
// they target and hands them to projection.Build.
func (s *Service) GetStatusProjection(ctx context.Context, boardID uuid.UUID, filter projection.Filter) (projection.Projection, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return projection.Projection{}, apperr.New(apperr.ValidationError, "unknown content status %q", filter.Status)
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return projection.Projection{}, apperr.New(apperr.ValidationError, "window start must be before its end")
	}
	b, err := s.loadBoard(ctx, boardID)
	if err != nil {
		return projection.Projection{}, err
	}
	items, err := s.store.ListContentItems(ctx, b.ID)
	if err != nil {
		return projection.Projection{}, translate(err, "content items")
	}
	var contracts []models.Contract
	formats := map[uuid.UUID]models.PlatformFormat{}
	if len(items) > 0 {
		ids := make([]uuid.UUID, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.ID)
		}
		contracts, err = s.store.ListContracts(ctx, store.ContractFilter{ContentItemIDs: ids})
		if err != nil {
			return projection.Projection{}, translate(err, "contracts")
		}
		formatIDs := make([]uuid.UUID, 0, len(contracts))
		for _, c := range contracts {
			formatIDs = append(formatIDs, c.PlatformFormatID)
		}
		if len(formatIDs) > 0 {
			found, err := s.store.ListPlatformFormats(ctx, store.PlatformFormatFilter{IDs: dedupe(formatIDs)})
			if err != nil {
				return projection.Projection{}, translate(err, "platform formats")
			}
			formats = formatIndex(found)
		}
	}
	return projection.Build(b.ID, items, contracts, formats, filter), nil
}
