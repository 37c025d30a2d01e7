package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/martin3r-me/platforms-brands-sub000/internal/apperr"
	"github.com/martin3r-me/platforms-brands-sub000/internal/events"
	"github.com/martin3r-me/platforms-brands-sub000/internal/models"
	"github.com/martin3r-me/platforms-brands-sub000/internal/schema"
	"github.com/martin3r-me/platforms-brands-sub000/internal/store"
)

const (
	msgMissingPayload   = "missing payload"
	msgValidationFailed = "payload failed schema validation"
	msgPublished        = "contract is published and immutable"
)

type GenerateRequest struct {
	ContentItemID   uuid.UUID                    `json:"contentItemId"`
	TargetFormatIDs []uuid.UUID                  `json:"targetFormatIds"`
	DraftPayloads   map[uuid.UUID]map[string]any `json:"draftPayloads"`
}

// FormatError reports why one target format produced no contract.
type FormatError struct {
	PlatformFormatID uuid.UUID           `json:"platformFormatId"`
	Platform         string              `json:"platform,omitempty"`
	Format           string              `json:"format,omitempty"`
	Message          string              `json:"message"`
	FieldErrors      []schema.FieldError `json:"fieldErrors,omitempty"`
}

type GenerateResult struct {
	Contracts []models.Contract `json:"createdContracts"`
	Errors    []FormatError     `json:"perFormatErrors"`
}

var errNothingValid = errors.New("no target format produced a valid contract")

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// GenerateContracts validates one draft payload per target format and
// upserts the valid ones in a single transaction. The content item's own
// status is never touched.
func (s *Service) GenerateContracts(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	targets := dedupe(req.TargetFormatIDs)
	if len(targets) == 0 {
		return GenerateResult{}, apperr.New(apperr.ValidationError, "at least one target format is required")
	}
	item, err := s.loadItem(ctx, req.ContentItemID)
	if err != nil {
		return GenerateResult{}, err
	}

	found, err := s.store.ListPlatformFormats(ctx, store.PlatformFormatFilter{IDs: targets})
	if err != nil {
		return GenerateResult{}, translate(err, "platform formats")
	}
	formats := formatIndex(found)
	var missing, inactive []uuid.UUID
	for _, id := range targets {
		f, ok := formats[id]
		switch {
		case !ok:
			missing = append(missing, id)
		case !f.Active:
			inactive = append(inactive, id)
		}
	}
	if len(missing) > 0 {
		return GenerateResult{}, apperr.New(apperr.NotFound, "%d platform format(s) not found", len(missing)).
			WithDetails(map[string]any{"missingFormatIds": missing})
	}
	if len(inactive) > 0 {
		return GenerateResult{}, apperr.New(apperr.ValidationError, "%d platform format(s) are inactive", len(inactive)).
			WithDetails(map[string]any{"inactiveFormatIds": inactive})
	}

	result := GenerateResult{Contracts: []models.Contract{}, Errors: []FormatError{}}
	var valid []store.ContractUpsert
	for _, id := range targets {
		f := formats[id]
		payload, ok := req.DraftPayloads[id]
		if !ok {
			result.Errors = append(result.Errors, formatError(f, msgMissingPayload, nil))
			continue
		}
		if errs := schema.Validate(payload, f.OutputSchema); len(errs) > 0 {
			result.Errors = append(result.Errors, formatError(f, msgValidationFailed, errs))
			continue
		}
		valid = append(valid, store.ContractUpsert{
			ContentItemID:    item.ID,
			PlatformFormatID: id,
			Payload:          payload,
		})
	}

	if len(valid) > 0 {
		err = s.store.WithTx(ctx, func(tx store.ContractTx) error {
			for _, in := range valid {
				c, err := tx.UpsertContract(ctx, in)
				if errors.Is(err, store.ErrContractImmutable) {
					result.Errors = append(result.Errors, formatError(formats[in.PlatformFormatID], msgPublished, nil))
					continue
				}
				if err != nil {
					return err
				}
				result.Contracts = append(result.Contracts, c)
			}
			if DecideGeneration(len(result.Contracts), len(result.Errors)) == GenerationRollback {
				return errNothingValid
			}
			return nil
		})
		if err != nil && !errors.Is(err, errNothingValid) {
			s.logger.Error("contract generation failed", zap.String("content_item_id", item.ID.String()), zap.Error(err))
			return GenerateResult{}, apperr.Wrap(apperr.ExecutionError, err, "persist contracts")
		}
	}

	if DecideGeneration(len(result.Contracts), len(result.Errors)) == GenerationRollback {
		return GenerateResult{}, apperr.New(apperr.ValidationError, "all %d target format(s) failed validation", len(targets)).
			WithDetails(result.Errors)
	}

	s.logger.Info("contracts generated",
		zap.String("content_item_id", item.ID.String()),
		zap.Int("created", len(result.Contracts)),
		zap.Int("errors", len(result.Errors)))
	s.notify(ctx, events.Event{
		ID:            uuid.New(),
		Type:          events.TypeContractsGenerated,
		ContentItemID: item.ID,
		Data: map[string]any{
			"created": len(result.Contracts),
			"errors":  len(result.Errors),
		},
		At: s.now(),
	})
	return result, nil
}

func formatError(f models.PlatformFormat, msg string, fieldErrs []schema.FieldError) FormatError {
	return FormatError{
		PlatformFormatID: f.ID,
		Platform:         f.PlatformKey,
		Format:           f.Name,
		Message:          msg,
		FieldErrors:      fieldErrs,
	}
}
