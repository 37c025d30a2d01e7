package service

import "github.com/martin3r-me/platforms-brands-sub000/internal/models"

type GenerationDecision int

const (
	GenerationCommit GenerationDecision = iota
	GenerationRollback
)

// DecideGeneration applies the all-or-nothing rule: a batch with no valid
// format is discarded, any success commits the successes.
func DecideGeneration(succeeded, failed int) GenerationDecision {
	if succeeded == 0 {
		return GenerationRollback
	}
	return GenerationCommit
}

type PublishDecision struct {
	Status           models.ContentStatus
	StampPublishedAt bool
}

// DecidePublish derives the item status once every dispatch has finished.
// Any failure fails the item; published_at is stamped whenever at least one
// contract went out.
func DecidePublish(published, failed int) PublishDecision {
	if failed == 0 {
		return PublishDecision{Status: models.ContentStatusPublished, StampPublishedAt: true}
	}
	return PublishDecision{Status: models.ContentStatusFailed, StampPublishedAt: published > 0}
}
