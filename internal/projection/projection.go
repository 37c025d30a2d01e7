// Package projection builds the read-only board view: items partitioned by
// schedule window, per item contract summaries and board wide status counts.
package projection

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/martin3r-me/platforms-brands-sub000/internal/models"
)

// Filter narrows the partitions. From is inclusive, To is exclusive; either
// may be nil for an open bound. Counts are never filtered.
type Filter struct {
	From     *time.Time
	To       *time.Time
	Status   models.ContentStatus
	Platform string
}

type ContractSummary struct {
	ContractID  uuid.UUID             `json:"contractId"`
	Platform    string                `json:"platform"`
	Format      string                `json:"format"`
	Status      models.ContractStatus `json:"status"`
	PublishedAt *time.Time            `json:"publishedAt,omitempty"`
	Error       string                `json:"error,omitempty"`
}

type ItemView struct {
	ID          uuid.UUID            `json:"id"`
	Title       string               `json:"title"`
	Status      models.ContentStatus `json:"status"`
	ScheduledAt *time.Time           `json:"scheduledAt,omitempty"`
	PublishedAt *time.Time           `json:"publishedAt,omitempty"`
	Contracts   []ContractSummary    `json:"contracts"`
	Platforms   []string             `json:"platforms"`
}

type Projection struct {
	BoardID      uuid.UUID                    `json:"boardId"`
	Scheduled    []ItemView                   `json:"scheduledItems"`
	Unscheduled  []ItemView                   `json:"unscheduledItems"`
	StatusCounts map[models.ContentStatus]int `json:"boardStatusCounts"`
}

// Build is pure: it reads the loaded items, their contracts and the formats
// those contracts target, and writes nothing.
func Build(boardID uuid.UUID, items []models.ContentItem, contracts []models.Contract, formats map[uuid.UUID]models.PlatformFormat, filter Filter) Projection {
	out := Projection{
		BoardID:      boardID,
		Scheduled:    []ItemView{},
		Unscheduled:  []ItemView{},
		StatusCounts: make(map[models.ContentStatus]int, len(models.ContentStatuses)),
	}
	for _, s := range models.ContentStatuses {
		out.StatusCounts[s] = 0
	}

	byItem := make(map[uuid.UUID][]models.Contract, len(items))
	for _, c := range contracts {
		byItem[c.ContentItemID] = append(byItem[c.ContentItemID], c)
	}
	platform := strings.ToLower(strings.TrimSpace(filter.Platform))

	for _, item := range items {
		out.StatusCounts[item.Status]++

		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		view := summarize(item, byItem[item.ID], formats)
		if platform != "" && !contains(view.Platforms, platform) {
			continue
		}
		if item.ScheduledAt == nil {
			out.Unscheduled = append(out.Unscheduled, view)
			continue
		}
		if inWindow(*item.ScheduledAt, filter.From, filter.To) {
			out.Scheduled = append(out.Scheduled, view)
		}
	}

	sort.SliceStable(out.Scheduled, func(i, j int) bool {
		return out.Scheduled[i].ScheduledAt.Before(*out.Scheduled[j].ScheduledAt)
	})
	return out
}

func summarize(item models.ContentItem, contracts []models.Contract, formats map[uuid.UUID]models.PlatformFormat) ItemView {
	view := ItemView{
		ID:          item.ID,
		Title:       item.Title,
		Status:      item.Status,
		ScheduledAt: item.ScheduledAt,
		PublishedAt: item.PublishedAt,
		Contracts:   make([]ContractSummary, 0, len(contracts)),
		Platforms:   []string{},
	}
	seen := map[string]bool{}
	for _, c := range contracts {
		f := formats[c.PlatformFormatID]
		summary := ContractSummary{
			ContractID:  c.ID,
			Platform:    f.PlatformKey,
			Format:      f.Name,
			Status:      c.Status,
			PublishedAt: c.PublishedAt,
		}
		if c.ErrorMessage != nil {
			summary.Error = *c.ErrorMessage
		}
		view.Contracts = append(view.Contracts, summary)
		if f.PlatformKey != "" && !seen[f.PlatformKey] {
			seen[f.PlatformKey] = true
			view.Platforms = append(view.Platforms, f.PlatformKey)
		}
	}
	sort.Strings(view.Platforms)
	return view
}

func inWindow(at time.Time, from, to *time.Time) bool {
	if from != nil && at.Before(*from) {
		return false
	}
	if to != nil && !at.Before(*to) {
		return false
	}
	return true
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
