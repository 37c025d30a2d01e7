package projection

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martin3r-me/platforms-brands-sub000/internal/models"
)

func at(day int) *time.Time {
	t := time.Date(2026, 3, day, 9, 0, 0, 0, time.UTC)
	return &t
}

type fixture struct {
	items     []models.ContentItem
	contracts []models.Contract
	formats   map[uuid.UUID]models.PlatformFormat
}

func newFixture() fixture {
	fb := models.PlatformFormat{ID: uuid.New(), PlatformKey: "facebook", Name: "Facebook Post"}
	ig := models.PlatformFormat{ID: uuid.New(), PlatformKey: "instagram", Name: "Instagram Feed Post"}
	errText := "token expired"

	items := []models.ContentItem{
		{ID: uuid.New(), Title: "late", Status: models.ContentStatusScheduled, ScheduledAt: at(20)},
		{ID: uuid.New(), Title: "early", Status: models.ContentStatusFailed, ScheduledAt: at(5)},
		{ID: uuid.New(), Title: "outside", Status: models.ContentStatusPublished, ScheduledAt: at(28)},
		{ID: uuid.New(), Title: "idea", Status: models.ContentStatusDraft},
	}
	contracts := []models.Contract{
		{ID: uuid.New(), ContentItemID: items[0].ID, PlatformFormatID: fb.ID, Status: models.ContractStatusReady},
		{ID: uuid.New(), ContentItemID: items[1].ID, PlatformFormatID: ig.ID, Status: models.ContractStatusFailed, ErrorMessage: &errText},
		{ID: uuid.New(), ContentItemID: items[1].ID, PlatformFormatID: fb.ID, Status: models.ContractStatusPublished, PublishedAt: at(5)},
	}
	return fixture{
		items:     items,
		contracts: contracts,
		formats:   map[uuid.UUID]models.PlatformFormat{fb.ID: fb, ig.ID: ig},
	}
}

func titles(views []ItemView) []string {
	out := make([]string, 0, len(views))
	for _, v := range views {
		out = append(out, v.Title)
	}
	return out
}

func TestBuildPartitionsByWindow(t *testing.T) {
	fx := newFixture()
	p := Build(uuid.New(), fx.items, fx.contracts, fx.formats, Filter{From: at(1), To: at(25)})

	assert.Equal(t, []string{"early", "late"}, titles(p.Scheduled))
	assert.Equal(t, []string{"idea"}, titles(p.Unscheduled))
}

func TestBuildWindowBounds(t *testing.T) {
	fx := newFixture()
	p := Build(uuid.New(), fx.items, fx.contracts, fx.formats, Filter{From: at(5), To: at(20)})
	assert.Equal(t, []string{"early"}, titles(p.Scheduled))
}

func TestBuildCountsIgnoreFilters(t *testing.T) {
	fx := newFixture()
	p := Build(uuid.New(), fx.items, fx.contracts, fx.formats, Filter{Status: models.ContentStatusDraft, Platform: "instagram"})

	assert.Empty(t, p.Scheduled)
	assert.Empty(t, p.Unscheduled)
	assert.Equal(t, map[models.ContentStatus]int{
		models.ContentStatusDraft:      1,
		models.ContentStatusScheduled:  1,
		models.ContentStatusPublishing: 0,
		models.ContentStatusPublished:  1,
		models.ContentStatusFailed:     1,
	}, p.StatusCounts)
}

func TestBuildSummariesAndPlatformFilter(t *testing.T) {
	fx := newFixture()
	p := Build(uuid.New(), fx.items, fx.contracts, fx.formats, Filter{Platform: "Instagram"})

	require.Len(t, p.Scheduled, 1)
	view := p.Scheduled[0]
	assert.Equal(t, "early", view.Title)
	assert.Equal(t, []string{"facebook", "instagram"}, view.Platforms)
	require.Len(t, view.Contracts, 2)
	assert.Equal(t, "Instagram Feed Post", view.Contracts[0].Format)
	assert.Equal(t, "token expired", view.Contracts[0].Error)
	assert.Equal(t, models.ContractStatusPublished, view.Contracts[1].Status)
	assert.NotNil(t, view.Contracts[1].PublishedAt)
}

func TestBuildEmptyBoard(t *testing.T) {
	p := Build(uuid.New(), nil, nil, nil, Filter{})
	assert.NotNil(t, p.Scheduled)
	assert.NotNil(t, p.Unscheduled)
	assert.Len(t, p.StatusCounts, 5)
}
