package mcptools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martin3r-me/platforms-brands-sub000/internal/apperr"
	"github.com/martin3r-me/platforms-brands-sub000/internal/auth"
	"github.com/martin3r-me/platforms-brands-sub000/internal/models"
	"github.com/martin3r-me/platforms-brands-sub000/internal/platforms"
	"github.com/martin3r-me/platforms-brands-sub000/internal/schema"
	"github.com/martin3r-me/platforms-brands-sub000/internal/service"
	"github.com/martin3r-me/platforms-brands-sub000/internal/store"
)

type env struct {
	tools  *Tools
	item   models.ContentItem
	board  models.Board
	format models.PlatformFormat
}

func newEnv(t *testing.T) env {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	board, err := st.CreateBoard(ctx, store.BoardInput{ID: uuid.New(), TeamID: "team-a", Name: "Launch"})
	require.NoError(t, err)
	item, err := st.CreateContentItem(ctx, store.ContentItemInput{ID: uuid.New(), BoardID: board.ID, Title: "C1"})
	require.NoError(t, err)
	p, err := st.UpsertPlatform(ctx, store.PlatformInput{ID: uuid.New(), Key: "facebook", Name: "Facebook"})
	require.NoError(t, err)
	f, err := st.UpsertPlatformFormat(ctx, store.PlatformFormatInput{
		ID:         uuid.New(),
		PlatformID: p.ID,
		Name:       "Facebook Post",
		Key:        "post",
		OutputSchema: schema.Schema{
			{Name: "text", Spec: schema.FieldSpec{Required: true, MaxLength: schema.Int(10)}},
		},
		Active: true,
	})
	require.NoError(t, err)

	registry := platforms.NewRegistry()
	registry.Register("facebook", platforms.DryRun{})
	principal := &auth.Principal{Subject: "agent", Teams: []string{"team-a"}}
	return env{
		tools:  New(service.New(st, registry), principal, nil),
		item:   item,
		board:  board,
		format: f,
	}
}

func call(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	}
	t.Fatalf("unexpected content %T", res.Content[0])
	return ""
}

func TestGeneratePublishAndList(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.tools.GenerateContracts(ctx, call("generate_contracts", map[string]any{
		"contentItemId":   e.item.ID.String(),
		"targetFormatIds": []any{e.format.ID.String()},
		"draftPayloads": map[string]any{
			e.format.ID.String(): map[string]any{"text": "short"},
		},
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	var generated service.GenerateResult
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &generated))
	require.Len(t, generated.Contracts, 1)

	res, err = e.tools.PublishContentItem(ctx, call("publish_content_item", map[string]any{
		"contentItemId": e.item.ID.String(),
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	var published service.PublishResult
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &published))
	assert.Equal(t, models.ContentStatusPublished, published.FinalStatus)
	assert.Equal(t, "dryrun-facebook-"+generated.Contracts[0].ID.String(), published.Results[0].ExternalPostID)

	res, err = e.tools.ListContracts(ctx, call("list_contracts", map[string]any{
		"contentItemId": e.item.ID.String(),
		"status":        "published",
	}))
	require.NoError(t, err)
	var contracts []models.Contract
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &contracts))
	assert.Len(t, contracts, 1)

	res, err = e.tools.GetStatusProjection(ctx, call("get_status_projection", map[string]any{
		"boardId": e.board.ID.String(),
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	assert.Contains(t, text(t, res), `"published":1`)
}

func TestToolErrorsCarryKind(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.tools.PublishContentItem(ctx, call("publish_content_item", map[string]any{
		"contentItemId": e.item.ID.String(),
	}))
	require.NoError(t, err)
	require.True(t, res.IsError)
	var body toolError
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &body))
	assert.Equal(t, apperr.NoReadyContracts, body.Kind)

	res, err = e.tools.UpdateContract(ctx, call("update_contract", map[string]any{
		"contractId": uuid.NewString(),
	}))
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &body))
	assert.Equal(t, apperr.NotFound, body.Kind)

	res, err = e.tools.PublishContentItem(ctx, call("publish_content_item", map[string]any{
		"contentItemId": "nope",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), string(apperr.ValidationError))
}

func TestToolsRunAsConfiguredPrincipal(t *testing.T) {
	e := newEnv(t)
	e.tools.principal = &auth.Principal{Subject: "agent", Teams: []string{"team-b"}}

	res, err := e.tools.ListContracts(context.Background(), call("list_contracts", map[string]any{
		"contentItemId": e.item.ID.String(),
	}))
	require.NoError(t, err)
	require.True(t, res.IsError)
	var body toolError
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &body))
	assert.Equal(t, apperr.AccessDenied, body.Kind)
}

func TestNewServerRegistersTools(t *testing.T) {
	e := newEnv(t)
	assert.NotNil(t, NewServer(e.tools))
}
