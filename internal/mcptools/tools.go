// Package mcptools exposes the contract pipeline as MCP tools so agents can
// generate, publish and inspect content without the HTTP surface.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/martin3r-me/platforms-brands-sub000/internal/apperr"
	"github.com/martin3r-me/platforms-brands-sub000/internal/auth"
	"github.com/martin3r-me/platforms-brands-sub000/internal/models"
	"github.com/martin3r-me/platforms-brands-sub000/internal/projection"
	"github.com/martin3r-me/platforms-brands-sub000/internal/service"
)

var Version = "dev"

// Tools runs every call as one fixed principal, resolved when the process
// starts.
type Tools struct {
	svc       *service.Service
	principal *auth.Principal
	logger    *zap.Logger
}

func New(svc *service.Service, principal *auth.Principal, logger *zap.Logger) *Tools {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tools{svc: svc, principal: principal, logger: logger}
}

// NewServer builds the MCP server with every tool registered.
func NewServer(t *Tools) *server.MCPServer {
	s := server.NewMCPServer(
		"brands",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	s.AddTool(generateContractsTool(), t.GenerateContracts)
	s.AddTool(publishContentItemTool(), t.PublishContentItem)
	s.AddTool(statusProjectionTool(), t.GetStatusProjection)
	s.AddTool(listContractsTool(), t.ListContracts)
	s.AddTool(updateContractTool(), t.UpdateContract)
	return s
}

func generateContractsTool() mcp.Tool {
	return mcp.NewTool("generate_contracts",
		mcp.WithDescription("Validate one draft payload per target platform format and store the valid ones as ready contracts. Fails as a whole only when every format fails."),
		mcp.WithString("contentItemId", mcp.Required(), mcp.Description("Content item UUID")),
		mcp.WithArray("targetFormatIds", mcp.Required(), mcp.Description("Platform format UUIDs"), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithObject("draftPayloads", mcp.Required(), mcp.Description("Map of platform format UUID to payload object")),
	)
}

func publishContentItemTool() mcp.Tool {
	return mcp.NewTool("publish_content_item",
		mcp.WithDescription("Publish every ready contract of a content item and report per contract results."),
		mcp.WithString("contentItemId", mcp.Required(), mcp.Description("Content item UUID")),
	)
}

func statusProjectionTool() mcp.Tool {
	return mcp.NewTool("get_status_projection",
		mcp.WithDescription("Board view: scheduled and unscheduled items with contract summaries and status counts."),
		mcp.WithString("boardId", mcp.Required(), mcp.Description("Board UUID")),
		mcp.WithString("from", mcp.Description("Window start, RFC3339, inclusive")),
		mcp.WithString("to", mcp.Description("Window end, RFC3339, exclusive")),
		mcp.WithString("status", mcp.Description("Content item status filter")),
		mcp.WithString("platform", mcp.Description("Platform key filter")),
	)
}

func listContractsTool() mcp.Tool {
	return mcp.NewTool("list_contracts",
		mcp.WithDescription("List the contracts of a content item."),
		mcp.WithString("contentItemId", mcp.Required(), mcp.Description("Content item UUID")),
		mcp.WithString("status", mcp.Description("draft, ready, published or failed")),
	)
}

func updateContractTool() mcp.Tool {
	return mcp.NewTool("update_contract",
		mcp.WithDescription("Edit a contract payload or move it between draft and ready. Published contracts cannot change."),
		mcp.WithString("contractId", mcp.Required(), mcp.Description("Contract UUID")),
		mcp.WithObject("payload", mcp.Description("Replacement payload; omitted keeps the current one")),
		mcp.WithString("status", mcp.Description("draft (default) or ready")),
	)
}

type generateArgs struct {
	ContentItemID   uuid.UUID                    `json:"contentItemId"`
	TargetFormatIDs []uuid.UUID                  `json:"targetFormatIds"`
	DraftPayloads   map[uuid.UUID]map[string]any `json:"draftPayloads"`
}

func (t *Tools) GenerateContracts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args generateArgs
	if err := bind(req, &args); err != nil {
		return badArguments(err), nil
	}
	res, err := t.svc.GenerateContracts(t.scope(ctx), service.GenerateRequest{
		ContentItemID:   args.ContentItemID,
		TargetFormatIDs: args.TargetFormatIDs,
		DraftPayloads:   args.DraftPayloads,
	})
	return t.result(req, res, err)
}

type itemArgs struct {
	ContentItemID uuid.UUID `json:"contentItemId"`
}

func (t *Tools) PublishContentItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args itemArgs
	if err := bind(req, &args); err != nil {
		return badArguments(err), nil
	}
	res, err := t.svc.PublishContentItem(t.scope(ctx), args.ContentItemID)
	return t.result(req, res, err)
}

type projectionArgs struct {
	BoardID  uuid.UUID  `json:"boardId"`
	From     *time.Time `json:"from"`
	To       *time.Time `json:"to"`
	Status   string     `json:"status"`
	Platform string     `json:"platform"`
}

func (t *Tools) GetStatusProjection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args projectionArgs
	if err := bind(req, &args); err != nil {
		return badArguments(err), nil
	}
	res, err := t.svc.GetStatusProjection(t.scope(ctx), args.BoardID, projection.Filter{
		From:     args.From,
		To:       args.To,
		Status:   models.ContentStatus(args.Status),
		Platform: args.Platform,
	})
	return t.result(req, res, err)
}

type listArgs struct {
	ContentItemID uuid.UUID `json:"contentItemId"`
	Status        string    `json:"status"`
}

func (t *Tools) ListContracts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args listArgs
	if err := bind(req, &args); err != nil {
		return badArguments(err), nil
	}
	res, err := t.svc.ListContracts(t.scope(ctx), args.ContentItemID, models.ContractStatus(args.Status))
	if res == nil {
		res = []models.Contract{}
	}
	return t.result(req, res, err)
}

type updateArgs struct {
	ContractID uuid.UUID      `json:"contractId"`
	Payload    map[string]any `json:"payload"`
	Status     string         `json:"status"`
}

func (t *Tools) UpdateContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args updateArgs
	if err := bind(req, &args); err != nil {
		return badArguments(err), nil
	}
	res, err := t.svc.UpdateContract(t.scope(ctx), args.ContractID, service.ContractEdit{
		Payload: args.Payload,
		Status:  models.ContractStatus(args.Status),
	})
	return t.result(req, res, err)
}

func (t *Tools) scope(ctx context.Context) context.Context {
	return auth.WithPrincipal(ctx, t.principal)
}

// bind decodes the tool arguments through JSON so ids and timestamps get
// their usual text forms.
func bind(req mcp.CallToolRequest, v interface{}) error {
	raw, err := json.Marshal(req.GetArguments())
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func badArguments(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: invalid arguments: %v", apperr.ValidationError, err))
}

type toolError struct {
	Error   string      `json:"error"`
	Kind    apperr.Kind `json:"kind"`
	Details interface{} `json:"details,omitempty"`
}

// result renders a service outcome. Service failures become tool errors
// whose text is the JSON error body, so callers can read the kind.
func (t *Tools) result(req mcp.CallToolRequest, v interface{}, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		body := toolError{Error: err.Error(), Kind: apperr.KindOf(err)}
		var ae *apperr.Error
		if errors.As(err, &ae) {
			body.Details = ae.Details
		}
		if body.Kind == apperr.ExecutionError {
			t.logger.Error("tool call failed", zap.String("tool", req.Params.Name), zap.Error(err))
		}
		raw, mErr := json.Marshal(body)
		if mErr != nil {
			return nil, mErr
		}
		return mcp.NewToolResultError(string(raw)), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", req.Params.Name, err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
