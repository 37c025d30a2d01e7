package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/martin3r-me/platforms-brands-sub000/internal/models"
)

type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const (
	boardColumns    = `id, team_id, name, created_by, created_at`
	itemColumns     = `id, board_id, title, body, description, status, scheduled_at, published_at, created_by, created_at, updated_at`
	platformColumns = `id, key, name, created_at`
	formatColumns   = `f.id, f.platform_id, p.key, f.name, f.key, f.media_type, f.output_schema, f.rules, f.active, f.created_at, f.updated_at`
	contractColumns = `id, content_item_id, platform_format_id, payload, status, published_at, external_post_id, error_message, created_at, updated_at`
)

func marshalObject(v map[string]any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

func unmarshalObject(raw []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func scanBoard(row rowScanner) (models.Board, error) {
	var b models.Board
	if err := row.Scan(&b.ID, &b.TeamID, &b.Name, &b.CreatedBy, &b.CreatedAt); err != nil {
		return models.Board{}, err
	}
	return b, nil
}

func scanItem(row rowScanner) (models.ContentItem, error) {
	var (
		item        models.ContentItem
		status      string
		scheduledAt sql.NullTime
		publishedAt sql.NullTime
	)
	if err := row.Scan(
		&item.ID,
		&item.BoardID,
		&item.Title,
		&item.Body,
		&item.Description,
		&status,
		&scheduledAt,
		&publishedAt,
		&item.CreatedBy,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return models.ContentItem{}, err
	}
	item.Status = models.ContentStatus(status)
	if scheduledAt.Valid {
		t := scheduledAt.Time
		item.ScheduledAt = &t
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		item.PublishedAt = &t
	}
	return item, nil
}

func scanPlatform(row rowScanner) (models.Platform, error) {
	var p models.Platform
	if err := row.Scan(&p.ID, &p.Key, &p.Name, &p.CreatedAt); err != nil {
		return models.Platform{}, err
	}
	return p, nil
}

func scanFormat(row rowScanner) (models.PlatformFormat, error) {
	var (
		f          models.PlatformFormat
		schemaJSON []byte
		rulesJSON  []byte
	)
	if err := row.Scan(
		&f.ID,
		&f.PlatformID,
		&f.PlatformKey,
		&f.Name,
		&f.Key,
		&f.MediaType,
		&schemaJSON,
		&rulesJSON,
		&f.Active,
		&f.CreatedAt,
		&f.UpdatedAt,
	); err != nil {
		return models.PlatformFormat{}, err
	}
	if len(schemaJSON) > 0 {
		if err := json.Unmarshal(schemaJSON, &f.OutputSchema); err != nil {
			return models.PlatformFormat{}, fmt.Errorf("decode output schema: %w", err)
		}
	}
	rules, err := unmarshalObject(rulesJSON)
	if err != nil {
		return models.PlatformFormat{}, fmt.Errorf("decode rules: %w", err)
	}
	f.Rules = rules
	return f, nil
}

func scanContract(row rowScanner) (models.Contract, error) {
	var (
		c           models.Contract
		payload     []byte
		status      string
		publishedAt sql.NullTime
		externalID  sql.NullString
		errMsg      sql.NullString
	)
	if err := row.Scan(
		&c.ID,
		&c.ContentItemID,
		&c.PlatformFormatID,
		&payload,
		&status,
		&publishedAt,
		&externalID,
		&errMsg,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return models.Contract{}, err
	}
	decoded, err := unmarshalObject(payload)
	if err != nil {
		return models.Contract{}, fmt.Errorf("decode payload: %w", err)
	}
	c.Payload = decoded
	c.Status = models.ContractStatus(status)
	if publishedAt.Valid {
		t := publishedAt.Time
		c.PublishedAt = &t
	}
	if externalID.Valid {
		v := externalID.String
		c.ExternalPostID = &v
	}
	if errMsg.Valid {
		v := errMsg.String
		c.ErrorMessage = &v
	}
	return c, nil
}

func collectContracts(rows *sql.Rows) ([]models.Contract, error) {
	defer rows.Close()
	var contracts []models.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contract: %w", err)
		}
		contracts = append(contracts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contracts: %w", err)
	}
	return contracts, nil
}

func (s *PGStore) CreateBoard(ctx context.Context, in BoardInput) (models.Board, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	query := `
		INSERT INTO boards (id, team_id, name, created_by)
		VALUES ($1,$2,$3,$4)
		RETURNING ` + boardColumns
	b, err := scanBoard(s.db.QueryRowContext(ctx, query, in.ID, in.TeamID, in.Name, in.CreatedBy))
	if err != nil {
		return models.Board{}, fmt.Errorf("insert board: %w", err)
	}
	return b, nil
}

func (s *PGStore) GetBoard(ctx context.Context, id uuid.UUID) (models.Board, error) {
	query := `SELECT ` + boardColumns + ` FROM boards WHERE id=$1`
	b, err := scanBoard(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Board{}, ErrNotFound
		}
		return models.Board{}, fmt.Errorf("get board: %w", err)
	}
	return b, nil
}

func (s *PGStore) CreateContentItem(ctx context.Context, in ContentItemInput) (models.ContentItem, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	query := `
		INSERT INTO content_items (id, board_id, title, body, description, status, created_by)
		VALUES ($1,$2,$3,$4,$5,'draft',$6)
		RETURNING ` + itemColumns
	item, err := scanItem(s.db.QueryRowContext(ctx, query, in.ID, in.BoardID, in.Title, in.Body, in.Description, in.CreatedBy))
	if err != nil {
		return models.ContentItem{}, fmt.Errorf("insert content item: %w", err)
	}
	return item, nil
}

func (s *PGStore) GetContentItem(ctx context.Context, id uuid.UUID) (models.ContentItem, error) {
	query := `SELECT ` + itemColumns + ` FROM content_items WHERE id=$1`
	item, err := scanItem(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ContentItem{}, ErrNotFound
		}
		return models.ContentItem{}, fmt.Errorf("get content item: %w", err)
	}
	return item, nil
}

func (s *PGStore) ListContentItems(ctx context.Context, boardID uuid.UUID) ([]models.ContentItem, error) {
	query := `SELECT ` + itemColumns + ` FROM content_items WHERE board_id=$1 ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, query, boardID)
	if err != nil {
		return nil, fmt.Errorf("list content items: %w", err)
	}
	defer rows.Close()

	var items []models.ContentItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan content item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content items: %w", err)
	}
	return items, nil
}

// UpdateContentItemStatus applies a guarded transition: the row is only
// updated while its current status is one of in.From.
func (s *PGStore) UpdateContentItemStatus(ctx context.Context, in ContentItemStatusUpdate) (models.ContentItem, error) {
	query := `
		UPDATE content_items
		SET status=$2,
		    published_at=COALESCE($3, published_at),
		    scheduled_at=CASE WHEN $5 THEN NULL ELSE COALESCE($4, scheduled_at) END,
		    updated_at=NOW()
		WHERE id=$1 AND ($6::text[] IS NULL OR status = ANY($6::text[]))
		RETURNING ` + itemColumns
	item, err := scanItem(s.db.QueryRowContext(ctx, query,
		in.ID,
		string(in.Status),
		in.PublishedAt,
		in.ScheduledAt,
		in.ClearSchedule,
		pq.Array(statusStrings(in.From)),
	))
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.ContentItem{}, fmt.Errorf("update content item status: %w", err)
	}
	if _, getErr := s.GetContentItem(ctx, in.ID); getErr != nil {
		return models.ContentItem{}, getErr
	}
	return models.ContentItem{}, ErrStatusConflict
}

func (s *PGStore) UpsertPlatform(ctx context.Context, in PlatformInput) (models.Platform, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	query := `
		INSERT INTO platforms (id, key, name)
		VALUES ($1,$2,$3)
		ON CONFLICT (key) DO UPDATE SET name=EXCLUDED.name
		RETURNING ` + platformColumns
	p, err := scanPlatform(s.db.QueryRowContext(ctx, query, in.ID, strings.ToLower(in.Key), in.Name))
	if err != nil {
		return models.Platform{}, fmt.Errorf("upsert platform: %w", err)
	}
	return p, nil
}

func (s *PGStore) GetPlatform(ctx context.Context, id uuid.UUID) (models.Platform, error) {
	query := `SELECT ` + platformColumns + ` FROM platforms WHERE id=$1`
	p, err := scanPlatform(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Platform{}, ErrNotFound
		}
		return models.Platform{}, fmt.Errorf("get platform: %w", err)
	}
	return p, nil
}

func (s *PGStore) UpsertPlatformFormat(ctx context.Context, in PlatformFormatInput) (models.PlatformFormat, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	schemaJSON, err := json.Marshal(in.OutputSchema)
	if err != nil {
		return models.PlatformFormat{}, fmt.Errorf("encode output schema: %w", err)
	}
	rulesJSON, err := marshalObject(in.Rules)
	if err != nil {
		return models.PlatformFormat{}, fmt.Errorf("encode rules: %w", err)
	}
	const upsert = `
		INSERT INTO platform_formats (id, platform_id, name, key, media_type, output_schema, rules, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (platform_id, key) DO UPDATE
		SET name=EXCLUDED.name,
		    media_type=EXCLUDED.media_type,
		    output_schema=EXCLUDED.output_schema,
		    rules=EXCLUDED.rules,
		    active=EXCLUDED.active,
		    updated_at=NOW()
		RETURNING id
	`
	var id uuid.UUID
	if err := s.db.QueryRowContext(ctx, upsert, in.ID, in.PlatformID, in.Name, in.Key, in.MediaType, string(schemaJSON), rulesJSON, in.Active).Scan(&id); err != nil {
		return models.PlatformFormat{}, fmt.Errorf("upsert platform format: %w", err)
	}
	formats, err := s.ListPlatformFormats(ctx, PlatformFormatFilter{IDs: []uuid.UUID{id}})
	if err != nil {
		return models.PlatformFormat{}, err
	}
	if len(formats) == 0 {
		return models.PlatformFormat{}, ErrNotFound
	}
	return formats[0], nil
}

func (s *PGStore) ListPlatformFormats(ctx context.Context, filter PlatformFormatFilter) ([]models.PlatformFormat, error) {
	query := `
		SELECT ` + formatColumns + `
		FROM platform_formats f
		JOIN platforms p ON p.id = f.platform_id
		WHERE 1=1
	`
	args := []interface{}{}
	argPos := 1
	if filter.IDs != nil {
		query += fmt.Sprintf(" AND f.id = ANY($%d::uuid[])", argPos)
		args = append(args, pq.Array(uuidStrings(filter.IDs)))
		argPos++
	}
	if filter.PlatformKey != "" {
		query += fmt.Sprintf(" AND p.key = $%d", argPos)
		args = append(args, strings.ToLower(filter.PlatformKey))
		argPos++
	}
	if filter.ActiveOnly {
		query += " AND f.active"
	}
	query += " ORDER BY p.key, f.key"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list platform formats: %w", err)
	}
	defer rows.Close()

	var formats []models.PlatformFormat
	for rows.Next() {
		f, err := scanFormat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan platform format: %w", err)
		}
		formats = append(formats, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate platform formats: %w", err)
	}
	return formats, nil
}

func (s *PGStore) ListContracts(ctx context.Context, filter ContractFilter) ([]models.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE 1=1`
	args := []interface{}{}
	argPos := 1
	if filter.ContentItemIDs != nil {
		query += fmt.Sprintf(" AND content_item_id = ANY($%d::uuid[])", argPos)
		args = append(args, pq.Array(uuidStrings(filter.ContentItemIDs)))
		argPos++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	return collectContracts(rows)
}

func (s *PGStore) GetContract(ctx context.Context, id uuid.UUID) (models.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE id=$1`
	c, err := scanContract(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Contract{}, ErrNotFound
		}
		return models.Contract{}, fmt.Errorf("get contract: %w", err)
	}
	return c, nil
}

// contractWriteMiss explains why a guarded contract write matched no row.
func (s *PGStore) contractWriteMiss(ctx context.Context, id uuid.UUID) error {
	c, err := s.GetContract(ctx, id)
	if err != nil {
		return err
	}
	if c.Status == models.ContractStatusPublished {
		return ErrContractImmutable
	}
	return ErrStatusConflict
}

func (s *PGStore) UpdateContract(ctx context.Context, in ContractUpdate) (models.Contract, error) {
	var payload interface{}
	if in.Payload != nil {
		raw, err := marshalObject(in.Payload)
		if err != nil {
			return models.Contract{}, fmt.Errorf("encode payload: %w", err)
		}
		payload = raw
	}
	query := `
		UPDATE contracts
		SET payload=COALESCE($2::jsonb, payload),
		    status=$3,
		    error_message=NULL,
		    updated_at=NOW()
		WHERE id=$1 AND status <> 'published'
		RETURNING ` + contractColumns
	c, err := scanContract(s.db.QueryRowContext(ctx, query, in.ID, payload, string(in.Status)))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Contract{}, fmt.Errorf("update contract: %w", err)
	}
	return models.Contract{}, s.contractWriteMiss(ctx, in.ID)
}

func (s *PGStore) RecordPublishOutcome(ctx context.Context, in PublishOutcome) (models.Contract, error) {
	var (
		query string
		args  []interface{}
	)
	if in.Success {
		query = `
			UPDATE contracts
			SET status='published', published_at=$2, external_post_id=$3, error_message=NULL, updated_at=NOW()
			WHERE id=$1 AND status <> 'published'
			RETURNING ` + contractColumns
		args = []interface{}{in.ContractID, in.At, in.ExternalPostID}
	} else {
		query = `
			UPDATE contracts
			SET status='failed', error_message=$2, updated_at=NOW()
			WHERE id=$1 AND status <> 'published'
			RETURNING ` + contractColumns
		args = []interface{}{in.ContractID, in.Error}
	}
	c, err := scanContract(s.db.QueryRowContext(ctx, query, args...))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Contract{}, fmt.Errorf("record publish outcome: %w", err)
	}
	return models.Contract{}, s.contractWriteMiss(ctx, in.ContractID)
}

func (s *PGStore) DeleteContract(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM contracts WHERE id=$1 AND status <> 'published'`, id)
	if err != nil {
		return fmt.Errorf("delete contract: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete contract: %w", err)
	}
	if n == 0 {
		return s.contractWriteMiss(ctx, id)
	}
	return nil
}

func (s *PGStore) WithTx(ctx context.Context, fn func(tx ContractTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&pgContractTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type pgContractTx struct {
	tx *sql.Tx
}

func (t *pgContractTx) UpsertContract(ctx context.Context, in ContractUpsert) (models.Contract, error) {
	const lockExisting = `
		SELECT status FROM contracts
		WHERE content_item_id=$1 AND platform_format_id=$2
		FOR UPDATE
	`
	var status string
	err := t.tx.QueryRowContext(ctx, lockExisting, in.ContentItemID, in.PlatformFormatID).Scan(&status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return models.Contract{}, fmt.Errorf("lock contract: %w", err)
	case models.ContractStatus(status) == models.ContractStatusPublished:
		return models.Contract{}, ErrContractImmutable
	}

	payload, err := marshalObject(in.Payload)
	if err != nil {
		return models.Contract{}, fmt.Errorf("encode payload: %w", err)
	}
	query := `
		INSERT INTO contracts (id, content_item_id, platform_format_id, payload, status)
		VALUES ($1,$2,$3,$4,'ready')
		ON CONFLICT (content_item_id, platform_format_id) DO UPDATE
		SET payload=EXCLUDED.payload, status='ready', error_message=NULL, updated_at=NOW()
		WHERE contracts.status <> 'published'
		RETURNING ` + contractColumns
	c, err := scanContract(t.tx.QueryRowContext(ctx, query, uuid.New(), in.ContentItemID, in.PlatformFormatID, payload))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Contract{}, ErrContractImmutable
		}
		if isUniqueViolation(err) {
			return models.Contract{}, fmt.Errorf("upsert contract: %w", ErrStatusConflict)
		}
		return models.Contract{}, fmt.Errorf("upsert contract: %w", err)
	}
	return c, nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}
