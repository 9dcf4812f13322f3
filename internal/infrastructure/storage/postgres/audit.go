package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	appctx "ncfpos/internal/core/context"
	"ncfpos/internal/core/id"
	"ncfpos/internal/core/numerator"
	"ncfpos/internal/domain/sequence"
)

var (
	_ sequence.AuditLogger = (*AuditService)(nil)
	_ sequence.AuditTrail  = (*AuditService)(nil)
)

// AuditAction is the kind of audited operation.
type AuditAction string

const (
	AuditActionProvision AuditAction = "provision"
	AuditActionOverride  AuditAction = "override"
)

// CompressionAlgo is how Changes is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

const entityInvoiceSequence = "invoice_sequence"

// AuditRow is one row of sys_audit.
type AuditRow struct {
	ID                id.ID           `db:"id" json:"id"`
	StoreID           id.ID           `db:"store_id" json:"store_id"`
	EntityType        string          `db:"entity_type" json:"entity_type"`
	EntityID          id.ID           `db:"entity_id" json:"entity_id"`
	Action            AuditAction     `db:"action" json:"action"`
	UserID            string          `db:"user_id" json:"user_id"`
	UserEmail         string          `db:"user_email" json:"user_email,omitempty"`
	Changes           json.RawMessage `db:"changes" json:"changes,omitempty"`
	ChangesCompressed []byte          `db:"changes_compressed" json:"-"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo" json:"-"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}

// AuditService writes and reads sys_audit. Large change sets are compressed.
type AuditService struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

// NewAuditService creates an audit service.
func NewAuditService(txManager *TxManager) (*AuditService, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &AuditService{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024,
	}, nil
}

// LogCounterOverride records an administrative change of a counter. It runs
// in the caller's transaction so the entry commits together with the change.
func (s *AuditService) LogCounterOverride(ctx context.Context, before, after *numerator.Counter, maxHistorical int64) error {
	changes := Diff(
		map[string]any{"current_number": before.CurrentNumber},
		map[string]any{"current_number": after.CurrentNumber},
	)
	changes["invoice_type_id"] = after.InvoiceType
	changes["max_historical"] = maxHistorical

	return s.logChange(ctx, after, AuditActionOverride, changes)
}

// LogProvision records the creation of a counter row.
func (s *AuditService) LogProvision(ctx context.Context, c *numerator.Counter) error {
	return s.logChange(ctx, c, AuditActionProvision, map[string]any{
		"invoice_type_id": c.InvoiceType,
		"current_number":  c.CurrentNumber,
	})
}

func (s *AuditService) logChange(ctx context.Context, c *numerator.Counter, action AuditAction, changes map[string]any) error {
	raw, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}
	return s.Log(ctx, AuditRow{
		StoreID:    c.StoreID,
		EntityType: entityInvoiceSequence,
		EntityID:   c.ID,
		Action:     action,
		Changes:    raw,
	})
}

// Log inserts an entry. User fields default to the authenticated user.
func (s *AuditService) Log(ctx context.Context, entry AuditRow) error {
	if user := appctx.GetUser(ctx); user != nil {
		if entry.UserID == "" {
			entry.UserID = user.UserID
		}
		if entry.UserEmail == "" {
			entry.UserEmail = user.Email
		}
	}
	if entry.UserID == "" {
		entry.UserID = "system"
	}
	if id.IsNil(entry.ID) {
		entry.ID = id.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	entry.CompressionAlgo = CompressionNone
	if len(entry.Changes) > s.compressThreshold {
		entry.ChangesCompressed = s.encoder.EncodeAll(entry.Changes, nil)
		entry.Changes = nil
		entry.CompressionAlgo = CompressionZstd
	}

	query, args, err := Builder().Insert("sys_audit").
		Columns("id", "store_id", "entity_type", "entity_id", "action", "user_id", "user_email",
			"changes", "changes_compressed", "compression_algo", "created_at").
		Values(entry.ID, entry.StoreID, entry.EntityType, entry.EntityID, entry.Action, entry.UserID, entry.UserEmail,
			entry.Changes, entry.ChangesCompressed, entry.CompressionAlgo, entry.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build audit insert: %w", err)
	}

	_, err = s.txManager.GetQuerier(ctx).Exec(ctx, query, args...)
	return mapError(err)
}

// StoreHistory returns the newest counter audit entries of a store.
func (s *AuditService) StoreHistory(ctx context.Context, storeID id.ID, limit int) ([]sequence.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	query, args, err := Builder().Select("id", "store_id", "entity_type", "entity_id", "action", "user_id", "user_email",
		"changes", "changes_compressed", "compression_algo", "created_at").
		From("sys_audit").
		Where(squirrel.Eq{"store_id": storeID, "entity_type": entityInvoiceSequence}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build audit query: %w", err)
	}

	var rows []AuditRow
	if err := pgxscan.Select(ctx, s.txManager.GetQuerier(ctx), &rows, query, args...); err != nil {
		return nil, mapError(err)
	}

	entries := make([]sequence.AuditEntry, 0, len(rows))
	for _, row := range rows {
		changes := row.Changes
		if row.CompressionAlgo == CompressionZstd && len(row.ChangesCompressed) > 0 {
			plain, err := s.decoder.DecodeAll(row.ChangesCompressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress audit %s: %w", row.ID, err)
			}
			changes = plain
		}
		entries = append(entries, sequence.AuditEntry{
			ID:        row.ID,
			StoreID:   row.StoreID,
			CounterID: row.EntityID,
			Action:    string(row.Action),
			UserID:    row.UserID,
			UserEmail: row.UserEmail,
			Changes:   changes,
			CreatedAt: row.CreatedAt,
		})
	}
	return entries, nil
}

// Diff returns {"field": {"old": x, "new": y}} for every field that differs.
func Diff(oldState, newState map[string]any) map[string]any {
	changes := make(map[string]any)
	for key, newVal := range newState {
		oldVal, ok := oldState[key]
		if !ok || !reflect.DeepEqual(oldVal, newVal) {
			changes[key] = map[string]any{"old": oldVal, "new": newVal}
		}
	}
	for key, oldVal := range oldState {
		if _, ok := newState[key]; !ok {
			changes[key] = map[string]any{"old": oldVal, "new": nil}
		}
	}
	return changes
}
