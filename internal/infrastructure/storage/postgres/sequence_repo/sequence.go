// Package sequence_repo stores invoice counters in PostgreSQL.
package sequence_repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"ncfpos/internal/core/apperror"
	"ncfpos/internal/core/id"
	"ncfpos/internal/core/numerator"
	"ncfpos/internal/domain/sequence"
	"ncfpos/internal/infrastructure/storage/postgres"
)

const tableName = "invoice_sequences"

var (
	_ sequence.Repository = (*Repo)(nil)

	counterColumns = postgres.ExtractDBColumns[numerator.Counter]()
)

// Repo implements sequence.Repository.
type Repo struct {
	txm *postgres.TxManager
}

// NewRepo creates a counter repository.
func NewRepo(txm *postgres.TxManager) *Repo {
	return &Repo{txm: txm}
}

func byKey(key numerator.Key) squirrel.Eq {
	return squirrel.Eq{"store_id": key.StoreID, "invoice_type_id": key.InvoiceType}
}

func (r *Repo) selectByKey(key numerator.Key) squirrel.SelectBuilder {
	return postgres.Builder().
		Select(counterColumns...).
		From(tableName).
		Where(byKey(key))
}

func (r *Repo) getOne(ctx context.Context, key numerator.Key, q squirrel.Sqlizer) (*numerator.Counter, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var c numerator.Counter
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &c, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(tableName, key.String())
		}
		return nil, postgres.MapError(err)
	}
	return &c, nil
}

// Get reads a counter without locking it.
func (r *Repo) Get(ctx context.Context, key numerator.Key) (*numerator.Counter, error) {
	return r.getOne(ctx, key, r.selectByKey(key))
}

// GetForUpdate locks the row until the surrounding transaction ends.
func (r *Repo) GetForUpdate(ctx context.Context, key numerator.Key) (*numerator.Counter, error) {
	if !r.txm.InTransaction(ctx) {
		return nil, fmt.Errorf("GetForUpdate %s: no transaction in context", key)
	}
	return r.getOne(ctx, key, r.selectByKey(key).Suffix("FOR UPDATE"))
}

// Increment is a single UPDATE ... RETURNING. Concurrent callers queue on the
// row lock and each one reads the value it wrote. Rows at MaxNumber do not
// match the guard; a follow-up read tells exhausted from missing.
func (r *Repo) Increment(ctx context.Context, key numerator.Key) (*numerator.Counter, error) {
	c, err := r.getOne(ctx, key, incrementQuery(key))
	if !apperror.IsNotFound(err) {
		return c, err
	}
	existing, getErr := r.Get(ctx, key)
	if getErr != nil {
		return nil, getErr
	}
	if existing.Exhausted() {
		return nil, apperror.NewSequenceExhausted(key.String(), numerator.MaxNumber)
	}
	// Moved below the guard in between; the caller may retry.
	return nil, apperror.NewConcurrentModification(tableName, key.String())
}

func incrementQuery(key numerator.Key) squirrel.UpdateBuilder {
	return postgres.Builder().
		Update(tableName).
		Set("current_number", squirrel.Expr("current_number + 1")).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(byKey(key)).
		Where(squirrel.Lt{"current_number": numerator.MaxNumber}).
		Suffix("RETURNING " + joinColumns())
}

// Set overwrites current_number.
func (r *Repo) Set(ctx context.Context, key numerator.Key, value int64) (*numerator.Counter, error) {
	return r.getOne(ctx, key, setQuery(key, value))
}

func setQuery(key numerator.Key, value int64) squirrel.UpdateBuilder {
	return postgres.Builder().
		Update(tableName).
		Set("current_number", value).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(byKey(key)).
		Suffix("RETURNING " + joinColumns())
}

// Provision inserts the row unless one already exists for the key.
func (r *Repo) Provision(ctx context.Context, key numerator.Key, initial int64) (bool, error) {
	query, args, err := provisionQuery(key, initial, time.Now().UTC()).ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, query, args...)
	if err != nil {
		return false, postgres.MapError(err)
	}
	return tag.RowsAffected() == 1, nil
}

func provisionQuery(key numerator.Key, initial int64, now time.Time) squirrel.InsertBuilder {
	row := numerator.Counter{
		ID:            id.New(),
		StoreID:       key.StoreID,
		InvoiceType:   key.InvoiceType,
		CurrentNumber: initial,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return postgres.Builder().
		Insert(tableName).
		SetMap(postgres.StructToMap(row)).
		Suffix("ON CONFLICT (store_id, invoice_type_id) DO NOTHING")
}

// List returns the counters of a store ordered by invoice type.
func (r *Repo) List(ctx context.Context, storeID id.ID) ([]*numerator.Counter, error) {
	query, args, err := postgres.Builder().
		Select(counterColumns...).
		From(tableName).
		Where(squirrel.Eq{"store_id": storeID}).
		OrderBy("invoice_type_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	counters := []*numerator.Counter{}
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &counters, query, args...); err != nil {
		return nil, postgres.MapError(err)
	}
	return counters, nil
}

// ListStores returns every store owning at least one counter.
func (r *Repo) ListStores(ctx context.Context) ([]id.ID, error) {
	query, args, err := postgres.Builder().
		Select("DISTINCT store_id").
		From(tableName).
		OrderBy("store_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var stores []id.ID
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &stores, query, args...); err != nil {
		return nil, postgres.MapError(err)
	}
	return stores, nil
}

func joinColumns() string {
	return strings.Join(counterColumns, ", ")
}
