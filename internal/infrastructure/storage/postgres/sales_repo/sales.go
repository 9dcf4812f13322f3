// Package sales_repo stores sales and reads invoice number history.
package sales_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"ncfpos/internal/core/apperror"
	"ncfpos/internal/core/id"
	"ncfpos/internal/core/numerator"
	"ncfpos/internal/domain/sales"
	"ncfpos/internal/domain/sequence"
	"ncfpos/internal/infrastructure/storage/postgres"
)

const (
	salesTable = "sales"
	linesTable = "sale_lines"

	clientKeyIndex = "sales_store_client_key_idx"
)

var (
	_ sales.Repository       = (*Repo)(nil)
	_ sequence.HistoryReader = (*Repo)(nil)

	saleColumns = postgres.ExtractDBColumns[sales.Sale]()
	lineColumns = postgres.ExtractDBColumns[sales.Line]()
)

// Repo implements sales.Repository and sequence.HistoryReader.
type Repo struct {
	txm *postgres.TxManager
}

// NewRepo creates a sales repository.
func NewRepo(txm *postgres.TxManager) *Repo {
	return &Repo{txm: txm}
}

// Create inserts the sale header and its lines.
func (r *Repo) Create(ctx context.Context, sale *sales.Sale) error {
	return r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		query, args, err := postgres.Builder().
			Insert(salesTable).
			SetMap(postgres.PickColumns(postgres.StructToMap(sale), saleColumns)).
			ToSql()
		if err != nil {
			return fmt.Errorf("build sale insert: %w", err)
		}

		q := r.txm.GetQuerier(ctx)
		if _, err := q.Exec(ctx, query, args...); err != nil {
			if err = postgres.MapError(err); apperror.IsDuplicate(err) {
				if postgres.ConstraintName(err) == clientKeyIndex {
					return apperror.NewDuplicate("sale", "client_key", sale.ClientKey).WithCause(err)
				}
				return apperror.NewDuplicate("sale", "invoice_number", sale.InvoiceNumber).WithCause(err)
			}
			return err
		}

		if len(sale.Lines) == 0 {
			return nil
		}

		insert := postgres.Builder().Insert(linesTable).Columns(lineColumns...)
		for i := range sale.Lines {
			row := postgres.StructToMap(&sale.Lines[i])
			values := make([]any, len(lineColumns))
			for j, col := range lineColumns {
				values[j] = row[col]
			}
			insert = insert.Values(values...)
		}

		query, args, err = insert.ToSql()
		if err != nil {
			return fmt.Errorf("build lines insert: %w", err)
		}
		if _, err := q.Exec(ctx, query, args...); err != nil {
			return postgres.MapError(err)
		}
		return nil
	})
}

// GetByID returns a sale of the store with its lines.
func (r *Repo) GetByID(ctx context.Context, storeID, saleID id.ID) (*sales.Sale, error) {
	return r.getOne(ctx, squirrel.Eq{"id": saleID, "store_id": storeID}, saleID.String())
}

// GetByClientKey returns the sale a terminal created under clientKey.
func (r *Repo) GetByClientKey(ctx context.Context, storeID id.ID, clientKey string) (*sales.Sale, error) {
	if clientKey == "" {
		return nil, apperror.NewNotFound("sale", clientKey)
	}
	return r.getOne(ctx, byClientKey(storeID, clientKey), clientKey)
}

func byClientKey(storeID id.ID, clientKey string) squirrel.Eq {
	return squirrel.Eq{"store_id": storeID, "client_key": clientKey}
}

func (r *Repo) getOne(ctx context.Context, where squirrel.Eq, ref string) (*sales.Sale, error) {
	query, args, err := postgres.Builder().
		Select(saleColumns...).
		From(salesTable).
		Where(where).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	q := r.txm.GetQuerier(ctx)
	var sale sales.Sale
	if err := pgxscan.Get(ctx, q, &sale, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("sale", ref)
		}
		return nil, postgres.MapError(err)
	}

	query, args, err = postgres.Builder().
		Select(lineColumns...).
		From(linesTable).
		Where(squirrel.Eq{"sale_id": sale.ID}).
		OrderBy("line_no").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lines query: %w", err)
	}
	if err := pgxscan.Select(ctx, q, &sale.Lines, query, args...); err != nil {
		return nil, postgres.MapError(err)
	}
	return &sale, nil
}

// List returns sale headers, newest first. Lines are not loaded.
func (r *Repo) List(ctx context.Context, filter sales.ListFilter) ([]*sales.Sale, error) {
	query, args, err := listQuery(filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	out := []*sales.Sale{}
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, query, args...); err != nil {
		return nil, postgres.MapError(err)
	}
	return out, nil
}

func listQuery(filter sales.ListFilter) squirrel.SelectBuilder {
	q := postgres.Builder().
		Select(saleColumns...).
		From(salesTable).
		Where(squirrel.Eq{"store_id": filter.StoreID})
	if filter.InvoiceType != "" {
		q = q.Where(squirrel.Eq{"invoice_type_id": filter.InvoiceType})
	}
	return q.OrderBy("created_at DESC", "invoice_number DESC").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset))
}

// HighestInvoiceNumber finds the sale whose invoice number carries the
// greatest numeric suffix for key.
//
// Suffixes are compared as numbers, not strings: leading zeros are stripped,
// then longer digit runs win and equal lengths compare lexically. This keeps
// working for suffixes wider than the usual eight digits.
func (r *Repo) HighestInvoiceNumber(ctx context.Context, key numerator.Key) (string, bool, error) {
	query, args, err := historyQuery(key).ToSql()
	if err != nil {
		return "", false, fmt.Errorf("build query: %w", err)
	}

	var number string
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &number, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return "", false, nil
		}
		return "", false, postgres.MapError(err)
	}
	return number, true, nil
}

const suffixDigits = `ltrim(substring(invoice_number from '-([0-9]+)$'), '0')`

func historyQuery(key numerator.Key) squirrel.SelectBuilder {
	return postgres.Builder().
		Select("invoice_number").
		From(salesTable).
		Where(squirrel.Eq{"store_id": key.StoreID, "invoice_type_id": key.InvoiceType}).
		Where("invoice_number ~ '-[0-9]+$'").
		OrderBy("length("+suffixDigits+") DESC", suffixDigits+" DESC").
		Limit(1)
}
