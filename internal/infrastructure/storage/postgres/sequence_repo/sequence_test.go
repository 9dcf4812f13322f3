package sequence_repo

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ncfpos/internal/core/id"
	"ncfpos/internal/core/numerator"
)

func TestIncrementQuery_IsSingleAtomicStatement(t *testing.T) {
	key := numerator.Key{StoreID: id.New(), InvoiceType: "B02"}

	sql, args, err := incrementQuery(key).ToSql()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(sql, "UPDATE invoice_sequences SET current_number = current_number + 1"), sql)
	assert.Contains(t, sql, "WHERE invoice_type_id = $1 AND store_id = $2 AND current_number < $3")
	assert.Contains(t, sql, "RETURNING id, store_id, invoice_type_id, current_number, created_at, updated_at")
	assert.Equal(t, []any{"B02", key.StoreID, numerator.MaxNumber}, args)
}

func TestSetQuery(t *testing.T) {
	key := numerator.Key{StoreID: id.New(), InvoiceType: "B01"}

	sql, args, err := setQuery(key, 1780).ToSql()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(sql, "UPDATE invoice_sequences SET current_number = $1, updated_at = NOW()"), sql)
	assert.Contains(t, sql, "RETURNING ")
	assert.Equal(t, []any{int64(1780), "B01", key.StoreID}, args)
}

func TestProvisionQuery_DoesNotOverwrite(t *testing.T) {
	key := numerator.Key{StoreID: id.New(), InvoiceType: "B14"}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	sql, args, err := provisionQuery(key, 300, now).ToSql()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(sql, "INSERT INTO invoice_sequences"), sql)
	assert.True(t, strings.HasSuffix(sql, "ON CONFLICT (store_id, invoice_type_id) DO NOTHING"), sql)
	assert.Contains(t, args, int64(300))
	assert.Contains(t, args, key.StoreID)
	assert.Contains(t, args, "B14")
	assert.Len(t, args, len(counterColumns))
}
