package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ncfpos/internal/core/id"
	"ncfpos/internal/core/numerator"
	"ncfpos/internal/domain/sales"
)

type Stamped struct {
	CreatedAt time.Time `db:"created_at"`
}

type withEmbedded struct {
	Stamped
	Name    string `db:"name"`
	Ignored string `db:"-"`
	Plain   string
}

func TestExtractDBColumns_Counter(t *testing.T) {
	cols := ExtractDBColumns[numerator.Counter]()

	assert.Equal(t, []string{"id", "store_id", "invoice_type_id", "current_number", "created_at", "updated_at"}, cols)
}

func TestExtractDBColumns_SkipsLines(t *testing.T) {
	cols := ExtractDBColumns[sales.Sale]()

	assert.Contains(t, cols, "invoice_number")
	assert.Contains(t, cols, "invoice_type_id")
	assert.NotContains(t, cols, "-")
	assert.Len(t, cols, 11)
}

func TestExtractDBColumns_Embedded(t *testing.T) {
	cols := ExtractDBColumns[withEmbedded]()

	assert.Equal(t, []string{"name", "created_at"}, cols)
}

func TestStructToMap(t *testing.T) {
	storeID := id.New()
	c := &numerator.Counter{StoreID: storeID, InvoiceType: "B02", CurrentNumber: 1764}

	m := StructToMap(c)

	assert.Equal(t, storeID, m["store_id"])
	assert.Equal(t, "B02", m["invoice_type_id"])
	assert.Equal(t, int64(1764), m["current_number"])
	assert.Len(t, m, 6)
}

func TestStructToMap_EmbeddedAndNil(t *testing.T) {
	now := time.Now().UTC()
	m := StructToMap(withEmbedded{Stamped: Stamped{CreatedAt: now}, Name: "x", Ignored: "y", Plain: "z"})

	assert.Equal(t, map[string]any{"name": "x", "created_at": now}, m)
	assert.Nil(t, StructToMap((*withEmbedded)(nil)))
	assert.Nil(t, StructToMap(42))
}

func TestPickColumns(t *testing.T) {
	data := map[string]any{"a": 1, "b": 2, "c": 3}

	assert.Equal(t, map[string]any{"a": 1, "c": 3}, PickColumns(data, []string{"a", "c", "d"}))
}
