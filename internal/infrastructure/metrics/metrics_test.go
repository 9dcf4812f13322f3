package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"ncfpos/internal/core/id"
	"ncfpos/internal/domain/sequence"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveIssued("B02", 3*time.Millisecond)
	m.ObserveIssued("B02", time.Millisecond)
	m.IncIssueFailure("persistence")
	m.IncOverride("B01")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.NumbersIssued.WithLabelValues("B02")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IssueFailures.WithLabelValues("persistence")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CounterOverride.WithLabelValues("B01")))
}

func TestRecordReconcile(t *testing.T) {
	m := New(prometheus.NewRegistry())
	storeID := id.New()

	m.RecordReconcile([]*sequence.ReconcileReport{{
		StoreID: storeID,
		Checked: 3,
		Behind:  []sequence.Drift{{InvoiceType: "B02", CurrentNumber: 1, MaxHistorical: 9}},
	}})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CountersBehind.WithLabelValues(storeID.String())))
}
