package sequence

import "time"

// Metrics receives allocator observations.
type Metrics interface {
	ObserveIssued(invoiceType string, took time.Duration)
	IncIssueFailure(reason string)
	IncOverride(invoiceType string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveIssued(string, time.Duration) {}
func (nopMetrics) IncIssueFailure(string)              {}
func (nopMetrics) IncOverride(string)                  {}
