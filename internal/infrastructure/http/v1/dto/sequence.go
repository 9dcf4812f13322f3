package dto

import (
	"encoding/json"
	"time"

	"ncfpos/internal/core/id"
	"ncfpos/internal/core/numerator"
	"ncfpos/internal/domain/sequence"
)

// CounterResponse is a counter row as exposed by the API.
// NextNumber is empty once the counter is exhausted.
type CounterResponse struct {
	InvoiceType   string    `json:"invoice_type_id"`
	CurrentNumber int64     `json:"current_number"`
	NextNumber    string    `json:"next_number,omitempty"`
	Exhausted     bool      `json:"exhausted,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// FromCounter converts a counter to its response form.
func FromCounter(c *numerator.Counter) CounterResponse {
	resp := CounterResponse{
		InvoiceType:   c.InvoiceType,
		CurrentNumber: c.CurrentNumber,
		Exhausted:     c.Exhausted(),
		UpdatedAt:     c.UpdatedAt,
	}
	if !resp.Exhausted {
		resp.NextNumber = c.Next()
	}
	return resp
}

// FromCounters converts a slice of counters.
func FromCounters(counters []*numerator.Counter) []CounterResponse {
	out := make([]CounterResponse, 0, len(counters))
	for _, c := range counters {
		out = append(out, FromCounter(c))
	}
	return out
}

// NumberResponse carries a formatted invoice number.
type NumberResponse struct {
	InvoiceType string `json:"invoice_type_id"`
	Number      string `json:"number"`
}

// SetCounterRequest overrides the last issued number.
type SetCounterRequest struct {
	CurrentNumber *int64 `json:"current_number" binding:"required"`
}

// ProvisionRequest creates the counter rows of the store.
// Empty InvoiceTypes provisions the default set.
type ProvisionRequest struct {
	InvoiceTypes []string `json:"invoice_types" binding:"omitempty,dive,required"`
	Initial      int64    `json:"initial" binding:"min=0"`
}

// HistoryRequest limits the audit history listing.
type HistoryRequest struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}

// AuditEntryResponse is one counter change of GET /sequences/history.
type AuditEntryResponse struct {
	ID        id.ID           `json:"id"`
	CounterID id.ID           `json:"counter_id"`
	Action    string          `json:"action"`
	UserID    string          `json:"user_id"`
	UserEmail string          `json:"user_email,omitempty"`
	Changes   json.RawMessage `json:"changes,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// FromAuditEntries converts audit entries to their response form.
func FromAuditEntries(entries []sequence.AuditEntry) []AuditEntryResponse {
	out := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditEntryResponse{
			ID:        e.ID,
			CounterID: e.CounterID,
			Action:    e.Action,
			UserID:    e.UserID,
			UserEmail: e.UserEmail,
			Changes:   e.Changes,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}
