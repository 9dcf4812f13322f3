// Package dto provides Data Transfer Objects for API requests/responses.
package dto

// PageRequest contains offset pagination parameters.
type PageRequest struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// Defaults sets default pagination values.
func (p *PageRequest) Defaults() {
	if p.Limit == 0 {
		p.Limit = 50
	}
}

// ListResponse wraps a page of results.
type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// ItemsResponse wraps an unpaginated collection.
type ItemsResponse[T any] struct {
	Items []T `json:"items"`
}
