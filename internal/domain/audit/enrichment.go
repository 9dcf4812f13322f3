// Package audit provides utilities for audit field enrichment in domain entities.
package audit

import (
	"context"

	appctx "ncfpos/internal/core/context"
)

// EnrichCreatedBy stamps the acting user on an entity field.
// Use in BeforeCreate hooks. No-op without a user in context or when already set.
func EnrichCreatedBy(ctx context.Context, createdBy *string) {
	if createdBy == nil || *createdBy != "" {
		return
	}
	if userID := appctx.GetUserID(ctx); userID != "" {
		*createdBy = userID
	}
}
