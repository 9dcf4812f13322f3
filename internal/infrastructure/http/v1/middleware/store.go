package middleware

import (
	"github.com/gin-gonic/gin"

	"ncfpos/internal/core/apperror"
	appctx "ncfpos/internal/core/context"
	"ncfpos/internal/core/id"
)

// HeaderStoreID selects the store (branch) a request bills for.
const HeaderStoreID = "X-Store-ID"

// StoreScope resolves X-Store-ID and checks the user may operate on it.
// Must run after Auth.
func StoreScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(HeaderStoreID)
		if raw == "" {
			abort(c, apperror.NewValidation("missing "+HeaderStoreID+" header"))
			return
		}
		storeID, err := id.Parse(raw)
		if err != nil || id.IsNil(storeID) {
			abort(c, apperror.NewValidation("invalid store id").WithDetail("store_id", raw))
			return
		}

		user := appctx.GetUser(c.Request.Context())
		if user == nil {
			abort(c, apperror.NewUnauthorized("authentication required"))
			return
		}
		if !user.HasStoreAccess(storeID.String()) {
			abort(c, apperror.NewForbidden("no access to store").WithDetail("store_id", storeID.String()))
			return
		}

		c.Request = c.Request.WithContext(appctx.WithStoreID(c.Request.Context(), storeID.String()))
		c.Next()
	}
}
