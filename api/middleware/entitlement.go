package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/gymdesk-billing/api/responses"
	pkgerrors "github.com/angelmondragon/gymdesk-billing/pkg/errors"
	"github.com/angelmondragon/gymdesk-billing/pkg/logger"
)

// EntitlementChecker decides access from local subscription state.
type EntitlementChecker interface {
	IsActiveNow(ctx context.Context, ownerID uuid.UUID) (bool, error)
}

// RequireActiveSubscription rejects owners without a running trial or an
// active, unexpired subscription.
func RequireActiveSubscription(checker EntitlementChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ownerID := OwnerIDFromContext(r.Context())
			if ownerID == uuid.Nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeSubscriptionLapsed, "no owner on token"))
				return
			}
			active, err := checker.IsActiveNow(r.Context(), ownerID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if !active {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeSubscriptionLapsed, "subscription inactive"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
