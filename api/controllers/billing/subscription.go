package billing

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/gymdesk-billing/api/middleware"
	"github.com/angelmondragon/gymdesk-billing/api/responses"
	"github.com/angelmondragon/gymdesk-billing/api/validators"
	billingsvc "github.com/angelmondragon/gymdesk-billing/internal/billing"
	pkgerrors "github.com/angelmondragon/gymdesk-billing/pkg/errors"
	"github.com/angelmondragon/gymdesk-billing/pkg/logger"
)

// SubscriptionService describes the owner-facing subscription methods.
type SubscriptionService interface {
	Entitlement(ctx context.Context, ownerID uuid.UUID) (billingsvc.Entitlement, error)
	StartCheckout(ctx context.Context, ownerID, planID uuid.UUID) (*billingsvc.CheckoutResult, error)
}

type checkoutRequest struct {
	PlanID string `json:"plan_id" validate:"required,uuid"`
}

// Entitlement reports the caller's access decision from stored state.
func Entitlement(svc SubscriptionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		ownerID := middleware.OwnerIDFromContext(ctx)
		if ownerID == uuid.Nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "owner context required"))
			return
		}

		ent, err := svc.Entitlement(ctx, ownerID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, ent)
	}
}

// Checkout starts a provider subscription for the caller.
func Checkout(svc SubscriptionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		ownerID := middleware.OwnerIDFromContext(ctx)
		if ownerID == uuid.Nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "owner context required"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		planID, err := validators.ParseUUIDParam(payload.PlanID, "plan_id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.StartCheckout(ctx, ownerID, planID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// Access answers 204 once RequireActiveSubscription has admitted the caller.
// Other services use it as the boolean entitlement probe.
func Access() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteStatus(w, http.StatusNoContent)
	}
}
