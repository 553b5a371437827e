package billing

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gymdesk-billing/api/responses"
	"github.com/angelmondragon/gymdesk-billing/api/validators"
	billingsvc "github.com/angelmondragon/gymdesk-billing/internal/billing"
	"github.com/angelmondragon/gymdesk-billing/pkg/db/models"
	"github.com/angelmondragon/gymdesk-billing/pkg/enums"
	pkgerrors "github.com/angelmondragon/gymdesk-billing/pkg/errors"
	"github.com/angelmondragon/gymdesk-billing/pkg/logger"
)

const maxPlanNameLength = 120

// PlanService describes the catalog methods used by the HTTP controllers.
type PlanService interface {
	ListPlans(ctx context.Context, activeOnly bool) ([]models.Plan, error)
	CreatePlan(ctx context.Context, input billingsvc.CreatePlanInput) (*models.Plan, error)
}

type planResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Interval       string `json:"interval"`
	Price          string `json:"price"`
	ProviderPlanID string `json:"provider_plan_id"`
	IsActive       bool   `json:"is_active"`
	CreatedAt      string `json:"created_at"`
}

type planListResponse struct {
	Plans []planResponse `json:"plans"`
}

type planCreateRequest struct {
	Name           string          `json:"name" validate:"required,max=120"`
	Interval       string          `json:"interval" validate:"required,oneof=monthly yearly"`
	Price          decimal.Decimal `json:"price" validate:"money"`
	ProviderPlanID string          `json:"provider_plan_id" validate:"required"`
	IsActive       *bool           `json:"is_active"`
}

// PlansList returns the active catalog to owners.
func PlansList(svc PlanService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan service unavailable"))
			return
		}

		plans, err := svc.ListPlans(ctx, true)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, planListResponse{Plans: plansToResponse(plans)})
	}
}

func AdminPlansList(svc PlanService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan service unavailable"))
			return
		}

		plans, err := svc.ListPlans(ctx, false)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, planListResponse{Plans: plansToResponse(plans)})
	}
}

func AdminPlanCreate(svc PlanService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan service unavailable"))
			return
		}

		var payload planCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		interval, err := enums.ParseBillingInterval(payload.Interval)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid interval"))
			return
		}

		plan, err := svc.CreatePlan(ctx, billingsvc.CreatePlanInput{
			Name:           validators.SanitizeString(payload.Name, maxPlanNameLength),
			Interval:       interval,
			Price:          payload.Price,
			ProviderPlanID: validators.SanitizeString(payload.ProviderPlanID, 0),
			IsActive:       payload.IsActive,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, planToResponse(plan))
	}
}

func plansToResponse(plans []models.Plan) []planResponse {
	result := make([]planResponse, 0, len(plans))
	for i := range plans {
		result = append(result, planToResponse(&plans[i]))
	}
	return result
}

func planToResponse(plan *models.Plan) planResponse {
	return planResponse{
		ID:             plan.ID.String(),
		Name:           plan.Name,
		Interval:       plan.Interval.String(),
		Price:          plan.Price.StringFixed(2),
		ProviderPlanID: plan.ProviderPlanID,
		IsActive:       plan.IsActive,
		CreatedAt:      plan.CreatedAt.UTC().Format(time.RFC3339),
	}
}
