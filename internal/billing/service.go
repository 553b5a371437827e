package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gymdesk-billing/pkg/db"
	"github.com/angelmondragon/gymdesk-billing/pkg/db/models"
	"github.com/angelmondragon/gymdesk-billing/pkg/enums"
	pkgerrors "github.com/angelmondragon/gymdesk-billing/pkg/errors"
	"github.com/angelmondragon/gymdesk-billing/pkg/logger"
	"github.com/angelmondragon/gymdesk-billing/pkg/pagination"
	"github.com/angelmondragon/gymdesk-billing/pkg/razorpay"
	"github.com/angelmondragon/gymdesk-billing/pkg/types"
)

// SubscriptionCreator creates provider subscriptions at checkout.
type SubscriptionCreator interface {
	CreateSubscription(ctx context.Context, params razorpay.CreateSubscriptionParams) (*razorpay.Subscription, error)
}

// ServiceParams groups dependencies for the billing service.
type ServiceParams struct {
	Repo     Repository
	Provider SubscriptionCreator
	Logger   *logger.Logger
	Now      func() time.Time
}

// Service exposes the plan catalog, checkout and entitlement reads.
type Service struct {
	repo     Repository
	provider SubscriptionCreator
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds a billing service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:     params.Repo,
		provider: params.Provider,
		logg:     params.Logger,
		now:      now,
	}, nil
}

// CreatePlanInput is the validated admin payload for a catalog entry.
type CreatePlanInput struct {
	Name           string
	Interval       enums.BillingInterval
	Price          decimal.Decimal
	ProviderPlanID string
	IsActive       *bool
}

func (s *Service) CreatePlan(ctx context.Context, input CreatePlanInput) (*models.Plan, error) {
	name := strings.TrimSpace(input.Name)
	providerPlanID := strings.TrimSpace(input.ProviderPlanID)
	if name == "" || providerPlanID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name and provider_plan_id are required")
	}
	if !input.Interval.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "interval must be monthly or yearly")
	}
	if input.Price.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}

	active := true
	if input.IsActive != nil {
		active = *input.IsActive
	}
	plan := &models.Plan{
		Name:           name,
		Interval:       input.Interval,
		Price:          input.Price.Round(2),
		ProviderPlanID: providerPlanID,
		IsActive:       active,
	}
	if err := s.repo.CreatePlan(ctx, plan); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "plan already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create plan")
	}
	return plan, nil
}

func (s *Service) ListPlans(ctx context.Context, activeOnly bool) ([]models.Plan, error) {
	plans, err := s.repo.ListPlans(ctx, activeOnly)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list plans")
	}
	return plans, nil
}

// IsActiveNow reports whether the owner's newest subscription grants access.
// It never calls the provider.
func (s *Service) IsActiveNow(ctx context.Context, ownerID uuid.UUID) (bool, error) {
	ent, err := s.Entitlement(ctx, ownerID)
	if err != nil {
		return false, err
	}
	return ent.Entitled, nil
}

func (s *Service) Entitlement(ctx context.Context, ownerID uuid.UUID) (Entitlement, error) {
	if ownerID == uuid.Nil {
		return Entitlement{}, pkgerrors.New(pkgerrors.CodeValidation, "owner id is required")
	}
	sub, err := s.repo.FindLatestSubscriptionByOwner(ctx, ownerID)
	if err != nil {
		return Entitlement{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	return entitlementFor(sub, s.now().UTC()), nil
}

// CheckoutResult is returned once the provider subscription exists.
type CheckoutResult struct {
	SubscriptionID         uuid.UUID `json:"subscription_id"`
	ProviderSubscriptionID string    `json:"provider_subscription_id"`
	ShortURL               string    `json:"short_url,omitempty"`
}

// StartCheckout creates (or reuses) a created row for the owner, creates the
// provider subscription and attaches its id.
func (s *Service) StartCheckout(ctx context.Context, ownerID, planID uuid.UUID) (*CheckoutResult, error) {
	if s.provider == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment provider not configured")
	}
	if ownerID == uuid.Nil || planID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id and plan id are required")
	}

	plan, err := s.repo.FindPlanByID(ctx, planID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}
	if plan == nil || !plan.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}

	sub, err := s.pendingSubscription(ctx, ownerID, plan.ID)
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithOwnerID(ctx, ownerID.String())
	created, err := s.provider.CreateSubscription(ctx, razorpay.CreateSubscriptionParams{
		PlanID:         plan.ProviderPlanID,
		TotalCount:     plan.Interval.TotalCycles(),
		Quantity:       1,
		CustomerNotify: true,
		Notes: map[string]string{
			"owner_id":        ownerID.String(),
			"subscription_id": sub.ID.String(),
		},
	})
	if err != nil {
		s.logg.Error(ctx, "provider subscription create failed", err)
		return nil, err
	}
	if created == nil || created.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "provider returned no subscription id")
	}

	if err := s.repo.AttachProviderSubscription(ctx, sub.ID, created.ID); err != nil {
		if errors.Is(err, ErrProviderIDImmutable) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "checkout already completed")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach provider subscription")
	}

	s.logg.Info(s.logg.WithSubscriptionID(ctx, created.ID), "checkout subscription created")
	return &CheckoutResult{
		SubscriptionID:         sub.ID,
		ProviderSubscriptionID: created.ID,
		ShortURL:               created.ShortURL,
	}, nil
}

func (s *Service) pendingSubscription(ctx context.Context, ownerID, planID uuid.UUID) (*models.Subscription, error) {
	latest, err := s.repo.FindLatestSubscriptionByOwner(ctx, ownerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if latest != nil && IsActiveAt(latest, s.now().UTC()) && latest.Status == enums.SubscriptionStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "subscription already active")
	}
	if latest != nil && latest.Status == enums.SubscriptionStatusCreated && latest.ProviderSubscriptionID == nil {
		if latest.PlanID != planID {
			if err := s.repo.UpdateCheckoutPlan(ctx, latest.ID, planID); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update checkout plan")
			}
			latest.PlanID = planID
		}
		return latest, nil
	}

	sub := &models.Subscription{
		OwnerID: ownerID,
		PlanID:  planID,
		Status:  enums.SubscriptionStatusCreated,
	}
	if err := s.repo.CreateSubscription(ctx, sub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create subscription")
	}
	return sub, nil
}

// ListPaymentEventsParams filters the admin event listing.
type ListPaymentEventsParams struct {
	Outcome *enums.ReconcileOutcome
	Limit   int
	Cursor  string
}

func (s *Service) ListPaymentEvents(ctx context.Context, params ListPaymentEventsParams) (*types.Page[models.PaymentEventWithOutcome], error) {
	query := ListPaymentEventsQuery{
		Outcome: params.Outcome,
		Limit:   pagination.NormalizeLimit(params.Limit),
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.ListPaymentEvents(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment events")
	}
	if rows == nil {
		rows = []models.PaymentEventWithOutcome{}
	}

	page := &types.Page[models.PaymentEventWithOutcome]{Items: rows}
	if next != nil {
		page.NextCursor = pagination.EncodeCursor(*next)
	}
	return page, nil
}
