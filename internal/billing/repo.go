package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/gymdesk-billing/pkg/db/models"
	"github.com/angelmondragon/gymdesk-billing/pkg/enums"
	"github.com/angelmondragon/gymdesk-billing/pkg/pagination"
)

// Repository handles billing persistence.
type Repository interface {
	CreatePlan(ctx context.Context, plan *models.Plan) error
	ListPlans(ctx context.Context, activeOnly bool) ([]models.Plan, error)
	FindPlanByID(ctx context.Context, id uuid.UUID) (*models.Plan, error)

	CreateSubscription(ctx context.Context, subscription *models.Subscription) error
	FindSubscriptionByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	FindLatestSubscriptionByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Subscription, error)
	FindSubscriptionByProviderID(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error)
	UpdateCheckoutPlan(ctx context.Context, id uuid.UUID, planID uuid.UUID) error
	AttachProviderSubscription(ctx context.Context, id uuid.UUID, providerSubscriptionID string) error
	ApplySubscriptionUpdate(ctx context.Context, id uuid.UUID, update SubscriptionUpdate) error

	AppendPaymentEvent(ctx context.Context, event *models.PaymentEvent) error
	FindPaymentEvent(ctx context.Context, id uuid.UUID) (*models.PaymentEvent, error)
	ListPaymentEvents(ctx context.Context, params ListPaymentEventsQuery) ([]models.PaymentEventWithOutcome, *pagination.Cursor, error)
	HasNewerAppliedEvent(ctx context.Context, subscriptionID uuid.UUID, after time.Time) (bool, error)

	SaveReconciliation(ctx context.Context, rec *models.EventReconciliation) error
	FindReconciliation(ctx context.Context, paymentEventID uuid.UUID) (*models.EventReconciliation, error)
	ListReplayCandidates(ctx context.Context, params ReplayCandidatesQuery) ([]models.EventReconciliation, error)
}

// SubscriptionUpdate lists the fields a transition changes. Nil fields are
// left untouched. CustomerID is only written when the row has none yet.
type SubscriptionUpdate struct {
	Status       *enums.SubscriptionStatus
	CurrentStart *time.Time
	CurrentEnd   *time.Time
	CustomerID   *string
}

// IsEmpty reports whether the update would write nothing.
func (u SubscriptionUpdate) IsEmpty() bool {
	return u.Status == nil && u.CurrentStart == nil && u.CurrentEnd == nil && u.CustomerID == nil
}

// ListPaymentEventsQuery configures admin event listings.
type ListPaymentEventsQuery struct {
	Outcome *enums.ReconcileOutcome
	Limit   int
	Cursor  *pagination.Cursor
}

// ReplayCandidatesQuery selects reconciliations the replay job should retry.
type ReplayCandidatesQuery struct {
	Outcomes    []enums.ReconcileOutcome
	Since       time.Time
	MaxAttempts int
	Limit       int
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreatePlan(ctx context.Context, plan *models.Plan) error {
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(plan).Error
}

func (r *repository) ListPlans(ctx context.Context, activeOnly bool) ([]models.Plan, error) {
	query := r.db.WithContext(ctx).Model(&models.Plan{})
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	var plans []models.Plan
	if err := query.Order("price ASC, name ASC").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *repository) FindPlanByID(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	var plan models.Plan
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error; err != nil {
		return nil, notFoundAsNil(err)
	}
	return &plan, nil
}

func (r *repository) CreateSubscription(ctx context.Context, subscription *models.Subscription) error {
	if subscription.ID == uuid.Nil {
		subscription.ID = uuid.New()
	}
	if subscription.Status == "" {
		subscription.Status = enums.SubscriptionStatusCreated
	}
	return r.db.WithContext(ctx).Create(subscription).Error
}

func (r *repository) FindSubscriptionByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, notFoundAsNil(err)
	}
	return &sub, nil
}

// FindLatestSubscriptionByOwner resolves duplicate historical rows to the newest.
func (r *repository) FindLatestSubscriptionByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Order("id DESC").
		First(&sub).Error; err != nil {
		return nil, notFoundAsNil(err)
	}
	return &sub, nil
}

func (r *repository) FindSubscriptionByProviderID(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	if providerSubscriptionID == "" {
		return nil, nil
	}
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("provider_subscription_id = ?", providerSubscriptionID).
		First(&sub).Error; err != nil {
		return nil, notFoundAsNil(err)
	}
	return &sub, nil
}

// UpdateCheckoutPlan switches the plan of a row that has not reached the provider yet.
func (r *repository) UpdateCheckoutPlan(ctx context.Context, id uuid.UUID, planID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ? AND provider_subscription_id IS NULL", id).
		Updates(map[string]any{"plan_id": planID, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrProviderIDImmutable
	}
	return nil
}

// AttachProviderSubscription sets the provider id once. A row that already has
// one is never rewritten.
func (r *repository) AttachProviderSubscription(ctx context.Context, id uuid.UUID, providerSubscriptionID string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ? AND provider_subscription_id IS NULL", id).
		Updates(map[string]any{
			"provider_subscription_id": providerSubscriptionID,
			"updated_at":               time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrProviderIDImmutable
	}
	return nil
}

// ApplySubscriptionUpdate writes only the changed columns in one statement.
func (r *repository) ApplySubscriptionUpdate(ctx context.Context, id uuid.UUID, update SubscriptionUpdate) error {
	if update.IsEmpty() {
		return nil
	}
	fields := map[string]any{"updated_at": time.Now().UTC()}
	if update.Status != nil {
		fields["status"] = *update.Status
	}
	if update.CurrentStart != nil {
		fields["current_start"] = update.CurrentStart.UTC()
	}
	if update.CurrentEnd != nil {
		fields["current_end"] = update.CurrentEnd.UTC()
	}
	if update.CustomerID != nil {
		fields["provider_customer_id"] = gorm.Expr("COALESCE(provider_customer_id, ?)", *update.CustomerID)
	}

	res := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) AppendPaymentEvent(ctx context.Context, event *models.PaymentEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) FindPaymentEvent(ctx context.Context, id uuid.UUID) (*models.PaymentEvent, error) {
	var event models.PaymentEvent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error; err != nil {
		return nil, notFoundAsNil(err)
	}
	return &event, nil
}

func (r *repository) ListPaymentEvents(ctx context.Context, params ListPaymentEventsQuery) ([]models.PaymentEventWithOutcome, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).
		Table("payment_events AS pe").
		Select("pe.*, er.outcome AS outcome, er.attempts AS attempts").
		Joins("LEFT JOIN event_reconciliations AS er ON er.payment_event_id = pe.id")
	if params.Outcome != nil {
		query = query.Where("er.outcome = ?", *params.Outcome)
	}
	if params.Cursor != nil {
		at := params.Cursor.At.UTC()
		query = query.Where("(pe.received_at < ? OR (pe.received_at = ? AND pe.id < ?))", at, at, params.Cursor.ID)
	}

	var rows []models.PaymentEventWithOutcome
	if err := query.
		Order("pe.received_at DESC").
		Order("pe.id DESC").
		Limit(pagination.LimitWithBuffer(limit)).
		Scan(&rows).Error; err != nil {
		return nil, nil, err
	}

	if len(rows) > limit {
		last := rows[limit-1]
		rows = rows[:limit]
		return rows, &pagination.Cursor{At: last.ReceivedAt, ID: last.ID}, nil
	}
	return rows, nil, nil
}

// HasNewerAppliedEvent reports whether a state-changing event received after
// the given instant has already been reconciled onto the subscription.
func (r *repository) HasNewerAppliedEvent(ctx context.Context, subscriptionID uuid.UUID, after time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("payment_events AS pe").
		Joins("JOIN event_reconciliations AS er ON er.payment_event_id = pe.id").
		Where("er.subscription_id = ?", subscriptionID).
		Where("er.outcome IN ?", []enums.ReconcileOutcome{enums.ReconcileOutcomeApplied, enums.ReconcileOutcomeStatusOnly}).
		Where("pe.received_at > ?", after.UTC()).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SaveReconciliation upserts the outcome row keyed by payment event.
func (r *repository) SaveReconciliation(ctx context.Context, rec *models.EventReconciliation) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "payment_event_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"subscription_id", "outcome", "attempts", "last_error", "updated_at"}),
		}).
		Create(rec).Error
}

func (r *repository) FindReconciliation(ctx context.Context, paymentEventID uuid.UUID) (*models.EventReconciliation, error) {
	var rec models.EventReconciliation
	if err := r.db.WithContext(ctx).Where("payment_event_id = ?", paymentEventID).First(&rec).Error; err != nil {
		return nil, notFoundAsNil(err)
	}
	return &rec, nil
}

func (r *repository) ListReplayCandidates(ctx context.Context, params ReplayCandidatesQuery) ([]models.EventReconciliation, error) {
	if len(params.Outcomes) == 0 {
		return nil, nil
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}
	query := r.db.WithContext(ctx).
		Model(&models.EventReconciliation{}).
		Where("outcome IN ?", params.Outcomes)
	if !params.Since.IsZero() {
		query = query.Where("created_at >= ?", params.Since.UTC())
	}
	if params.MaxAttempts > 0 {
		query = query.Where("attempts < ?", params.MaxAttempts)
	}

	var recs []models.EventReconciliation
	if err := query.Order("created_at ASC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func notFoundAsNil(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}
