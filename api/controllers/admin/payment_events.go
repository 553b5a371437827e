package admin

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/gymdesk-billing/api/responses"
	"github.com/angelmondragon/gymdesk-billing/api/validators"
	billingsvc "github.com/angelmondragon/gymdesk-billing/internal/billing"
	razorpaywebhook "github.com/angelmondragon/gymdesk-billing/internal/webhooks/razorpay"
	"github.com/angelmondragon/gymdesk-billing/pkg/db/models"
	"github.com/angelmondragon/gymdesk-billing/pkg/enums"
	pkgerrors "github.com/angelmondragon/gymdesk-billing/pkg/errors"
	"github.com/angelmondragon/gymdesk-billing/pkg/logger"
	"github.com/angelmondragon/gymdesk-billing/pkg/pagination"
	"github.com/angelmondragon/gymdesk-billing/pkg/types"
)

type PaymentEventLister interface {
	ListPaymentEvents(ctx context.Context, params billingsvc.ListPaymentEventsParams) (*types.Page[models.PaymentEventWithOutcome], error)
}

type PaymentEventReplayer interface {
	Replay(ctx context.Context, paymentEventID uuid.UUID) (*razorpaywebhook.Receipt, error)
}

type paymentEventResponse struct {
	ID                     string  `json:"id"`
	EventType              string  `json:"event_type"`
	ProviderEventID        *string `json:"provider_event_id"`
	SubscriptionID         *string `json:"subscription_id"`
	ProviderSubscriptionID *string `json:"provider_subscription_id"`
	ProviderPaymentID      *string `json:"provider_payment_id"`
	ProviderInvoiceID      *string `json:"provider_invoice_id"`
	Amount                 *int64  `json:"amount"`
	Outcome                *string `json:"outcome"`
	Attempts               *int    `json:"attempts"`
	ReceivedAt             string  `json:"received_at"`
}

// PaymentEventsList pages through the event log, newest first.
func PaymentEventsList(svc PaymentEventLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment event service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		params := billingsvc.ListPaymentEventsParams{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("outcome")); raw != "" {
			outcome, err := enums.ParseReconcileOutcome(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid outcome"))
				return
			}
			params.Outcome = &outcome
		}

		page, err := svc.ListPaymentEvents(ctx, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		items := make([]paymentEventResponse, 0, len(page.Items))
		for i := range page.Items {
			items = append(items, paymentEventToResponse(&page.Items[i]))
		}
		responses.WriteSuccess(w, types.Page[paymentEventResponse]{Items: items, NextCursor: page.NextCursor})
	}
}

// PaymentEventReplay re-runs the reconciler over a stored event's raw payload.
func PaymentEventReplay(svc PaymentEventReplayer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "replay service unavailable"))
			return
		}

		eventID, err := validators.ParseUUIDParam(chi.URLParam(r, "eventId"), "eventId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		ctx = logg.WithPaymentEventID(ctx, eventID.String())
		receipt, err := svc.Replay(ctx, eventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		logg.Info(logg.WithField(ctx, "outcome", receipt.Outcome.String()), "payment event replayed")
		responses.WriteSuccess(w, receipt)
	}
}

func paymentEventToResponse(event *models.PaymentEventWithOutcome) paymentEventResponse {
	resp := paymentEventResponse{
		ID:                     event.ID.String(),
		EventType:              event.EventType,
		ProviderEventID:        event.ProviderEventID,
		ProviderSubscriptionID: event.ProviderSubscriptionID,
		ProviderPaymentID:      event.ProviderPaymentID,
		ProviderInvoiceID:      event.ProviderInvoiceID,
		Amount:                 event.Amount,
		Attempts:               event.Attempts,
		ReceivedAt:             event.ReceivedAt.UTC().Format(time.RFC3339),
	}
	if event.SubscriptionID != nil {
		id := event.SubscriptionID.String()
		resp.SubscriptionID = &id
	}
	if event.Outcome != nil {
		outcome := event.Outcome.String()
		resp.Outcome = &outcome
	}
	return resp
}
