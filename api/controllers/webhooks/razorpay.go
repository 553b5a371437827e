package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/gymdesk-billing/api/responses"
	razorpaywebhook "github.com/angelmondragon/gymdesk-billing/internal/webhooks/razorpay"
	pkgerrors "github.com/angelmondragon/gymdesk-billing/pkg/errors"
	"github.com/angelmondragon/gymdesk-billing/pkg/logger"
	"github.com/angelmondragon/gymdesk-billing/pkg/metrics"
)

// DefaultMaxBodyBytes caps webhook bodies when no limit is configured.
const DefaultMaxBodyBytes int64 = 1 << 20

type RazorpayWebhookService interface {
	HandleEvent(ctx context.Context, event *razorpaywebhook.Event) (*razorpaywebhook.Receipt, error)
}

type razorpayWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// RazorpayWebhookParams wires the webhook endpoint. Guard and Metrics are optional.
type RazorpayWebhookParams struct {
	Service      RazorpayWebhookService
	Guard        razorpayWebhookGuard
	Secret       string
	MaxBodyBytes int64
	Metrics      *metrics.WebhookMetrics
	Logger       *logger.Logger
}

// RazorpayWebhook verifies, parses and hands one delivery to the webhook
// service. Responses carry no body: 400 for anything the provider must fix,
// 503 when the delivery should be retried, 200 once the event is logged.
func RazorpayWebhook(params RazorpayWebhookParams) http.HandlerFunc {
	limit := params.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	logg := params.Logger

	reject := func(ctx context.Context, w http.ResponseWriter, reason string, err error) {
		params.Metrics.IncRejection(reason)
		logg.Warn(logg.WithFields(ctx, map[string]any{"reason": reason, "error": err.Error()}), "webhook rejected")
		responses.WriteStatus(w, http.StatusBadRequest)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if params.Service == nil {
			responses.LogError(ctx, logg, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			responses.WriteStatus(w, http.StatusServiceUnavailable)
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				reject(ctx, w, "body_too_large", err)
				return
			}
			reject(ctx, w, "read_failed", err)
			return
		}

		signature := r.Header.Get(razorpaywebhook.SignatureHeader)
		if err := razorpaywebhook.Verify(payload, signature, params.Secret); err != nil {
			reason := "invalid_signature"
			if errors.Is(err, razorpaywebhook.ErrMissingSignature) {
				reason = "missing_signature"
			}
			reject(ctx, w, reason, err)
			return
		}

		event, err := razorpaywebhook.Parse(payload)
		if err != nil {
			reject(ctx, w, "malformed_json", err)
			return
		}

		deliveryID := strings.TrimSpace(r.Header.Get(razorpaywebhook.EventIDHeader))
		event.DeliveryID = deliveryID
		marked := false
		if deliveryID != "" && params.Guard != nil {
			ctx = logg.WithDeliveryID(ctx, deliveryID)
			duplicate, err := params.Guard.CheckAndMark(ctx, deliveryID)
			switch {
			case err != nil:
				logg.Error(ctx, "webhook idempotency check failed", err)
			case duplicate:
				params.Metrics.IncDuplicate()
				logg.Info(logg.WithEventType(ctx, event.Type), "duplicate webhook delivery skipped")
				responses.WriteStatus(w, http.StatusOK)
				return
			default:
				marked = true
			}
		}

		if _, err := params.Service.HandleEvent(ctx, event); err != nil {
			if marked {
				if delErr := params.Guard.Delete(ctx, deliveryID); delErr != nil {
					logg.Error(ctx, "webhook idempotency release failed", delErr)
				}
			}
			responses.LogError(ctx, logg, err)
			responses.WriteStatus(w, responses.StatusFor(err))
			return
		}
		responses.WriteStatus(w, http.StatusOK)
	}
}
