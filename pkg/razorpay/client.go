package razorpay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	rzp "github.com/razorpay/razorpay-go"

	"github.com/angelmondragon/gymdesk-billing/pkg/config"
	pkgerrors "github.com/angelmondragon/gymdesk-billing/pkg/errors"
	"github.com/angelmondragon/gymdesk-billing/pkg/logger"
)

const defaultFetchTimeout = 5 * time.Second

var (
	errKeyRequired    = errors.New("razorpay key id and key secret are required")
	errLoggerRequired = errors.New("razorpay logger is required")
)

// subscriptionAPI is the subset of the SDK subscription resource we call.
type subscriptionAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Fetch(subscriptionID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// Client wraps the Razorpay SDK with context deadlines, logging and error mapping.
type Client struct {
	subscriptions subscriptionAPI
	timeout       time.Duration
	logger        *logger.Logger
}

// NewClient initializes the SDK client from configuration.
func NewClient(ctx context.Context, cfg config.RazorpayConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	keyID := strings.TrimSpace(cfg.KeyID)
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keyID == "" || keySecret == "" {
		return nil, errKeyRequired
	}

	sdk := rzp.NewClient(keyID, keySecret)
	c := newClient(sdk.Subscription, cfg.FetchTimeout, logg)

	logg.Info(logg.WithField(ctx, "key_mode", keyMode(keyID)), "razorpay client initialized")
	return c, nil
}

func newClient(api subscriptionAPI, timeout time.Duration, logg *logger.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Client{subscriptions: api, timeout: timeout, logger: logg}
}

// CreateSubscription creates a provider subscription for a plan.
func (c *Client) CreateSubscription(ctx context.Context, params CreateSubscriptionParams) (*Subscription, error) {
	if err := params.validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid subscription params")
	}
	c.log(ctx, "request", "create_subscription", map[string]any{
		"plan_id":     params.PlanID,
		"total_count": params.TotalCount,
	})

	raw, err := c.call(ctx, func() (map[string]interface{}, error) {
		return c.subscriptions.Create(params.toRequest(), nil)
	})
	if err != nil {
		c.logError(ctx, "create_subscription", err)
		return nil, mapError(err, "create subscription")
	}

	sub := subscriptionFromResponse(raw)
	c.log(ctx, "response", "create_subscription", map[string]any{
		"subscription_id": sub.ID,
		"status":          sub.Status,
	})
	return sub, nil
}

// FetchSubscription reads the provider's current view of a subscription.
func (c *Client) FetchSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
	}
	c.log(ctx, "request", "fetch_subscription", map[string]any{"subscription_id": subscriptionID})

	raw, err := c.call(ctx, func() (map[string]interface{}, error) {
		return c.subscriptions.Fetch(subscriptionID, nil, nil)
	})
	if err != nil {
		c.logError(ctx, "fetch_subscription", err)
		return nil, mapError(err, "fetch subscription")
	}

	sub := subscriptionFromResponse(raw)
	c.log(ctx, "response", "fetch_subscription", map[string]any{
		"subscription_id": sub.ID,
		"status":          sub.Status,
	})
	return sub, nil
}

type callResult struct {
	body map[string]interface{}
	err  error
}

// call bounds an SDK request by ctx and the client timeout. The SDK takes no
// context, so an abandoned request finishes in the background.
func (c *Client) call(ctx context.Context, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		body, err := fn()
		done <- callResult{body: body, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		return res.body, res.err
	}
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c.logger == nil {
		return
	}
	logFields := map[string]any{"operation": op, "phase": phase}
	for k, v := range fields {
		logFields[k] = v
	}
	c.logger.Info(c.logger.WithFields(ctx, logFields), fmt.Sprintf("razorpay %s", phase))
}

func (c *Client) logError(ctx context.Context, op string, err error) {
	if c.logger == nil {
		return
	}
	ctx = c.logger.WithFields(ctx, map[string]any{"operation": op, "phase": "error"})
	c.logger.Error(ctx, fmt.Sprintf("razorpay %s", op), err)
}

func mapError(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("razorpay %s timed out", op))
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("razorpay %s failed", op))
}

func keyMode(keyID string) string {
	if strings.HasPrefix(keyID, "rzp_live_") {
		return "live"
	}
	return "test"
}
