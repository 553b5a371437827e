package razorpay

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// Subscription is the provider view returned by create and fetch.
type Subscription struct {
	ID           string
	PlanID       string
	Status       string
	CustomerID   *string
	CurrentStart *time.Time
	CurrentEnd   *time.Time
	ShortURL     string
}

// CreateSubscriptionParams mirrors the provider's create subscription body.
type CreateSubscriptionParams struct {
	PlanID         string
	TotalCount     int
	Quantity       int
	CustomerNotify bool
	Notes          map[string]string
}

func (p CreateSubscriptionParams) validate() error {
	if strings.TrimSpace(p.PlanID) == "" {
		return errors.New("plan id is required")
	}
	if p.TotalCount <= 0 {
		return errors.New("total count must be positive")
	}
	return nil
}

func (p CreateSubscriptionParams) toRequest() map[string]interface{} {
	quantity := p.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	notify := 0
	if p.CustomerNotify {
		notify = 1
	}
	req := map[string]interface{}{
		"plan_id":         strings.TrimSpace(p.PlanID),
		"total_count":     p.TotalCount,
		"quantity":        quantity,
		"customer_notify": notify,
	}
	if len(p.Notes) > 0 {
		notes := make(map[string]interface{}, len(p.Notes))
		for k, v := range p.Notes {
			notes[k] = v
		}
		req["notes"] = notes
	}
	return req
}

func subscriptionFromResponse(raw map[string]interface{}) *Subscription {
	return &Subscription{
		ID:           stringField(raw, "id"),
		PlanID:       stringField(raw, "plan_id"),
		Status:       stringField(raw, "status"),
		CustomerID:   optionalString(raw, "customer_id"),
		CurrentStart: UnixTime(raw["current_start"]),
		CurrentEnd:   UnixTime(raw["current_end"]),
		ShortURL:     stringField(raw, "short_url"),
	}
}

// UnixTime converts a provider unix-seconds value to an instant. Missing,
// null and zero values yield nil.
func UnixTime(value any) *time.Time {
	var secs int64
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		secs = int64(v)
	case int64:
		secs = v
	case int:
		secs = int64(v)
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return nil
		}
		secs = parsed
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil
		}
		secs = parsed
	default:
		return nil
	}
	if secs <= 0 {
		return nil
	}
	t := time.Unix(secs, 0).UTC()
	return &t
}

func stringField(raw map[string]interface{}, key string) string {
	if s, ok := raw[key].(string); ok {
		return s
	}
	return ""
}

func optionalString(raw map[string]interface{}, key string) *string {
	s := strings.TrimSpace(stringField(raw, key))
	if s == "" {
		return nil
	}
	return &s
}
