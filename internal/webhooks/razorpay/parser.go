package razorpaywebhook

import (
	"bytes"
	"encoding/json"
	"strings"
)

// UnknownEventType is recorded when a delivery carries no usable event name.
const UnknownEventType = "unknown"

// Event is a decoded delivery. Absent sub-entities are nil.
type Event struct {
	Type         string
	Subscription *SubscriptionEntity
	Payment      *PaymentEntity
	Invoice      *InvoiceEntity

	// DeliveryID is the provider event id header, when sent.
	DeliveryID string
	// Raw holds the exact bytes received.
	Raw []byte
}

type SubscriptionEntity struct {
	ID         string
	PlanID     string
	Status     string
	CustomerID string
}

type PaymentEntity struct {
	ID string
	// AmountMinor is the amount in paise. Nil unless the body carried a
	// non-negative integer.
	AmountMinor *int64
}

type InvoiceEntity struct {
	ID             string
	SubscriptionID string
}

// SubscriptionID is the embedded provider subscription id used for matching.
func (e *Event) SubscriptionID() string {
	if e == nil || e.Subscription == nil {
		return ""
	}
	return e.Subscription.ID
}

func (e *Event) PaymentID() string {
	if e == nil || e.Payment == nil {
		return ""
	}
	return e.Payment.ID
}

func (e *Event) InvoiceID() string {
	if e == nil || e.Invoice == nil {
		return ""
	}
	return e.Invoice.ID
}

// AmountMajor converts the payment amount to whole rupees, floor-divided.
func (e *Event) AmountMajor() *int64 {
	if e == nil || e.Payment == nil || e.Payment.AmountMinor == nil {
		return nil
	}
	major := *e.Payment.AmountMinor / 100
	return &major
}

type object map[string]json.RawMessage

// Parse decodes a verified body. Only a body that is not a JSON object fails;
// missing or mistyped fields are reported as absent.
func Parse(rawBody []byte) (*Event, error) {
	var root object
	if err := json.Unmarshal(rawBody, &root); err != nil || root == nil {
		return nil, ErrMalformedJSON
	}

	event := &Event{
		Type: UnknownEventType,
		Raw:  rawBody,
	}
	if name := strings.TrimSpace(stringValue(root["event"])); name != "" {
		event.Type = name
	}

	payload := decodeObject(root["payload"])
	if entity := entityOf(payload, "subscription"); entity != nil {
		event.Subscription = &SubscriptionEntity{
			ID:         strings.TrimSpace(stringValue(entity["id"])),
			PlanID:     stringValue(entity["plan_id"]),
			Status:     stringValue(entity["status"]),
			CustomerID: stringValue(entity["customer_id"]),
		}
	}
	if entity := entityOf(payload, "payment"); entity != nil {
		event.Payment = &PaymentEntity{
			ID:          strings.TrimSpace(stringValue(entity["id"])),
			AmountMinor: nonNegativeInt(entity["amount"]),
		}
	}
	if entity := entityOf(payload, "invoice"); entity != nil {
		event.Invoice = &InvoiceEntity{
			ID:             strings.TrimSpace(stringValue(entity["id"])),
			SubscriptionID: stringValue(entity["subscription_id"]),
		}
	}
	return event, nil
}

// entityOf resolves payload.<name>.entity.
func entityOf(payload object, name string) object {
	if payload == nil {
		return nil
	}
	wrapper := decodeObject(payload[name])
	if wrapper == nil {
		return nil
	}
	return decodeObject(wrapper["entity"])
}

func decodeObject(raw json.RawMessage) object {
	if len(raw) == 0 {
		return nil
	}
	var obj object
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	return obj
}

func stringValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func nonNegativeInt(raw json.RawMessage) *int64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '"' {
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil
	}
	v, err := n.Int64()
	if err != nil || v < 0 {
		return nil
	}
	return &v
}
