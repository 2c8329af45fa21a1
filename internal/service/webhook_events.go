package service

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v76"

	"github.com/cicconel11/TeamNetwork-sub008/internal/models"
)

// EventPayload is the decoded, typed form of a provider event. Exactly one
// of the concrete types below is returned by DecodeEvent.
type EventPayload interface {
	eventPayload()
}

type CheckoutCompleted struct {
	Session *stripe.CheckoutSession
}

type CheckoutExpired struct {
	Session *stripe.CheckoutSession
}

type PaymentSucceeded struct {
	Intent *stripe.PaymentIntent
}

type PaymentFailed struct {
	Intent         *stripe.PaymentIntent
	FailureMessage string
}

type SubscriptionChanged struct {
	Subscription *stripe.Subscription
	// Deleted is set for customer.subscription.deleted.
	Deleted bool
}

type InvoiceSettled struct {
	Invoice *stripe.Invoice
	Paid    bool
}

// UnknownEvent is any type this service does not reconcile.
type UnknownEvent struct {
	Type string
}

func (CheckoutCompleted) eventPayload()   {}
func (CheckoutExpired) eventPayload()     {}
func (PaymentSucceeded) eventPayload()    {}
func (PaymentFailed) eventPayload()       {}
func (SubscriptionChanged) eventPayload() {}
func (InvoiceSettled) eventPayload()      {}
func (UnknownEvent) eventPayload()        {}

// DecodeEvent maps a verified event onto its typed payload.
func DecodeEvent(event *stripe.Event) (EventPayload, error) {
	if event.Data == nil {
		return nil, fmt.Errorf("event %s has no data", event.ID)
	}
	raw := event.Data.Raw

	switch string(event.Type) {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(raw, &session); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		return CheckoutCompleted{Session: &session}, nil

	case "checkout.session.expired", "checkout.session.async_payment_failed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(raw, &session); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		return CheckoutExpired{Session: &session}, nil

	case "payment_intent.succeeded":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(raw, &intent); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		return PaymentSucceeded{Intent: &intent}, nil

	case "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(raw, &intent); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		failed := PaymentFailed{Intent: &intent}
		if intent.LastPaymentError != nil {
			failed.FailureMessage = intent.LastPaymentError.Msg
		}
		return failed, nil

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		return SubscriptionChanged{
			Subscription: &sub,
			Deleted:      event.Type == "customer.subscription.deleted",
		}, nil

	case "invoice.paid", "invoice.payment_succeeded", "invoice.payment_failed":
		var invoice stripe.Invoice
		if err := json.Unmarshal(raw, &invoice); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", err)
		}
		return InvoiceSettled{Invoice: &invoice, Paid: event.Type != "invoice.payment_failed"}, nil

	default:
		return UnknownEvent{Type: string(event.Type)}, nil
	}
}

// snapshotEvent is what the ledger keeps of an event. Object bodies carry
// donor details, so only identifiers are stored.
func snapshotEvent(event *stripe.Event) []byte {
	snap := models.EventSnapshot{
		ID:       event.ID,
		Type:     string(event.Type),
		Account:  event.Account,
		Livemode: event.Livemode,
		Created:  event.Created,
	}
	if event.Data != nil {
		var obj struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(event.Data.Raw, &obj) == nil {
			snap.ObjectID = obj.ID
		}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return []byte("{}")
	}
	return data
}
