package service

import (
	"testing"

	"github.com/stripe/stripe-go/v76"
)

func TestDecodeEvent_PaymentFailedMessage(t *testing.T) {
	withoutError := paymentIntentObject("pi_1", "a1", "requires_payment_method")
	delete(withoutError, "last_payment_error")

	tests := []struct {
		name    string
		object  interface{}
		want    string
		wantErr bool
	}{
		{name: "declined card", object: paymentIntentObject("pi_1", "a1", "requires_payment_method"), want: "Your card was declined."},
		{name: "no last payment error", object: withoutError, want: ""},
		{name: "malformed intent", object: map[string]interface{}{"id": 42}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := DecodeEvent(newEvent("evt_1", "payment_intent.payment_failed", "acct_1", tt.object))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("DecodeEvent() = %#v, want error", payload)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeEvent() error = %v", err)
			}
			failed, ok := payload.(PaymentFailed)
			if !ok {
				t.Fatalf("DecodeEvent() = %T, want PaymentFailed", payload)
			}
			if failed.Intent == nil || failed.Intent.ID != "pi_1" {
				t.Errorf("intent = %+v", failed.Intent)
			}
			if failed.FailureMessage != tt.want {
				t.Errorf("FailureMessage = %q, want %q", failed.FailureMessage, tt.want)
			}
		})
	}
}

func TestDecodeEvent_UnknownType(t *testing.T) {
	payload, err := DecodeEvent(newEvent("evt_1", "charge.refunded", "acct_1", map[string]string{"id": "ch_1"}))
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	if u, ok := payload.(UnknownEvent); !ok || u.Type != "charge.refunded" {
		t.Errorf("DecodeEvent() = %#v", payload)
	}
	if _, err := DecodeEvent(&stripe.Event{ID: "evt_2"}); err == nil {
		t.Error("DecodeEvent() without data returned no error")
	}
}
