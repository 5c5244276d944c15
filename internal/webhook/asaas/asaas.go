// Package asaas normalizes Asaas webhook deliveries into canonical billing
// events.
package asaas

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/faturolabs/faturo/internal/usage/domain"
	webhookdomain "github.com/faturolabs/faturo/internal/webhook/domain"
)

const (
	ProviderName = "asaas"

	// AccessTokenHeader carries the shared secret configured in the Asaas
	// dashboard; it is the only authentication on the webhook endpoint.
	AccessTokenHeader = "asaas-access-token"
)

type Adapter struct {
	token string
}

func NewAdapter(token string) *Adapter {
	return &Adapter{token: strings.TrimSpace(token)}
}

func (a *Adapter) Provider() string { return ProviderName }

// Verify compares the access-token header against the configured secret in
// constant time. It runs before any parsing, so a forged delivery has no
// side effects.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.token == "" {
		return webhookdomain.ErrUnauthorized
	}
	got := strings.TrimSpace(headers.Get(AccessTokenHeader))
	if got == "" {
		return webhookdomain.ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(a.token)) != 1 {
		return webhookdomain.ErrUnauthorized
	}
	return nil
}

type envelope struct {
	ID           string        `json:"id"`
	Event        string        `json:"event"`
	DateCreated  string        `json:"dateCreated"`
	Payment      *payment      `json:"payment"`
	Subscription *subscription `json:"subscription"`
}

type payment struct {
	ID                string  `json:"id"`
	ExternalReference string  `json:"externalReference"`
	Value             float64 `json:"value"`
	Subscription      string  `json:"subscription"`
}

type subscription struct {
	ID                string `json:"id"`
	ExternalReference string `json:"externalReference"`
}

// Parse validates the Asaas envelope and maps the provider event type onto
// the canonical vocabulary. Unknown fields are ignored; unknown event types
// yield an InboundEvent with an empty canonical type.
func (a *Adapter) Parse(ctx context.Context, payload []byte) (*webhookdomain.InboundEvent, error) {
	if !json.Valid(payload) {
		return nil, webhookdomain.ErrMalformedPayload
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, webhookdomain.ErrMalformedPayload
	}

	env.ID = strings.TrimSpace(env.ID)
	env.Event = strings.TrimSpace(env.Event)
	if env.ID == "" || env.Event == "" {
		return nil, webhookdomain.ErrMalformedPayload
	}
	if env.Payment == nil && env.Subscription == nil {
		return nil, webhookdomain.ErrMalformedPayload
	}

	event := &webhookdomain.InboundEvent{
		Provider:          ProviderName,
		ProviderEventID:   env.ID,
		ProviderEventType: env.Event,
		Type:              canonicalType(env.Event),
		TenantID:          tenantReference(env),
		OccurredAt:        occurredAt(env.DateCreated),
		RawPayload:        payload,
	}
	return event, nil
}

func canonicalType(event string) usagedomain.EventType {
	switch strings.ToUpper(event) {
	case "PAYMENT_CONFIRMED", "PAYMENT_RECEIVED":
		return usagedomain.EventPaymentConfirmed
	case "PAYMENT_OVERDUE":
		return usagedomain.EventPaymentFailed
	case "PAYMENT_REFUNDED":
		return usagedomain.EventPaymentRefunded
	case "SUBSCRIPTION_DELETED", "SUBSCRIPTION_INACTIVATED":
		return usagedomain.EventSubscriptionCanceled
	default:
		return ""
	}
}

// Asaas echoes back the externalReference set when the charge or
// subscription was created; it carries our tenant ID.
func tenantReference(env envelope) snowflake.ID {
	ref := ""
	if env.Payment != nil {
		ref = strings.TrimSpace(env.Payment.ExternalReference)
	}
	if ref == "" && env.Subscription != nil {
		ref = strings.TrimSpace(env.Subscription.ExternalReference)
	}
	if ref == "" {
		return 0
	}
	id, err := snowflake.ParseString(ref)
	if err != nil {
		return 0
	}
	return id
}

func occurredAt(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Now().UTC()
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02", time.RFC3339} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC()
		}
	}
	return time.Now().UTC()
}
