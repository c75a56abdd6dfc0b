package billing

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"coloring-pages/internal/apperr"
	"coloring-pages/internal/catalog"
	"coloring-pages/internal/db"
	"coloring-pages/internal/models"
	"coloring-pages/pkg/logger"

	"github.com/google/uuid"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Groovesell-Signature"

// SalesEvent is a sales-channel notification with its field-name variants
// resolved.
type SalesEvent struct {
	Type             string
	Email            string
	ProductID        string
	TransactionID    string
	FullName         string
	PaymentProcessor string
	Amount           string
	Trial            bool
}

func (e SalesEvent) IsPurchase() bool {
	switch e.Type {
	case "sales", "purchase", "subscription_created", "payment_completed":
		return true
	}
	return false
}

func (e SalesEvent) IsRenewal() bool {
	return e.Type == "subscription_renewed" || e.Type == "rebill"
}

// VerifySalesSignature compares in constant time.
func VerifySalesSignature(body []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.ToLower(strings.TrimSpace(signature))), []byte(expected))
}

// ParseSalesEvent reads the loosely shaped payload. Fields may sit at the top
// level or under "data", and most have more than one possible name.
func ParseSalesEvent(body []byte) (SalesEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return SalesEvent{}, apperr.Validation(apperr.CodeInvalidParameter, "Invalid JSON")
	}

	data := payload
	if nested, ok := payload["data"].(map[string]any); ok {
		data = nested
	}

	ev := SalesEvent{
		Type:             firstString(payload, "event", "type"),
		Email:            strings.TrimSpace(firstString(data, "buyer_email", "customer_email", "email")),
		ProductID:        firstString(data, "product_id", "product.id", "offer_id", "offer.id", "sku", "checkout_id"),
		TransactionID:    firstString(data, "transaction_id", "invoice_id", "id"),
		PaymentProcessor: firstString(data, "payment_processor"),
		Amount:           firstString(data, "amount"),
		Trial:            firstString(data, "trial_transaction") == "1",
	}

	first := firstString(data, "buyer_first_name", "customer_first_name")
	last := firstString(data, "buyer_last_name", "customer_last_name")
	ev.FullName = strings.TrimSpace(first + " " + last)
	if ev.FullName == "" {
		ev.FullName = firstString(data, "customer_name", "name")
	}
	if ev.FullName == "" && ev.Email != "" {
		ev.FullName, _, _ = strings.Cut(ev.Email, "@")
	}
	if ev.FullName == "" {
		ev.FullName = "User"
	}
	return ev, nil
}

// firstString returns the first non-empty value among keys. A dotted key
// looks one level into a nested object.
func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		var v any
		if parent, child, nested := strings.Cut(key, "."); nested {
			obj, ok := m[parent].(map[string]any)
			if !ok {
				continue
			}
			v = obj[child]
		} else {
			v = m[key]
		}
		if s := stringify(v); s != "" {
			return s
		}
	}
	return ""
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// HandleSalesEvent applies a verified sales-channel notification.
func (r *Reconciler) HandleSalesEvent(ctx context.Context, ev SalesEvent) (*Outcome, error) {
	log := r.log.With("event_type", ev.Type, "transaction_id", ev.TransactionID, "product_id", ev.ProductID)

	switch {
	case ev.IsPurchase():
		return r.salesPurchase(ctx, log, ev)
	case ev.IsRenewal():
		return r.salesRenewal(ctx, log, ev)
	case ev.Type == "refund":
		log.Infow("refund received, credits unchanged")
		return &Outcome{Ignored: true, Message: "Refund noted"}, nil
	default:
		log.Infow("unhandled sales event type")
		return &Outcome{Ignored: true, Message: "Event acknowledged"}, nil
	}
}

func (r *Reconciler) salesPurchase(ctx context.Context, log *logger.Logger, ev SalesEvent) (*Outcome, error) {
	if ev.Email == "" && ev.PaymentProcessor == "test" {
		log.Infow("test transaction without email acknowledged", "amount", ev.Amount, "trial", ev.Trial)
		return &Outcome{Ignored: true, Message: "Test transaction acknowledged (no email provided)"}, nil
	}
	if ev.Email == "" {
		return nil, apperr.MissingParameter("Missing email")
	}

	grant, ok := catalog.ProductGrant(ev.ProductID)
	if !ok {
		log.Warnw("unknown sales product, applying default grant", "credits", catalog.DefaultPurchaseGrant.Credits)
		grant = catalog.DefaultPurchaseGrant
	}

	profile, err := r.getOrCreateProfile(ctx, ev.Email, ev.FullName)
	if err != nil {
		return nil, err
	}

	out, err := r.apply(ctx, log, r.salesGrant(ev, profile.ID, grant))
	if err != nil {
		return nil, err
	}
	out.Message = "Webhook processed successfully"
	log.Infow("sales purchase applied", "user_id", profile.ID, "credits", grant.Credits, "balance", out.NewBalance, "duplicate", out.Duplicate)
	return out, nil
}

func (r *Reconciler) salesRenewal(ctx context.Context, log *logger.Logger, ev SalesEvent) (*Outcome, error) {
	if ev.Email == "" {
		return nil, apperr.MissingParameter("Missing email")
	}

	grant, ok := catalog.ProductGrant(ev.ProductID)
	if !ok {
		grant = catalog.DefaultRenewalGrant
	}

	profile, err := r.profiles.FindByEmail(ctx, ev.Email)
	if errors.Is(err, db.ErrNotFound) {
		log.Warnw("renewal for unknown buyer", "email", ev.Email)
		return nil, apperr.NotFound(apperr.CodeUserNotFound, "User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("find profile by email: %w", err)
	}

	out, err := r.apply(ctx, log, r.salesGrant(ev, profile.ID, grant))
	if err != nil {
		return nil, err
	}
	out.Message = "Recurring payment processed successfully"
	log.Infow("sales renewal applied", "user_id", profile.ID, "credits", grant.Credits, "balance", out.NewBalance, "duplicate", out.Duplicate)
	return out, nil
}

func (r *Reconciler) salesGrant(ev SalesEvent, userID string, g catalog.Grant) models.CreditGrant {
	grant := models.CreditGrant{
		Source:  SourceGrooveSell,
		UserID:  userID,
		Credits: g.Credits,
		Tier:    g.Tier,
	}
	if ev.TransactionID != "" {
		grant.IdempotencyKey = SourceGrooveSell + ":" + ev.TransactionID
	}
	return grant
}

// getOrCreateProfile creates a bare profile for first-time buyers. Sign-in
// credentials are issued by the auth provider, not here.
func (r *Reconciler) getOrCreateProfile(ctx context.Context, email, fullName string) (*models.Profile, error) {
	profile, err := r.profiles.FindByEmail(ctx, email)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("find profile by email: %w", err)
	}

	profile = &models.Profile{
		ID:               uuid.NewString(),
		Email:            email,
		FullName:         fullName,
		Credits:          0,
		SubscriptionTier: models.TierFree,
	}
	if err := r.profiles.CreateProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	r.log.Infow("profile created for sales buyer", "user_id", profile.ID, "email", email)
	return profile, nil
}
