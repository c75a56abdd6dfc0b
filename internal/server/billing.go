package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"coloring-pages/internal/apperr"
	"coloring-pages/internal/billing"
	"coloring-pages/internal/catalog"
	"coloring-pages/internal/db"

	"github.com/go-chi/chi/v5"
)

const maxWebhookBody = 1 << 20

type packageView struct {
	catalog.Package
	PricePerCredit string `json:"pricePerCredit"`
}

func (s *Server) handleCreditPackages(w http.ResponseWriter, r *http.Request) {
	pkgs := catalog.Packages()
	out := make([]packageView, 0, len(pkgs))
	for _, p := range pkgs {
		out = append(out, packageView{Package: p, PricePerCredit: catalog.PricePerCredit(p.PriceCents, p.Credits)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"packages": out})
}

type profileView struct {
	ID                     string     `json:"id"`
	Email                  string     `json:"email"`
	FullName               string     `json:"fullName"`
	Credits                int        `json:"credits"`
	SubscriptionTier       string     `json:"subscriptionTier"`
	SubscriptionCancelling bool       `json:"subscriptionCancelling"`
	SubscriptionEndDate    *time.Time `json:"subscriptionEndDate,omitempty"`
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Profiles.GetProfile(r.Context(), chi.URLParam(r, "userId"))
	if errors.Is(err, db.ErrNotFound) {
		s.writeError(w, r, apperr.NotFound(apperr.CodeUserNotFound, "User not found"))
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profileView{
		ID:                     p.ID,
		Email:                  p.Email,
		FullName:               p.FullName,
		Credits:                p.Credits,
		SubscriptionTier:       string(p.SubscriptionTier),
		SubscriptionCancelling: p.SubscriptionCancelling,
		SubscriptionEndDate:    p.SubscriptionEndDate,
	})
}

type checkoutRequest struct {
	UserID    string `json:"userId"`
	PackageID string `json:"packageId"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apperr.Validation(apperr.CodeInvalidParameter, "Invalid JSON"))
		return
	}

	res, err := s.deps.Checkout.Build(r.Context(), billing.CheckoutInput{
		UserID:    req.UserID,
		PackageID: req.PackageID,
		Origin:    s.origin(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": res.SessionID, "url": res.URL})
}

// origin is where the buyer is sent back after checkout.
func (s *Server) origin(r *http.Request) string {
	if s.deps.PublicURL != "" {
		return s.deps.PublicURL
	}
	if o := r.Header.Get("Origin"); o != "" {
		return o
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + r.Host
}

func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		s.logger.Errorw("Failed to read request body", "error", err)
		s.writeError(w, r, apperr.Validation(apperr.CodeInvalidParameter, "Failed to read request body"))
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		s.writeError(w, r, apperr.Validation(apperr.CodeInvalidSignature, "Missing signature"))
		return
	}

	event, err := s.deps.Webhooks.VerifyWebhookSignature(body, signature)
	if err != nil {
		s.logger.Warnw("Invalid stripe signature", "error", err)
		s.writeError(w, r, apperr.Validation(apperr.CodeInvalidSignature, "Invalid signature"))
		return
	}

	out, err := s.deps.Reconciler.HandleStripeEvent(r.Context(), event)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"received": true, "duplicate": out.Duplicate})
}

type cancelRequest struct {
	UserID string `json:"userId"`
}

func (s *Server) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apperr.Validation(apperr.CodeInvalidParameter, "Invalid JSON"))
		return
	}

	res, err := s.deps.Canceller.Cancel(r.Context(), req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"message":         res.Message(),
		"cancelDate":      res.EndsAt.UTC().Format(time.RFC3339),
		"keepAccessUntil": res.FormattedDate,
	})
}

func (s *Server) handleGrooveSellWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		s.writeError(w, r, apperr.Validation(apperr.CodeInvalidParameter, "Failed to read request body"))
		return
	}

	signature := strings.TrimSpace(r.Header.Get(billing.SignatureHeader))
	switch {
	case signature != "" && s.deps.GrooveSellSecret != "":
		if !billing.VerifySalesSignature(body, signature, s.deps.GrooveSellSecret) {
			s.logger.Warnw("Invalid sales webhook signature", "remote_ip", r.RemoteAddr)
			s.writeError(w, r, &apperr.Error{Kind: apperr.KindAuth, Code: apperr.CodeInvalidSignature, Message: "Invalid signature"})
			return
		}
	case s.deps.GrooveSellAllowUnsigned:
		s.logger.Warnw("Accepting unsigned sales webhook", "signature_present", signature != "")
	default:
		s.writeError(w, r, &apperr.Error{Kind: apperr.KindAuth, Code: apperr.CodeInvalidSignature, Message: "Invalid signature"})
		return
	}

	ev, err := billing.ParseSalesEvent(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out, err := s.deps.Reconciler.HandleSalesEvent(r.Context(), ev)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   out.Message,
		"userId":    out.UserID,
		"duplicate": out.Duplicate,
	})
}

func (s *Server) handleGrooveSellStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ready",
		"productIds":        catalog.ProductIDs(),
		"signatureRequired": !s.deps.GrooveSellAllowUnsigned,
	})
}
