package apiv1

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"momo-subscription/internal/domain"
	"momo-subscription/internal/infra/logging"
	"momo-subscription/internal/usecase"
)

const maxWebhookBytes = 1 << 20

// Guard wraps the admin routes; endpoint labels the route for metrics.
type Guard func(endpoint string) func(http.Handler) http.Handler

type Server struct {
	payments  usecase.PaymentUseCase
	webhooks  usecase.WebhookUseCase
	reconcile usecase.ReconcileUseCase
	subs      usecase.SubscriptionUseCase
	sigHeader string
	dev       bool
	log       *zerolog.Logger
}

func NewServer(
	payments usecase.PaymentUseCase,
	webhooks usecase.WebhookUseCase,
	reconcile usecase.ReconcileUseCase,
	subs usecase.SubscriptionUseCase,
	signatureHeader string,
	dev bool,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "apiv1").Logger()
	return &Server{
		payments:  payments,
		webhooks:  webhooks,
		reconcile: reconcile,
		subs:      subs,
		sigHeader: signatureHeader,
		dev:       dev,
		log:       &l,
	}
}

// RegisterAPIV1 mounts the /api/v1 routes on r. A nil guard leaves the admin
// routes open.
func RegisterAPIV1(r chi.Router, s *Server, guard Guard) {
	admin := func(endpoint string, h http.HandlerFunc) http.Handler {
		if guard == nil {
			return h
		}
		return guard(endpoint)(h)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/payments", s.initiate)
		r.Post("/payments/webhook", s.webhook)
		r.Method(http.MethodPost, "/payments/reconcile", admin("reconcile", s.runReconcile))
		r.Method(http.MethodGet, "/payments/{id}", admin("get_payment", s.getPayment))
		r.Method(http.MethodGet, "/payments/{id}/verify", admin("verify_payment", s.verifyPayment))
		r.Method(http.MethodGet, "/users/{userId}/subscription", admin("get_subscription", s.getSubscription))
	})
}

func (s *Server) initiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json body", Code: "validation_error"})
		return
	}
	ctx := logging.WithUserID(r.Context(), req.UserID)

	out, err := s.payments.Initiate(ctx, usecase.InitiateInput{
		UserID:         req.UserID,
		Amount:         req.Amount,
		Phone:          req.Phone,
		Medium:         req.Medium,
		Name:           req.Name,
		Email:          req.Email,
		Message:        req.Message,
		ExternalID:     req.ExternalID,
		SubscriptionID: req.SubscriptionID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	t := out.Transaction
	resp := initiateResponse{
		TransactionID:  t.ID,
		GatewayTransID: t.GatewayID(),
		ExternalID:     t.ExternalID,
		DateInitiated:  t.DateInitiated,
		Status:         t.Status,
	}
	if t.SubscriptionID != nil {
		resp.SubscriptionID = *t.SubscriptionID
	}
	status := http.StatusCreated
	if out.Existing {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

// webhook answers 200 for every payload it could parse, including ones it
// could not apply; only unparseable or unsigned payloads get a 400.
func (s *Server) webhook(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unreadable body", Code: "invalid_payload"})
		return
	}

	out, err := s.webhooks.Handle(r.Context(), raw, r.Header.Get(s.sigHeader))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidPayload) {
			writeError(w, err)
			return
		}
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Str("transaction_id", out.TransactionID).Msg("webhook accepted with internal error")
	}
	writeJSON(w, http.StatusOK, webhookResponse{Result: string(out.Result)})
}

func (s *Server) getPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := s.payments.Get(logging.WithTransactionID(r.Context(), id), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransaction(t, logging.Redact(t.Phone, s.dev)))
}

func (s *Server) verifyPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	item, err := s.reconcile.VerifyNow(logging.WithTransactionID(r.Context(), id), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) runReconcile(w http.ResponseWriter, r *http.Request) {
	report, err := s.reconcile.RunBatch(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) getSubscription(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userId"))
	sub, err := s.subs.FindByUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscription(sub, time.Now()))
}
