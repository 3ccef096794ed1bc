// File: internal/infra/adapters/payment/fapshi_gateway.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"momo-subscription/internal/config"
	"momo-subscription/internal/domain"
	"momo-subscription/internal/domain/model"
	"momo-subscription/internal/domain/ports/adapter"
	"momo-subscription/internal/infra/metrics"
)

var _ adapter.PaymentGateway = (*FapshiGateway)(nil)

// FapshiGateway implements adapter.PaymentGateway against the Fapshi
// mobile-money collection API (direct-pay + payment-status).
type FapshiGateway struct {
	baseURL       string
	apiUser       string
	apiKey        string
	webhookSecret string
	client        *http.Client
	retry         retryPolicy
	log           *zerolog.Logger
}

func NewFapshiGateway(cfg config.GatewayConfig, logger *zerolog.Logger) (*FapshiGateway, error) {
	if cfg.APIUser == "" || cfg.APIKey == "" {
		return nil, errors.New("fapshi: api user and api key are required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("fapshi: invalid base url %q", cfg.BaseURL)
	}
	l := logger.With().Str("component", "fapshi_gateway").Logger()
	return &FapshiGateway{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiUser:       cfg.APIUser,
		apiKey:        cfg.APIKey,
		webhookSecret: cfg.WebhookSecret,
		// per-attempt deadlines come from retryPolicy; no client-wide timeout
		client: &http.Client{},
		retry: retryPolicy{
			attempts:   cfg.MaxAttempts,
			base:       cfg.BackoffBase,
			perAttempt: cfg.Timeout,
		},
		log: &l,
	}, nil
}

func (g *FapshiGateway) Name() string { return "fapshi" }

type directPayRequest struct {
	Amount     int64  `json:"amount"`
	Phone      string `json:"phone"`
	Medium     string `json:"medium,omitempty"`
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	UserID     string `json:"userId,omitempty"`
	ExternalID string `json:"externalId"`
	Message    string `json:"message,omitempty"`
}

type directPayResponse struct {
	Message       string `json:"message"`
	TransID       string `json:"transId"`
	DateInitiated string `json:"dateInitiated"`
}

// InitiatePayment calls POST /direct-pay.
func (g *FapshiGateway) InitiatePayment(ctx context.Context, req adapter.InitiateRequest) (adapter.InitiateResult, error) {
	body, err := json.Marshal(directPayRequest{
		Amount:     req.Amount,
		Phone:      req.Phone,
		Medium:     req.Medium,
		Name:       req.PayerName,
		Email:      req.PayerEmail,
		UserID:     req.UserID,
		ExternalID: req.ExternalID,
		Message:    req.Message,
	})
	if err != nil {
		return adapter.InitiateResult{}, fmt.Errorf("fapshi: encode direct-pay: %w", err)
	}

	var out directPayResponse
	err = g.retry.do(ctx, "initiate", func(ctx context.Context) error {
		return g.call(ctx, "initiate", http.MethodPost, "/direct-pay", body, &out)
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// direct-pay has no not-found case; treat as a permanent refusal
			return adapter.InitiateResult{}, fmt.Errorf("%w: %w", domain.ErrGatewayRejected, err)
		}
		return adapter.InitiateResult{}, err
	}
	if out.TransID == "" {
		return adapter.InitiateResult{}, fmt.Errorf("%w: direct-pay response has no transId", domain.ErrGatewayRejected)
	}

	res := adapter.InitiateResult{GatewayTransID: out.TransID, DateInitiated: time.Now()}
	if t, ok := parseProviderTime(out.DateInitiated); ok {
		res.DateInitiated = t
	}
	g.log.Debug().Str("gateway_trans_id", out.TransID).Str("external_id", req.ExternalID).Msg("direct-pay accepted")
	return res, nil
}

// GetStatus calls GET /payment-status/{transId}.
func (g *FapshiGateway) GetStatus(ctx context.Context, gatewayTransID string) (model.ProviderTransaction, error) {
	if gatewayTransID == "" {
		return model.ProviderTransaction{}, domain.ErrInvalidArgument
	}
	var out statusPayload
	err := g.retry.do(ctx, "status", func(ctx context.Context) error {
		return g.call(ctx, "status", http.MethodGet, "/payment-status/"+url.PathEscape(gatewayTransID), nil, &out)
	})
	if err != nil {
		return model.ProviderTransaction{}, err
	}
	p, err := out.toProvider()
	if err != nil {
		return model.ProviderTransaction{}, fmt.Errorf("%w: status response: %w", domain.ErrGatewayUnavailable, err)
	}
	return p, nil
}

// ValidateWebhookPayload checks the optional HMAC signature and decodes the
// push body.
func (g *FapshiGateway) ValidateWebhookPayload(raw []byte, signature string) (model.ProviderTransaction, error) {
	if err := verifySignature(g.webhookSecret, raw, signature); err != nil {
		return model.ProviderTransaction{}, err
	}
	return decodeEvent(raw)
}

// call performs one HTTP attempt and classifies the outcome for retryPolicy.
func (g *FapshiGateway) call(ctx context.Context, op, method, path string, body []byte, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("fapshi: build request: %w", err)
	}
	req.Header.Set("apiuser", g.apiUser)
	req.Header.Set("apikey", g.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		metrics.ObserveGatewayCall(op, "retry", time.Since(start).Seconds())
		return retryable(fmt.Errorf("fapshi %s: %w", op, err))
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.ObserveGatewayCall(op, "retry", time.Since(start).Seconds())
		return retryable(fmt.Errorf("fapshi %s: read body: %w", op, err))
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// The provider accepted the request; repeating it could charge twice.
		if err := json.Unmarshal(payload, out); err != nil {
			metrics.ObserveGatewayCall(op, "bad_response", time.Since(start).Seconds())
			return fmt.Errorf("%w: fapshi %s: decode response: %w", domain.ErrGatewayUnavailable, op, err)
		}
		metrics.ObserveGatewayCall(op, "ok", time.Since(start).Seconds())
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		metrics.ObserveGatewayCall(op, "retry", time.Since(start).Seconds())
		return retryable(fmt.Errorf("fapshi %s: http %d: %s", op, resp.StatusCode, providerMessage(payload)))
	case resp.StatusCode == http.StatusNotFound:
		metrics.ObserveGatewayCall(op, "not_found", time.Since(start).Seconds())
		return fmt.Errorf("fapshi %s: %w", op, domain.ErrNotFound)
	default:
		metrics.ObserveGatewayCall(op, "rejected", time.Since(start).Seconds())
		return fmt.Errorf("%w: fapshi %s: http %d: %s", domain.ErrGatewayRejected, op, resp.StatusCode, providerMessage(payload))
	}
}

func providerMessage(payload []byte) string {
	var m struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(payload, &m) == nil && m.Message != "" {
		return m.Message
	}
	s := strings.TrimSpace(string(payload))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
