package payment

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"momo-subscription/internal/domain"
	"momo-subscription/internal/domain/model"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Webhook-Signature"

// statusPayload is the provider's transaction shape, shared by the status
// endpoint and webhook pushes.
type statusPayload struct {
	TransID          string `json:"transId"`
	Status           string `json:"status"`
	Medium           string `json:"medium"`
	Amount           int64  `json:"amount"`
	Revenue          *int64 `json:"revenue"`
	PayerName        string `json:"payerName"`
	Email            string `json:"email"`
	ExternalID       string `json:"externalId"`
	UserID           string `json:"userId"`
	FinancialTransID string `json:"financialTransId"`
	DateInitiated    string `json:"dateInitiated"`
	DateConfirmed    string `json:"dateConfirmed"`
}

func (s statusPayload) toProvider() (model.ProviderTransaction, error) {
	if strings.TrimSpace(s.TransID) == "" {
		return model.ProviderTransaction{}, fmt.Errorf("%w: missing transId", domain.ErrInvalidPayload)
	}
	if strings.TrimSpace(s.Status) == "" {
		return model.ProviderTransaction{}, fmt.Errorf("%w: missing status", domain.ErrInvalidPayload)
	}
	if s.Amount < 0 || (s.Revenue != nil && *s.Revenue < 0) {
		return model.ProviderTransaction{}, fmt.Errorf("%w: negative amount", domain.ErrInvalidPayload)
	}
	p := model.ProviderTransaction{
		TransID:          s.TransID,
		Status:           strings.ToUpper(strings.TrimSpace(s.Status)),
		Amount:           s.Amount,
		Revenue:          s.Revenue,
		Medium:           s.Medium,
		FinancialTransID: s.FinancialTransID,
		ExternalID:       s.ExternalID,
		UserID:           s.UserID,
		PayerName:        s.PayerName,
		Email:            s.Email,
	}
	if t, ok := parseProviderTime(s.DateInitiated); ok {
		p.DateInitiated = &t
	}
	if t, ok := parseProviderTime(s.DateConfirmed); ok {
		p.DateConfirmed = &t
	}
	return p, nil
}

// decodeEvent turns a raw push body into a validated provider view.
func decodeEvent(raw []byte) (model.ProviderTransaction, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return model.ProviderTransaction{}, fmt.Errorf("%w: body is not a JSON object", domain.ErrInvalidPayload)
	}
	var s statusPayload
	if err := json.Unmarshal(raw, &s); err != nil {
		return model.ProviderTransaction{}, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return s.toProvider()
}

// verifySignature is a no-op when no secret is configured.
func verifySignature(secret string, raw []byte, signature string) error {
	if secret == "" {
		return nil
	}
	got, err := hex.DecodeString(strings.TrimSpace(strings.TrimPrefix(signature, "sha256=")))
	if err != nil || len(got) == 0 {
		return fmt.Errorf("%w: missing or malformed signature", domain.ErrInvalidPayload)
	}
	if !hmac.Equal(got, sign(secret, raw)) {
		return fmt.Errorf("%w: signature mismatch", domain.ErrInvalidPayload)
	}
	return nil
}

func sign(secret string, raw []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(raw)
	return mac.Sum(nil)
}

// SignWebhook returns the header value a provider would send for raw.
func SignWebhook(secret string, raw []byte) string {
	return hex.EncodeToString(sign(secret, raw))
}

var providerTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseProviderTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range providerTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
