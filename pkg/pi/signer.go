package pi

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sevendrop/backend/pkg/api"
)

// Signer signs and submits the blockchain transaction of an app-to-user
// payment, and returns its txid. The app wallet seed never leaves the signer.
type Signer interface {
	SubmitPayment(ctx context.Context, payment *Payment) (string, error)
}

type signer struct {
	apiGenerator api.Generator
	token        string
	timeout      time.Duration
}

func NewSigner(endpoint, token string, timeout time.Duration) *signer {
	return &signer{
		apiGenerator: api.NewGenerator(endpoint),
		token:        token,
		timeout:      timeout,
	}
}

func (s *signer) SubmitPayment(ctx context.Context, payment *Payment) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	// The payment identifier makes a repeated submission return the first
	// transaction instead of paying twice.
	req := s.apiGenerator.New("/submit").
		Header("Idempotency-Key", payment.Identifier).
		Body(api.JSON{
			"payment_id": payment.Identifier,
			"amount":     json.Number(payment.Amount.String()),
			"to_address": payment.ToAddress,
			"network":    payment.Network,
		})

	resp, err := req.POST(ctx, api.Authorization("Bearer", s.token))
	if err != nil {
		return "", err
	}

	if !resp.OK() {
		return "", &Error{StatusCode: resp.Code, Body: string(resp.RawBody)}
	}

	var result struct {
		TxID string `json:"txid"`
	}
	if err := resp.Decode(&result); err != nil {
		return "", err
	}

	if result.TxID == "" {
		return "", errors.New("signer returned no txid")
	}

	return result.TxID, nil
}
