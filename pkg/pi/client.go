package pi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sevendrop/backend/pkg/api"
	"github.com/shopspring/decimal"
)

type PaymentStatus struct {
	DeveloperApproved   bool `json:"developer_approved"`
	TransactionVerified bool `json:"transaction_verified"`
	DeveloperCompleted  bool `json:"developer_completed"`
	Cancelled           bool `json:"cancelled"`
	UserCancelled       bool `json:"user_cancelled"`
}

type PaymentTransaction struct {
	TxID     string `json:"txid"`
	Verified bool   `json:"verified"`
	Link     string `json:"_link"`
}

type Payment struct {
	Identifier  string              `json:"identifier"`
	UserUID     string              `json:"user_uid"`
	Amount      decimal.Decimal     `json:"amount"`
	Memo        string              `json:"memo"`
	Metadata    map[string]any      `json:"metadata"`
	FromAddress string              `json:"from_address"`
	ToAddress   string              `json:"to_address"`
	Direction   string              `json:"direction"`
	Network     string              `json:"network"`
	Status      PaymentStatus       `json:"status"`
	Transaction *PaymentTransaction `json:"transaction"`
}

// MetadataString returns metadata[key] if it is a string.
func (p Payment) MetadataString(key string) string {
	s, _ := p.Metadata[key].(string)
	return s
}

type PaymentArgs struct {
	Amount   decimal.Decimal
	Memo     string
	Metadata map[string]any
	UID      string
}

type Client interface {
	GetPayment(ctx context.Context, id string) (*Payment, error)
	ApprovePayment(ctx context.Context, id string) (*Payment, error)
	CompletePayment(ctx context.Context, id, txid string) (*Payment, error)

	// CreatePayment starts an app-to-user payment.
	CreatePayment(ctx context.Context, args PaymentArgs) (*Payment, error)
	GetIncompleteServerPayments(ctx context.Context) ([]Payment, error)
}

// Error is a response from the platform with a non 2xx status.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("pi responded %d: %s", e.StatusCode, e.Body)
}

// IsRejected reports whether the platform definitively refused the request.
// Transport errors, timeouts and 5xx responses are not rejections: the
// request may or may not have taken effect.
func IsRejected(err error) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.StatusCode >= 400 && perr.StatusCode < 500
	}

	return false
}

type client struct {
	apiGenerator api.Generator
	apiKey       string
	timeout      time.Duration
}

func NewClient(endpoint, apiKey string, timeout time.Duration) *client {
	return &client{
		apiGenerator: api.NewGenerator(endpoint),
		apiKey:       apiKey,
		timeout:      timeout,
	}
}

func (c *client) GetPayment(ctx context.Context, id string) (*Payment, error) {
	payment := &Payment{}
	if err := c.do(ctx, c.apiGenerator.New("/payments/%s", id), http.MethodGet, payment); err != nil {
		return nil, err
	}

	return payment, nil
}

func (c *client) ApprovePayment(ctx context.Context, id string) (*Payment, error) {
	payment := &Payment{}
	if err := c.do(ctx, c.apiGenerator.New("/payments/%s/approve", id), http.MethodPost, payment); err != nil {
		return nil, err
	}

	return payment, nil
}

func (c *client) CompletePayment(ctx context.Context, id, txid string) (*Payment, error) {
	req := c.apiGenerator.New("/payments/%s/complete", id).Body(api.JSON{"txid": txid})

	payment := &Payment{}
	if err := c.do(ctx, req, http.MethodPost, payment); err != nil {
		return nil, err
	}

	return payment, nil
}

func (c *client) CreatePayment(ctx context.Context, args PaymentArgs) (*Payment, error) {
	req := c.apiGenerator.New("/payments").Body(api.JSON{
		"payment": api.JSON{
			"amount":   json.Number(args.Amount.String()),
			"memo":     args.Memo,
			"metadata": args.Metadata,
			"uid":      args.UID,
		},
	})

	payment := &Payment{}
	if err := c.do(ctx, req, http.MethodPost, payment); err != nil {
		return nil, err
	}

	return payment, nil
}

func (c *client) GetIncompleteServerPayments(ctx context.Context) ([]Payment, error) {
	var resp struct {
		Payments []Payment `json:"incomplete_server_payments"`
	}

	req := c.apiGenerator.New("/payments/incomplete_server_payments")
	if err := c.do(ctx, req, http.MethodGet, &resp); err != nil {
		return nil, err
	}

	return resp.Payments, nil
}

func (c *client) do(ctx context.Context, req api.Client, method string, v any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var resp *api.Response
	var err error
	switch method {
	case http.MethodGet:
		resp, err = req.GET(ctx, api.Authorization("Key", c.apiKey))
	default:
		resp, err = req.POST(ctx, api.Authorization("Key", c.apiKey))
	}
	if err != nil {
		return err
	}

	if !resp.OK() {
		return &Error{StatusCode: resp.Code, Body: string(resp.RawBody)}
	}

	return resp.Decode(v)
}
