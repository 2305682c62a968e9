package testutil

import (
	"context"

	"github.com/google/uuid"
	"github.com/sevendrop/backend/pkg/pi"
)

type MockPiClient struct {
	GetPaymentFunc                  func(ctx context.Context, id string) (*pi.Payment, error)
	ApprovePaymentFunc              func(ctx context.Context, id string) (*pi.Payment, error)
	CompletePaymentFunc             func(ctx context.Context, id, txid string) (*pi.Payment, error)
	CreatePaymentFunc               func(ctx context.Context, args pi.PaymentArgs) (*pi.Payment, error)
	GetIncompleteServerPaymentsFunc func(ctx context.Context) ([]pi.Payment, error)

	// Created records the arguments of every CreatePayment call.
	Created []pi.PaymentArgs

	// Completed records the txid of every CompletePayment call.
	Completed []string
}

func (m *MockPiClient) GetPayment(ctx context.Context, id string) (*pi.Payment, error) {
	if m.GetPaymentFunc != nil {
		return m.GetPaymentFunc(ctx, id)
	}

	return &pi.Payment{Identifier: id}, nil
}

func (m *MockPiClient) ApprovePayment(ctx context.Context, id string) (*pi.Payment, error) {
	if m.ApprovePaymentFunc != nil {
		return m.ApprovePaymentFunc(ctx, id)
	}

	return &pi.Payment{Identifier: id}, nil
}

func (m *MockPiClient) CompletePayment(ctx context.Context, id, txid string) (*pi.Payment, error) {
	m.Completed = append(m.Completed, txid)
	if m.CompletePaymentFunc != nil {
		return m.CompletePaymentFunc(ctx, id, txid)
	}

	return &pi.Payment{Identifier: id}, nil
}

func (m *MockPiClient) CreatePayment(ctx context.Context, args pi.PaymentArgs) (*pi.Payment, error) {
	m.Created = append(m.Created, args)
	if m.CreatePaymentFunc != nil {
		return m.CreatePaymentFunc(ctx, args)
	}

	return &pi.Payment{
		Identifier: uuid.NewString(),
		UserUID:    args.UID,
		Amount:     args.Amount,
		Memo:       args.Memo,
		Metadata:   args.Metadata,
		ToAddress:  "G" + args.UID,
		Direction:  "app_to_user",
	}, nil
}

func (m *MockPiClient) GetIncompleteServerPayments(ctx context.Context) ([]pi.Payment, error) {
	if m.GetIncompleteServerPaymentsFunc != nil {
		return m.GetIncompleteServerPaymentsFunc(ctx)
	}

	return nil, nil
}

type MockSigner struct {
	SubmitPaymentFunc func(ctx context.Context, payment *pi.Payment) (string, error)

	// Submitted records the identifier of every submitted payment.
	Submitted []string
}

func (m *MockSigner) SubmitPayment(ctx context.Context, payment *pi.Payment) (string, error) {
	m.Submitted = append(m.Submitted, payment.Identifier)
	if m.SubmitPaymentFunc != nil {
		return m.SubmitPaymentFunc(ctx, payment)
	}

	return "tx-" + payment.Identifier, nil
}
