package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// PaymentProcessor charges and refunds booking payments. The orchestrator
// only sees this interface; the gateway integration lives behind it.
type PaymentProcessor interface {
	Charge(ctx context.Context, reference string, amount float64, currency string) (paymentID string, err error)
	Refund(ctx context.Context, paymentID string) error
}

// SandboxPaymentProcessor approves every charge. Used in development and
// test environments where no gateway is wired up.
type SandboxPaymentProcessor struct {
	logger *logrus.Logger
}

// NewSandboxPaymentProcessor creates a sandbox payment processor
func NewSandboxPaymentProcessor(logger *logrus.Logger) *SandboxPaymentProcessor {
	return &SandboxPaymentProcessor{logger: logger}
}

// Charge approves the payment and returns a synthetic payment ID.
func (p *SandboxPaymentProcessor) Charge(ctx context.Context, reference string, amount float64, currency string) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("invalid payment amount: %.2f", amount)
	}
	paymentID := "SBX-" + strings.ToUpper(uuid.New().String()[:12])
	p.logger.WithFields(logrus.Fields{
		"reference":  reference,
		"amount":     amount,
		"currency":   currency,
		"payment_id": paymentID,
	}).Info("Sandbox payment approved")
	return paymentID, nil
}

// Refund approves the refund.
func (p *SandboxPaymentProcessor) Refund(ctx context.Context, paymentID string) error {
	p.logger.WithField("payment_id", paymentID).Info("Sandbox refund approved")
	return nil
}
