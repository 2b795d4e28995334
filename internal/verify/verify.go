// Package verify delivers one-time codes over SMS and email during KYC.
// Providers are interchangeable; a timeout wrapper enforces the delivery
// deadline so a hung gateway reads as a send failure, not a stuck wizard.
package verify

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// DeliveryTimeout bounds one OTP send. A provider that does not answer in
// time counts as failed and the user is offered a retry.
const DeliveryTimeout = 15 * time.Second

// CodeSender delivers a one-time code to a destination (phone number or
// email address, depending on the provider).
type CodeSender interface {
	SendCode(ctx context.Context, destination, code string) error
}

// GenerateCode returns a random numeric code of the given length.
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		length = 5
	}

	max := big.NewInt(10)
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("verify: generate code: %w", err)
		}
		code[i] = byte('0' + n.Int64())
	}
	return string(code), nil
}

// WithTimeout wraps a sender so every delivery runs under DeliveryTimeout.
func WithTimeout(sender CodeSender) CodeSender {
	return timeoutSender{next: sender}
}

type timeoutSender struct {
	next CodeSender
}

func (s timeoutSender) SendCode(ctx context.Context, destination, code string) error {
	ctx, cancel := context.WithTimeout(ctx, DeliveryTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.next.SendCode(ctx, destination, code)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("verify: delivery timed out: %w", ctx.Err())
	}
}
