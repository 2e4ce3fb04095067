package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PayoutKind enumerates the supported cash-out rails.
type PayoutKind string

const (
	PayoutPaypal PayoutKind = "paypal"
	PayoutBank   PayoutKind = "bank"
	PayoutCrypto PayoutKind = "crypto"
)

// ParsePayoutKind maps a request value back to its enum value.
func ParsePayoutKind(raw string) (PayoutKind, error) {
	switch PayoutKind(strings.ToLower(strings.TrimSpace(raw))) {
	case PayoutPaypal, PayoutBank, PayoutCrypto:
		return PayoutKind(strings.ToLower(strings.TrimSpace(raw))), nil
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidPayoutMethod, raw)
}

// PayoutMethod is a tagged variant over the closed set of payout rails.
// Exactly the detail field matching Kind must be set; validation happens at
// the boundary, before the method reaches the ledger.
type PayoutMethod struct {
	Kind         PayoutKind `json:"kind"`
	PaypalEmail  string     `json:"paypal_email,omitempty"`
	BankAccount  string     `json:"bank_account,omitempty"`
	CryptoWallet string     `json:"crypto_wallet,omitempty"`
}

// Validate checks the detail field required by the tagged kind.
func (method PayoutMethod) Validate() error {
	switch method.Kind {
	case PayoutPaypal:
		if strings.TrimSpace(method.PaypalEmail) == "" {
			return fmt.Errorf("%w: paypal email is required", ErrInvalidPayoutMethod)
		}
	case PayoutBank:
		if strings.TrimSpace(method.BankAccount) == "" {
			return fmt.Errorf("%w: bank account is required", ErrInvalidPayoutMethod)
		}
	case PayoutCrypto:
		if strings.TrimSpace(method.CryptoWallet) == "" {
			return fmt.Errorf("%w: crypto wallet is required", ErrInvalidPayoutMethod)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidPayoutMethod, method.Kind)
	}
	return nil
}

// Metadata serializes the method into ledger entry metadata.
func (method PayoutMethod) Metadata() (MetadataJSON, error) {
	if err := method.Validate(); err != nil {
		return MetadataJSON{}, err
	}
	raw, err := json.Marshal(method)
	if err != nil {
		return MetadataJSON{}, fmt.Errorf("%w: %v", ErrInvalidPayoutMethod, err)
	}
	return NewMetadataJSON(string(raw))
}
