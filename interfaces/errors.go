package interfaces

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/params"
)

var (
	// ErrBadRequest is returned when a required input is missing or malformed.
	ErrBadRequest = errors.New("bad request")

	// ErrForbidden is returned when the asserted wallet does not belong to the institution.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned for a missing registry entry, transaction or certificate.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a uniqueness invariant would be violated.
	ErrConflict = errors.New("conflict")

	// ErrAlreadyRevoked is returned when revoking a certificate that is already revoked.
	ErrAlreadyRevoked = fmt.Errorf("%w: certificate already revoked", ErrConflict)

	// ErrInsufficientFunds is returned when a wallet balance is below the required reserve.
	// The concrete error is always an *InsufficientFundsError.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrUpstreamUnavailable is returned when a ledger RPC endpoint cannot be reached.
	// Callers may retry.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// InsufficientFundsError carries the observed balance of the wallet.
type InsufficientFundsError struct {
	Wallet   string
	Balance  *big.Int
	Required *big.Int
}

// Error returns a message naming both amounts in ether.
func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: wallet %s holds %s ether, at least %s ether required",
		e.Wallet, FormatEther(e.Balance), FormatEther(e.Required))
}

// Is makes errors.Is(err, ErrInsufficientFunds) work.
func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// FormatEther renders a wei amount as a decimal ether string without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	sign := ""
	abs := new(big.Int).Set(wei)
	if abs.Sign() < 0 {
		sign = "-"
		abs.Neg(abs)
	}
	whole, frac := new(big.Int).QuoRem(abs, big.NewInt(params.Ether), new(big.Int))
	if frac.Sign() == 0 {
		return sign + whole.String()
	}
	fracStr := frac.String()
	fracStr = strings.TrimRight(strings.Repeat("0", 18-len(fracStr))+fracStr, "0")
	return sign + whole.String() + "." + fracStr
}

// ParseEther converts a decimal ether amount such as "0.002" into wei.
func ParseEther(amount string) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	whole, frac, _ := strings.Cut(amount, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 18 {
		return nil, fmt.Errorf("invalid ether amount %q: more than 18 decimals", amount)
	}
	wei, ok := new(big.Int).SetString(whole+frac+strings.Repeat("0", 18-len(frac)), 10)
	if !ok || wei.Sign() < 0 {
		return nil, fmt.Errorf("invalid ether amount %q", amount)
	}
	return wei, nil
}
