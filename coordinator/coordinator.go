// Package coordinator implements the server halves of the wallet handshakes:
// contract deployment, certificate issuance and certificate revocation.
//
// Every handshake is split into Prepare and Confirm. Prepare validates the
// request against the institution directory, the contract registry and the
// live ledger, and returns a descriptor carrying the calldata the institution's
// wallet signs. Confirm runs after the wallet reports a transaction hash and
// performs the off-chain bookkeeping. The backend never holds institution keys.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"strings"

	"github.com/ruteri/certificate-trust-backend/interfaces"
	"github.com/ruteri/certificate-trust-backend/metrics"
)

// Handshake kinds and phases used as metric labels.
const (
	kindIssuance   = "issuance"
	kindRevocation = "revocation"
	kindDeployment = "deployment"

	phasePrepare = "prepare"
	phaseConfirm = "confirm"
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// Config holds the reserves and links used by the coordinators.
type Config struct {
	// MinIssuanceReserve is the balance in wei a wallet must hold to issue or revoke.
	MinIssuanceReserve *big.Int

	// MinDeploymentReserve is the balance in wei a wallet must hold to deploy a contract.
	MinDeploymentReserve *big.Int

	// VerificationBaseURL prefixes the public verification link, <base>/<network>/<txHash>.
	VerificationBaseURL string
}

// DefaultConfig returns reserves of 0.002 ether for issuance and 0.0075 ether for deployment.
func DefaultConfig() Config {
	issuance, _ := interfaces.ParseEther("0.002")
	deployment, _ := interfaces.ParseEther("0.0075")
	return Config{
		MinIssuanceReserve:   issuance,
		MinDeploymentReserve: deployment,
		VerificationBaseURL:  "http://localhost:3000/verify",
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.MinIssuanceReserve == nil {
		c.MinIssuanceReserve = defaults.MinIssuanceReserve
	}
	if c.MinDeploymentReserve == nil {
		c.MinDeploymentReserve = defaults.MinDeploymentReserve
	}
	if c.VerificationBaseURL == "" {
		c.VerificationBaseURL = defaults.VerificationBaseURL
	}
	c.VerificationBaseURL = strings.TrimRight(c.VerificationBaseURL, "/")
	return c
}

// Dependencies are the collaborators shared by the coordinators.
type Dependencies struct {
	Institutions interfaces.InstitutionStore
	Registry     interfaces.ContractRegistry
	Readers      interfaces.ChainReaderFactory
}

// authorize resolves the institution and checks that the wallet asserted by
// the client is the one on record.
func (d Dependencies) authorize(ctx context.Context, institutionID interfaces.InstitutionID, wallet string) (*interfaces.Institution, error) {
	if institutionID == "" {
		return nil, fmt.Errorf("%w: missing institution", interfaces.ErrForbidden)
	}
	institution, err := d.Institutions.Get(ctx, institutionID)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown institution %s", interfaces.ErrForbidden, institutionID)
	}
	if !interfaces.SameWallet(wallet, institution.WalletAddress) {
		return nil, fmt.Errorf("%w: wallet %s does not belong to institution %s", interfaces.ErrForbidden, wallet, institutionID)
	}
	return institution, nil
}

// contractFor returns the reader of the network and the institution's contract on it.
func (d Dependencies) contractFor(ctx context.Context, institutionID interfaces.InstitutionID, network interfaces.NetworkName) (interfaces.ChainReader, *interfaces.ContractRegistration, error) {
	reader, err := d.Readers.ReaderFor(ctx, network)
	if err != nil {
		return nil, nil, err
	}
	registration, err := d.Registry.Lookup(ctx, institutionID, network)
	if err != nil {
		return nil, nil, fmt.Errorf("no contract for institution %s on %s: %w", institutionID, network, err)
	}
	return reader, registration, nil
}

// checkReserve fails with an *InsufficientFundsError when the wallet holds less than required.
func checkReserve(ctx context.Context, reader interfaces.ChainReader, wallet string, required *big.Int) (*big.Int, error) {
	balance, err := reader.Balance(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance of %s: %w", wallet, err)
	}
	if balance.Cmp(required) < 0 {
		return balance, &interfaces.InsufficientFundsError{
			Wallet:   wallet,
			Balance:  balance,
			Required: new(big.Int).Set(required),
		}
	}
	return balance, nil
}

func chainIDString(ctx context.Context, reader interfaces.ChainReader) (string, error) {
	chainID, err := reader.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read chain id: %w", err)
	}
	return chainID.String(), nil
}

func validateTxHash(txHash string) error {
	if txHash == "" {
		return fmt.Errorf("%w: missing transaction hash", interfaces.ErrBadRequest)
	}
	if !txHashPattern.MatchString(txHash) {
		return fmt.Errorf("%w: malformed transaction hash %q", interfaces.ErrBadRequest, txHash)
	}
	return nil
}

func observe(log *slog.Logger, kind, phase string, err error) {
	metrics.HandshakeOutcomes.WithLabelValues(kind, phase, metrics.Outcome(err)).Inc()
	if err != nil {
		log.Debug("Handshake step rejected", "kind", kind, "phase", phase, "err", err)
	}
}
