package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ruteri/certificate-trust-backend/chain"
	"github.com/ruteri/certificate-trust-backend/interfaces"
)

// PrepareRevocationRequest asks for a revokeCertificate descriptor for one student.
type PrepareRevocationRequest struct {
	InstitutionID interfaces.InstitutionID
	Network       interfaces.NetworkName
	WalletAddress string
	StudentID     string
	Reason        string
}

// ConfirmRevocationRequest reports the transaction the wallet sent for a prepared revocation.
type ConfirmRevocationRequest struct {
	InstitutionID   interfaces.InstitutionID
	Network         interfaces.NetworkName
	StudentID       string
	TransactionHash string
}

// Revocation coordinates certificate revocation. Nothing is persisted off-chain;
// revocation status is always read live from the contract.
type Revocation struct {
	deps Dependencies
	cfg  Config
	log  *slog.Logger
}

// NewRevocation creates a revocation coordinator.
func NewRevocation(deps Dependencies, cfg Config, log *slog.Logger) *Revocation {
	return &Revocation{deps: deps, cfg: cfg.withDefaults(), log: log}
}

// Prepare validates a revocation and returns the descriptor the wallet signs.
// A certificate the contract already reports as revoked yields ErrAlreadyRevoked.
// When the contract cannot be read the guard is left to the contract itself.
func (c *Revocation) Prepare(ctx context.Context, req PrepareRevocationRequest) (descriptor *interfaces.RevocationDescriptor, err error) {
	defer func() { observe(c.log, kindRevocation, phasePrepare, err) }()

	if strings.TrimSpace(req.StudentID) == "" {
		return nil, fmt.Errorf("%w: student id is required", interfaces.ErrBadRequest)
	}

	if _, err := c.deps.authorize(ctx, req.InstitutionID, req.WalletAddress); err != nil {
		return nil, err
	}

	reader, registration, err := c.deps.contractFor(ctx, req.InstitutionID, req.Network)
	if err != nil {
		return nil, err
	}

	if _, err := checkReserve(ctx, reader, req.WalletAddress, c.cfg.MinIssuanceReserve); err != nil {
		return nil, err
	}

	log := c.log.With(
		slog.String("network", req.Network.String()),
		slog.String("student_id", req.StudentID))

	if info, err := reader.GetCertificateInfo(ctx, registration.Address, req.StudentID); err != nil {
		log.Warn("Could not check that the certificate exists, leaving it to the contract", "err", err)
	} else if info.DocumentHash == "" {
		return nil, fmt.Errorf("%w: no certificate for student %s", interfaces.ErrNotFound, req.StudentID)
	}

	if status, err := reader.GetCertificateStatus(ctx, registration.Address, req.StudentID); err != nil {
		log.Warn("Could not read revocation status, leaving it to the contract", "err", err)
	} else if status.IsRevoked {
		return nil, interfaces.ErrAlreadyRevoked
	}

	chainID, err := chainIDString(ctx, reader)
	if err != nil {
		return nil, err
	}

	calldata, err := chain.PackRevokeCertificate(req.StudentID, req.Reason)
	if err != nil {
		return nil, fmt.Errorf("failed to pack revokeCertificate: %w", err)
	}

	log.Info("Prepared certificate revocation")

	return &interfaces.RevocationDescriptor{
		Network:         req.Network,
		ChainID:         chainID,
		ContractAddress: registration.Address,
		StudentID:       req.StudentID,
		Reason:          req.Reason,
		Calldata:        hexutil.Encode(calldata),
	}, nil
}

// Confirm acknowledges a sent revocation.
func (c *Revocation) Confirm(ctx context.Context, req ConfirmRevocationRequest) (txHash string, err error) {
	defer func() { observe(c.log, kindRevocation, phaseConfirm, err) }()

	if err := validateTxHash(req.TransactionHash); err != nil {
		return "", err
	}
	txHash = strings.ToLower(req.TransactionHash)

	c.log.Info("Confirmed certificate revocation",
		slog.String("institution_id", req.InstitutionID.String()),
		slog.String("network", req.Network.String()),
		slog.String("student_id", req.StudentID),
		slog.String("tx_hash", txHash))

	return txHash, nil
}
