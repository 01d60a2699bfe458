// Package chain provides read access to per-institution certificate contracts
// on one or more ledger networks.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"

	"github.com/ruteri/certificate-trust-backend/interfaces"
)

// Backend is the subset of an RPC client the reader needs.
// *ethclient.Client and the simulated backend client both satisfy it.
type Backend interface {
	bind.ContractCaller
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// ReaderConfig configures a Reader. Zero durations and counts take the package defaults.
type ReaderConfig struct {
	Network interfaces.NetworkName

	// ReadAccount is used as the sender of read-only contract calls.
	ReadAccount common.Address

	CallTimeout     time.Duration
	MaxAttempts     int
	InitialInterval time.Duration

	// ListConcurrency bounds parallel reads when listing certificates.
	ListConcurrency int
}

// Reader implements interfaces.ChainReader for one network.
type Reader struct {
	cfg     ReaderConfig
	backend Backend
	log     *slog.Logger

	mu      sync.Mutex
	chainID *big.Int
}

// NewReader creates a Reader for the network named in cfg over backend.
func NewReader(backend Backend, cfg ReaderConfig, log *slog.Logger) *Reader {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = DefaultInitialInterval
	}
	if cfg.ListConcurrency <= 0 {
		cfg.ListConcurrency = 8
	}

	return &Reader{
		cfg:     cfg,
		backend: backend,
		log:     log.With("network", cfg.Network.String()),
	}
}

// Network returns the name of the network the reader is bound to.
func (r *Reader) Network() interfaces.NetworkName {
	return r.cfg.Network
}

// ChainID returns the chain id of the network. The value is cached after the first successful read.
func (r *Reader) ChainID(ctx context.Context) (*big.Int, error) {
	r.mu.Lock()
	cached := r.chainID
	r.mu.Unlock()
	if cached != nil {
		return new(big.Int).Set(cached), nil
	}

	var chainID *big.Int
	err := r.do(ctx, "ChainID", func(ctx context.Context) error {
		id, err := r.backend.ChainID(ctx)
		chainID = id
		return err
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.chainID = chainID
	r.mu.Unlock()
	return new(big.Int).Set(chainID), nil
}

// DecodeTransaction fetches a transaction and decodes its setCertificate
// parameters. Only mined transactions with a successful receipt are accepted;
// a pending or reverted transaction never wrote anything to the contract.
func (r *Reader) DecodeTransaction(ctx context.Context, txHash string) (*interfaces.IssuanceTransaction, error) {
	hash, err := parseTxHash(txHash)
	if err != nil {
		return nil, err
	}

	var (
		tx      *types.Transaction
		pending bool
	)
	err = r.do(ctx, "TransactionByHash", func(ctx context.Context) error {
		t, p, err := r.backend.TransactionByHash(ctx, hash)
		tx, pending = t, p
		return err
	})
	if errors.Is(err, ethereum.NotFound) {
		return nil, fmt.Errorf("%w: transaction %s on %s", interfaces.ErrNotFound, txHash, r.cfg.Network)
	}
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, fmt.Errorf("%w: transaction %s is still pending", interfaces.ErrNotFound, txHash)
	}
	if tx.To() == nil {
		return nil, fmt.Errorf("%w: transaction %s creates a contract", interfaces.ErrNotFound, txHash)
	}

	fields, err := UnpackSetCertificate(tx.Data())
	if err != nil {
		return nil, fmt.Errorf("%w: transaction %s: %v", interfaces.ErrNotFound, txHash, err)
	}

	var receipt *types.Receipt
	err = r.do(ctx, "TransactionReceipt", func(ctx context.Context) error {
		rc, err := r.backend.TransactionReceipt(ctx, hash)
		receipt = rc
		return err
	})
	if errors.Is(err, ethereum.NotFound) {
		return nil, fmt.Errorf("%w: transaction %s has no receipt yet", interfaces.ErrNotFound, txHash)
	}
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: transaction %s reverted", interfaces.ErrNotFound, txHash)
	}

	return &interfaces.IssuanceTransaction{
		CertificateFields: *fields,
		Contract:          interfaces.ContractAddress(*tx.To()),
	}, nil
}

// GetCertificateInfo reads the documentHash and studentName of a certificate.
// A student without a certificate yields empty strings.
func (r *Reader) GetCertificateInfo(ctx context.Context, contract interfaces.ContractAddress, studentID string) (*interfaces.CertificateInfo, error) {
	out, err := r.call(ctx, contract, methodGetCertificateInfo, studentID)
	if err != nil {
		return nil, err
	}

	documentHash, err := outputAt[string](out, 0)
	if err != nil {
		return nil, err
	}
	studentName, err := outputAt[string](out, 1)
	if err != nil {
		return nil, err
	}

	return &interfaces.CertificateInfo{DocumentHash: documentHash, StudentName: studentName}, nil
}

// GetFullCertificateInfo reads the academic fields of a certificate. Contracts
// deployed before these fields existed, and any read failure, yield empty strings.
func (r *Reader) GetFullCertificateInfo(ctx context.Context, contract interfaces.ContractAddress, studentID string) interfaces.AcademicInfo {
	out, err := r.call(ctx, contract, methodGetFullCertificateInfo, studentID)
	if err != nil {
		r.log.Warn("Full certificate info unavailable", "contract", contract.String(), "studentId", studentID, "err", err)
		return interfaces.AcademicInfo{}
	}

	var info interfaces.AcademicInfo
	info.Course, _ = outputAt[string](out, 0)
	info.CertificateType, _ = outputAt[string](out, 1)
	info.YearOfGraduation, _ = outputAt[string](out, 2)
	return info
}

// GetCertificateStatus reads the live revocation status of a certificate.
func (r *Reader) GetCertificateStatus(ctx context.Context, contract interfaces.ContractAddress, studentID string) (*interfaces.RevocationStatus, error) {
	out, err := r.call(ctx, contract, methodGetCertificateStatus, studentID)
	if err != nil {
		return nil, err
	}

	isRevoked, err := outputAt[bool](out, 0)
	if err != nil {
		return nil, err
	}
	revokedAt, err := outputAt[*big.Int](out, 1)
	if err != nil {
		return nil, err
	}
	reason, err := outputAt[string](out, 2)
	if err != nil {
		return nil, err
	}

	status := &interfaces.RevocationStatus{IsRevoked: isRevoked, Reason: reason}
	if revokedAt != nil && revokedAt.IsUint64() {
		status.RevokedAt = revokedAt.Uint64()
	}
	return status, nil
}

// StudentIDs lists the students a contract holds certificates for, in issuance order.
func (r *Reader) StudentIDs(ctx context.Context, contract interfaces.ContractAddress) ([]string, error) {
	out, err := r.call(ctx, contract, methodGetStudentIDs)
	if err != nil {
		return nil, err
	}
	return outputAt[[]string](out, 0)
}

// ListCertificates returns every certificate held by the contract together with its status.
func (r *Reader) ListCertificates(ctx context.Context, contract interfaces.ContractAddress) ([]interfaces.CertificateSummary, error) {
	ids, err := r.StudentIDs(ctx, contract)
	if err != nil {
		return nil, err
	}

	summaries := make([]interfaces.CertificateSummary, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.ListConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			info, err := r.GetCertificateInfo(gctx, contract, id)
			if err != nil {
				return fmt.Errorf("certificate %s: %w", id, err)
			}
			status, err := r.GetCertificateStatus(gctx, contract, id)
			if err != nil {
				return fmt.Errorf("certificate status %s: %w", id, err)
			}
			summaries[i] = interfaces.CertificateSummary{
				StudentID:    id,
				DocumentHash: info.DocumentHash,
				StudentName:  info.StudentName,
				Status:       *status,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// Balance returns the wallet balance in wei at the latest block.
func (r *Reader) Balance(ctx context.Context, wallet string) (*big.Int, error) {
	if !common.IsHexAddress(wallet) {
		return nil, fmt.Errorf("%w: invalid wallet address %q", interfaces.ErrBadRequest, wallet)
	}

	var balance *big.Int
	err := r.do(ctx, "BalanceAt", func(ctx context.Context) error {
		b, err := r.backend.BalanceAt(ctx, common.HexToAddress(wallet), nil)
		balance = b
		return err
	})
	return balance, err
}

// HasCode reports whether any contract code is deployed at address.
func (r *Reader) HasCode(ctx context.Context, address interfaces.ContractAddress) (bool, error) {
	var code []byte
	err := r.do(ctx, "CodeAt", func(ctx context.Context) error {
		c, err := r.backend.CodeAt(ctx, address.Common(), nil)
		code = c
		return err
	})
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

func (r *Reader) call(ctx context.Context, contract interfaces.ContractAddress, method string, args ...any) ([]any, error) {
	bound := bind.NewBoundContract(contract.Common(), contractABI, r.backend, nil, nil)

	var out []any
	err := r.do(ctx, method, func(ctx context.Context) error {
		out = nil
		return bound.Call(&bind.CallOpts{Context: ctx, From: r.cfg.ReadAccount}, &out, method, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("%s(%v) on %s: %w", method, args, contract, err)
	}
	return out, nil
}

func outputAt[T any](out []any, i int) (T, error) {
	var zero T
	if i >= len(out) {
		return zero, fmt.Errorf("missing contract output %d", i)
	}
	v, ok := out[i].(T)
	if !ok {
		return zero, fmt.Errorf("unexpected contract output %d of type %T", i, out[i])
	}
	return v, nil
}

func parseTxHash(txHash string) (common.Hash, error) {
	b, err := hexutil.Decode(txHash)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: malformed transaction hash %q", interfaces.ErrBadRequest, txHash)
	}
	return common.BytesToHash(b), nil
}
