package chain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/certificate-trust-backend/interfaces"
)

var testFields = interfaces.CertificateFields{
	StudentID:        "S-1",
	DocumentHash:     "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
	StudentName:      "Ada Lovelace",
	IssuerID:         "inst-1",
	Course:           "Mathematics",
	CertificateType:  "BSc",
	YearOfGraduation: "1835",
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// SetupTestChain creates a simulated blockchain with one funded account.
func SetupTestChain() (*simulated.Backend, *bind.TransactOpts, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, nil, err
	}

	auth, err := bind.NewKeyedTransactorWithChainID(privateKey, big.NewInt(1337))
	if err != nil {
		return nil, nil, err
	}
	// No contract code is deployed at the targets, so skip gas estimation.
	auth.GasLimit = 300000

	balance := new(big.Int).Mul(big.NewInt(10), big.NewInt(params.Ether))
	genesisAlloc := map[common.Address]types.Account{
		auth.From: {Balance: balance},
	}

	backend := simulated.NewBackend(genesisAlloc, simulated.WithBlockGasLimit(8000000))
	return backend, auth, nil
}

func TestReader_SimulatedChain(t *testing.T) {
	backend, auth, err := SetupTestChain()
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	reader := NewReader(backend.Client(), ReaderConfig{Network: "localhost"}, testLogger())

	chainID, err := reader.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1337), chainID.Int64())

	balance, err := reader.Balance(ctx, auth.From.Hex())
	require.NoError(t, err)
	assert.Equal(t, "10", interfaces.FormatEther(balance))

	target, err := interfaces.NewContractAddressFromHex("0x00000000000000000000000000000000000c0de1")
	require.NoError(t, err)

	hasCode, err := reader.HasCode(ctx, target)
	require.NoError(t, err)
	assert.False(t, hasCode)

	calldata, err := PackSetCertificate(testFields)
	require.NoError(t, err)

	transactor := NewTransactor(backend.Client())
	_, err = transactor.SendCalldata(ctx, target, calldata)
	assert.ErrorIs(t, err, ErrNoTransactOpts)

	transactor.SetTransactOpts(auth)
	tx, err := transactor.SendCalldata(ctx, target, calldata)
	require.NoError(t, err)
	backend.Commit()

	decoded, err := reader.DecodeTransaction(ctx, tx.Hash().Hex())
	require.NoError(t, err)
	assert.Equal(t, testFields, decoded.CertificateFields)
	assert.Equal(t, target, decoded.Contract)

	// Not mined yet.
	pendingTx, err := transactor.SendCalldata(ctx, target, calldata)
	require.NoError(t, err)
	_, err = reader.DecodeTransaction(ctx, pendingTx.Hash().Hex())
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	backend.Commit()
	_, err = reader.DecodeTransaction(ctx, pendingTx.Hash().Hex())
	assert.NoError(t, err)

	_, err = reader.DecodeTransaction(ctx, common.Hash{0x01}.Hex())
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	_, err = reader.DecodeTransaction(ctx, "0x1234")
	assert.ErrorIs(t, err, interfaces.ErrBadRequest)

	_, err = reader.Balance(ctx, "not-a-wallet")
	assert.ErrorIs(t, err, interfaces.ErrBadRequest)
}

func TestReader_CertificateLifecycle(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger(1337)
	ledger.SetClock(func() time.Time { return time.Unix(1700000000, 0) })
	contract := ledger.DeployContract()
	reader := NewReader(ledger, ReaderConfig{Network: "localhost"}, testLogger())

	info, err := reader.GetCertificateInfo(ctx, contract, testFields.StudentID)
	require.NoError(t, err)
	assert.Empty(t, info.DocumentHash)

	calldata, err := PackSetCertificate(testFields)
	require.NoError(t, err)
	txHash, err := ledger.Submit(contract, calldata)
	require.NoError(t, err)

	decoded, err := reader.DecodeTransaction(ctx, txHash.Hex())
	require.NoError(t, err)
	assert.Equal(t, testFields, decoded.CertificateFields)
	assert.Equal(t, contract, decoded.Contract)

	info, err = reader.GetCertificateInfo(ctx, contract, testFields.StudentID)
	require.NoError(t, err)
	assert.Equal(t, testFields.DocumentHash, info.DocumentHash)
	assert.Equal(t, testFields.StudentName, info.StudentName)

	academic := reader.GetFullCertificateInfo(ctx, contract, testFields.StudentID)
	assert.Equal(t, interfaces.AcademicInfo{Course: "Mathematics", CertificateType: "BSc", YearOfGraduation: "1835"}, academic)

	status, err := reader.GetCertificateStatus(ctx, contract, testFields.StudentID)
	require.NoError(t, err)
	assert.False(t, status.IsRevoked)

	revoke, err := PackRevokeCertificate(testFields.StudentID, "fraud")
	require.NoError(t, err)
	revokeHash, err := ledger.Submit(contract, revoke)
	require.NoError(t, err)

	// A revocation transaction is not an issuance.
	_, err = reader.DecodeTransaction(ctx, revokeHash.Hex())
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	status, err = reader.GetCertificateStatus(ctx, contract, testFields.StudentID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.RevocationStatus{IsRevoked: true, RevokedAt: 1700000000, Reason: "fraud"}, *status)

	// Revoked stays revoked.
	_, err = ledger.Submit(contract, revoke)
	assert.Error(t, err)
	status, err = reader.GetCertificateStatus(ctx, contract, testFields.StudentID)
	require.NoError(t, err)
	assert.True(t, status.IsRevoked)
	assert.Equal(t, "fraud", status.Reason)

	list, err := reader.ListCertificates(ctx, contract)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, testFields.StudentID, list[0].StudentID)
	assert.True(t, list[0].Status.IsRevoked)
}

func TestReader_DecodeRequiresSuccessfulMinedTransaction(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger(1337)
	contract := ledger.DeployContract()
	reader := NewReader(ledger, ReaderConfig{Network: "localhost"}, testLogger())

	calldata, err := PackSetCertificate(testFields)
	require.NoError(t, err)

	pending := ledger.RecordPendingTransaction(contract.Common(), calldata)
	_, err = reader.DecodeTransaction(ctx, pending.Hex())
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	reverted := ledger.RecordRevertedTransaction(contract.Common(), calldata)
	_, err = reader.DecodeTransaction(ctx, reverted.Hex())
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	// A mined transaction to any address decodes; the recipient is reported
	// so callers can compare it with the issuer's contract.
	elsewhere := common.HexToAddress("0x00000000000000000000000000000000deadbeef")
	stray := ledger.RecordRawTransaction(elsewhere, calldata)
	decoded, err := reader.DecodeTransaction(ctx, stray.Hex())
	require.NoError(t, err)
	assert.Equal(t, interfaces.ContractAddress(elsewhere), decoded.Contract)
}

func TestReader_FullInfoDegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger(1337)
	legacy := ledger.DeployLegacyContract()
	reader := NewReader(ledger, ReaderConfig{Network: "localhost"}, testLogger())

	calldata, err := PackSetCertificate(testFields)
	require.NoError(t, err)
	_, err = ledger.Submit(legacy, calldata)
	require.NoError(t, err)

	assert.Equal(t, interfaces.AcademicInfo{}, reader.GetFullCertificateInfo(ctx, legacy, testFields.StudentID))

	// No contract at all.
	assert.Equal(t, interfaces.AcademicInfo{}, reader.GetFullCertificateInfo(ctx, interfaces.ContractAddress{0x01}, testFields.StudentID))

	_, err = reader.GetCertificateStatus(ctx, interfaces.ContractAddress{0x01}, testFields.StudentID)
	assert.ErrorIs(t, err, bind.ErrNoCode)
}

// flakyBackend fails ChainID with a transport error a fixed number of times.
type flakyBackend struct {
	*MemoryLedger
	failures int32
	calls    atomic.Int32
	err      error
}

func (f *flakyBackend) ChainID(ctx context.Context) (*big.Int, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, f.err
	}
	return f.MemoryLedger.ChainID(ctx)
}

func TestReader_RetriesTransportFailures(t *testing.T) {
	transportErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	cfg := ReaderConfig{Network: "sepolia", MaxAttempts: 3, InitialInterval: time.Millisecond}

	t.Run("recovers within attempts", func(t *testing.T) {
		backend := &flakyBackend{MemoryLedger: NewMemoryLedger(11155111), failures: 2, err: transportErr}
		reader := NewReader(backend, cfg, testLogger())

		chainID, err := reader.ChainID(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(11155111), chainID.Int64())
		assert.Equal(t, int32(3), backend.calls.Load())
	})

	t.Run("exhausted attempts are upstream unavailable", func(t *testing.T) {
		backend := &flakyBackend{MemoryLedger: NewMemoryLedger(11155111), failures: 10, err: transportErr}
		reader := NewReader(backend, cfg, testLogger())

		_, err := reader.ChainID(context.Background())
		assert.ErrorIs(t, err, interfaces.ErrUpstreamUnavailable)
		assert.Equal(t, int32(3), backend.calls.Load())
	})

	t.Run("answers from the node are not retried", func(t *testing.T) {
		backend := &flakyBackend{MemoryLedger: NewMemoryLedger(11155111), failures: 10, err: ethereum.NotFound}
		reader := NewReader(backend, cfg, testLogger())

		_, err := reader.ChainID(context.Background())
		assert.ErrorIs(t, err, ethereum.NotFound)
		assert.NotErrorIs(t, err, interfaces.ErrUpstreamUnavailable)
		assert.Equal(t, int32(1), backend.calls.Load())
	})
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, isRetryable(nil))
	assert.False(t, isRetryable(context.Canceled))
	assert.True(t, isRetryable(context.DeadlineExceeded))
	assert.True(t, isRetryable(io.ErrUnexpectedEOF))
	assert.False(t, isRetryable(bind.ErrNoCode))
	assert.False(t, isRetryable(errors.New("execution reverted")))
}
