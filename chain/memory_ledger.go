package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ruteri/certificate-trust-backend/interfaces"
)

// MemoryLedger is an in-memory Backend that executes the certificate contract
// semantics on submitted calldata. It is meant for tests and local development.
type MemoryLedger struct {
	mutex     sync.RWMutex
	chainID   *big.Int
	balances  map[common.Address]*big.Int
	contracts map[common.Address]*memoryContract
	txs       map[common.Hash]*memoryTx
	nonce     uint64
	now       func() time.Time
}

type memoryContract struct {
	legacy       bool // no getFullCertificateInfo
	studentIDs   []string
	certificates map[string]*memoryCertificate
}

type memoryTx struct {
	tx      *types.Transaction
	pending bool
	status  uint64
	block   uint64
}

type memoryCertificate struct {
	fields    interfaces.CertificateFields
	revoked   bool
	revokedAt uint64
	reason    string
}

func NewMemoryLedger(chainID int64) *MemoryLedger {
	return &MemoryLedger{
		chainID:   big.NewInt(chainID),
		balances:  make(map[common.Address]*big.Int),
		contracts: make(map[common.Address]*memoryContract),
		txs:       make(map[common.Hash]*memoryTx),
		now:       time.Now,
	}
}

// SetClock overrides the time source used for revocation timestamps.
func (l *MemoryLedger) SetClock(now func() time.Time) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.now = now
}

func (l *MemoryLedger) SetBalance(wallet string, wei *big.Int) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.balances[common.HexToAddress(wallet)] = new(big.Int).Set(wei)
}

// DeployContract creates an empty certificate contract and returns its address.
func (l *MemoryLedger) DeployContract() interfaces.ContractAddress {
	return l.deploy(false)
}

// DeployLegacyContract creates a contract that predates the academic fields.
func (l *MemoryLedger) DeployLegacyContract() interfaces.ContractAddress {
	return l.deploy(true)
}

func (l *MemoryLedger) deploy(legacy bool) interfaces.ContractAddress {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.nonce++
	addr := crypto.CreateAddress(common.Address{0xce, 0x47}, l.nonce)
	l.contracts[addr] = &memoryContract{
		legacy:       legacy,
		certificates: make(map[string]*memoryCertificate),
	}
	return interfaces.ContractAddress(addr)
}

// Submit executes calldata against a contract and records the transaction.
// A reverted call records nothing.
func (l *MemoryLedger) Submit(contract interfaces.ContractAddress, calldata []byte) (common.Hash, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	c, ok := l.contracts[contract.Common()]
	if !ok {
		return common.Hash{}, fmt.Errorf("no contract at %s", contract)
	}
	if len(calldata) < 4 {
		return common.Hash{}, errors.New("execution reverted: short calldata")
	}

	method, err := contractABI.MethodById(calldata[:4])
	if err != nil {
		return common.Hash{}, fmt.Errorf("execution reverted: %w", err)
	}
	args, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return common.Hash{}, fmt.Errorf("execution reverted: %w", err)
	}

	switch method.Name {
	case methodSetCertificate:
		fields, err := UnpackSetCertificate(calldata)
		if err != nil {
			return common.Hash{}, err
		}
		if _, exists := c.certificates[fields.StudentID]; exists {
			return common.Hash{}, errors.New("execution reverted: certificate already exists")
		}
		c.certificates[fields.StudentID] = &memoryCertificate{fields: *fields}
		c.studentIDs = append(c.studentIDs, fields.StudentID)
	case methodRevokeCertificate:
		studentID, reason := args[0].(string), args[1].(string)
		cert, exists := c.certificates[studentID]
		if !exists {
			return common.Hash{}, errors.New("execution reverted: certificate does not exist")
		}
		if cert.revoked {
			return common.Hash{}, errors.New("execution reverted: certificate already revoked")
		}
		cert.revoked = true
		cert.revokedAt = uint64(l.now().Unix())
		cert.reason = reason
	default:
		return common.Hash{}, fmt.Errorf("execution reverted: %s is not a transaction", method.Name)
	}

	return l.record(contract.Common(), calldata, types.ReceiptStatusSuccessful, false), nil
}

// RecordRawTransaction records a mined, successful transaction without executing it.
func (l *MemoryLedger) RecordRawTransaction(to common.Address, data []byte) common.Hash {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.record(to, data, types.ReceiptStatusSuccessful, false)
}

// RecordRevertedTransaction records a mined transaction whose execution failed.
// Contract state is left untouched.
func (l *MemoryLedger) RecordRevertedTransaction(to common.Address, data []byte) common.Hash {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.record(to, data, types.ReceiptStatusFailed, false)
}

// RecordPendingTransaction records a transaction that is not mined yet.
func (l *MemoryLedger) RecordPendingTransaction(to common.Address, data []byte) common.Hash {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.record(to, data, types.ReceiptStatusSuccessful, true)
}

func (l *MemoryLedger) record(to common.Address, data []byte, status uint64, pending bool) common.Hash {
	l.nonce++
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    l.nonce,
		To:       &to,
		Gas:      500000,
		GasPrice: big.NewInt(10_000_000_000),
		Data:     common.CopyBytes(data),
	})
	l.txs[tx.Hash()] = &memoryTx{tx: tx, pending: pending, status: status, block: l.nonce}
	return tx.Hash()
}

// CallContract answers the view methods of the certificate contract.
func (l *MemoryLedger) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	if msg.To == nil {
		return nil, errors.New("call without recipient")
	}
	c, ok := l.contracts[*msg.To]
	if !ok {
		return nil, nil
	}
	if len(msg.Data) < 4 {
		return nil, errors.New("execution reverted")
	}

	method, err := contractABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, fmt.Errorf("execution reverted: %w", err)
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, fmt.Errorf("execution reverted: %w", err)
	}

	if method.Name == methodGetStudentIDs {
		return method.Outputs.Pack(append([]string{}, c.studentIDs...))
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("execution reverted: %s is not a view", method.Name)
	}

	cert := c.certificates[args[0].(string)]
	if cert == nil {
		cert = &memoryCertificate{}
	}

	switch method.Name {
	case methodGetCertificateInfo:
		return method.Outputs.Pack(cert.fields.DocumentHash, cert.fields.StudentName)
	case methodGetFullCertificateInfo:
		if c.legacy {
			return nil, errors.New("execution reverted")
		}
		return method.Outputs.Pack(cert.fields.Course, cert.fields.CertificateType, cert.fields.YearOfGraduation)
	case methodGetCertificateStatus:
		return method.Outputs.Pack(cert.revoked, new(big.Int).SetUint64(cert.revokedAt), cert.reason)
	}
	return nil, fmt.Errorf("execution reverted: %s is not a view", method.Name)
}

func (l *MemoryLedger) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	if _, ok := l.contracts[contract]; ok {
		return []byte{0x60, 0x80, 0x60, 0x40}, nil
	}
	return nil, nil
}

func (l *MemoryLedger) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	recorded, ok := l.txs[hash]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	return recorded.tx, recorded.pending, nil
}

// TransactionReceipt answers like a node: pending transactions have no receipt.
func (l *MemoryLedger) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	recorded, ok := l.txs[hash]
	if !ok || recorded.pending {
		return nil, ethereum.NotFound
	}
	return &types.Receipt{
		Status:      recorded.status,
		TxHash:      hash,
		BlockNumber: new(big.Int).SetUint64(recorded.block),
	}, nil
}

func (l *MemoryLedger) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	if b, ok := l.balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (l *MemoryLedger) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(l.chainID), nil
}
