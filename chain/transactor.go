package chain

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ruteri/certificate-trust-backend/interfaces"
)

// ErrNoTransactOpts is returned when a transaction is attempted without first setting transaction options.
var ErrNoTransactOpts = errors.New("no authorized transactor available")

// Transactor submits prepared calldata to a certificate contract with a local key.
// The backend never signs on behalf of institutions; this exists for operator
// tooling and development networks.
type Transactor struct {
	backend bind.ContractBackend
	auth    *bind.TransactOpts
}

func NewTransactor(backend bind.ContractBackend) *Transactor {
	return &Transactor{backend: backend}
}

// SetTransactOpts sets the transaction options required for sending.
func (t *Transactor) SetTransactOpts(auth *bind.TransactOpts) {
	t.auth = auth
}

// SendCalldata sends calldata produced by a Prepare step to the contract.
func (t *Transactor) SendCalldata(ctx context.Context, contract interfaces.ContractAddress, calldata []byte) (*types.Transaction, error) {
	if t.auth == nil {
		return nil, ErrNoTransactOpts
	}

	opts := *t.auth
	opts.Context = ctx

	bound := bind.NewBoundContract(contract.Common(), contractABI, t.backend, t.backend, t.backend)
	return bound.RawTransact(&opts, calldata)
}
