package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruteri/certificate-trust-backend/interfaces"
)

// PrepareDeploymentRequest asks whether the institution may deploy its contract
// on a network.
type PrepareDeploymentRequest struct {
	InstitutionID interfaces.InstitutionID
	Network       interfaces.NetworkName
	WalletAddress string
}

// ConfirmDeploymentRequest reports the address of a contract the institution deployed.
type ConfirmDeploymentRequest struct {
	InstitutionID   interfaces.InstitutionID
	Network         interfaces.NetworkName
	ContractAddress string
}

// Deployment coordinates the one-time deployment of an institution's contract
// on a network and records it in the contract registry.
type Deployment struct {
	deps Dependencies
	cfg  Config
	log  *slog.Logger
}

// NewDeployment creates a deployment coordinator.
func NewDeployment(deps Dependencies, cfg Config, log *slog.Logger) *Deployment {
	return &Deployment{deps: deps, cfg: cfg.withDefaults(), log: log}
}

// Prepare checks that the institution may deploy on the network and that its
// wallet can pay for the deployment.
func (c *Deployment) Prepare(ctx context.Context, req PrepareDeploymentRequest) (descriptor *interfaces.DeploymentDescriptor, err error) {
	defer func() { observe(c.log, kindDeployment, phasePrepare, err) }()

	if _, err := c.deps.authorize(ctx, req.InstitutionID, req.WalletAddress); err != nil {
		return nil, err
	}

	reader, err := c.deps.Readers.ReaderFor(ctx, req.Network)
	if err != nil {
		return nil, err
	}

	existing, err := c.deps.Registry.Lookup(ctx, req.InstitutionID, req.Network)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: institution %s already has contract %s on %s", interfaces.ErrConflict, req.InstitutionID, existing.Address, req.Network)
	case !errors.Is(err, interfaces.ErrNotFound):
		return nil, err
	}

	balance, err := checkReserve(ctx, reader, req.WalletAddress, c.cfg.MinDeploymentReserve)
	if err != nil {
		return nil, err
	}

	chainID, err := chainIDString(ctx, reader)
	if err != nil {
		return nil, err
	}

	return &interfaces.DeploymentDescriptor{
		Network: req.Network,
		ChainID: chainID,
		Balance: interfaces.FormatEther(balance),
	}, nil
}

// Confirm registers a deployed contract after checking that code exists at the address.
func (c *Deployment) Confirm(ctx context.Context, req ConfirmDeploymentRequest) (registration *interfaces.ContractRegistration, err error) {
	defer func() { observe(c.log, kindDeployment, phaseConfirm, err) }()

	address, err := interfaces.NewContractAddressFromHex(req.ContractAddress)
	if err != nil || address.IsZero() {
		return nil, fmt.Errorf("%w: invalid contract address %q", interfaces.ErrBadRequest, req.ContractAddress)
	}

	reader, err := c.deps.Readers.ReaderFor(ctx, req.Network)
	if err != nil {
		return nil, err
	}

	hasCode, err := reader.HasCode(ctx, address)
	if err != nil {
		if errors.Is(err, interfaces.ErrUpstreamUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", interfaces.ErrUpstreamUnavailable, err)
	}
	if !hasCode {
		return nil, fmt.Errorf("%w: no contract code at %s on %s", interfaces.ErrNotFound, address, req.Network)
	}

	registration, err = c.deps.Registry.Register(ctx, req.InstitutionID, req.Network, address)
	if err != nil {
		return nil, err
	}

	c.log.Info("Registered institution contract",
		slog.String("institution_id", req.InstitutionID.String()),
		slog.String("network", req.Network.String()),
		slog.String("address", address.String()))

	return registration, nil
}
