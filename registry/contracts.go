package registry

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/ruteri/certificate-trust-backend/interfaces"
)

// ContractStore implements interfaces.ContractRegistry on a relational database.
type ContractStore struct {
	db *gorm.DB
}

func NewContractStore(db *gorm.DB) *ContractStore {
	return &ContractStore{db: db}
}

// Register binds the contract to the institution on the network. A second
// binding for the same pair fails with ErrConflict.
func (s *ContractStore) Register(ctx context.Context, institutionID interfaces.InstitutionID, network interfaces.NetworkName, address interfaces.ContractAddress) (*interfaces.ContractRegistration, error) {
	if institutionID == "" || network == "" {
		return nil, fmt.Errorf("%w: institution and network are required", interfaces.ErrBadRequest)
	}
	if address.IsZero() {
		return nil, fmt.Errorf("%w: contract address is required", interfaces.ErrBadRequest)
	}

	model := contractRegistrationModel{
		InstitutionID: institutionID.String(),
		Network:       network.String(),
		Address:       address.String(),
	}
	err := s.db.WithContext(ctx).Create(&model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, fmt.Errorf("%w: institution %s already has a contract on %s", interfaces.ErrConflict, institutionID, network)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to register contract: %w", err)
	}

	return model.toRegistration()
}

func (s *ContractStore) Lookup(ctx context.Context, institutionID interfaces.InstitutionID, network interfaces.NetworkName) (*interfaces.ContractRegistration, error) {
	var model contractRegistrationModel
	err := s.db.WithContext(ctx).
		Where("institution_id = ? AND network = ?", institutionID.String(), network.String()).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: no contract for institution %s on %s", interfaces.ErrNotFound, institutionID, network)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up contract: %w", err)
	}

	return model.toRegistration()
}

func (s *ContractStore) ListForInstitution(ctx context.Context, institutionID interfaces.InstitutionID) ([]interfaces.ContractRegistration, error) {
	var models []contractRegistrationModel
	err := s.db.WithContext(ctx).
		Where("institution_id = ?", institutionID.String()).
		Order("network").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}

	registrations := make([]interfaces.ContractRegistration, 0, len(models))
	for i := range models {
		registration, err := models[i].toRegistration()
		if err != nil {
			return nil, err
		}
		registrations = append(registrations, *registration)
	}
	return registrations, nil
}
