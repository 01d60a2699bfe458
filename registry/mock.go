package registry

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ruteri/certificate-trust-backend/interfaces"
)

// MockContractRegistry mocks the ContractRegistry interface
type MockContractRegistry struct {
	mock.Mock
}

// Register mocks the Register method
func (m *MockContractRegistry) Register(ctx context.Context, institutionID interfaces.InstitutionID, network interfaces.NetworkName, address interfaces.ContractAddress) (*interfaces.ContractRegistration, error) {
	args := m.Called(ctx, institutionID, network, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.ContractRegistration), args.Error(1)
}

// Lookup mocks the Lookup method
func (m *MockContractRegistry) Lookup(ctx context.Context, institutionID interfaces.InstitutionID, network interfaces.NetworkName) (*interfaces.ContractRegistration, error) {
	args := m.Called(ctx, institutionID, network)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.ContractRegistration), args.Error(1)
}

// ListForInstitution mocks the ListForInstitution method
func (m *MockContractRegistry) ListForInstitution(ctx context.Context, institutionID interfaces.InstitutionID) ([]interfaces.ContractRegistration, error) {
	args := m.Called(ctx, institutionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]interfaces.ContractRegistration), args.Error(1)
}

// MockInstitutionStore mocks the InstitutionStore interface
type MockInstitutionStore struct {
	mock.Mock
}

// Create mocks the Create method
func (m *MockInstitutionStore) Create(ctx context.Context, institution *interfaces.Institution) (*interfaces.Institution, error) {
	args := m.Called(ctx, institution)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.Institution), args.Error(1)
}

// Get mocks the Get method
func (m *MockInstitutionStore) Get(ctx context.Context, id interfaces.InstitutionID) (*interfaces.Institution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.Institution), args.Error(1)
}

// GetByWallet mocks the GetByWallet method
func (m *MockInstitutionStore) GetByWallet(ctx context.Context, wallet string) (*interfaces.Institution, error) {
	args := m.Called(ctx, wallet)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.Institution), args.Error(1)
}

// SetDomainVerified mocks the SetDomainVerified method
func (m *MockInstitutionStore) SetDomainVerified(ctx context.Context, id interfaces.InstitutionID, verified bool) error {
	args := m.Called(ctx, id, verified)
	return args.Error(0)
}
