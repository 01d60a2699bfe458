package metadata

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ruteri/certificate-trust-backend/interfaces"
)

// MockStore mocks the MetadataStore interface
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Create(ctx context.Context, metadata *interfaces.CertificateMetadata) error {
	args := m.Called(ctx, metadata)
	return args.Error(0)
}

func (m *MockStore) GetByTransactionHash(ctx context.Context, txHash string) (*interfaces.CertificateMetadata, error) {
	args := m.Called(ctx, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.CertificateMetadata), args.Error(1)
}

func (m *MockStore) GetByStudentID(ctx context.Context, studentID string) (*interfaces.CertificateMetadata, error) {
	args := m.Called(ctx, studentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.CertificateMetadata), args.Error(1)
}
