package chain

import (
	"context"
	"math/big"

	"github.com/stretchr/testify/mock"

	"github.com/ruteri/certificate-trust-backend/interfaces"
)

// MockReader mocks the ChainReader interface
type MockReader struct {
	mock.Mock
}

func (m *MockReader) Network() interfaces.NetworkName {
	args := m.Called()
	return args.Get(0).(interfaces.NetworkName)
}

func (m *MockReader) ChainID(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockReader) DecodeTransaction(ctx context.Context, txHash string) (*interfaces.IssuanceTransaction, error) {
	args := m.Called(ctx, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.IssuanceTransaction), args.Error(1)
}

func (m *MockReader) GetCertificateInfo(ctx context.Context, contract interfaces.ContractAddress, studentID string) (*interfaces.CertificateInfo, error) {
	args := m.Called(ctx, contract, studentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.CertificateInfo), args.Error(1)
}

func (m *MockReader) GetFullCertificateInfo(ctx context.Context, contract interfaces.ContractAddress, studentID string) interfaces.AcademicInfo {
	args := m.Called(ctx, contract, studentID)
	return args.Get(0).(interfaces.AcademicInfo)
}

func (m *MockReader) GetCertificateStatus(ctx context.Context, contract interfaces.ContractAddress, studentID string) (*interfaces.RevocationStatus, error) {
	args := m.Called(ctx, contract, studentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.RevocationStatus), args.Error(1)
}

func (m *MockReader) StudentIDs(ctx context.Context, contract interfaces.ContractAddress) ([]string, error) {
	args := m.Called(ctx, contract)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockReader) ListCertificates(ctx context.Context, contract interfaces.ContractAddress) ([]interfaces.CertificateSummary, error) {
	args := m.Called(ctx, contract)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]interfaces.CertificateSummary), args.Error(1)
}

func (m *MockReader) Balance(ctx context.Context, wallet string) (*big.Int, error) {
	args := m.Called(ctx, wallet)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockReader) HasCode(ctx context.Context, address interfaces.ContractAddress) (bool, error) {
	args := m.Called(ctx, address)
	return args.Bool(0), args.Error(1)
}

// StaticReaders is a ChainReaderFactory over a fixed set of readers.
type StaticReaders map[interfaces.NetworkName]interfaces.ChainReader

func (s StaticReaders) ReaderFor(_ context.Context, network interfaces.NetworkName) (interfaces.ChainReader, error) {
	reader, ok := s[network]
	if !ok {
		return nil, interfaces.ErrBadRequest
	}
	return reader, nil
}

func (s StaticReaders) Networks() []interfaces.NetworkName {
	names := make([]interfaces.NetworkName, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	return names
}
