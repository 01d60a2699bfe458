package verification

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/certificate-trust-backend/chain"
	"github.com/ruteri/certificate-trust-backend/interfaces"
	"github.com/ruteri/certificate-trust-backend/metadata"
	"github.com/ruteri/certificate-trust-backend/registry"
)

const testNetwork interfaces.NetworkName = "localhost"

var testFields = interfaces.CertificateFields{
	StudentID:        "S-7",
	DocumentHash:     interfaces.ComputeID([]byte("diploma")).String(),
	StudentName:      "Alan Turing",
	IssuerID:         "inst-1",
	Course:           "Mathematics",
	CertificateType:  "PhD",
	YearOfGraduation: "1938",
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		email    string
		expected string
	}{
		{"ab@x.com", "a***@x.com"},
		{"abc@x.com", "a***@x.com"},
		{"abcd@x.com", "ab*d@x.com"},
		{"abcdef@x.com", "ab***f@x.com"},
		{"alexander.hamilton@example.org", "al*****n@example.org"},
		{"@x.com", "***@x.com"},
		{"", ""},
		{"no-at-sign", "no*****n"},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.expected, MaskEmail(tt.email))
		})
	}
}

func TestVerifyDocument(t *testing.T) {
	document := []byte("%PDF-1.4 certificate")
	id := interfaces.ComputeID(document)
	hash := id.String()

	match, digest, err := VerifyDocument(bytes.NewReader(document), hash)
	require.NoError(t, err)
	assert.Equal(t, interfaces.Match, match)
	assert.Equal(t, id, digest)

	match, _, err = VerifyDocument(bytes.NewReader(document), "0x"+strings.ToUpper(hash))
	require.NoError(t, err)
	assert.Equal(t, interfaces.Match, match)

	match, digest, err = VerifyDocument(bytes.NewReader([]byte("tampered")), hash)
	require.NoError(t, err)
	assert.Equal(t, interfaces.Mismatch, match)
	assert.Equal(t, interfaces.ComputeID([]byte("tampered")), digest)

	match, digest, err = VerifyDocument(bytes.NewReader(document), "not-a-hash")
	require.NoError(t, err)
	assert.Equal(t, interfaces.Mismatch, match)
	assert.Equal(t, id, digest)

	_, _, err = VerifyDocument(iotest.ErrReader(errors.New("disk gone")), hash)
	assert.Error(t, err)
}

var manchester = &interfaces.Institution{
	ID:             "inst-1",
	DisplayName:    "University of Manchester",
	DomainVerified: true,
}

func issuedTo(contract interfaces.ContractAddress) *interfaces.IssuanceTransaction {
	return &interfaces.IssuanceTransaction{CertificateFields: testFields, Contract: contract}
}

type mocks struct {
	reader       *chain.MockReader
	institutions *registry.MockInstitutionStore
	registry     *registry.MockContractRegistry
	metadata     *metadata.MockStore
}

func newMockedAggregator() (*Aggregator, *mocks) {
	m := &mocks{
		reader:       &chain.MockReader{},
		institutions: &registry.MockInstitutionStore{},
		registry:     &registry.MockContractRegistry{},
		metadata:     &metadata.MockStore{},
	}
	aggregator := NewAggregator(chain.StaticReaders{testNetwork: m.reader}, m.institutions, m.registry, m.metadata, testLogger())
	return aggregator, m
}

func TestAggregator_Verify(t *testing.T) {
	ctx := context.Background()
	txHash := "0x" + strings.Repeat("ab", 32)
	contract := interfaces.ContractAddress{0x42}

	aggregator, m := newMockedAggregator()
	m.reader.On("DecodeTransaction", mock.Anything, txHash).Return(issuedTo(contract), nil)
	m.institutions.On("Get", mock.Anything, interfaces.InstitutionID("inst-1")).Return(manchester, nil)
	m.metadata.On("GetByTransactionHash", mock.Anything, txHash).Return(&interfaces.CertificateMetadata{
		StudentID:    "S-7",
		StudentEmail: "alan@example.com",
		IssuerID:     "inst-1",
	}, nil)
	m.registry.On("Lookup", mock.Anything, interfaces.InstitutionID("inst-1"), testNetwork).Return(&interfaces.ContractRegistration{Address: contract}, nil)
	m.reader.On("GetCertificateInfo", mock.Anything, contract, "S-7").Return(&interfaces.CertificateInfo{DocumentHash: testFields.DocumentHash, StudentName: "Alan Turing"}, nil)
	m.reader.On("GetCertificateStatus", mock.Anything, contract, "S-7").Return(&interfaces.RevocationStatus{IsRevoked: true, RevokedAt: 1700000000, Reason: "withdrawn"}, nil)
	m.reader.On("GetFullCertificateInfo", mock.Anything, contract, "S-7").Return(interfaces.AcademicInfo{Course: "Mathematics", CertificateType: "PhD", YearOfGraduation: "1938"})

	result, err := aggregator.Verify(ctx, testNetwork, txHash)
	require.NoError(t, err)
	assert.Equal(t, &interfaces.VerificationResult{
		DocumentHash:     testFields.DocumentHash,
		StudentID:        "S-7",
		StudentName:      "Alan Turing",
		StudentEmail:     "al*n@example.com",
		IssuerID:         "inst-1",
		IssuerName:       "University of Manchester",
		DomainVerified:   true,
		Course:           "Mathematics",
		CertificateType:  "PhD",
		YearOfGraduation: "1938",
		IsRevoked:        true,
		RevokedAt:        1700000000,
		RevocationReason: "withdrawn",
		Anchored:         true,
		Network:          testNetwork,
		TransactionHash:  txHash,
	}, result)

	m.reader.AssertExpectations(t)
	m.institutions.AssertExpectations(t)
	m.metadata.AssertExpectations(t)
	m.registry.AssertExpectations(t)
}

func TestAggregator_VerifyDegrades(t *testing.T) {
	ctx := context.Background()
	txHash := "0x" + strings.Repeat("cd", 32)

	aggregator, m := newMockedAggregator()
	m.reader.On("DecodeTransaction", mock.Anything, txHash).Return(issuedTo(interfaces.ContractAddress{0x42}), nil)
	m.institutions.On("Get", mock.Anything, interfaces.InstitutionID("inst-1")).Return(nil, interfaces.ErrNotFound)
	// Metadata of another student is ignored.
	m.metadata.On("GetByTransactionHash", mock.Anything, txHash).Return(&interfaces.CertificateMetadata{
		StudentID:    "S-8",
		StudentEmail: "someone@example.com",
	}, nil)
	m.registry.On("Lookup", mock.Anything, interfaces.InstitutionID("inst-1"), testNetwork).Return(nil, errors.New("database is locked"))

	result, err := aggregator.Verify(ctx, testNetwork, txHash)
	require.NoError(t, err)
	assert.Equal(t, UnknownIssuer, result.IssuerName)
	assert.False(t, result.DomainVerified)
	assert.Empty(t, result.StudentEmail)
	assert.Empty(t, result.Course)
	assert.Empty(t, result.CertificateType)
	assert.Empty(t, result.YearOfGraduation)
	assert.False(t, result.IsRevoked)
	assert.False(t, result.Anchored)
	assert.Equal(t, testFields.DocumentHash, result.DocumentHash)

	m.reader.AssertNotCalled(t, "GetCertificateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestAggregator_VerifyUnanchored(t *testing.T) {
	ctx := context.Background()
	contract := interfaces.ContractAddress{0x42}

	t.Run("issuer without a registered contract is not attributed", func(t *testing.T) {
		txHash := "0x" + strings.Repeat("01", 32)
		aggregator, m := newMockedAggregator()
		m.reader.On("DecodeTransaction", mock.Anything, txHash).Return(issuedTo(contract), nil)
		m.institutions.On("Get", mock.Anything, interfaces.InstitutionID("inst-1")).Return(manchester, nil)
		m.metadata.On("GetByTransactionHash", mock.Anything, txHash).Return(nil, interfaces.ErrNotFound)
		m.registry.On("Lookup", mock.Anything, interfaces.InstitutionID("inst-1"), testNetwork).Return(nil, interfaces.ErrNotFound)

		result, err := aggregator.Verify(ctx, testNetwork, txHash)
		require.NoError(t, err)
		assert.False(t, result.Anchored)
		assert.Equal(t, UnknownIssuer, result.IssuerName)
		assert.False(t, result.DomainVerified)
		assert.Equal(t, "Alan Turing", result.StudentName)
	})

	t.Run("unreadable contract state is not attributed", func(t *testing.T) {
		txHash := "0x" + strings.Repeat("02", 32)
		aggregator, m := newMockedAggregator()
		m.reader.On("DecodeTransaction", mock.Anything, txHash).Return(issuedTo(contract), nil)
		m.institutions.On("Get", mock.Anything, interfaces.InstitutionID("inst-1")).Return(manchester, nil)
		m.metadata.On("GetByTransactionHash", mock.Anything, txHash).Return(nil, interfaces.ErrNotFound)
		m.registry.On("Lookup", mock.Anything, interfaces.InstitutionID("inst-1"), testNetwork).Return(&interfaces.ContractRegistration{Address: contract}, nil)
		m.reader.On("GetCertificateInfo", mock.Anything, contract, "S-7").Return(nil, interfaces.ErrUpstreamUnavailable)
		m.reader.On("GetCertificateStatus", mock.Anything, contract, "S-7").Return(nil, interfaces.ErrUpstreamUnavailable)
		m.reader.On("GetFullCertificateInfo", mock.Anything, contract, "S-7").Return(interfaces.AcademicInfo{})

		result, err := aggregator.Verify(ctx, testNetwork, txHash)
		require.NoError(t, err)
		assert.False(t, result.Anchored)
		assert.Equal(t, UnknownIssuer, result.IssuerName)
	})

	t.Run("metadata recorded by another issuer is ignored", func(t *testing.T) {
		txHash := "0x" + strings.Repeat("03", 32)
		aggregator, m := newMockedAggregator()
		m.reader.On("DecodeTransaction", mock.Anything, txHash).Return(issuedTo(contract), nil)
		m.institutions.On("Get", mock.Anything, interfaces.InstitutionID("inst-1")).Return(nil, interfaces.ErrNotFound)
		m.metadata.On("GetByTransactionHash", mock.Anything, txHash).Return(&interfaces.CertificateMetadata{
			StudentID:    "S-7",
			StudentEmail: "alan@example.com",
			IssuerID:     "inst-9",
		}, nil)
		m.registry.On("Lookup", mock.Anything, interfaces.InstitutionID("inst-1"), testNetwork).Return(nil, interfaces.ErrNotFound)

		result, err := aggregator.Verify(ctx, testNetwork, txHash)
		require.NoError(t, err)
		assert.Empty(t, result.StudentEmail)
	})
}

func TestAggregator_VerifyRejectsTransactionsTheContractDisowns(t *testing.T) {
	ctx := context.Background()
	contract := interfaces.ContractAddress{0x42}

	t.Run("sent to another address", func(t *testing.T) {
		txHash := "0x" + strings.Repeat("04", 32)
		aggregator, m := newMockedAggregator()
		m.reader.On("DecodeTransaction", mock.Anything, txHash).Return(issuedTo(interfaces.ContractAddress{0x66}), nil)
		m.institutions.On("Get", mock.Anything, interfaces.InstitutionID("inst-1")).Return(manchester, nil)
		m.metadata.On("GetByTransactionHash", mock.Anything, txHash).Return(nil, interfaces.ErrNotFound)
		m.registry.On("Lookup", mock.Anything, interfaces.InstitutionID("inst-1"), testNetwork).Return(&interfaces.ContractRegistration{Address: contract}, nil)

		_, err := aggregator.Verify(ctx, testNetwork, txHash)
		assert.ErrorIs(t, err, interfaces.ErrNotFound)
		m.reader.AssertNotCalled(t, "GetCertificateInfo", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("contract holds another document", func(t *testing.T) {
		txHash := "0x" + strings.Repeat("05", 32)
		aggregator, m := newMockedAggregator()
		m.reader.On("DecodeTransaction", mock.Anything, txHash).Return(issuedTo(contract), nil)
		m.institutions.On("Get", mock.Anything, interfaces.InstitutionID("inst-1")).Return(manchester, nil)
		m.metadata.On("GetByTransactionHash", mock.Anything, txHash).Return(nil, interfaces.ErrNotFound)
		m.registry.On("Lookup", mock.Anything, interfaces.InstitutionID("inst-1"), testNetwork).Return(&interfaces.ContractRegistration{Address: contract}, nil)
		m.reader.On("GetCertificateInfo", mock.Anything, contract, "S-7").Return(&interfaces.CertificateInfo{DocumentHash: interfaces.ComputeID([]byte("original")).String()}, nil)
		m.reader.On("GetCertificateStatus", mock.Anything, contract, "S-7").Return(&interfaces.RevocationStatus{}, nil)
		m.reader.On("GetFullCertificateInfo", mock.Anything, contract, "S-7").Return(interfaces.AcademicInfo{})

		_, err := aggregator.Verify(ctx, testNetwork, txHash)
		assert.ErrorIs(t, err, interfaces.ErrNotFound)
	})
}

func TestAggregator_VerifyHardFailures(t *testing.T) {
	ctx := context.Background()
	aggregator, m := newMockedAggregator()

	m.reader.On("DecodeTransaction", mock.Anything, "0xmissing").Return(nil, interfaces.ErrNotFound)
	m.reader.On("DecodeTransaction", mock.Anything, "0xoffline").Return(nil, interfaces.ErrUpstreamUnavailable)

	_, err := aggregator.Verify(ctx, testNetwork, "0xmissing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	_, err = aggregator.Verify(ctx, testNetwork, "0xoffline")
	assert.ErrorIs(t, err, interfaces.ErrUpstreamUnavailable)

	_, err = aggregator.Verify(ctx, "mainnet", "0xmissing")
	assert.ErrorIs(t, err, interfaces.ErrBadRequest)

	m.institutions.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestAggregator_LedgerBacked(t *testing.T) {
	ctx := context.Background()
	ledger := chain.NewMemoryLedger(1337)
	ledger.SetClock(func() time.Time { return time.Unix(1710000000, 0) })
	legacy := ledger.DeployLegacyContract()
	reader := chain.NewReader(ledger, chain.ReaderConfig{Network: testNetwork}, testLogger())

	calldata, err := chain.PackSetCertificate(testFields)
	require.NoError(t, err)
	txHash, err := ledger.Submit(legacy, calldata)
	require.NoError(t, err)

	institutions := &registry.MockInstitutionStore{}
	institutions.On("Get", mock.Anything, interfaces.InstitutionID("inst-1")).Return(&interfaces.Institution{ID: "inst-1", DisplayName: "Bletchley"}, nil)
	contracts := &registry.MockContractRegistry{}
	contracts.On("Lookup", mock.Anything, interfaces.InstitutionID("inst-1"), testNetwork).Return(&interfaces.ContractRegistration{Address: legacy}, nil)
	store := &metadata.MockStore{}
	store.On("GetByTransactionHash", mock.Anything, txHash.Hex()).Return(nil, interfaces.ErrNotFound)

	aggregator := NewAggregator(chain.StaticReaders{testNetwork: reader}, institutions, contracts, store, testLogger())

	result, err := aggregator.Verify(ctx, testNetwork, txHash.Hex())
	require.NoError(t, err)
	assert.Equal(t, "Bletchley", result.IssuerName)
	assert.True(t, result.Anchored)
	// The legacy contract has no academic fields.
	assert.Empty(t, result.Course)
	assert.Empty(t, result.CertificateType)
	assert.Empty(t, result.YearOfGraduation)
	assert.False(t, result.IsRevoked)

	revoke, err := chain.PackRevokeCertificate("S-7", "issued in error")
	require.NoError(t, err)
	_, err = ledger.Submit(legacy, revoke)
	require.NoError(t, err)

	status, err := aggregator.CertificateStatus(ctx, testNetwork, "inst-1", "S-7")
	require.NoError(t, err)
	assert.Equal(t, interfaces.RevocationStatus{IsRevoked: true, RevokedAt: 1710000000, Reason: "issued in error"}, *status)

	result, err = aggregator.Verify(ctx, testNetwork, txHash.Hex())
	require.NoError(t, err)
	assert.True(t, result.IsRevoked)
	assert.Equal(t, "issued in error", result.RevocationReason)

	list, err := aggregator.Certificates(ctx, testNetwork, "inst-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Status.IsRevoked)

	_, err = aggregator.CertificateStatus(ctx, testNetwork, "inst-1", "")
	assert.ErrorIs(t, err, interfaces.ErrBadRequest)

	contracts.On("Lookup", mock.Anything, interfaces.InstitutionID("inst-2"), testNetwork).Return(nil, interfaces.ErrNotFound)
	_, err = aggregator.CertificateStatus(ctx, testNetwork, "inst-2", "S-7")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestAggregator_LedgerRejectsUnsettledIssuance(t *testing.T) {
	ctx := context.Background()
	ledger := chain.NewMemoryLedger(1337)
	contract := ledger.DeployContract()
	reader := chain.NewReader(ledger, chain.ReaderConfig{Network: testNetwork}, testLogger())

	original, err := chain.PackSetCertificate(testFields)
	require.NoError(t, err)
	_, err = ledger.Submit(contract, original)
	require.NoError(t, err)

	forged := testFields
	forged.DocumentHash = interfaces.ComputeID([]byte("forged diploma")).String()
	forgedData, err := chain.PackSetCertificate(forged)
	require.NoError(t, err)

	institutions := &registry.MockInstitutionStore{}
	institutions.On("Get", mock.Anything, interfaces.InstitutionID("inst-1")).Return(manchester, nil)
	contracts := &registry.MockContractRegistry{}
	contracts.On("Lookup", mock.Anything, interfaces.InstitutionID("inst-1"), testNetwork).Return(&interfaces.ContractRegistration{Address: contract}, nil)
	store := &metadata.MockStore{}
	store.On("GetByTransactionHash", mock.Anything, mock.Anything).Return(nil, interfaces.ErrNotFound)

	aggregator := NewAggregator(chain.StaticReaders{testNetwork: reader}, institutions, contracts, store, testLogger())

	testCases := []struct {
		name   string
		txHash string
	}{
		{"reverted second issuance", ledger.RecordRevertedTransaction(contract.Common(), forgedData).Hex()},
		{"pending issuance", ledger.RecordPendingTransaction(contract.Common(), forgedData).Hex()},
		{"issuance to a stray address", ledger.RecordRawTransaction(common.HexToAddress("0xdeadbeef"), forgedData).Hex()},
		{"mined issuance the contract never stored", ledger.RecordRawTransaction(contract.Common(), forgedData).Hex()},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := aggregator.Verify(ctx, testNetwork, tc.txHash)
			assert.ErrorIs(t, err, interfaces.ErrNotFound)
		})
	}
}
