package interfaces

import (
	"context"
	"io"
	"math/big"
	"time"
)

// ContractRegistry binds each institution to at most one deployed contract per network.
// Rows are never updated or deleted.
type ContractRegistry interface {
	// Register persists a new binding. Returns ErrConflict if the pair is already bound.
	Register(ctx context.Context, institutionID InstitutionID, network NetworkName, address ContractAddress) (*ContractRegistration, error)

	// Lookup returns the binding for the pair or ErrNotFound.
	Lookup(ctx context.Context, institutionID InstitutionID, network NetworkName) (*ContractRegistration, error)

	// ListForInstitution returns all bindings of an institution across networks.
	ListForInstitution(ctx context.Context, institutionID InstitutionID) ([]ContractRegistration, error)
}

// InstitutionStore is the directory of issuing institutions.
type InstitutionStore interface {
	// Create persists a new institution. Returns ErrConflict if the wallet is already taken.
	Create(ctx context.Context, institution *Institution) (*Institution, error)

	// Get returns the institution or ErrNotFound.
	Get(ctx context.Context, id InstitutionID) (*Institution, error)

	// GetByWallet looks an institution up by wallet address, case-insensitively.
	GetByWallet(ctx context.Context, wallet string) (*Institution, error)

	// SetDomainVerified records the outcome of an operator domain check.
	SetDomainVerified(ctx context.Context, id InstitutionID, verified bool) error
}

// MetadataStore is the advisory off-chain index of issued certificates.
type MetadataStore interface {
	// Create persists metadata. Returns ErrConflict if the studentId is already indexed.
	Create(ctx context.Context, metadata *CertificateMetadata) error

	// GetByTransactionHash returns the metadata for an issuance transaction or ErrNotFound.
	GetByTransactionHash(ctx context.Context, txHash string) (*CertificateMetadata, error)

	// GetByStudentID returns the metadata for a student or ErrNotFound.
	GetByStudentID(ctx context.Context, studentID string) (*CertificateMetadata, error)
}

// ChainReader is a read-only view of one ledger network.
type ChainReader interface {
	// Network returns the name this reader is bound to.
	Network() NetworkName

	// ChainID returns the chain id reported by the RPC endpoint.
	ChainID(ctx context.Context) (*big.Int, error)

	// DecodeTransaction recovers the setCertificate parameters from a mined,
	// successful transaction. Pending, reverted and unknown transactions are ErrNotFound.
	DecodeTransaction(ctx context.Context, txHash string) (*IssuanceTransaction, error)

	// GetCertificateInfo returns the core certificate record.
	GetCertificateInfo(ctx context.Context, contract ContractAddress, studentID string) (*CertificateInfo, error)

	// GetFullCertificateInfo returns the academic fields, empty if they cannot be read.
	GetFullCertificateInfo(ctx context.Context, contract ContractAddress, studentID string) AcademicInfo

	// GetCertificateStatus returns the live revocation status.
	GetCertificateStatus(ctx context.Context, contract ContractAddress, studentID string) (*RevocationStatus, error)

	// StudentIDs lists the students that hold a certificate from the contract.
	StudentIDs(ctx context.Context, contract ContractAddress) ([]string, error)

	// ListCertificates returns every certificate of the contract with its status.
	ListCertificates(ctx context.Context, contract ContractAddress) ([]CertificateSummary, error)

	// Balance returns the wallet balance in wei.
	Balance(ctx context.Context, wallet string) (*big.Int, error)

	// HasCode reports whether contract code is deployed at the address.
	HasCode(ctx context.Context, address ContractAddress) (bool, error)
}

// ChainReaderFactory resolves a ChainReader by network name.
type ChainReaderFactory interface {
	// ReaderFor returns the reader for a configured network or ErrBadRequest.
	ReaderFor(ctx context.Context, network NetworkName) (ChainReader, error)

	// Networks lists the configured network names.
	Networks() []NetworkName
}

// UploadHandle identifies a staged upload.
type UploadHandle string

// UploadStore holds uploaded documents between Prepare and Confirm.
type UploadStore interface {
	// Stage saves an upload on behalf of owner and returns its handle.
	Stage(ctx context.Context, owner InstitutionID, filename string, r io.Reader) (UploadHandle, error)

	// OwnedBy reports whether handle was staged by owner.
	OwnedBy(handle UploadHandle, owner InstitutionID) bool

	// Open returns a reader for a staged upload or ErrNotFound.
	Open(handle UploadHandle) (io.ReadCloser, error)

	// Filename returns the original file name of a staged upload.
	Filename(handle UploadHandle) string

	// Remove deletes the staged upload. Removing a missing upload is not an error.
	Remove(handle UploadHandle) error

	// Sweep removes uploads staged longer than maxAge ago and returns how many were removed.
	Sweep(maxAge time.Duration) (int, error)
}

// Attachment is a file sent along with a notification.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// Notification tells a student that a certificate was issued.
type Notification struct {
	Email           string       `json:"email"`
	Name            string       `json:"name"`
	TransactionHash string       `json:"transaction_hash"`
	VerificationURL string       `json:"verification_url"`
	Attachments     []Attachment `json:"attachments,omitempty"`
}

// Notifier delivers notifications. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// IssuanceDescriptor is everything the wallet needs to sign setCertificate and
// everything Confirm needs afterwards.
type IssuanceDescriptor struct {
	Network         NetworkName       `json:"network"`
	ChainID         string            `json:"chain_id"`
	ContractAddress ContractAddress   `json:"contract_address"`
	Fields          CertificateFields `json:"certificate_params"`
	DocumentHash    string            `json:"document_hash"`
	FileName        string            `json:"file_name"`
	UploadHandle    UploadHandle      `json:"upload_handle"`
	Calldata        string            `json:"calldata"`
}

// RevocationDescriptor is everything the wallet needs to sign revokeCertificate.
type RevocationDescriptor struct {
	Network         NetworkName     `json:"network"`
	ChainID         string          `json:"chain_id"`
	ContractAddress ContractAddress `json:"contract_address"`
	StudentID       string          `json:"student_id"`
	Reason          string          `json:"reason"`
	Calldata        string          `json:"calldata"`
}

// DeploymentDescriptor tells the wallet which network to deploy the contract to.
type DeploymentDescriptor struct {
	Network NetworkName `json:"network"`
	ChainID string      `json:"chain_id"`
	Balance string      `json:"balance"`
}

// VerificationResult reconciles the transaction input, contract state and metadata index.
type VerificationResult struct {
	DocumentHash     string        `json:"document_hash"`
	StudentID        string        `json:"student_id"`
	StudentName      string        `json:"student_name"`
	StudentEmail     string        `json:"student_email"`
	IssuerID         InstitutionID `json:"issuer_id"`
	IssuerName       string        `json:"issuer_name"`
	DomainVerified   bool          `json:"domain_verified"`
	Course           string        `json:"course"`
	CertificateType  string        `json:"certificate_type"`
	YearOfGraduation string        `json:"year_of_graduation"`
	IsRevoked        bool          `json:"is_revoked"`
	RevokedAt        uint64        `json:"revoked_at"`
	RevocationReason string        `json:"revocation_reason"`
	// Anchored is set when the transaction went to the issuer's registered
	// contract and that contract holds the same document hash. Issuer name and
	// domain verification are only reported for anchored certificates.
	Anchored         bool          `json:"anchored"`
	Network          NetworkName   `json:"network"`
	TransactionHash  string        `json:"transaction_hash"`
}

// DocumentMatch is the outcome of a document integrity check.
type DocumentMatch string

const (
	Match    DocumentMatch = "match"
	Mismatch DocumentMatch = "mismatch"
)
