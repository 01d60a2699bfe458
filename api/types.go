package api

import (
	"github.com/ruteri/certificate-trust-backend/interfaces"
)

// InstitutionIDHeader carries the institution identity asserted by the
// authenticating gateway in front of the backend.
const InstitutionIDHeader = "X-Institution-Id"

// Multipart form fields of the upload endpoints.
const (
	FormFile             = "file"
	FormNetwork          = "network"
	FormWalletAddress    = "wallet_address"
	FormStudentID        = "student_id"
	FormStudentName      = "student_name"
	FormCourse           = "course"
	FormCertificateType  = "certificate_type"
	FormYearOfGraduation = "year_of_graduation"
	FormExpectedHash     = "expected_hash"
)

// SignupRequest creates an institution.
type SignupRequest struct {
	WalletAddress string `json:"wallet_address"`
	DisplayName   string `json:"display_name"`
	Domain        string `json:"domain"`
}

// InstitutionProfile is an institution together with its deployed contracts.
type InstitutionProfile struct {
	Institution interfaces.Institution            `json:"institution"`
	Contracts   []interfaces.ContractRegistration `json:"contracts"`
}

// PrepareDeploymentRequest asks whether a contract may be deployed on a network.
type PrepareDeploymentRequest struct {
	Network       interfaces.NetworkName `json:"network"`
	WalletAddress string                 `json:"wallet_address"`
}

// ConfirmDeploymentRequest reports the address of a deployed contract.
type ConfirmDeploymentRequest struct {
	Network         interfaces.NetworkName `json:"network"`
	ContractAddress string                 `json:"contract_address"`
}

// ConfirmIssuanceRequest reports the setCertificate transaction sent by the wallet.
type ConfirmIssuanceRequest struct {
	Network         interfaces.NetworkName  `json:"network"`
	TransactionHash string                  `json:"transaction_hash"`
	StudentID       string                  `json:"student_id"`
	StudentEmail    string                  `json:"student_email"`
	StudentName     string                  `json:"student_name"`
	UploadHandle    interfaces.UploadHandle `json:"upload_handle"`
}

// PrepareRevocationRequest asks for revokeCertificate calldata.
type PrepareRevocationRequest struct {
	Network       interfaces.NetworkName `json:"network"`
	WalletAddress string                 `json:"wallet_address"`
	StudentID     string                 `json:"student_id"`
	Reason        string                 `json:"reason"`
}

// ConfirmRevocationRequest reports the revokeCertificate transaction sent by the wallet.
type ConfirmRevocationRequest struct {
	Network         interfaces.NetworkName `json:"network"`
	StudentID       string                 `json:"student_id"`
	TransactionHash string                 `json:"transaction_hash"`
}

// TransactionResponse acknowledges a confirmed transaction.
type TransactionResponse struct {
	TransactionHash string `json:"transaction_hash"`
}

// CertificateListResponse is an institution's certificates on one network.
type CertificateListResponse struct {
	Network         interfaces.NetworkName          `json:"network"`
	ContractAddress interfaces.ContractAddress      `json:"contract_address"`
	Certificates    []interfaces.CertificateSummary `json:"certificates"`
}

// HashResponse carries the SHA-256 of an uploaded document.
type HashResponse struct {
	DocumentHash string `json:"document_hash"`
}

// DocumentMatchResponse is the result of comparing a document to an expected hash.
type DocumentMatchResponse struct {
	Result       interfaces.DocumentMatch `json:"result"`
	DocumentHash string                   `json:"document_hash"`
	ExpectedHash string                   `json:"expected_hash"`
}

// ErrorResponse is the body of every non-2xx response. Balance and Required
// are set only for insufficient funds, in ether.
type ErrorResponse struct {
	Error    string `json:"error"`
	Balance  string `json:"balance,omitempty"`
	Required string `json:"required,omitempty"`
}
