// Package interfaces defines the core interfaces and types for the certificate trust system.
// It provides the contract between different components without implementation details.
package interfaces

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// NetworkName identifies a ledger environment, e.g. "localhost", "sepolia" or "mainnet".
type NetworkName string

// String returns the network name.
func (n NetworkName) String() string {
	return string(n)
}

// InstitutionID identifies an issuing institution. It is also the issuerId
// embedded in every certificate the institution issues.
type InstitutionID string

// String returns the institution id.
func (id InstitutionID) String() string {
	return string(id)
}

// ContractAddress represents an Ethereum contract address.
type ContractAddress [20]byte

// NewContractAddressFromBytes creates a new contract address from a byte slice.
func NewContractAddressFromBytes(addr []byte) (ContractAddress, error) {
	if len(addr) != 20 {
		return ContractAddress{}, errors.New("invalid address length: must be 20 bytes")
	}

	var res ContractAddress
	copy(res[:], addr)
	return res, nil
}

// NewContractAddressFromHex creates a new contract address from a hex string, with or without 0x prefix.
func NewContractAddressFromHex(addr string) (ContractAddress, error) {
	clean := strings.TrimPrefix(strings.TrimPrefix(addr, "0x"), "0X")
	if len(clean) != 40 {
		return ContractAddress{}, errors.New("invalid address length: hex string must be 40 characters")
	}

	addrBytes, err := hex.DecodeString(clean)
	if err != nil {
		return ContractAddress{}, fmt.Errorf("invalid hex format: %w", err)
	}

	return NewContractAddressFromBytes(addrBytes)
}

// String returns the checksummed 0x-prefixed representation of the address.
func (addr ContractAddress) String() string {
	return common.Address(addr).Hex()
}

// Common converts the address into its go-ethereum representation.
func (addr ContractAddress) Common() common.Address {
	return common.Address(addr)
}

// IsZero reports whether the address is unset.
func (addr ContractAddress) IsZero() bool {
	return addr == ContractAddress{}
}

// MarshalText implements encoding.TextMarshaler.
func (addr ContractAddress) MarshalText() ([]byte, error) {
	return []byte(addr.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (addr *ContractAddress) UnmarshalText(text []byte) error {
	parsed, err := NewContractAddressFromHex(string(text))
	if err != nil {
		return err
	}
	*addr = parsed
	return nil
}

// SameWallet compares two wallet addresses case-insensitively. Malformed
// addresses never match.
func SameWallet(a, b string) bool {
	if !common.IsHexAddress(a) || !common.IsHexAddress(b) {
		return false
	}
	return common.HexToAddress(a) == common.HexToAddress(b)
}

// NormalizeWallet returns the lower-case 0x-prefixed form of a wallet address.
func NormalizeWallet(wallet string) (string, error) {
	if !common.IsHexAddress(wallet) {
		return "", fmt.Errorf("%w: invalid wallet address %q", ErrBadRequest, wallet)
	}
	return strings.ToLower(common.HexToAddress(wallet).Hex()), nil
}

// Institution is an issuer of certificates.
type Institution struct {
	ID             InstitutionID `json:"id"`
	WalletAddress  string        `json:"wallet_address"`
	DisplayName    string        `json:"display_name"`
	Domain         string        `json:"domain"`
	DomainVerified bool          `json:"domain_verified"`
	CreatedAt      time.Time     `json:"created_at"`
}

// ContractRegistration binds an institution to its deployed contract on one network.
type ContractRegistration struct {
	InstitutionID InstitutionID   `json:"institution_id"`
	Network       NetworkName     `json:"network"`
	Address       ContractAddress `json:"address"`
	CreatedAt     time.Time       `json:"created_at"`
}

// CertificateMetadata is the advisory off-chain record created after an issuance is confirmed.
type CertificateMetadata struct {
	StudentID       string        `json:"student_id"`
	StudentEmail    string        `json:"student_email"`
	TransactionHash string        `json:"transaction_hash"`
	Network         NetworkName   `json:"network"`
	IssuerID        InstitutionID `json:"issuer_id"`
	IssuedAt        time.Time     `json:"issued_at"`
}

// CertificateFields are the seven ordered parameters of the contract's setCertificate call.
type CertificateFields struct {
	StudentID        string `json:"student_id"`
	DocumentHash     string `json:"document_hash"`
	StudentName      string `json:"student_name"`
	IssuerID         string `json:"issuer_id"`
	Course           string `json:"course"`
	CertificateType  string `json:"certificate_type"`
	YearOfGraduation string `json:"year_of_graduation"`
}

// IssuanceTransaction is a mined, successful transaction whose input decodes
// as setCertificate.
type IssuanceTransaction struct {
	CertificateFields
	// Contract is the address the transaction was sent to.
	Contract ContractAddress `json:"contract_address"`
}

// AcademicInfo holds the optional certificate fields. Older contracts may not
// expose them, in which case all fields are empty.
type AcademicInfo struct {
	Course           string `json:"course"`
	CertificateType  string `json:"certificate_type"`
	YearOfGraduation string `json:"year_of_graduation"`
}

// CertificateInfo is the core certificate record as stored in the contract.
type CertificateInfo struct {
	DocumentHash string `json:"document_hash"`
	StudentName  string `json:"student_name"`
}

// RevocationStatus is the revocation sub-state of a certificate. Once
// IsRevoked is true it never becomes false again.
type RevocationStatus struct {
	IsRevoked bool   `json:"is_revoked"`
	RevokedAt uint64 `json:"revoked_at"`
	Reason    string `json:"reason"`
}

// CertificateSummary is a row of an institution's certificate listing.
type CertificateSummary struct {
	StudentID    string           `json:"student_id"`
	DocumentHash string           `json:"document_hash"`
	StudentName  string           `json:"student_name"`
	Status       RevocationStatus `json:"status"`
}
