// Package interfaces defines core interfaces and types for the certificate
// trust system, separating interface definitions from implementations.
//
// # Trust Interfaces
//
// ContractRegistry: Binds each institution to exactly one deployed contract per network.
//
// InstitutionStore: Directory of issuing institutions keyed by id and wallet address.
//
// ChainReader: Read-only view of a ledger network, decoding issuance transactions and
// reading certificate and revocation state from an institution's contract.
//
// MetadataStore: Advisory off-chain index holding the recipient email of each certificate.
// It is never trusted as proof.
//
// # Document Interfaces
//
// DocumentHasher: Computes the SHA-256 fingerprint recorded on-chain as documentHash.
//
// UploadStore: Holds uploaded documents between the two phases of an issuance.
//
// StorageBackend: Content-addressed archive of issued documents across multiple
// backend types (file, S3, IPFS, Vault).
//
// # Errors
//
// Operations return the sentinel errors declared in errors.go wrapped with context.
// Callers classify them with errors.Is.
package interfaces
