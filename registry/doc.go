// Package registry persists the identity side of the certificate trust
// protocol: the directory of issuing institutions and the binding of each
// institution to its deployed certificate contract.
//
// # Contract Registry
//
// ContractStore implements interfaces.ContractRegistry. Each institution may
// hold at most one contract per network. The invariant is enforced by a unique
// index on (institution_id, network), so two concurrent registrations for the
// same pair cannot both succeed; the loser receives interfaces.ErrConflict.
// Registrations are never updated or deleted.
//
// # Institution Directory
//
// InstitutionStore implements interfaces.InstitutionStore. Wallet addresses are
// stored lower-case under a unique index and cannot be changed once created.
// The DomainVerified flag is only set by operators through certctl
// verify-domain, which records the outcome of a DomainVerifier check: the
// institution publishes its wallet address as a TXT record at
// _certificate-trust.<domain>.
//
// # Storage
//
// Both stores run on gorm with TranslateError enabled so that duplicate-key
// violations surface as gorm.ErrDuplicatedKey regardless of the driver.
// Call Migrate once at startup to create the tables.
//
// # Testing
//
// The package provides testify mocks (MockContractRegistry, MockInstitutionStore)
// for components that depend on the registry.
package registry
