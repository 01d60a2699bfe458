// Package verification reconciles what the ledger says about an issuance
// transaction with the institution directory and the off-chain metadata index.
//
// A mined, successful transaction is the only hard requirement, and it must
// agree with the issuer's contract when that contract is known. Every other
// source is optional and degrades to a default when it is missing or unreadable.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ruteri/certificate-trust-backend/interfaces"
	"github.com/ruteri/certificate-trust-backend/metrics"
)

// UnknownIssuer is reported when the issuing institution is not in the directory
// or the certificate is not anchored in its contract.
const UnknownIssuer = "Unknown"

// Aggregator builds verification results.
type Aggregator struct {
	readers      interfaces.ChainReaderFactory
	institutions interfaces.InstitutionStore
	registry     interfaces.ContractRegistry
	metadata     interfaces.MetadataStore
	log          *slog.Logger
}

func NewAggregator(readers interfaces.ChainReaderFactory, institutions interfaces.InstitutionStore, registry interfaces.ContractRegistry, metadata interfaces.MetadataStore, log *slog.Logger) *Aggregator {
	return &Aggregator{
		readers:      readers,
		institutions: institutions,
		registry:     registry,
		metadata:     metadata,
		log:          log,
	}
}

// Verify decodes an issuance transaction and joins it with the issuer, the
// metadata index and the live contract state.
//
// A transaction that was sent somewhere other than the issuer's registered
// contract, or whose document hash the contract does not hold, proves nothing
// and is ErrNotFound. Other sources degrade to defaults; without a readable
// registration the result is not anchored and carries no issuer attribution.
func (a *Aggregator) Verify(ctx context.Context, network interfaces.NetworkName, txHash string) (result *interfaces.VerificationResult, err error) {
	defer func() { metrics.Verifications.WithLabelValues(verifyOutcome(err)).Inc() }()

	reader, err := a.readers.ReaderFor(ctx, network)
	if err != nil {
		return nil, err
	}

	tx, err := reader.DecodeTransaction(ctx, txHash)
	if err != nil {
		return nil, err
	}
	fields := tx.CertificateFields
	issuerID := interfaces.InstitutionID(fields.IssuerID)

	log := a.log.With(
		slog.String("network", network.String()),
		slog.String("tx_hash", txHash),
		slog.String("student_id", fields.StudentID))

	var (
		institution  *interfaces.Institution
		record       *interfaces.CertificateMetadata
		registration *interfaces.ContractRegistration
		stored       *interfaces.CertificateInfo
		status       *interfaces.RevocationStatus
		academic     interfaces.AcademicInfo
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		found, err := a.institutions.Get(gctx, issuerID)
		if err != nil {
			logOptional(log, "institution", err)
			return nil
		}
		institution = found
		return nil
	})

	g.Go(func() error {
		found, err := a.metadata.GetByTransactionHash(gctx, txHash)
		if err != nil {
			logOptional(log, "metadata", err)
			return nil
		}
		if found.StudentID != fields.StudentID || found.IssuerID != issuerID {
			log.Warn("Ignoring metadata recorded for another certificate",
				slog.String("metadata_student_id", found.StudentID),
				slog.String("metadata_issuer_id", found.IssuerID.String()))
			return nil
		}
		record = found
		return nil
	})

	g.Go(func() error {
		found, err := a.registry.Lookup(gctx, issuerID, network)
		if err != nil {
			logOptional(log, "registration", err)
			return nil
		}
		registration = found
		if registration.Address != tx.Contract {
			return nil
		}

		inner, ictx := errgroup.WithContext(gctx)
		inner.Go(func() error {
			info, err := reader.GetCertificateInfo(ictx, registration.Address, fields.StudentID)
			if err != nil {
				logOptional(log, "certificate info", err)
				return nil
			}
			stored = info
			return nil
		})
		inner.Go(func() error {
			found, err := reader.GetCertificateStatus(ictx, registration.Address, fields.StudentID)
			if err != nil {
				logOptional(log, "revocation status", err)
				return nil
			}
			status = found
			return nil
		})
		inner.Go(func() error {
			academic = reader.GetFullCertificateInfo(ictx, registration.Address, fields.StudentID)
			return nil
		})
		return inner.Wait()
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if registration != nil && registration.Address != tx.Contract {
		log.Warn("Transaction was not sent to the issuer's contract",
			slog.String("to", tx.Contract.String()),
			slog.String("contract", registration.Address.String()))
		return nil, fmt.Errorf("%w: transaction %s was not sent to the contract of %s", interfaces.ErrNotFound, txHash, issuerID)
	}
	if stored != nil && stored.DocumentHash != fields.DocumentHash {
		log.Warn("Contract holds a different document", slog.String("stored_hash", stored.DocumentHash))
		return nil, fmt.Errorf("%w: contract does not hold the document of transaction %s", interfaces.ErrNotFound, txHash)
	}

	result = &interfaces.VerificationResult{
		DocumentHash:     fields.DocumentHash,
		StudentID:        fields.StudentID,
		StudentName:      fields.StudentName,
		IssuerID:         issuerID,
		IssuerName:       UnknownIssuer,
		Course:           academic.Course,
		CertificateType:  academic.CertificateType,
		YearOfGraduation: academic.YearOfGraduation,
		Anchored:         stored != nil,
		Network:          network,
		TransactionHash:  txHash,
	}
	if result.Anchored && institution != nil {
		result.IssuerName = institution.DisplayName
		result.DomainVerified = institution.DomainVerified
	}
	if record != nil {
		result.StudentEmail = MaskEmail(record.StudentEmail)
	}
	if status != nil {
		result.IsRevoked = status.IsRevoked
		result.RevokedAt = status.RevokedAt
		result.RevocationReason = status.Reason
	}

	return result, nil
}

// CertificateStatus reads the live revocation status of a student's certificate
// on the institution's contract.
func (a *Aggregator) CertificateStatus(ctx context.Context, network interfaces.NetworkName, institutionID interfaces.InstitutionID, studentID string) (*interfaces.RevocationStatus, error) {
	if studentID == "" {
		return nil, fmt.Errorf("%w: student id is required", interfaces.ErrBadRequest)
	}
	reader, registration, err := a.contractFor(ctx, network, institutionID)
	if err != nil {
		return nil, err
	}
	return reader.GetCertificateStatus(ctx, registration.Address, studentID)
}

// Certificates lists every certificate on the institution's contract.
func (a *Aggregator) Certificates(ctx context.Context, network interfaces.NetworkName, institutionID interfaces.InstitutionID) ([]interfaces.CertificateSummary, error) {
	reader, registration, err := a.contractFor(ctx, network, institutionID)
	if err != nil {
		return nil, err
	}
	return reader.ListCertificates(ctx, registration.Address)
}

func (a *Aggregator) contractFor(ctx context.Context, network interfaces.NetworkName, institutionID interfaces.InstitutionID) (interfaces.ChainReader, *interfaces.ContractRegistration, error) {
	reader, err := a.readers.ReaderFor(ctx, network)
	if err != nil {
		return nil, nil, err
	}
	registration, err := a.registry.Lookup(ctx, institutionID, network)
	if err != nil {
		return nil, nil, fmt.Errorf("no contract for institution %s on %s: %w", institutionID, network, err)
	}
	return reader, registration, nil
}

func logOptional(log *slog.Logger, source string, err error) {
	if errors.Is(err, interfaces.ErrNotFound) {
		log.Debug("Verification source missing", slog.String("source", source))
		return
	}
	log.Warn("Verification source unavailable", slog.String("source", source), "err", err)
}

func verifyOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, interfaces.ErrNotFound):
		return "not_found"
	default:
		return metrics.OutcomeError
	}
}

// MaskEmail hides most of the local part of an address. Local parts of up to
// three characters keep their first character; longer ones keep the first two
// and the last, with at most five asterisks in between. The domain is kept.
// An address without "@" is masked as if it were all local part.
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}

	local, domain, hasDomain := strings.Cut(email, "@")
	runes := []rune(local)
	var masked string
	if len(runes) <= 3 {
		if len(runes) > 0 {
			masked = string(runes[:1])
		}
		masked += "***"
	} else {
		masked = string(runes[:2]) + strings.Repeat("*", min(len(runes)-3, 5)) + string(runes[len(runes)-1:])
	}

	if !hasDomain {
		return masked
	}
	return masked + "@" + domain
}
