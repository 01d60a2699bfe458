// Package metadata is the advisory off-chain index of issued certificates.
// It holds what the ledger must not: the recipient email. Nothing read from
// this index is ever used as proof of a certificate.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/ruteri/certificate-trust-backend/interfaces"
)

type certificateMetadataModel struct {
	ID              uint   `gorm:"primaryKey"`
	StudentID       string `gorm:"uniqueIndex;size:128;not null"`
	StudentEmail    string `gorm:"not null"`
	TransactionHash string `gorm:"index;size:66;not null"`
	Network         string `gorm:"size:64;not null"`
	IssuerID        string `gorm:"size:64;not null"`
	IssuedAt        time.Time
}

func (certificateMetadataModel) TableName() string { return "certificate_metadata" }

func (m *certificateMetadataModel) toMetadata() *interfaces.CertificateMetadata {
	return &interfaces.CertificateMetadata{
		StudentID:       m.StudentID,
		StudentEmail:    m.StudentEmail,
		TransactionHash: m.TransactionHash,
		Network:         interfaces.NetworkName(m.Network),
		IssuerID:        interfaces.InstitutionID(m.IssuerID),
		IssuedAt:        m.IssuedAt,
	}
}

// Migrate creates or updates the metadata table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&certificateMetadataModel{})
}

// Store implements interfaces.MetadataStore on a relational database.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Create indexes a certificate. Rows are written once and never updated; a
// second row for the same studentId fails with ErrConflict.
func (s *Store) Create(ctx context.Context, metadata *interfaces.CertificateMetadata) error {
	if metadata.StudentID == "" || metadata.TransactionHash == "" {
		return fmt.Errorf("%w: studentId and transaction hash are required", interfaces.ErrBadRequest)
	}

	issuedAt := metadata.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = s.now()
	}

	model := certificateMetadataModel{
		StudentID:       metadata.StudentID,
		StudentEmail:    strings.TrimSpace(metadata.StudentEmail),
		TransactionHash: strings.ToLower(metadata.TransactionHash),
		Network:         metadata.Network.String(),
		IssuerID:        metadata.IssuerID.String(),
		IssuedAt:        issuedAt.UTC(),
	}
	err := s.db.WithContext(ctx).Create(&model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: metadata for student %s already exists", interfaces.ErrConflict, metadata.StudentID)
	}
	if err != nil {
		return fmt.Errorf("failed to create metadata: %w", err)
	}
	return nil
}

func (s *Store) GetByTransactionHash(ctx context.Context, txHash string) (*interfaces.CertificateMetadata, error) {
	return s.first(ctx, "transaction_hash = ?", strings.ToLower(txHash))
}

func (s *Store) GetByStudentID(ctx context.Context, studentID string) (*interfaces.CertificateMetadata, error) {
	return s.first(ctx, "student_id = ?", studentID)
}

func (s *Store) first(ctx context.Context, query string, arg string) (*interfaces.CertificateMetadata, error) {
	var model certificateMetadataModel
	err := s.db.WithContext(ctx).Where(query, arg).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: metadata %s", interfaces.ErrNotFound, arg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}
	return model.toMetadata(), nil
}
