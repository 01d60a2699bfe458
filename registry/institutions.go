package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ruteri/certificate-trust-backend/interfaces"
)

// InstitutionStore implements interfaces.InstitutionStore on a relational database.
type InstitutionStore struct {
	db *gorm.DB
}

func NewInstitutionStore(db *gorm.DB) *InstitutionStore {
	return &InstitutionStore{db: db}
}

// Create persists a new institution. The wallet address is stored lower-case
// and must not belong to another institution. An empty ID is assigned a uuid.
func (s *InstitutionStore) Create(ctx context.Context, institution *interfaces.Institution) (*interfaces.Institution, error) {
	wallet, err := interfaces.NormalizeWallet(institution.WalletAddress)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(institution.DisplayName) == "" {
		return nil, fmt.Errorf("%w: display name is required", interfaces.ErrBadRequest)
	}

	id := institution.ID.String()
	if id == "" {
		id = uuid.NewString()
	}

	model := institutionModel{
		ID:             id,
		WalletAddress:  wallet,
		DisplayName:    strings.TrimSpace(institution.DisplayName),
		Domain:         strings.ToLower(strings.TrimSpace(institution.Domain)),
		DomainVerified: false,
	}
	err = s.db.WithContext(ctx).Create(&model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, fmt.Errorf("%w: wallet %s is already registered", interfaces.ErrConflict, wallet)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create institution: %w", err)
	}

	return model.toInstitution(), nil
}

func (s *InstitutionStore) Get(ctx context.Context, id interfaces.InstitutionID) (*interfaces.Institution, error) {
	return s.first(ctx, "id = ?", id.String())
}

func (s *InstitutionStore) GetByWallet(ctx context.Context, wallet string) (*interfaces.Institution, error) {
	normalized, err := interfaces.NormalizeWallet(wallet)
	if err != nil {
		return nil, err
	}
	return s.first(ctx, "wallet_address = ?", normalized)
}

// SetDomainVerified is an operator action; nothing in the request path calls it.
func (s *InstitutionStore) SetDomainVerified(ctx context.Context, id interfaces.InstitutionID, verified bool) error {
	result := s.db.WithContext(ctx).
		Model(&institutionModel{}).
		Where("id = ?", id.String()).
		Update("domain_verified", verified)
	if result.Error != nil {
		return fmt.Errorf("failed to update institution: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: institution %s", interfaces.ErrNotFound, id)
	}
	return nil
}

func (s *InstitutionStore) first(ctx context.Context, query string, arg string) (*interfaces.Institution, error) {
	var model institutionModel
	err := s.db.WithContext(ctx).Where(query, arg).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: institution %s", interfaces.ErrNotFound, arg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load institution: %w", err)
	}
	return model.toInstitution(), nil
}
