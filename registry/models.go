package registry

import (
	"time"

	"gorm.io/gorm"

	"github.com/ruteri/certificate-trust-backend/interfaces"
)

type institutionModel struct {
	ID             string `gorm:"primaryKey;size:64"`
	WalletAddress  string `gorm:"uniqueIndex;size:42;not null"`
	DisplayName    string `gorm:"not null"`
	Domain         string
	DomainVerified bool `gorm:"not null;default:false"`
	CreatedAt      time.Time
}

func (institutionModel) TableName() string { return "institutions" }

func (m *institutionModel) toInstitution() *interfaces.Institution {
	return &interfaces.Institution{
		ID:             interfaces.InstitutionID(m.ID),
		WalletAddress:  m.WalletAddress,
		DisplayName:    m.DisplayName,
		Domain:         m.Domain,
		DomainVerified: m.DomainVerified,
		CreatedAt:      m.CreatedAt,
	}
}

// contractRegistrationModel has no update path; the unique index is the only
// guard against a second contract for the same institution and network.
type contractRegistrationModel struct {
	ID            uint   `gorm:"primaryKey"`
	InstitutionID string `gorm:"uniqueIndex:idx_registration_institution_network;size:64;not null"`
	Network       string `gorm:"uniqueIndex:idx_registration_institution_network;size:64;not null"`
	Address       string `gorm:"size:42;not null"`
	CreatedAt     time.Time
}

func (contractRegistrationModel) TableName() string { return "contract_registrations" }

func (m *contractRegistrationModel) toRegistration() (*interfaces.ContractRegistration, error) {
	address, err := interfaces.NewContractAddressFromHex(m.Address)
	if err != nil {
		return nil, err
	}
	return &interfaces.ContractRegistration{
		InstitutionID: interfaces.InstitutionID(m.InstitutionID),
		Network:       interfaces.NetworkName(m.Network),
		Address:       address,
		CreatedAt:     m.CreatedAt,
	}, nil
}

// Migrate creates or updates the registry tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&institutionModel{}, &contractRegistrationModel{})
}
