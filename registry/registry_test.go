package registry

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ruteri/certificate-trust-backend/database"
	"github.com/ruteri/certificate-trust-backend/interfaces"
)

const testWallet = "0xAbC0000000000000000000000000000000000001"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open("sqlite://"+filepath.Join(t.TempDir(), "registry.db"), database.Options{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, Migrate(db))
	return db
}

func mustAddress(t *testing.T, hex string) interfaces.ContractAddress {
	t.Helper()
	addr, err := interfaces.NewContractAddressFromHex(hex)
	require.NoError(t, err)
	return addr
}

func TestContractStore_RegisterAndLookup(t *testing.T) {
	ctx := context.Background()
	store := NewContractStore(newTestDB(t))
	address := mustAddress(t, "0x1111111111111111111111111111111111111111")

	_, err := store.Lookup(ctx, "inst-1", "sepolia")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	registration, err := store.Register(ctx, "inst-1", "sepolia", address)
	require.NoError(t, err)
	assert.Equal(t, address, registration.Address)
	assert.False(t, registration.CreatedAt.IsZero())

	found, err := store.Lookup(ctx, "inst-1", "sepolia")
	require.NoError(t, err)
	assert.Equal(t, address, found.Address)
	assert.Equal(t, interfaces.NetworkName("sepolia"), found.Network)

	// Same institution, other network.
	_, err = store.Register(ctx, "inst-1", "localhost", mustAddress(t, "0x2222222222222222222222222222222222222222"))
	require.NoError(t, err)

	list, err := store.ListForInstitution(ctx, "inst-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, interfaces.NetworkName("localhost"), list[0].Network)
	assert.Equal(t, interfaces.NetworkName("sepolia"), list[1].Network)

	list, err = store.ListForInstitution(ctx, "inst-2")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestContractStore_OneContractPerNetwork(t *testing.T) {
	ctx := context.Background()
	store := NewContractStore(newTestDB(t))
	first := mustAddress(t, "0x1111111111111111111111111111111111111111")

	_, err := store.Register(ctx, "inst-1", "sepolia", first)
	require.NoError(t, err)

	_, err = store.Register(ctx, "inst-1", "sepolia", mustAddress(t, "0x3333333333333333333333333333333333333333"))
	assert.ErrorIs(t, err, interfaces.ErrConflict)

	found, err := store.Lookup(ctx, "inst-1", "sepolia")
	require.NoError(t, err)
	assert.Equal(t, first, found.Address)
}

func TestContractStore_ConcurrentRegistration(t *testing.T) {
	ctx := context.Background()
	store := NewContractStore(newTestDB(t))

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			addr := interfaces.ContractAddress{byte(i + 1)}
			_, errs[i] = store.Register(ctx, "inst-1", "mainnet", addr)
		}()
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, interfaces.ErrConflict)
	}
	assert.Equal(t, 1, succeeded)
}

func TestContractStore_RegisterValidation(t *testing.T) {
	store := NewContractStore(newTestDB(t))

	_, err := store.Register(context.Background(), "inst-1", "sepolia", interfaces.ContractAddress{})
	assert.ErrorIs(t, err, interfaces.ErrBadRequest)

	_, err = store.Register(context.Background(), "", "sepolia", interfaces.ContractAddress{0x01})
	assert.ErrorIs(t, err, interfaces.ErrBadRequest)
}

func TestInstitutionStore(t *testing.T) {
	ctx := context.Background()
	store := NewInstitutionStore(newTestDB(t))

	created, err := store.Create(ctx, &interfaces.Institution{
		WalletAddress: testWallet,
		DisplayName:   " Example University ",
		Domain:        "Example.EDU",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "0xabc0000000000000000000000000000000000001", created.WalletAddress)
	assert.Equal(t, "Example University", created.DisplayName)
	assert.Equal(t, "example.edu", created.Domain)
	assert.False(t, created.DomainVerified)

	byID, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.WalletAddress, byID.WalletAddress)

	byWallet, err := store.GetByWallet(ctx, "0xABC0000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byWallet.ID)

	t.Run("wallet is unique regardless of case", func(t *testing.T) {
		_, err := store.Create(ctx, &interfaces.Institution{
			WalletAddress: "0xabc0000000000000000000000000000000000001",
			DisplayName:   "Impostor",
		})
		assert.ErrorIs(t, err, interfaces.ErrConflict)
	})

	t.Run("wallet is required", func(t *testing.T) {
		_, err := store.Create(ctx, &interfaces.Institution{DisplayName: "No Wallet"})
		assert.ErrorIs(t, err, interfaces.ErrBadRequest)
	})

	t.Run("name is required", func(t *testing.T) {
		_, err := store.Create(ctx, &interfaces.Institution{WalletAddress: "0x0000000000000000000000000000000000000009"})
		assert.ErrorIs(t, err, interfaces.ErrBadRequest)
	})

	t.Run("domain verification", func(t *testing.T) {
		require.NoError(t, store.SetDomainVerified(ctx, created.ID, true))
		inst, err := store.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.True(t, inst.DomainVerified)

		err = store.SetDomainVerified(ctx, "missing", true)
		assert.ErrorIs(t, err, interfaces.ErrNotFound)
	})

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}
