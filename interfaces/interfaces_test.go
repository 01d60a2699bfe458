package interfaces

import (
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEtherRoundTrip(t *testing.T) {
	testCases := []struct {
		input string
		wei   string
		out   string
	}{
		{"0.002", "2000000000000000", "0.002"},
		{"0.0075", "7500000000000000", "0.0075"},
		{"1", "1000000000000000000", "1"},
		{".5", "500000000000000000", "0.5"},
		{"0.000000000000000001", "1", "0.000000000000000001"},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			wei, err := ParseEther(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.wei, wei.String())
			assert.Equal(t, tc.out, FormatEther(wei))
		})
	}

	for _, bad := range []string{"abc", "-1", "1.2.3", "0.0000000000000000001"} {
		_, err := ParseEther(bad)
		assert.Error(t, err, bad)
	}

	assert.Equal(t, "0", FormatEther(nil))
	assert.Equal(t, "-1.5", FormatEther(big.NewInt(-1_500_000_000_000_000_000)))
}

func TestInsufficientFundsError(t *testing.T) {
	err := error(&InsufficientFundsError{
		Wallet:   "0xabc",
		Balance:  big.NewInt(1_000_000_000_000_000),
		Required: big.NewInt(2_000_000_000_000_000),
	})

	assert.True(t, errors.Is(err, ErrInsufficientFunds))
	assert.Contains(t, err.Error(), "0.001 ether")
	assert.Contains(t, err.Error(), "0.002 ether")

	var funds *InsufficientFundsError
	require.True(t, errors.As(err, &funds))
	assert.Equal(t, "0xabc", funds.Wallet)

	assert.True(t, errors.Is(ErrAlreadyRevoked, ErrConflict))
}

func TestContractAddress(t *testing.T) {
	addr, err := NewContractAddressFromHex("0x5fbdb2315678afecb367f032d93f642f64180aa3")
	require.NoError(t, err)
	assert.Equal(t, "0x5FbDB2315678afecb367f032d93F642f64180aa3", addr.String())
	assert.False(t, addr.IsZero())

	noPrefix, err := NewContractAddressFromHex("5fbdb2315678afecb367f032d93f642f64180aa3")
	require.NoError(t, err)
	assert.Equal(t, addr, noPrefix)

	_, err = NewContractAddressFromHex("0x1234")
	assert.Error(t, err)
	_, err = NewContractAddressFromHex("0x" + strings.Repeat("zz", 20))
	assert.Error(t, err)
	_, err = NewContractAddressFromBytes(make([]byte, 19))
	assert.Error(t, err)

	encoded, err := json.Marshal(struct {
		Address ContractAddress `json:"address"`
	}{addr})
	require.NoError(t, err)
	assert.JSONEq(t, `{"address":"0x5FbDB2315678afecb367f032d93F642f64180aa3"}`, string(encoded))

	var decoded struct {
		Address ContractAddress `json:"address"`
	}
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, addr, decoded.Address)

	assert.True(t, ContractAddress{}.IsZero())
}

func TestWallets(t *testing.T) {
	const mixed = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

	normalized, err := NormalizeWallet(mixed)
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(mixed), normalized)

	_, err = NormalizeWallet("not-a-wallet")
	assert.ErrorIs(t, err, ErrBadRequest)

	assert.True(t, SameWallet(mixed, strings.ToLower(mixed)))
	assert.False(t, SameWallet(mixed, "0x0000000000000000000000000000000000000001"))
	assert.False(t, SameWallet("garbage", "garbage"))
}

func TestContentID(t *testing.T) {
	const helloHash = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

	id := ComputeID([]byte("hello"))
	assert.Equal(t, helloHash, id.String())

	streamed, err := HashDocument(strings.NewReader("hello"))
	require.NoError(t, err)
	assert.True(t, id.Equal(streamed))

	parsed, err := NewContentIDFromHex("0x" + strings.ToUpper(helloHash))
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	fromBytes, err := NewContentIDFromBytes(id.Bytes())
	require.NoError(t, err)
	assert.Equal(t, id, fromBytes)

	_, err = NewContentIDFromHex("abcd")
	assert.Error(t, err)
	_, err = NewContentIDFromBytes([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestStorageBackendLocation(t *testing.T) {
	loc, err := NewStorageBackendLocation("s3://key:secret@bucket/certificates/?region=eu-west-1")
	require.NoError(t, err)
	assert.Equal(t, "s3", loc.Scheme)
	assert.Equal(t, "bucket", loc.Host)
	assert.Equal(t, "/certificates/", loc.Path)
	assert.Equal(t, "key:secret", loc.Auth)
	assert.Equal(t, "eu-west-1", loc.GetParam("region"))
	assert.Equal(t, "s3://key:secret@bucket/certificates/?region=eu-west-1", loc.String())

	for _, uri := range []string{"file:///var/lib/certs", "ipfs://localhost:5001/", "vault://vault:8200/secret/certs"} {
		_, err := NewStorageBackendLocation(uri)
		assert.NoError(t, err, uri)
	}

	_, err = NewStorageBackendLocation("ftp://example.com/")
	assert.ErrorIs(t, err, ErrInvalidLocationURI)
	_, err = NewStorageBackendLocation("://bad")
	assert.ErrorIs(t, err, ErrInvalidLocationURI)
}
