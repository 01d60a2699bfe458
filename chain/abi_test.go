package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnpackSetCertificate(t *testing.T) {
	calldata, err := PackSetCertificate(testFields)
	require.NoError(t, err)
	assert.Equal(t, ContractABI().Methods["setCertificate"].ID, calldata[:4])

	fields, err := UnpackSetCertificate(calldata)
	require.NoError(t, err)
	assert.Equal(t, testFields, *fields)

	t.Run("optional fields may be empty", func(t *testing.T) {
		minimal := testFields
		minimal.Course, minimal.CertificateType, minimal.YearOfGraduation = "", "", ""
		calldata, err := PackSetCertificate(minimal)
		require.NoError(t, err)

		fields, err := UnpackSetCertificate(calldata)
		require.NoError(t, err)
		assert.Equal(t, minimal, *fields)
	})

	t.Run("short input", func(t *testing.T) {
		_, err := UnpackSetCertificate([]byte{0x01, 0x02})
		assert.ErrorIs(t, err, ErrNotIssuance)
	})

	t.Run("other method", func(t *testing.T) {
		revoke, err := PackRevokeCertificate("S-1", "fraud")
		require.NoError(t, err)
		_, err = UnpackSetCertificate(revoke)
		assert.ErrorIs(t, err, ErrNotIssuance)
	})

	t.Run("truncated arguments", func(t *testing.T) {
		_, err := UnpackSetCertificate(calldata[:40])
		assert.ErrorIs(t, err, ErrNotIssuance)
	})
}
