package verification

import (
	"io"

	"github.com/ruteri/certificate-trust-backend/interfaces"
)

// VerifyDocument hashes r and compares the digest with expectedHash, returning
// the digest alongside the verdict. The expected hash may carry a 0x prefix and
// any letter case; one that does not parse is a mismatch. Only a read failure
// returns an error.
func VerifyDocument(r io.Reader, expectedHash string) (interfaces.DocumentMatch, interfaces.ContentID, error) {
	actual, err := interfaces.HashDocument(r)
	if err != nil {
		return interfaces.Mismatch, interfaces.ContentID{}, err
	}

	expected, err := interfaces.NewContentIDFromHex(expectedHash)
	if err != nil {
		return interfaces.Mismatch, actual, nil
	}

	if actual.Equal(expected) {
		return interfaces.Match, actual, nil
	}
	return interfaces.Mismatch, actual, nil
}
