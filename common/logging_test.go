package common

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := SetupLogger(&LoggingOpts{
		JSON:    true,
		Service: "certificate-trust",
		Version: "v1.2.3",
		Output:  &buf,
	})

	log.Info("Hello", "network", "sepolia")
	log.Debug("Hidden")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Hello", line["msg"])
	assert.Equal(t, "certificate-trust", line["service"])
	assert.Equal(t, "v1.2.3", line["version"])
	assert.Equal(t, "sepolia", line["network"])
	assert.NotContains(t, buf.String(), "Hidden")
}

func TestSetupLogger_Debug(t *testing.T) {
	var buf bytes.Buffer
	log := SetupLogger(&LoggingOpts{Debug: true, Output: &buf})

	log.Debug("Visible")
	assert.Contains(t, buf.String(), "Visible")
	assert.NotContains(t, buf.String(), "service=")
}
