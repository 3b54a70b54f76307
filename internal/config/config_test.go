package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 30*time.Second, cfg.Reader.WaitTimeout)
	assert.Equal(t, "any", cfg.Reader.Protocol)
	assert.Equal(t, "00", cfg.Card.CLA)
	assert.Equal(t, []string{"A0000000032010", "A0000000031010", "A0000000041010"}, cfg.Card.CandidateAIDs)
	assert.Equal(t, 30, cfg.Discovery.MaxDirectoryRecords)
	assert.Equal(t, 16, cfg.Discovery.MaxGetResponse)
	assert.False(t, cfg.Discovery.AbortOnRecordError)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad(t *testing.T) {
	t.Setenv("EMV_TEST_READER", "ACS ACR39U")

	path := writeConfig(t, `
reader:
  name: ${EMV_TEST_READER}
  waitTimeout: 5s
  protocol: t0
card:
  cla: "00"
  candidateAIDs:
    - A0000000041010
    - A0 00 00 00 25 01
discovery:
  abortOnRecordError: true
  trace: true
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ACS ACR39U", cfg.Reader.Name)
	assert.Equal(t, 5*time.Second, cfg.Reader.WaitTimeout)
	assert.Equal(t, "t0", cfg.Reader.Protocol)
	assert.True(t, cfg.Discovery.AbortOnRecordError)
	assert.True(t, cfg.Discovery.Trace)
	assert.Equal(t, 30, cfg.Discovery.MaxDirectoryRecords, "default kept")

	aids, err := cfg.Card.AIDs()
	require.NoError(t, err)
	assert.Equal(t, [][]byte{
		{0xA0, 0x00, 0x00, 0x00, 0x04, 0x10, 0x10},
		{0xA0, 0x00, 0x00, 0x00, 0x25, 0x01},
	}, aids)

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_Errors(t *testing.T) {
	tests := map[string]string{
		"Unknown protocol":      "reader:\n  protocol: t2\n",
		"CLA not a byte":        "card:\n  cla: \"0000\"\n",
		"Reserved CLA":          "card:\n  cla: FF\n",
		"AID not hex":           "card:\n  candidateAIDs: [A0XX]\n",
		"AID too short":         "card:\n  candidateAIDs: [A0000000]\n",
		"Too many records":      "discovery:\n  maxDirectoryRecords: 300\n",
		"Negative get response": "discovery:\n  maxGetResponse: -1\n",
		"Unknown level":         "log:\n  level: loud\n",
		"Unknown format":        "log:\n  format: xml\n",
		"Invalid YAML":          "reader: [\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCardConfig_Class(t *testing.T) {
	cls, err := CardConfig{CLA: "80"}.Class()
	require.NoError(t, err)
	assert.True(t, cls.IsProprietary)
}
