package content

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.True(t, c.HasZone("Awayan"))
	assert.False(t, c.HasZone("awayan"), "zones match exactly")
	assert.Equal(t, 3, c.RiskHighThreshold)
	assert.NotEmpty(t, c.RiskQuestions)
	assert.Contains(t, c.Texts.TicketCreated, "%s")
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "content.yaml")
	data := []byte(`
zones: [Utara, Selatan]
risk_questions: ["Q1?"]
texts:
  welcome: hi
  menu: menu
  ticket_created: "kode %s"
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Utara", "Selatan"}, c.Zones)
	assert.Equal(t, 3, c.RiskHighThreshold, "threshold defaults to 3")
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("zones: []\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("zones: [A]\nrisk_questions: [q]\n"))
	assert.Error(t, err, "texts required")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
