package biztime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAndParse(t *testing.T) {
	require.NoError(t, Init("Asia/Makassar"))

	utc := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	s := Format(utc)
	assert.Equal(t, "2023-11-15 06:13:20", s)

	back, err := Parse(s)
	require.NoError(t, err)
	assert.True(t, back.Equal(utc))
}

func TestInit_UnknownZone(t *testing.T) {
	assert.Error(t, Init("Mars/Olympus"))
	assert.NotNil(t, Location())
}
