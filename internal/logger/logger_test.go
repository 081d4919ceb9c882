package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ConsoleOnly(t *testing.T) {
	l, err := New(Config{Level: "info", Console: true})
	require.NoError(t, err)
	defer l.Close()

	assert.NotNil(t, l.GetZerolog())
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "savta.log")

	l, err := New(Config{Level: "debug", File: path})
	require.NoError(t, err)

	l.GetZerolog().Info().Str("k", "v").Msg("written to file")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestNew_InvalidLevelFallsBack(t *testing.T) {
	l, err := New(Config{Level: "chatty", Console: true})
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, "info", l.GetZerolog().GetLevel().String())
}
