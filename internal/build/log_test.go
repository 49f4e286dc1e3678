package build

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	btclogv2 "github.com/btcsuite/btclog/v2"
	"github.com/stretchr/testify/require"
)

// TestSetupLoggersFanout checks that records reach every sink and that
// subsystem loggers get tagged.
func TestSetupLoggersFanout(t *testing.T) {
	var console bytes.Buffer
	dir := t.TempDir()

	var sub btclogv2.Logger
	loggers, err := SetupLoggers(LogConfig{
		Level:   "debug",
		Dir:     dir,
		Console: &console,
	}, map[string]SubLoggerFunc{
		"TEST": func(l btclogv2.Logger) { sub = l },
	})
	require.NoError(t, err)
	require.NotNil(t, sub)

	loggers.Root.Info("hello from root", "k", "v")
	sub.Debugf("hello from %s", "subsystem")

	require.NoError(t, loggers.Close())

	out := console.String()
	require.Contains(t, out, "hello from root")
	require.Contains(t, out, "TEST")
	require.Contains(t, out, "hello from subsystem")

	data, err := os.ReadFile(filepath.Join(dir, DefaultLogFilename))
	require.NoError(t, err)
	require.True(t, strings.Contains(string(data), "hello from root"))
}

// TestSetupLoggersLevel checks level parsing and filtering.
func TestSetupLoggersLevel(t *testing.T) {
	_, err := SetupLoggers(LogConfig{Level: "loud"}, nil)
	require.Error(t, err)

	var console bytes.Buffer
	loggers, err := SetupLoggers(LogConfig{
		Level:   "warn",
		Console: &console,
	}, nil)
	require.NoError(t, err)

	loggers.Root.Info("quiet")
	loggers.Root.Warn("loud")
	require.NotContains(t, console.String(), "quiet")
	require.Contains(t, console.String(), "loud")

	require.Error(t, loggers.SetLevel("nope"))
	require.NoError(t, loggers.SetLevel("info"))
	loggers.Root.Info("now audible")
	require.Contains(t, console.String(), "now audible")
}

func TestVersion(t *testing.T) {
	require.Equal(t, "0.4.0", Version())

	RawTags = "dev,sqlite"
	defer func() { RawTags = "" }()
	require.Equal(t, []string{"dev", "sqlite"}, Tags())
}
