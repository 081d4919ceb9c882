package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/savta-labs/savta/internal/config"
	"github.com/savta-labs/savta/internal/logger"
	"github.com/savta-labs/savta/pkg/generator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	text string
	err  error
}

func (b *stubBackend) GenerateText(ctx context.Context, prompt string) (string, error) {
	return b.text, b.err
}

func (b *stubBackend) Provider() string { return "stub" }

// createTestDaemon creates a daemon for testing with Telegram disabled and
// the generative backend stubbed out.
func createTestDaemon(t *testing.T) (*Daemon, *logger.Logger) {
	t.Helper()

	tmpDir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DataDir = tmpDir
	cfg.AI.APIKey = "test-key"
	cfg.Telegram.Enabled = false
	cfg.Session.ArchiveEnabled = true
	cfg.Session.ArchiveDir = tmpDir

	origBackend := newBackend
	newBackend = func(ctx context.Context, cfg generator.Config) (generator.Backend, error) {
		return &stubBackend{text: "בסדר גמור"}, nil
	}
	t.Cleanup(func() { newBackend = origBackend })

	log, err := logger.New(logger.Config{
		Level:   "info",
		Console: false,
	})
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	daemon, err := New(cfg, log)
	require.NoError(t, err)

	return daemon, log
}

func TestNew(t *testing.T) {
	daemon, _ := createTestDaemon(t)

	assert.NotNil(t, daemon.store)
	assert.NotNil(t, daemon.template)
	assert.NotNil(t, daemon.generator)
	assert.NotNil(t, daemon.orchestrator)
	assert.NotNil(t, daemon.archiver)
	assert.NotNil(t, daemon.metrics)
	assert.Nil(t, daemon.telegramBot)
}

func TestNew_BadProvider(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.AI.Provider = "smoke-signals"
	cfg.Telegram.Enabled = false

	log, err := logger.New(logger.Config{Level: "info", Console: false})
	require.NoError(t, err)
	defer log.Close()

	daemon, err := New(cfg, log)
	require.Error(t, err)
	assert.Nil(t, daemon)
	assert.Contains(t, err.Error(), "failed to initialize core modules")
}

func TestDaemonStartStop(t *testing.T) {
	daemon, _ := createTestDaemon(t)

	require.NoError(t, daemon.Start())

	status := daemon.Status()
	assert.True(t, status.Running)

	require.NoError(t, daemon.Stop())

	status = daemon.Status()
	assert.False(t, status.Running)
}

func TestDaemonStartTwice(t *testing.T) {
	daemon, _ := createTestDaemon(t)

	require.NoError(t, daemon.Start())
	defer daemon.Stop()

	err := daemon.Start()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestDaemonStopWithoutStart(t *testing.T) {
	daemon, _ := createTestDaemon(t)

	err := daemon.Stop()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not running")
}

func TestDaemonStatus(t *testing.T) {
	daemon, _ := createTestDaemon(t)

	status := daemon.Status()
	assert.False(t, status.Running)
	assert.Equal(t, time.Duration(0), status.Uptime)

	require.NoError(t, daemon.Start())
	defer daemon.Stop()

	time.Sleep(10 * time.Millisecond)
	status = daemon.Status()
	assert.True(t, status.Running)
	assert.Greater(t, status.Uptime, time.Duration(0))
	assert.Equal(t, "stub", status.Provider)
}

func TestDaemonConversationFlow(t *testing.T) {
	daemon, _ := createTestDaemon(t)

	require.NoError(t, daemon.Start())
	defer daemon.Stop()

	orch := daemon.GetOrchestrator()
	require.NotNil(t, orch)

	reply := orch.HandleMessage(context.Background(), 7, "שלום סבתא")
	assert.Equal(t, "בסדר גמור", reply)
	assert.Equal(t, 2, daemon.GetStore().Len(7))

	status := daemon.Status()
	assert.Equal(t, 1, status.ActiveSessions)
}

func TestDaemonStopArchivesSessions(t *testing.T) {
	daemon, _ := createTestDaemon(t)

	require.NoError(t, daemon.Start())

	orch := daemon.GetOrchestrator()
	orch.HandleMessage(context.Background(), 7, "שלום")

	require.NoError(t, daemon.Stop())

	// Session was evicted and written to the archive.
	assert.Equal(t, 0, daemon.GetStore().Count())
	turns, err := daemon.archiver.Load(7)
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}
