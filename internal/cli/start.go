package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/savta-labs/savta/internal/config"
	"github.com/savta-labs/savta/internal/daemon"
	"github.com/savta-labs/savta/internal/logger"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the savta bot",
	Long: `Start the savta bot in the foreground.
The bot polls Telegram for messages and answers as Savta Aviva until it
receives SIGINT or SIGTERM.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	pidFile := getPIDFilePath()
	if isRunning(pidFile) {
		return fmt.Errorf("savta is already running (PID file: %s)", pidFile)
	}

	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.Logging.Level = resolveLogLevel(cfg.Logging.Level)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log)
	if err != nil {
		return err
	}

	if err := d.Start(); err != nil {
		return err
	}

	if err := writePID(pidFile); err != nil {
		log.GetZerolog().Warn().Err(err).Str("file", pidFile).Msg("Failed to write PID file")
	}
	defer os.Remove(pidFile)

	d.Wait()

	return nil
}

// resolveLogLevel keeps the config file's level unless --log-level was given
// explicitly; the flag's default would otherwise shadow the file on every run.
func resolveLogLevel(configured string) string {
	if rootCmd.PersistentFlags().Changed("log-level") {
		return logLevel
	}
	return configured
}

func writePID(pidFile string) error {
	if err := os.MkdirAll(filepath.Dir(pidFile), 0o755); err != nil {
		return err
	}
	return os.WriteFile(pidFile, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644)
}

func getPIDFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/savta.pid"
	}
	return filepath.Join(home, ".savta", "savta.pid")
}

func isRunning(pidFile string) bool {
	pid, err := readPID(pidFile)
	if err != nil {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds, so probe with signal 0
	return process.Signal(syscall.Signal(0)) == nil
}

func readPID(pidFile string) (int, error) {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, err
	}

	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0, fmt.Errorf("invalid PID file: %w", err)
	}

	return pid, nil
}
