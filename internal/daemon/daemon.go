// Package daemon composes the full savta service: configuration, logging,
// metrics, the session store and its housekeeping, the prompt template, the
// generative backend, the orchestrator, and the Telegram transport.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/savta-labs/savta/internal/config"
	"github.com/savta-labs/savta/internal/logger"
	"github.com/savta-labs/savta/internal/metrics"
	"github.com/savta-labs/savta/internal/telegram"
	"github.com/savta-labs/savta/pkg/generator"
	"github.com/savta-labs/savta/pkg/orchestrator"
	"github.com/savta-labs/savta/pkg/prompt"
	"github.com/savta-labs/savta/pkg/session"
)

// Daemon represents the savta daemon service.
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	// Core modules
	store        *session.Store
	template     *prompt.Template
	generator    *generator.Generator
	orchestrator *orchestrator.Orchestrator

	// Housekeeping
	archiver *session.Archiver
	sweeper  *session.Sweeper
	watcher  *prompt.Watcher

	// Observability
	metrics       *metrics.Metrics
	metricsServer *http.Server

	// Telegram
	telegramBot      *telegram.Bot
	telegramHandler  *telegram.Handler
	telegramCommands *telegram.Commands

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

// newBackend is a seam for tests; defaults to the real provider factory.
var newBackend = func(ctx context.Context, cfg generator.Config) (generator.Backend, error) {
	return generator.NewBackend(ctx, cfg)
}

// New creates a new daemon instance.
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		config: cfg,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := d.initializeCoreModules(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	if cfg.Telegram.Enabled {
		if err := d.initializeTelegram(); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to initialize telegram: %w", err)
		}
	}

	return d, nil
}

// initializeCoreModules initializes all core modules in dependency order.
func (d *Daemon) initializeCoreModules() error {
	d.metrics = metrics.New()
	d.logger.GetZerolog().Info().Msg("Metrics registry initialized")

	d.store = session.NewStore()
	d.logger.GetZerolog().Info().Msg("Session store initialized")

	if d.config.Session.ArchiveEnabled {
		archiver, err := session.NewArchiver(d.config.Session.ArchiveDir)
		if err != nil {
			return fmt.Errorf("failed to create session archiver: %w", err)
		}
		d.archiver = archiver
		d.logger.GetZerolog().Info().Str("dir", d.config.Session.ArchiveDir).Msg("Session archiver initialized")
	}

	if d.config.Session.SweepEnabled {
		idle := time.Duration(d.config.Session.IdleMinutes) * time.Minute
		d.sweeper = session.NewSweeper(d.store, d.archiver, idle, d.config.Session.SweepSchedule)
		d.logger.GetZerolog().Info().
			Dur("idle_timeout", idle).
			Str("schedule", d.config.Session.SweepSchedule).
			Msg("Session sweeper initialized")
	}

	d.template = prompt.New(d.config.Bot.Persona, d.config.Bot.UserLabel, d.config.Bot.AssistantLabel)
	d.logger.GetZerolog().Info().Msg("Prompt template initialized")

	if d.config.Bot.WatchPersona && d.config.Bot.PersonaFile != "" {
		watcher, err := prompt.NewWatcher(d.template, d.config.Bot.PersonaFile, *d.logger.GetZerolog())
		if err != nil {
			return fmt.Errorf("failed to create persona watcher: %w", err)
		}
		d.watcher = watcher
		d.logger.GetZerolog().Info().Str("file", d.config.Bot.PersonaFile).Msg("Persona watcher initialized")
	}

	backend, err := newBackend(d.ctx, d.config.AI)
	if err != nil {
		return fmt.Errorf("failed to create %s backend: %w", d.config.AI.Provider, err)
	}
	d.generator = generator.New(backend, d.config.AI.Timeout, *d.logger.GetZerolog())
	d.logger.GetZerolog().Info().
		Str("provider", d.config.AI.Provider).
		Str("model", d.config.AI.Model).
		Msg("Generator initialized")

	opts := []orchestrator.Option{
		orchestrator.WithMetrics(d.metrics),
		orchestrator.WithWindowSize(d.config.Bot.WindowSize),
	}
	if d.archiver != nil {
		opts = append(opts, orchestrator.WithArchiver(d.archiver))
	}

	orch, err := orchestrator.New(
		d.store,
		d.template,
		d.generator,
		orchestrator.Texts{
			Fallback: d.config.Bot.Fallback,
			Greeting: d.config.Bot.Greeting,
			Help:     d.config.Bot.Help,
		},
		*d.logger.GetZerolog(),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	d.orchestrator = orch
	d.logger.GetZerolog().Info().Int("window_size", d.config.Bot.WindowSize).Msg("Orchestrator initialized")

	return nil
}

// initializeTelegram wires the transport to the orchestrator. The /start and
// /help commands and plain text messages all resolve to orchestrator calls
// that return the text to send back.
func (d *Daemon) initializeTelegram() error {
	bot, err := telegram.New(&d.config.Telegram, d.logger)
	if err != nil {
		return fmt.Errorf("failed to create telegram bot: %w", err)
	}
	d.telegramBot = bot

	d.telegramHandler = telegram.NewHandler(bot)
	d.telegramHandler.SetOnMessage(func(mc telegram.MessageContext) string {
		return d.orchestrator.HandleMessage(d.ctx, mc.UserID, mc.Text)
	})
	bot.SetHandler(d.telegramHandler)

	d.telegramCommands = telegram.NewCommands(bot)
	d.telegramCommands.Register("start", func(cc telegram.CommandContext) string {
		return d.orchestrator.ResetConversation(cc.UserID)
	})
	d.telegramCommands.Register("help", func(cc telegram.CommandContext) string {
		return d.orchestrator.HelpText()
	})
	bot.SetCommands(d.telegramCommands)

	d.logger.GetZerolog().Info().Msg("Telegram handlers initialized")

	return nil
}

// Start starts the daemon service.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	log := d.logger.GetZerolog()
	log.Info().Msg("Starting savta daemon")

	if d.config.Metrics.Enabled {
		d.startMetricsServer()
		log.Info().Str("addr", d.config.Metrics.Addr).Msg("Metrics server started")
	}

	if d.sweeper != nil {
		if err := d.sweeper.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start session sweeper")
		} else {
			log.Info().Msg("Session sweeper started")
		}
	}

	if d.telegramBot != nil {
		if err := d.telegramBot.Start(); err != nil {
			return fmt.Errorf("failed to start telegram bot: %w", err)
		}

		if err := d.telegramCommands.SetCommands([]tgbotapi.BotCommand{
			{Command: "start", Description: "התחל שיחה חדשה"},
			{Command: "help", Description: "הצג מידע על השירות"},
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to publish command list")
		}
	}

	log.Info().Msg("Daemon started successfully")

	return nil
}

func (d *Daemon) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := d.Status()
		if !status.Running {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok uptime=%s sessions=%d\n", status.Uptime.Round(time.Second), status.ActiveSessions)
	})

	d.metricsServer = &http.Server{
		Addr:    d.config.Metrics.Addr,
		Handler: mux,
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			d.logger.GetZerolog().Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// Stop stops the daemon service gracefully.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	log := d.logger.GetZerolog()
	log.Info().Msg("Stopping savta daemon")

	if d.telegramBot != nil && d.telegramBot.IsRunning() {
		if err := d.telegramBot.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop telegram bot")
		}
	}

	if d.sweeper != nil {
		if err := d.sweeper.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop session sweeper")
		}
	}

	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop persona watcher")
		}
	}

	if d.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown metrics server")
		}
		cancel()
	}

	// Archive whatever is still in memory before the process exits.
	if d.archiver != nil {
		for _, userID := range d.store.Users() {
			turns := d.store.Evict(userID)
			if len(turns) == 0 {
				continue
			}
			if err := d.archiver.Archive(userID, turns); err != nil {
				log.Error().Err(err).Int64("user_id", userID).Msg("Failed to archive session on shutdown")
			}
		}
	}

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("All goroutines stopped")
	case <-time.After(5 * time.Second):
		log.Warn().Msg("Timeout waiting for goroutines to stop")
	}

	log.Info().Msg("Daemon stopped successfully")

	return nil
}

// Status describes the running daemon.
type Status struct {
	Running        bool
	StartTime      time.Time
	Uptime         time.Duration
	ActiveSessions int
	Provider       string
}

// Status returns the daemon status.
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
	}

	if d.running {
		status.StartTime = d.startTime
		status.Uptime = time.Since(d.startTime)
		status.ActiveSessions = d.store.Count()
		status.Provider = d.generator.Provider()
	}

	return status
}

// Wait blocks until SIGINT or SIGTERM, then stops the daemon.
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	d.logger.GetZerolog().Info().Str("signal", sig.String()).Msg("Received signal")

	if err := d.Stop(); err != nil {
		d.logger.GetZerolog().Error().Err(err).Msg("Failed to stop daemon")
	}
}

// GetOrchestrator returns the orchestrator.
func (d *Daemon) GetOrchestrator() *orchestrator.Orchestrator {
	return d.orchestrator
}

// GetStore returns the session store.
func (d *Daemon) GetStore() *session.Store {
	return d.store
}
