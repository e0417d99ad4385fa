package app

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/spotigui/spotigui/internal/auth"
	"github.com/spotigui/spotigui/internal/config"
	"github.com/spotigui/spotigui/internal/dispatch"
	"github.com/spotigui/spotigui/internal/logging"
	"github.com/spotigui/spotigui/internal/prefs"
	"github.com/spotigui/spotigui/internal/spotify"
	"github.com/spotigui/spotigui/internal/state"
	"github.com/spotigui/spotigui/internal/statews"
	"github.com/spotigui/spotigui/internal/ui"
	"github.com/spotigui/spotigui/internal/volume"
)

// Options configure the application. Non-zero values override the settings
// file.
type Options struct {
	ConfigPath   string
	PrefsPath    string // empty uses ~/.config/spotigui/prefs.toml
	EnvFile      string // empty uses ./.env when present
	PollInterval time.Duration
	LogLevel     string
}

const uiTick = 250 * time.Millisecond

// Run boots the remote control until the user quits or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer closeLog()

	// net/http servers log through the standard logger; keep it off the terminal.
	stdWriter := logger.Writer()
	defer stdWriter.Close()
	stdlog.SetOutput(stdWriter)

	userPrefs := prefs.Load(cfg.PrefsPath)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	var program *tea.Program

	manager := auth.NewManager(auth.Options{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURI:  cfg.RedirectURI,
		ListenAddr:   cfg.CallbackAddr,
		CallbackPath: cfg.CallbackPath,
		AuthTimeout:  cfg.AuthTimeout,
		Cache:        auth.Cache{Path: cfg.TokenCache},
		Presenter: auth.PresenterFunc(func(p auth.Prompt) {
			program.Send(ui.PromptMsg{Prompt: p})
		}),
		Logger: logger,
	})
	manager.LoadCached()

	client := spotify.NewClient(manager.TokenSource(ctx), spotify.Options{})
	store := &state.Store{}
	dispatcher := dispatch.New(client, store, dispatch.Options{
		Debounce:  cfg.Debounce,
		Refresher: manager,
		Logger:    logger,
	})
	vol := volume.New(dispatcher, volume.Options{Logger: logger})
	receiver := NewReceiver(client, manager, store, ReceiverOptions{
		Interval:    cfg.PollInterval,
		Reconcilers: []Reconciler{vol},
		Logger:      logger,
	})
	supervisor := NewSupervisor(manager, receiver, dispatcher, store, SupervisorOptions{
		OnAuthorized: func() { program.Send(ui.AuthorizedMsg{}) },
		OnAuthFailed: func(err error) { program.Send(ui.AuthFailedMsg{Err: err}) },
		Logger:       logger,
	})

	program = ui.NewProgram(ui.Options{
		Context:          ctx,
		Commands:         dispatcher,
		Volume:           vol,
		Library:          client,
		Health:           store,
		Visibility:       receiver,
		RetryAuth:        supervisor.Retry,
		Prefs:            userPrefs,
		PrefsPath:        cfg.PrefsPath,
		PlaylistPageSize: cfg.PlaylistPageSize,
		Tick:             uiTick,
		Logger:           logger,
	})

	logger.WithField("poll_interval", cfg.PollInterval).WithField("cached_session", manager.HasSession()).Info("spotigui starting")

	g.Go(func() error { return supervisor.Run(ctx) })
	g.Go(func() error { return dispatcher.Run(ctx) })
	g.Go(func() error {
		forwardSnapshots(ctx, store, program)
		return nil
	})
	g.Go(func() error {
		forwardResults(ctx, dispatcher.Results(), supervisor.Retry, program)
		return nil
	})
	if cfg.StateWSAddr != "" {
		ws := statews.NewServer(store, statews.Options{Addr: cfg.StateWSAddr, Logger: logger})
		g.Go(func() error { return ws.ListenAndServe(ctx) })
	}
	g.Go(func() error {
		defer cancel()
		_, err := program.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})

	err = g.Wait()
	logger.WithError(err).Info("spotigui stopped")
	return err
}

// Logout removes the cached session.
func Logout(opts Options) error {
	path, err := config.TokenCachePath(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := (auth.Cache{Path: path}).Clear(); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

func loadConfig(opts Options) (config.Config, error) {
	cfg, err := config.Load(config.Options{SettingsPath: opts.ConfigPath, EnvFile: opts.EnvFile})
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if opts.PrefsPath != "" {
		cfg.PrefsPath = opts.PrefsPath
	}
	if opts.PollInterval > 0 {
		cfg.PollInterval = opts.PollInterval
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	return cfg, nil
}

// sender is the part of tea.Program the forwarders use.
type sender interface {
	Send(tea.Msg)
}

func forwardSnapshots(ctx context.Context, store *state.Store, program sender) {
	updates, unsubscribe := store.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			program.Send(ui.SnapshotMsg{Snapshot: snap})
		}
	}
}

// forwardResults hands command outcomes to the UI. A command rejected for
// lack of a session starts reauthorization.
func forwardResults(ctx context.Context, results <-chan dispatch.Result, sessionLost func(), program sender) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-results:
			if errors.Is(r.Err, auth.ErrReauthorizationRequired) {
				sessionLost()
			}
			program.Send(ui.ResultMsg{Result: r})
		}
	}
}
