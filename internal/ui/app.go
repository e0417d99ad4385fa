package ui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/spotigui/spotigui/internal/auth"
	"github.com/spotigui/spotigui/internal/dispatch"
	"github.com/spotigui/spotigui/internal/logging"
	"github.com/spotigui/spotigui/internal/prefs"
	"github.com/spotigui/spotigui/internal/spotify"
	"github.com/spotigui/spotigui/internal/state"
	"github.com/spotigui/spotigui/internal/volume"
)

// Commander queues playback commands.
type Commander interface {
	Submit(dispatch.Command) (dispatch.Command, error)
}

// VolumeControl owns mute and volume steps.
type VolumeControl interface {
	Toggle() error
	Step(delta int) error
	State() volume.State
}

// Library lists devices and playlists.
type Library interface {
	Devices(ctx context.Context) ([]spotify.Device, error)
	Playlists(ctx context.Context, cursor, limit int) (spotify.PlaylistPage, error)
}

// Visibility receives focus changes of the terminal.
type Visibility interface {
	SetVisible(bool)
}

// HealthSource reports polling health.
type HealthSource interface {
	Health() state.Health
}

// Options configures the UI.
type Options struct {
	Context    context.Context
	Commands   Commander
	Volume     VolumeControl
	Library    Library
	Health     HealthSource
	Visibility Visibility
	// RetryAuth asks the session supervisor for another authorization attempt.
	RetryAuth func()

	Prefs            prefs.Prefs
	PrefsPath        string
	PlaylistPageSize int
	Tick             time.Duration
	Logger           logrus.FieldLogger
}

type overlay int

const (
	overlayNone overlay = iota
	overlayHelp
	overlayDevices
	overlayPlaylists
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusWarn
	statusError
)

const (
	seekStepMS      = 10_000
	statusLifetime  = 4 * time.Second
	defaultPageSize = 6
	noDeviceHint    = "No active device. Press d to choose one."
)

type authView struct {
	prompt  *auth.Prompt
	waiting bool
	err     error
}

type picker struct {
	cursor  int
	loading bool
	err     error
}

// Model is the root application state for Bubble Tea.
type Model struct {
	ctx        context.Context
	commands   Commander
	volume     VolumeControl
	library    Library
	health     HealthSource
	visibility Visibility
	retryAuth  func()
	log        logrus.FieldLogger

	prefs     prefs.Prefs
	prefsPath string
	pageSize  int
	tick      time.Duration

	keys     keyMap
	theme    Theme
	width    int
	height   int
	ready    bool
	now      time.Time
	overlay  overlay
	progress progress.Model
	spinner  spinner.Model
	swipe    swipeTracker

	snapshot    state.Snapshot
	healthState state.Health
	auth        authView

	devices      []spotify.Device
	devicePicker picker

	playlists      []spotify.Playlist
	playlistNext   int
	playlistTotal  int
	playlistPicker picker

	status      string
	statusKind  statusKind
	statusUntil time.Time
}

// New creates the root model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	tick := opts.Tick
	if tick <= 0 {
		tick = time.Second
	}
	pageSize := opts.PlaylistPageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	userPrefs := opts.Prefs
	if userPrefs.VolumeStep <= 0 {
		userPrefs.VolumeStep = prefs.Defaults().VolumeStep
	}

	theme := DefaultTheme()
	bar := progress.New(
		progress.WithGradient(theme.ProgressFrom, theme.ProgressTo),
		progress.WithoutPercentage(),
	)
	spin := spinner.New(spinner.WithSpinner(spinner.Dot))

	return Model{
		ctx:          ctx,
		commands:     opts.Commands,
		volume:       opts.Volume,
		library:      opts.Library,
		health:       opts.Health,
		visibility:   opts.Visibility,
		retryAuth:    opts.RetryAuth,
		log:          logging.Component(opts.Logger, "ui"),
		prefs:        userPrefs,
		prefsPath:    opts.PrefsPath,
		pageSize:     pageSize,
		tick:         tick,
		keys:         DefaultKeyMap(),
		theme:        theme,
		now:          time.Now(),
		progress:     bar,
		spinner:      spin,
		playlistNext: -1,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(m.tick), m.spinner.Tick)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = clampInt(msg.Width-12, 10, 80)
		m.ready = true
		return m, nil

	case tea.FocusMsg:
		if m.visibility != nil {
			m.visibility.SetVisible(true)
		}
		return m, nil

	case tea.BlurMsg:
		if m.visibility != nil {
			m.visibility.SetVisible(false)
		}
		return m, nil

	case tickMsg:
		m.now = time.Time(msg)
		if m.health != nil {
			m.healthState = m.health.Health()
		}
		if m.status != "" && m.now.After(m.statusUntil) {
			m.status = ""
		}
		return m, tickCmd(m.tick)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case SnapshotMsg:
		m.snapshot = msg.Snapshot
		m.now = time.Now()
		return m, nil

	case ResultMsg:
		m.handleResult(msg.Result)
		return m, nil

	case PromptMsg:
		p := msg.Prompt
		m.auth = authView{prompt: &p, waiting: true}
		m.overlay = overlayNone
		return m, nil

	case AuthFailedMsg:
		m.auth.waiting = false
		m.auth.err = msg.Err
		return m, nil

	case AuthorizedMsg:
		m.auth = authView{}
		m.healthState.AuthRequired = false
		m.setStatus("Signed in to Spotify", statusInfo)
		return m, nil

	case devicesMsg:
		m.devicePicker.loading = false
		m.devicePicker.err = msg.err
		if msg.err == nil {
			m.devices = msg.devices
			m.devicePicker.cursor = m.preferredDeviceIndex()
		}
		return m, nil

	case playlistsMsg:
		m.playlistPicker.loading = false
		m.playlistPicker.err = msg.err
		if msg.err == nil {
			if msg.cursor == 0 {
				m.playlists = nil
			}
			m.playlists = append(m.playlists, msg.page.Items...)
			m.playlistNext = msg.page.Next
			m.playlistTotal = msg.page.Total
		}
		return m, nil

	case prefsSavedMsg:
		if msg.err != nil {
			m.log.WithError(msg.err).Warn("save prefs failed")
		}
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	switch m.overlay {
	case overlayHelp:
		return m.renderHelp()
	case overlayDevices:
		return m.renderDevices()
	case overlayPlaylists:
		return m.renderPlaylists()
	}
	if m.needsLogin() {
		return m.renderLogin()
	}
	return m.renderNowPlaying()
}

func (m Model) needsLogin() bool {
	return m.auth.waiting || m.auth.err != nil || m.healthState.AuthRequired
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.overlay {
	case overlayHelp:
		m.overlay = overlayNone
		return m, nil
	case overlayDevices:
		return m.handleDeviceKey(msg)
	case overlayPlaylists:
		return m.handlePlaylistKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.overlay = overlayHelp
		return m, nil
	case key.Matches(msg, m.keys.RetryAuth):
		if !m.needsLogin() || m.auth.waiting {
			return m, nil
		}
		m.auth = authView{waiting: true}
		if m.retryAuth != nil {
			m.retryAuth()
		}
		m.setStatus("Retrying authorization", statusInfo)
		return m, nil
	}

	if m.needsLogin() {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Devices):
		return m.openDevices()
	case key.Matches(msg, m.keys.Playlists):
		return m.openPlaylists()
	case key.Matches(msg, m.keys.PlayPause):
		if m.snapshot.IsPlaying {
			return m.submit(dispatch.Pause())
		}
		return m.submit(dispatch.Play())
	case key.Matches(msg, m.keys.Next):
		return m.submit(dispatch.Next())
	case key.Matches(msg, m.keys.Previous):
		return m.submit(dispatch.Previous())
	case key.Matches(msg, m.keys.SeekBack):
		return m.submit(dispatch.Seek(-seekStepMS))
	case key.Matches(msg, m.keys.SeekFwd):
		return m.submit(dispatch.Seek(seekStepMS))
	case key.Matches(msg, m.keys.VolumeUp):
		return m.changeVolume(func(v VolumeControl) error { return v.Step(m.prefs.VolumeStep) })
	case key.Matches(msg, m.keys.VolumeDown):
		return m.changeVolume(func(v VolumeControl) error { return v.Step(-m.prefs.VolumeStep) })
	case key.Matches(msg, m.keys.Mute):
		return m.changeVolume(VolumeControl.Toggle)
	}
	return m, nil
}

func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if m.overlay != overlayNone || m.needsLogin() {
		return m, nil
	}
	switch m.swipe.handle(msg) {
	case swipeRight:
		return m.submit(dispatch.Next())
	case swipeLeft:
		return m.submit(dispatch.Previous())
	}
	return m, nil
}

// submit queues a transport command when a device is active.
func (m Model) submit(cmd dispatch.Command) (tea.Model, tea.Cmd) {
	if !m.snapshot.ControlsEnabled() {
		m.setStatus(noDeviceHint, statusWarn)
		return m, nil
	}
	if m.commands == nil {
		return m, nil
	}
	if _, err := m.commands.Submit(cmd); err != nil {
		m.reportError(err)
	}
	return m, nil
}

func (m Model) changeVolume(apply func(VolumeControl) error) (tea.Model, tea.Cmd) {
	if !m.snapshot.ControlsEnabled() {
		m.setStatus(noDeviceHint, statusWarn)
		return m, nil
	}
	if m.volume == nil {
		return m, nil
	}
	if err := apply(m.volume); err != nil {
		m.reportError(err)
	}
	return m, nil
}

func (m *Model) handleResult(r dispatch.Result) {
	if r.Err == nil {
		return
	}
	m.log.WithError(r.Err).WithField("command", r.Command.String()).Debug("command result")
	m.reportError(r.Err)
}

func (m *Model) reportError(err error) {
	switch {
	case errors.Is(err, spotify.ErrDeviceUnavailable):
		m.setStatus(noDeviceHint, statusWarn)
	case errors.Is(err, dispatch.ErrHalted), errors.Is(err, auth.ErrReauthorizationRequired):
		m.healthState.AuthRequired = true
		m.setStatus("Session expired. Waiting for authorization.", statusWarn)
	case spotify.IsRetryable(err):
		m.setStatus("Spotify is not responding. Try again shortly.", statusWarn)
	default:
		m.setStatus(fmt.Sprintf("Command failed: %v", err), statusError)
	}
}

func (m *Model) setStatus(text string, kind statusKind) {
	m.status = text
	m.statusKind = kind
	m.statusUntil = m.now.Add(statusLifetime)
}

// NewProgram builds the program with the terminal features the UI relies on.
func NewProgram(opts Options, extra ...tea.ProgramOption) *tea.Program {
	programOpts := []tea.ProgramOption{
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithReportFocus(),
	}
	if opts.Context != nil {
		programOpts = append(programOpts, tea.WithContext(opts.Context))
	}
	return tea.NewProgram(New(opts), append(programOpts, extra...)...)
}
