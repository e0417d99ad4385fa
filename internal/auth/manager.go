package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/spotigui/spotigui/internal/callback"
	"github.com/spotigui/spotigui/internal/logging"
	"github.com/spotigui/spotigui/internal/spotify"
)

var (
	// ErrAuthorizationTimeout means no callback arrived in the allotted time.
	ErrAuthorizationTimeout = errors.New("authorization timed out")
	// ErrAuthorizationDenied means the user or the server refused the grant,
	// or the callback failed verification.
	ErrAuthorizationDenied = errors.New("authorization denied")
	// ErrReauthorizationRequired means there is no usable session and the
	// user has to authorize again.
	ErrReauthorizationRequired = errors.New("reauthorization required")
)

// DefaultScopes are requested on every authorization.
var DefaultScopes = []string{
	spotifyauth.ScopeUserReadPrivate,
	spotifyauth.ScopeUserReadPlaybackState,
	spotifyauth.ScopeUserModifyPlaybackState,
	spotifyauth.ScopePlaylistReadPrivate,
}

const (
	defaultAuthTimeout    = 120 * time.Second
	defaultRefreshMargin  = 60 * time.Second
	defaultRequestTimeout = 10 * time.Second
)

// Prompt is shown to the user while waiting for the callback.
type Prompt struct {
	URL      string
	QR       string
	Deadline time.Time
}

// Presenter displays an authorization prompt.
type Presenter interface {
	PresentAuthorization(Prompt)
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(Prompt)

// PresentAuthorization calls f.
func (f PresenterFunc) PresentAuthorization(p Prompt) { f(p) }

// Options configure a Manager.
type Options struct {
	ClientID     string
	ClientSecret string
	// RedirectURI is sent verbatim; it must match the registered value.
	RedirectURI string
	// ListenAddr is the host:port the callback listener binds.
	ListenAddr string
	// CallbackPath is the path the listener serves.
	CallbackPath string

	Scopes        []string
	AuthTimeout   time.Duration
	RefreshMargin time.Duration
	// RequestTimeout bounds each token endpoint request.
	RequestTimeout time.Duration

	// AuthURL and TokenURL override the Spotify accounts endpoints.
	AuthURL  string
	TokenURL string

	HTTPClient *http.Client
	Cache      Cache
	Presenter  Presenter
	Logger     logrus.FieldLogger
}

// Manager owns the Session. Other components obtain credentials only through
// ValidToken or TokenSource.
type Manager struct {
	oauth      oauth2.Config
	opts       Options
	log        logrus.FieldLogger
	httpClient *http.Client
	now        func() time.Time

	authMu sync.Mutex // serializes Authorize

	mu      sync.Mutex // guards session and refresh
	session *Session
}

// NewManager builds a Manager with no session.
func NewManager(opts Options) *Manager {
	if len(opts.Scopes) == 0 {
		opts.Scopes = DefaultScopes
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = defaultAuthTimeout
	}
	if opts.RefreshMargin <= 0 {
		opts.RefreshMargin = defaultRefreshMargin
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.RequestTimeout}
	}
	if opts.AuthURL == "" {
		opts.AuthURL = spotifyauth.AuthURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = spotifyauth.TokenURL
	}
	if opts.Presenter == nil {
		opts.Presenter = PresenterFunc(func(Prompt) {})
	}

	return &Manager{
		oauth: oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURI,
			Scopes:       opts.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   opts.AuthURL,
				TokenURL:  opts.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		opts:       opts,
		log:        logging.Component(opts.Logger, "auth"),
		httpClient: opts.HTTPClient,
		now:        time.Now,
	}
}

// LoadCached restores a session from the token cache. Missing or corrupt
// caches leave the manager without a session.
func (m *Manager) LoadCached() bool {
	s, err := m.opts.Cache.Load()
	if err != nil {
		m.log.WithError(err).Warn("ignoring token cache")
		return false
	}
	if s == nil || s.RefreshToken == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = s
	m.log.WithField("expires_at", s.ExpiresAt).Info("restored cached session")
	return true
}

// HasSession reports whether a session is held.
func (m *Manager) HasSession() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

// Invalidate drops the session and its cached copy.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
}

func (m *Manager) clearLocked() {
	m.session = nil
	if err := m.opts.Cache.Clear(); err != nil {
		m.log.WithError(err).Warn("clear token cache failed")
	}
}

// Authorize runs the headless authorization code flow and installs the
// resulting session.
func (m *Manager) Authorize(ctx context.Context) (Session, error) {
	m.authMu.Lock()
	defer m.authMu.Unlock()

	state := uuid.NewString()
	authURL := m.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("show_dialog", "true"))

	l, err := callback.Listen(ctx, callback.Options{
		Addr:   m.opts.ListenAddr,
		Path:   m.opts.CallbackPath,
		Logger: m.opts.Logger,
	})
	if err != nil {
		return Session{}, fmt.Errorf("start callback listener: %w", err)
	}
	defer l.Close()

	qr, err := RenderQR(authURL)
	if err != nil {
		m.log.WithError(err).Warn("qr rendering failed, showing url only")
	}
	m.opts.Presenter.PresentAuthorization(Prompt{
		URL:      authURL,
		QR:       qr,
		Deadline: m.now().Add(m.opts.AuthTimeout),
	})
	m.log.WithField("addr", l.Addr().String()).Info("waiting for authorization callback")

	res, err := l.Await(ctx, m.opts.AuthTimeout)
	if errors.Is(err, callback.ErrTimeout) {
		return Session{}, ErrAuthorizationTimeout
	}
	if err != nil {
		return Session{}, err
	}
	if res.Denied() {
		return Session{}, fmt.Errorf("%w: %s", ErrAuthorizationDenied, res.Error)
	}
	if subtle.ConstantTimeCompare([]byte(res.State), []byte(state)) != 1 {
		return Session{}, fmt.Errorf("%w: state mismatch", ErrAuthorizationDenied)
	}

	exchangeCtx, cancel := m.clientContext(ctx)
	defer cancel()
	tok, err := m.oauth.Exchange(exchangeCtx, res.Code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return Session{}, fmt.Errorf("%w: code exchange rejected: %v", ErrAuthorizationDenied, err)
		}
		return Session{}, &spotify.TransientError{Op: "exchange code", Err: err}
	}

	sess := sessionFromToken(tok, m.opts.Scopes)
	m.mu.Lock()
	m.session = &sess
	m.persistLocked()
	m.mu.Unlock()

	m.log.WithField("expires_at", sess.ExpiresAt).Info("authorized")
	return sess, nil
}

// ValidToken returns an access token that stays valid beyond the refresh
// margin, refreshing first when needed.
func (m *Manager) ValidToken(ctx context.Context) (string, error) {
	s, err := m.valid(ctx)
	if err != nil {
		return "", err
	}
	return s.AccessToken, nil
}

// ForceRefresh refreshes the access token regardless of its expiry.
func (m *Manager) ForceRefresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return fmt.Errorf("%w: no session", ErrReauthorizationRequired)
	}
	return m.refreshLocked(ctx)
}

// TokenSource exposes the manager as an oauth2.TokenSource for HTTP
// transports. ctx bounds refresh requests.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return tokenSource{ctx: ctx, m: m}
}

type tokenSource struct {
	ctx context.Context
	m   *Manager
}

func (ts tokenSource) Token() (*oauth2.Token, error) {
	s, err := ts.m.valid(ts.ctx)
	if err != nil {
		return nil, err
	}
	return s.token(), nil
}

func (m *Manager) valid(ctx context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return Session{}, fmt.Errorf("%w: no session", ErrReauthorizationRequired)
	}
	now := m.now()
	if !m.session.ExpiresWithin(m.opts.RefreshMargin, now) {
		return *m.session, nil
	}

	if err := m.refreshLocked(ctx); err != nil {
		if errors.Is(err, ErrReauthorizationRequired) {
			return Session{}, err
		}
		if m.session.AccessToken != "" && now.Before(m.session.ExpiresAt) {
			m.log.WithError(err).Warn("token refresh failed, using current token")
			return *m.session, nil
		}
		return Session{}, err
	}
	return *m.session, nil
}

func (m *Manager) refreshLocked(ctx context.Context) error {
	if m.session.RefreshToken == "" {
		m.clearLocked()
		return fmt.Errorf("%w: no refresh token", ErrReauthorizationRequired)
	}

	stale := &oauth2.Token{RefreshToken: m.session.RefreshToken, Expiry: time.Unix(1, 0)}
	refreshCtx, cancel := m.clientContext(ctx)
	defer cancel()
	tok, err := m.oauth.TokenSource(refreshCtx, stale).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.ErrorCode == "invalid_grant" {
			m.log.WithError(err).Warn("refresh token revoked, session cleared")
			m.clearLocked()
			return fmt.Errorf("%w: %v", ErrReauthorizationRequired, err)
		}
		return &spotify.TransientError{Op: "refresh token", Err: err}
	}

	refreshed := sessionFromToken(tok, m.session.Scopes)
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = m.session.RefreshToken
	}
	*m.session = refreshed
	m.persistLocked()
	m.log.WithField("expires_at", refreshed.ExpiresAt).Debug("access token refreshed")
	return nil
}

func (m *Manager) persistLocked() {
	if m.session == nil {
		return
	}
	if err := m.opts.Cache.Save(*m.session); err != nil {
		m.log.WithError(err).Warn("save token cache failed")
	}
}

// clientContext bounds a token endpoint request and routes it through the
// manager's HTTP client.
func (m *Manager) clientContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, m.opts.RequestTimeout)
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient), cancel
}
