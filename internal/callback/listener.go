// Package callback implements the one-shot HTTP endpoint that receives the
// OAuth redirect.
//
// A Listener binds the redirect port, serves exactly one request on the
// redirect path and is then torn down with Close. Requests for any other path
// get 404 and do not complete the wait.
package callback

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/spotigui/spotigui/internal/logging"
)

// ErrTimeout is returned by Await when no callback arrived in time.
var ErrTimeout = errors.New("timed out waiting for authorization callback")

// BindError reports that the callback port could not be bound.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind callback listener on %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// Result carries the query parameters of the redirect.
type Result struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// Denied reports whether the authorization server returned an error.
func (r Result) Denied() bool {
	return r.Error != ""
}

const (
	defaultBindRetry    = 3 * time.Second
	defaultBindInterval = 250 * time.Millisecond
	shutdownTimeout     = 2 * time.Second
)

// Options configure Listen.
type Options struct {
	// Addr is the host:port to bind.
	Addr string
	// Path is the redirect path; empty means "/".
	Path string
	// BindRetry bounds how long a port in use is retried.
	BindRetry time.Duration
	// BindInterval is the pause between bind attempts.
	BindInterval time.Duration
	Logger       logrus.FieldLogger
}

// Listener is a bound callback endpoint.
type Listener struct {
	ln      net.Listener
	srv     *http.Server
	path    string
	log     logrus.FieldLogger
	claimed atomic.Bool
	results chan Result

	closeOnce sync.Once
	closeErr  error
}

// Listen binds the callback endpoint and starts serving.
func Listen(ctx context.Context, opts Options) (*Listener, error) {
	if opts.Addr == "" {
		return nil, &BindError{Addr: opts.Addr, Err: errors.New("empty address")}
	}
	if opts.Path == "" {
		opts.Path = "/"
	}
	if opts.BindRetry <= 0 {
		opts.BindRetry = defaultBindRetry
	}
	if opts.BindInterval <= 0 {
		opts.BindInterval = defaultBindInterval
	}
	log := logging.Component(opts.Logger, "callback")

	ln, err := bindWithRetry(ctx, opts.Addr, opts.BindRetry, opts.BindInterval, log)
	if err != nil {
		return nil, err
	}

	l := &Listener{
		ln:      ln,
		path:    opts.Path,
		log:     log,
		results: make(chan Result, 1),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", l.handle)
	l.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Warn("callback server stopped")
		}
	}()
	log.WithField("addr", ln.Addr().String()).WithField("path", opts.Path).Debug("callback listener bound")
	return l, nil
}

func bindWithRetry(ctx context.Context, addr string, retry, interval time.Duration, log logrus.FieldLogger) (net.Listener, error) {
	deadline := time.Now().Add(retry)
	var lc net.ListenConfig
	for attempt := 1; ; attempt++ {
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err == nil {
			return ln, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) || time.Now().Add(interval).After(deadline) {
			return nil, &BindError{Addr: addr, Err: err}
		}
		log.WithField("attempt", attempt).Debug("callback port busy, retrying")

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, &BindError{Addr: addr, Err: ctx.Err()}
		case <-timer.C:
		}
	}
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Await blocks until the redirect arrives, timeout elapses or ctx is done.
func (l *Listener) Await(ctx context.Context, timeout time.Duration) (Result, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-l.results:
		return res, nil
	case <-timer.C:
		return Result{}, ErrTimeout
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Close stops the server and releases the port. It is safe to call more than
// once.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		l.closeErr = l.srv.Shutdown(ctx)
		if l.closeErr != nil {
			_ = l.srv.Close()
		}
	})
	return l.closeErr
}

func (l *Listener) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != l.path {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	res := Result{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}
	if res.Code == "" && res.Error == "" {
		http.Error(w, "missing code parameter", http.StatusBadRequest)
		return
	}
	if !l.claimed.CompareAndSwap(false, true) {
		writePage(w, http.StatusOK, "Already handled", "This authorization request was already completed.")
		return
	}

	if res.Denied() {
		detail := res.Error
		if res.ErrorDescription != "" {
			detail += ": " + res.ErrorDescription
		}
		writePage(w, http.StatusBadRequest, "Authorization failed", detail)
	} else {
		writePage(w, http.StatusOK, "Authorization complete", "You can close this window and return to spotigui.")
	}
	l.log.WithField("denied", res.Denied()).Info("authorization callback received")
	l.results <- res
}

func writePage(w http.ResponseWriter, status int, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, pageTemplate, html.EscapeString(title), html.EscapeString(title), html.EscapeString(body))
}

const pageTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>%s</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 3em; background: #121212; color: #fff;">
<h1>%s</h1>
<p>%s</p>
</body>
</html>
`
