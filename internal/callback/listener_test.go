package callback

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"
)

func listen(t *testing.T, path string) *Listener {
	t.Helper()
	l, err := Listen(context.Background(), Options{Addr: "127.0.0.1:0", Path: path})
	if err != nil {
		t.Fatalf("Listen returned error: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func get(t *testing.T, l *Listener, target string) (int, string) {
	t.Helper()
	resp, err := http.Get("http://" + l.Addr().String() + target)
	if err != nil {
		t.Fatalf("GET %s: %v", target, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestListener_OtherPathsDoNotCompleteWait(t *testing.T) {
	l := listen(t, "/callback")

	if status, _ := get(t, l, "/favicon.ico"); status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
	if status, _ := get(t, l, "/callback/?code=abc&state=xyz"); status != http.StatusNotFound {
		t.Fatalf("trailing slash status = %d, want 404", status)
	}
	if _, err := l.Await(context.Background(), 50*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("Await err = %v, want ErrTimeout", err)
	}

	status, body := get(t, l, "/callback?code=abc&state=xyz")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if !strings.Contains(body, "Authorization complete") {
		t.Fatalf("body = %q, want confirmation page", body)
	}

	res, err := l.Await(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Await returned error: %v", err)
	}
	if res.Code != "abc" || res.State != "xyz" || res.Denied() {
		t.Fatalf("Result = %+v, want code abc state xyz", res)
	}
}

func TestListener_ErrorParameter(t *testing.T) {
	l := listen(t, "/callback")

	status, body := get(t, l, "/callback?error=access_denied&state=s")
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	if !strings.Contains(body, "access_denied") {
		t.Fatalf("body = %q, want error detail", body)
	}

	res, err := l.Await(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Await returned error: %v", err)
	}
	if !res.Denied() || res.Error != "access_denied" {
		t.Fatalf("Result = %+v, want denied", res)
	}
}

func TestListener_OnlyFirstCallbackCounts(t *testing.T) {
	l := listen(t, "/cb")

	get(t, l, "/cb?code=first&state=s")
	status, body := get(t, l, "/cb?code=second&state=s")
	if status != http.StatusOK || !strings.Contains(body, "Already handled") {
		t.Fatalf("second callback = %d %q", status, body)
	}
	res, err := l.Await(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Await returned error: %v", err)
	}
	if res.Code != "first" {
		t.Fatalf("Code = %q, want first", res.Code)
	}
}

func TestListener_MissingCodeIsRejected(t *testing.T) {
	l := listen(t, "/cb")
	if status, _ := get(t, l, "/cb"); status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	if _, err := l.Await(context.Background(), 30*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("Await err = %v, want ErrTimeout", err)
	}
}

func TestListener_AwaitHonoursContext(t *testing.T) {
	l := listen(t, "/cb")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Await(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("Await err = %v, want context.Canceled", err)
	}
}

func TestListen_PortInUse(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	defer busy.Close()

	start := time.Now()
	_, err = Listen(context.Background(), Options{
		Addr:         busy.Addr().String(),
		Path:         "/cb",
		BindRetry:    200 * time.Millisecond,
		BindInterval: 50 * time.Millisecond,
	})
	var bindErr *BindError
	if !errors.As(err, &bindErr) {
		t.Fatalf("err = %v, want *BindError", err)
	}
	if bindErr.Addr != busy.Addr().String() {
		t.Fatalf("Addr = %q, want %q", bindErr.Addr, busy.Addr().String())
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Fatalf("gave up after %s, want retries", elapsed)
	}
}

func TestListener_CloseReleasesPort(t *testing.T) {
	l := listen(t, "/cb")
	addr := l.Addr().String()
	if err := l.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close returned error: %v", err)
	}

	again, err := net.Listen("tcp", addr)
	if err != nil {
		t.Fatalf("port not released: %v", err)
	}
	_ = again.Close()
}
