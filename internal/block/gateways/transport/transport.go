// Package transport exposes rr-block over the network: a forward proxy that
// enforces blocking decisions and a JSON management API over the rule list.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/haukened/rr-block/internal/block/common/log"
)

// ServerTransport is a network listener run by the daemon.
type ServerTransport interface {
	// Start binds the listener and begins serving in the background.
	Start(ctx context.Context) error

	// Stop gracefully shuts the listener down, waiting for in-flight requests.
	Stop() error

	// Wait blocks until serving ends. A graceful Stop yields nil.
	Wait() error

	// Address returns the bound address once started, otherwise the configured one.
	Address() string
}

// TransportType names the transports the daemon can run.
type TransportType string

const (
	// TransportProxy is the HTTP forward proxy that cancels blocked requests.
	TransportProxy TransportType = "proxy"

	// TransportAPI is the JSON management API.
	TransportAPI TransportType = "api"
)

// listenFn is swapped in tests.
var listenFn = func(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", addr)
}

// httpTransport runs an http.Handler on a TCP listener.
type httpTransport struct {
	kind            TransportType
	addr            string
	handler         http.Handler
	logger          log.Logger
	shutdownTimeout time.Duration

	mu      sync.Mutex
	server  *http.Server
	ln      net.Listener
	running bool
	done    chan struct{}
	err     error
}

// NewHTTPTransport returns a ServerTransport serving handler on addr.
func NewHTTPTransport(kind TransportType, addr string, handler http.Handler, logger log.Logger) ServerTransport {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &httpTransport{
		kind:            kind,
		addr:            addr,
		handler:         handler,
		logger:          logger,
		shutdownTimeout: 5 * time.Second,
		done:            make(chan struct{}),
	}
}

func (t *httpTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("%s transport already running", t.kind)
	}

	ln, err := listenFn(ctx, t.addr)
	if err != nil {
		return fmt.Errorf("failed to listen for %s on %s: %w", t.kind, t.addr, err)
	}

	t.ln = ln
	t.server = &http.Server{
		Handler:           t.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	t.running = true

	t.logger.Info(map[string]any{
		"transport": string(t.kind),
		"address":   ln.Addr().String(),
	}, "Transport started")

	go t.serve(t.server, ln)
	return nil
}

func (t *httpTransport) serve(srv *http.Server, ln net.Listener) {
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	if err != nil {
		t.logger.Error(map[string]any{
			"transport": string(t.kind),
			"error":     err.Error(),
		}, "Transport failed")
		err = fmt.Errorf("%s transport: %w", t.kind, err)
	}
	t.mu.Lock()
	t.err = err
	t.running = false
	t.mu.Unlock()
	close(t.done)
}

func (t *httpTransport) Stop() error {
	t.mu.Lock()
	srv := t.server
	running := t.running
	t.mu.Unlock()

	if srv == nil || !running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(ctx)
	if err != nil {
		t.logger.Warn(map[string]any{
			"transport": string(t.kind),
			"error":     err.Error(),
		}, "Error shutting down transport")
		_ = srv.Close()
	}

	t.logger.Info(map[string]any{
		"transport": string(t.kind),
		"address":   t.Address(),
	}, "Transport stopped")
	return err
}

func (t *httpTransport) Wait() error {
	t.mu.Lock()
	started := t.server != nil
	t.mu.Unlock()
	if !started {
		return nil
	}
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *httpTransport) Address() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ln != nil {
		return t.ln.Addr().String()
	}
	return t.addr
}
