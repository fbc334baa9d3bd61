package transport

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/haukened/rr-block/internal/block/common/log"
	"github.com/haukened/rr-block/internal/block/domain"
)

// Decider evaluates a request URL before the request is dispatched.
type Decider interface {
	Decide(ctx context.Context, requestURL string) (domain.BlockDecision, error)
}

// ProxyOptions configures a Proxy. Zero values select sensible defaults.
type ProxyOptions struct {
	// Transport forwards allowed plain HTTP requests.
	Transport http.RoundTripper

	// Dial opens upstream connections for CONNECT tunnels.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)

	// DecideTimeout bounds how long a request waits for the first rule snapshot.
	DecideTimeout time.Duration

	Logger log.Logger
}

// Proxy is an HTTP forward proxy that refuses requests to blocked hosts.
// Every request is decided before anything is sent upstream.
type Proxy struct {
	decider       Decider
	transport     http.RoundTripper
	dial          func(ctx context.Context, network, addr string) (net.Conn, error)
	decideTimeout time.Duration
	logger        log.Logger
}

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// NewProxy returns a Proxy consulting decider for every request.
func NewProxy(decider Decider, opts ProxyOptions) *Proxy {
	p := &Proxy{
		decider:       decider,
		transport:     opts.Transport,
		dial:          opts.Dial,
		decideTimeout: opts.DecideTimeout,
		logger:        opts.Logger,
	}
	if p.transport == nil {
		p.transport = &http.Transport{
			Proxy:               nil,
			DialContext:         (&net.Dialer{Timeout: 30 * time.Second}).DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	}
	if p.dial == nil {
		p.dial = (&net.Dialer{Timeout: 30 * time.Second}).DialContext
	}
	if p.decideTimeout <= 0 {
		p.decideTimeout = 5 * time.Second
	}
	if p.logger == nil {
		p.logger = log.NewNoopLogger()
	}
	return p
}

// NewProxyTransport returns a ServerTransport running a Proxy on addr.
func NewProxyTransport(addr string, decider Decider, opts ProxyOptions) ServerTransport {
	return NewHTTPTransport(TransportProxy, addr, NewProxy(decider, opts), opts.Logger)
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect {
		p.handleConnect(w, r)
		return
	}
	if !r.URL.IsAbs() || r.URL.Host == "" {
		http.Error(w, "proxy requests must use an absolute URL", http.StatusBadRequest)
		return
	}
	if !p.admit(w, r, r.URL.String()) {
		return
	}
	p.forward(w, r)
}

// admit decides target and writes the refusal when the request must not go out.
func (p *Proxy) admit(w http.ResponseWriter, r *http.Request, target string) bool {
	ctx, cancel := context.WithTimeout(r.Context(), p.decideTimeout)
	defer cancel()

	d, err := p.decider.Decide(ctx, target)
	if err != nil {
		// rules were not available in time; drop rather than dispatch undecided
		p.logger.Warn(map[string]any{
			"method": r.Method,
			"host":   d.Host,
			"error":  err.Error(),
		}, "Decision unavailable")
		http.Error(w, "blocking rules are not loaded yet", http.StatusServiceUnavailable)
		return false
	}
	if d.IsBlocked() {
		p.logger.Info(map[string]any{
			"method": r.Method,
			"host":   d.Host,
			"rule":   d.MatchedRule,
			"client": r.RemoteAddr,
		}, "Request blocked")
		http.Error(w, "blocked by rr-block: "+d.Host, http.StatusForbidden)
		return false
	}
	p.logger.Debug(map[string]any{"method": r.Method, "host": d.Host}, "request_allowed")
	return true
}

func (p *Proxy) forward(w http.ResponseWriter, r *http.Request) {
	out := r.Clone(r.Context())
	out.RequestURI = ""
	if r.ContentLength == 0 {
		out.Body = nil
	}
	removeHopHeaders(out.Header)

	resp, err := p.transport.RoundTrip(out)
	if err != nil {
		p.logger.Warn(map[string]any{
			"url":   r.URL.Redacted(),
			"error": err.Error(),
		}, "Upstream request failed")
		http.Error(w, "upstream request failed", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	removeHopHeaders(resp.Header)
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		p.logger.Debug(map[string]any{"url": r.URL.Redacted(), "error": err.Error()}, "proxy_copy_interrupted")
	}
}

// handleConnect tunnels CONNECT requests. The target is evaluated as https://host:port.
func (p *Proxy) handleConnect(w http.ResponseWriter, r *http.Request) {
	hostport := r.Host
	if hostport == "" {
		hostport = r.URL.Host
	}
	if hostport == "" {
		http.Error(w, "CONNECT requires host:port", http.StatusBadRequest)
		return
	}
	if !p.admit(w, r, "https://"+hostport) {
		return
	}

	upstream, err := p.dial(r.Context(), "tcp", hostport)
	if err != nil {
		p.logger.Warn(map[string]any{"target": hostport, "error": err.Error()}, "Upstream dial failed")
		http.Error(w, "upstream dial failed", http.StatusBadGateway)
		return
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		upstream.Close()
		http.Error(w, "tunneling not supported", http.StatusInternalServerError)
		return
	}
	client, buf, err := hj.Hijack()
	if err != nil {
		upstream.Close()
		p.logger.Warn(map[string]any{"target": hostport, "error": err.Error()}, "Hijack failed")
		return
	}
	defer client.Close()
	defer upstream.Close()

	if _, err := io.WriteString(client, "HTTP/1.1 200 Connection Established\r\n\r\n"); err != nil {
		return
	}
	if n := buf.Reader.Buffered(); n > 0 {
		if _, err := io.CopyN(upstream, buf, int64(n)); err != nil {
			return
		}
	}

	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(upstream, client)
		closeWrite(upstream)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(client, upstream)
		closeWrite(client)
		return err
	})
	if err := g.Wait(); err != nil {
		p.logger.Debug(map[string]any{"target": hostport, "error": err.Error()}, "tunnel_closed_with_error")
	}
}

func closeWrite(c net.Conn) {
	if cw, ok := c.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}
}

// removeHopHeaders strips hop-by-hop headers, including any named in Connection.
func removeHopHeaders(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}
