package engine

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	tls "github.com/refraction-networking/utls"
	"golang.org/x/net/proxy"
)

const (
	chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

	// documentAccept prefers machine-readable formats but still admits HTML
	// so the gate, not the transport, decides what counts.
	documentAccept = "application/xml,text/xml;q=0.9,application/json;q=0.9,text/plain;q=0.8,text/html;q=0.7,*/*;q=0.5"

	// defaultMaxBody caps how much of a response is read.
	defaultMaxBody = 10 << 20
)

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Go's http.Transport cannot speak h2 over a utls connection.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// DirectStrategy fetches the target with a plain GET over a Chrome TLS
// fingerprint, optionally through a forward proxy.
type DirectStrategy struct {
	name    string
	client  *http.Client
	headers map[string]string
	maxBody int64
}

// DirectOption configures a DirectStrategy.
type DirectOption func(*directConfig)

type directConfig struct {
	name        string
	proxy       string
	headers     map[string]string
	maxBody     int64
	dialTimeout time.Duration
}

// WithName overrides the strategy name.
func WithName(name string) DirectOption {
	return func(c *directConfig) { c.name = name }
}

// WithProxy routes requests through a forward proxy. Supported schemes are
// http, https, socks5 and socks5h. The default name becomes "proxy".
func WithProxy(rawURL string) DirectOption {
	return func(c *directConfig) {
		c.proxy = rawURL
		if c.name == "direct" {
			c.name = "proxy"
		}
	}
}

// WithHeaders adds request headers, overriding the browser-like defaults.
func WithHeaders(headers map[string]string) DirectOption {
	return func(c *directConfig) { c.headers = headers }
}

// WithMaxBody caps the number of body bytes read.
func WithMaxBody(n int64) DirectOption {
	return func(c *directConfig) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// NewDirectStrategy creates a DirectStrategy named "direct" (or "proxy" when
// a proxy is configured).
func NewDirectStrategy(opts ...DirectOption) (*DirectStrategy, error) {
	cfg := &directConfig{
		name:        "direct",
		maxBody:     defaultMaxBody,
		dialTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	base := &net.Dialer{Timeout: cfg.dialTimeout}
	dial := base.DialContext
	transport := &http.Transport{ForceAttemptHTTP2: false}

	if cfg.proxy != "" {
		proxyURL, err := url.Parse(cfg.proxy)
		if err != nil {
			return nil, fmt.Errorf("%w: proxy url: %v", ErrConfiguration, err)
		}
		switch proxyURL.Scheme {
		case "http", "https":
			// Proxied HTTPS is tunnelled with CONNECT and uses the stdlib TLS stack.
			transport.Proxy = http.ProxyURL(proxyURL)
			transport.DialContext = dial
		case "socks5", "socks5h":
			d, err := proxy.FromURL(proxyURL, base)
			if err != nil {
				return nil, fmt.Errorf("%w: socks proxy: %v", ErrConfiguration, err)
			}
			cd, ok := d.(proxy.ContextDialer)
			if !ok {
				return nil, fmt.Errorf("%w: socks proxy dialer does not support contexts", ErrConfiguration)
			}
			dial = cd.DialContext
			transport.DialContext = dial
		default:
			return nil, fmt.Errorf("%w: unsupported proxy scheme %q", ErrConfiguration, proxyURL.Scheme)
		}
	}

	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialTLSChrome(ctx, network, addr, dial)
	}

	return &DirectStrategy{
		name:    cfg.name,
		headers: cfg.headers,
		maxBody: cfg.maxBody,
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
	}, nil
}

func (s *DirectStrategy) Name() string { return s.name }

func (s *DirectStrategy) Fetch(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", documentAccept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "identity")
	req.Header.Set("Cache-Control", "no-cache")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBody))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}

// dialTLSChrome establishes a TLS connection using the Chrome fingerprint.
func dialTLSChrome(ctx context.Context, network, addr string, dial func(ctx context.Context, network, addr string) (net.Conn, error)) (net.Conn, error) {
	rawConn, err := dial(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls.UClient(rawConn, &tls.Config{ServerName: host}, tls.HelloCustom)
	if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
		rawConn.Close()
		return nil, fmt.Errorf("apply tls spec: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}
