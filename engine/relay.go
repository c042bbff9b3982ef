package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
)

// RelayConfig describes a server-side fetch relay.
type RelayConfig struct {
	// Name is the strategy name. Default: "relay".
	Name string

	// Endpoint is the relay URL. A "{url}" placeholder is replaced with the
	// escaped target; otherwise the target is sent as the "url" query parameter.
	Endpoint string

	// Envelope names the JSON field holding the document when the relay wraps
	// its response (e.g. "contents"). Empty means the body is the document.
	Envelope string

	// RequestsPerSecond paces calls to the relay. Zero disables pacing.
	RequestsPerSecond float64
	Burst             int
}

// RelayStrategy asks a relay service to fetch the target on our behalf.
type RelayStrategy struct {
	name     string
	endpoint string
	envelope string
	client   *http.Client
	limiter  *rate.Limiter
	maxBody  int64
}

// NewRelayStrategy creates a RelayStrategy. A nil client uses a default one.
func NewRelayStrategy(cfg RelayConfig, client *http.Client) (*RelayStrategy, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: relay endpoint is empty", ErrConfiguration)
	}
	if _, err := url.Parse(strings.ReplaceAll(cfg.Endpoint, "{url}", "x")); err != nil {
		return nil, fmt.Errorf("%w: relay endpoint: %v", ErrConfiguration, err)
	}
	if cfg.Name == "" {
		cfg.Name = "relay"
	}
	if client == nil {
		client = &http.Client{}
	}

	s := &RelayStrategy{
		name:     cfg.Name,
		endpoint: cfg.Endpoint,
		envelope: cfg.Envelope,
		client:   client,
		maxBody:  defaultMaxBody,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return s, nil
}

func (s *RelayStrategy) Name() string { return s.name }

func (s *RelayStrategy) Fetch(ctx context.Context, target string) (string, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("relay rate limit: %w", err)
		}
	}

	relayURL, err := s.relayURL(target)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, relayURL, nil)
	if err != nil {
		return "", fmt.Errorf("build relay request: %w", err)
	}
	req.Header.Set("Accept", documentAccept)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("relay request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("relay HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBody))
	if err != nil {
		return "", fmt.Errorf("read relay body: %w", err)
	}
	if s.envelope == "" {
		return string(body), nil
	}
	return unwrapEnvelope(body, s.envelope)
}

func (s *RelayStrategy) relayURL(target string) (string, error) {
	if strings.Contains(s.endpoint, "{url}") {
		return strings.ReplaceAll(s.endpoint, "{url}", url.QueryEscape(target)), nil
	}
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return "", fmt.Errorf("relay endpoint: %w", err)
	}
	q := u.Query()
	q.Set("url", target)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// relayStatus is the upstream status some relays report next to the document.
type relayStatus struct {
	HTTPCode int `json:"http_code"`
}

func unwrapEnvelope(body []byte, field string) (string, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("relay envelope: %w", err)
	}
	if raw, ok := env["status"]; ok {
		var st relayStatus
		if json.Unmarshal(raw, &st) == nil && st.HTTPCode >= 400 {
			return "", fmt.Errorf("upstream HTTP %d via relay", st.HTTPCode)
		}
	}
	raw, ok := env[field]
	if !ok {
		return "", fmt.Errorf("relay envelope has no %q field", field)
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", fmt.Errorf("relay envelope field %q is not a string", field)
	}
	return text, nil
}
