package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// publicKeyPath is the gateway endpoint whose response proves the gateway is serving.
	publicKeyPath = "/public_key"

	// An uncompressed secp256k1 public key: "0x04" followed by at least 62 hex characters.
	publicKeyPrefix    = "0x04"
	publicKeyMinLength = 66

	// maxProbeBodyBytes caps how much of the probe response is read.
	maxProbeBodyBytes = 64 * 1024

	defaultProbeTimeout = 5 * time.Second
)

var (
	ErrUnexpectedStatusCode = errors.New("gateway returned unexpected status code")
	ErrMalformedPublicKey   = errors.New("gateway returned a malformed public key")
)

// Prober performs a single gateway availability check.
// A nil error means the gateway is up.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a plain function to the Prober interface.
type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Probe(ctx context.Context) error {
	return f(ctx)
}

// HTTPProber probes a gateway over HTTP by fetching its public key.
type HTTPProber struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewHTTPProber returns a prober for the gateway at gatewayURL.
// A zero timeout selects the default; a nil client selects http.DefaultClient.
func NewHTTPProber(gatewayURL string, timeout time.Duration, client *http.Client) *HTTPProber {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProber{
		url:     strings.TrimRight(gatewayURL, "/") + publicKeyPath,
		timeout: timeout,
		client:  client,
	}
}

// Probe issues GET {gateway}/public_key and checks the body shape.
func (p *HTTPProber) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("building probe request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probing gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatusCode, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBodyBytes))
	if err != nil {
		return fmt.Errorf("reading probe response: %w", err)
	}

	return validatePublicKey(string(body))
}

func validatePublicKey(body string) error {
	key := strings.TrimSpace(body)
	if !strings.HasPrefix(key, publicKeyPrefix) || len(key) < publicKeyMinLength {
		return ErrMalformedPublicKey
	}
	return nil
}
