package connectivity

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Prober checks whether the remote store can be reached.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context) error

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context) error {
	return f(ctx)
}

// HTTPProber requests URL with HEAD, retrying with GET when the server does
// not allow HEAD. Any response below 500 counts as reachable.
type HTTPProber struct {
	URL    string
	Client *http.Client
}

// Probe implements Prober.
func (p HTTPProber) Probe(ctx context.Context) error {
	url := strings.TrimSpace(p.URL)
	if url == "" {
		return fmt.Errorf("probe url is empty")
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	status, err := p.do(ctx, client, http.MethodHead, url)
	if err != nil {
		return err
	}
	if status == http.StatusMethodNotAllowed {
		status, err = p.do(ctx, client, http.MethodGet, url)
		if err != nil {
			return err
		}
	}
	if status >= http.StatusInternalServerError {
		return fmt.Errorf("probe %s: status %d", url, status)
	}
	return nil
}

func (p HTTPProber) do(ctx context.Context, client *http.Client, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build probe request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", url, err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return resp.StatusCode, nil
}

// TCPProber dials Address and closes the connection immediately.
type TCPProber struct {
	Address string
	Timeout time.Duration
}

// Probe implements Prober.
func (p TCPProber) Probe(ctx context.Context) error {
	address := strings.TrimSpace(p.Address)
	if address == "" {
		return fmt.Errorf("probe address is empty")
	}
	dialer := net.Dialer{Timeout: p.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("dial %s: %w", address, err)
	}
	return conn.Close()
}
