package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"offsync/internal/config"
	"offsync/internal/daemon"
	"offsync/internal/logging"
	"offsync/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	remote     *fakeRemote
}

// fakeRemote accepts creates and updates, and rejects any payload containing "reject".
type fakeRemote struct {
	mu       sync.Mutex
	requests []string
}

func (f *fakeRemote) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body := new(bytes.Buffer)
	_, _ = body.ReadFrom(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.mu.Unlock()

	switch {
	case r.Method == http.MethodHead:
		w.WriteHeader(http.StatusOK)
	case strings.Contains(body.String(), "reject"):
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"rejected"}`))
	case r.Method == http.MethodPost:
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 7}`))
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (f *fakeRemote) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, req := range f.requests {
		if strings.HasPrefix(req, prefix) {
			n++
		}
	}
	return n
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	remote := &fakeRemote{}
	srv := httptest.NewServer(remote)
	t.Cleanup(srv.Close)

	cfg := testsupport.NewConfig(t,
		testsupport.WithTenants("acme"),
		testsupport.WithRemote(srv.URL, "partners"),
	)
	cfg.Retention.Enabled = false
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, remote: remote}
}

// startDaemon runs a daemon for env and returns its API address.
func startDaemon(t *testing.T, env *cliTestEnv) (*daemon.Daemon, string) {
	t.Helper()

	store := testsupport.MustOpenStore(t, env.cfg)
	d, err := daemon.New(env.cfg, store, logging.NewNop(), daemon.WithLogHub(logging.NewStreamHub(64)))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		d.Stop()
	})
	return d, d.APIAddress()
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
