package main

import (
	"context"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-block/internal/block/config"
	"github.com/haukened/rr-block/internal/block/domain"
	"github.com/haukened/rr-block/internal/block/gateways/apiclient"
)

func testConfig(t *testing.T, backend string) *config.AppConfig {
	t.Helper()
	t.Setenv("BLOCK_STORE_BACKEND", backend)
	t.Setenv("BLOCK_STORE_PATH", filepath.Join(t.TempDir(), "state", "rules.db"))
	t.Setenv("BLOCK_PROXY_ADDR", "127.0.0.1:0")
	t.Setenv("BLOCK_API_ADDR", "127.0.0.1:0")
	t.Setenv("BLOCK_LOG_LEVEL", "debug")
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

// startApp runs app until the test ends and returns the bound proxy and API addresses.
func startApp(t *testing.T, app *Application) (proxyAddr, apiAddr string, stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	appErr := make(chan error, 1)
	go func() { appErr <- app.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		p, a := app.transports[0].Address(), app.transports[1].Address()
		if !strings.HasSuffix(p, ":0") && !strings.HasSuffix(a, ":0") {
			proxyAddr, apiAddr = p, a
			break
		}
		select {
		case err := <-appErr:
			cancel()
			t.Fatalf("Application failed to start: %v", err)
		case <-deadline:
			cancel()
			t.Fatal("Application failed to start within timeout")
		case <-time.After(10 * time.Millisecond):
		}
	}

	stopped := false
	stop = func() error {
		if stopped {
			return nil
		}
		stopped = true
		cancel()
		select {
		case err := <-appErr:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("Application failed to shutdown within timeout")
			return nil
		}
	}
	t.Cleanup(func() { _ = stop() })
	return proxyAddr, apiAddr, stop
}

func TestApplication_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := testConfig(t, "bolt")
	app, err := buildApplication(cfg)
	require.NoError(t, err)
	proxyAddr, apiAddr, stop := startApp(t, app)

	client, err := apiclient.New("http://"+apiAddr, nil)
	require.NoError(t, err)
	ctx := context.Background()

	rule, err := client.Add(ctx, "blocked.example")
	require.NoError(t, err)
	assert.Equal(t, "https://blocked.example", rule.URL)

	d, err := client.Check(ctx, "http://BLOCKED.example/page")
	require.NoError(t, err)
	assert.True(t, d.Blocked)

	proxyURL, err := url.Parse("http://" + proxyAddr)
	require.NoError(t, err)
	httpc := &http.Client{Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)}, Timeout: 5 * time.Second}
	resp, err := httpc.Get("http://blocked.example/page")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	assert.NoError(t, stop(), "Application should shutdown gracefully")

	// rules survive a restart on the bolt backend
	app2, err := buildApplication(cfg)
	require.NoError(t, err)
	_, apiAddr2, _ := startApp(t, app2)
	client2, err := apiclient.New("http://"+apiAddr2, nil)
	require.NoError(t, err)
	list, err := client2.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.BlockRule{rule}, list)
}

func TestBuildApplication_ConfigurationVariations(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(cfg *config.AppConfig)
		wantErr       bool
		errorContains string
	}{
		{name: "memory backend", mutate: func(cfg *config.AppConfig) { cfg.Store.Backend = "memory" }},
		{name: "bolt backend", mutate: func(cfg *config.AppConfig) {}},
		{name: "cache disabled", mutate: func(cfg *config.AppConfig) { cfg.Filter.Cache.Size = 0 }},
		{
			name:          "unsupported backend",
			mutate:        func(cfg *config.AppConfig) { cfg.Store.Backend = "sqlite" },
			wantErr:       true,
			errorContains: "unsupported store backend",
		},
		{
			name: "bolt path is a directory",
			mutate: func(cfg *config.AppConfig) {
				cfg.Store.Path = t.TempDir()
			},
			wantErr:       true,
			errorContains: "failed to build rule store",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, "bolt")
			tt.mutate(cfg)

			app, err := buildApplication(cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
				return
			}
			require.NoError(t, err)
			require.Len(t, app.transports, 2)
			assert.NoError(t, app.store.Close())
		})
	}
}

func TestApplication_RunFailsWhenAddressTaken(t *testing.T) {
	cfg := testConfig(t, "memory")
	first, err := buildApplication(cfg)
	require.NoError(t, err)
	_, apiAddr, _ := startApp(t, first)

	cfg2 := testConfig(t, "memory")
	cfg2.API.Addr = apiAddr
	second, err := buildApplication(cfg2)
	require.NoError(t, err)

	err = second.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start transport")
}
