//go:build integration

package main

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/odam-offline-cache/internal/testutil"
	"github.com/Sternrassler/odam-offline-cache/pkg/config"
)

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	t.Cleanup(func() { redisC.Terminate(ctx) })

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}
	return fmt.Sprintf("redis://%s:%s/0", host, port.Port())
}

func TestApp_RedisBackend(t *testing.T) {
	origin := testutil.NewSiteOrigin()
	defer origin.Close()

	cfg := testConfig(origin.URL())
	cfg.Storage.Backend = config.BackendRedis
	cfg.Storage.RedisURL = startRedis(t)

	a := newTestApp(t, cfg)
	h := a.handler()

	resp := do(t, h, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want 200", resp.StatusCode)
	}

	origin.SetOffline(true)
	resp = do(t, h, http.MethodGet, "/logo.jpg", "", http.Header{"Sec-Fetch-Dest": {"image"}})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("offline /logo.jpg status = %d, want 200 from redis", resp.StatusCode)
	}
}
