package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BearBump/ScanDock/internal/broker/messages"
	"github.com/BearBump/ScanDock/internal/integrations/packagesapi"
	"github.com/BearBump/ScanDock/internal/services/batch"
	"github.com/BearBump/ScanDock/internal/services/search"
	"github.com/BearBump/ScanDock/internal/storage/memsession"
	"github.com/stretchr/testify/require"
)

type fakeConsumer struct{}

func (c fakeConsumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	<-ctx.Done()
	return ctx.Err()
}

type fakeBumper struct {
	n int64
}

func (b *fakeBumper) Incr(ctx context.Context, key string) (int64, error) {
	b.n++
	return b.n, nil
}

func testDeps() scanAPIDeps {
	client := packagesapi.New("", "")
	return scanAPIDeps{
		batchSvc:  batch.New(memsession.New(), nil, batch.Topics{}),
		searchSvc: search.New(client, nil, 0, 0),
		consumer:  fakeConsumer{},
	}
}

func TestRunScanAPI_ServesEndpoints(t *testing.T) {
	dir := t.TempDir()
	sw := filepath.Join(dir, "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	opts := scanAPIOpts{
		httpAddr:      "127.0.0.1:0",
		swaggerPath:   sw,
		topic:         "packages.updated",
		consumerGroup: "g",
		onListen:      func(httpAddr string) { addrCh <- httpAddr },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- runScanAPI(ctx, opts, testDeps()) }()

	addr := <-addrCh
	base := "http://" + addr

	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	resp, err = http.Get(base + "/swagger.json")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
	require.Contains(t, string(body), "\"swagger\"")

	// полный цикл по батч-эндпоинтам через реальный сервер
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(map[string]any{"user_id": "u1"}))
	resp, err = http.Post(base+"/api/batch", "application/json", &buf)
	require.NoError(t, err)
	var env map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	resp.Body.Close()
	require.Equal(t, 201, resp.StatusCode)
	require.Equal(t, true, env["success"])

	cancel()
	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunScanAPI_SwaggerRequired(t *testing.T) {
	err := runScanAPI(context.Background(), scanAPIOpts{httpAddr: "127.0.0.1:0"}, testDeps())
	require.Error(t, err)

	err = runScanAPI(context.Background(), scanAPIOpts{
		httpAddr:    "127.0.0.1:0",
		swaggerPath: filepath.Join(t.TempDir(), "missing.json"),
	}, testDeps())
	require.Error(t, err)
}

func TestInvalidateSearchCache(t *testing.T) {
	b := &fakeBumper{}
	err := invalidateSearchCache(context.Background(), b, messages.PackagesUpdated{
		TrackingCodes: []string{"TBA1"},
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, b.n)

	// без bumper'а — no-op
	require.NoError(t, invalidateSearchCache(context.Background(), nil, messages.PackagesUpdated{}))
}
