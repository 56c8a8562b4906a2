package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/momentumbot/internal/config"
	"github.com/alanyoungcy/momentumbot/internal/domain"
	"github.com/alanyoungcy/momentumbot/internal/executor"
	"github.com/alanyoungcy/momentumbot/internal/platform/paper"
)

func paperConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Trading.Mode = "paper"
	cfg.Binance.BaseURL = baseURL
	cfg.Store.HistoryPath = filepath.Join(dir, "position_history.json")
	cfg.Store.WeightsPath = filepath.Join(dir, "symbol_weights.json")
	cfg.Store.SQLitePath = filepath.Join(dir, "bot.db")
	return &cfg
}

// quietExchange answers every market-data request with an empty list.
func quietExchange(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestWire_FileBackendPaperMode(t *testing.T) {
	cfg := paperConfig(t, quietExchange(t).URL)

	deps, cleanup, err := Wire(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.IsType(t, &executor.GuardedProvider{}, deps.Provider)
	assert.IsType(t, &paper.Exchange{}, deps.Paper)
	assert.Nil(t, deps.LockManager)
	assert.Nil(t, deps.EventBus)
	require.NotNil(t, deps.Notifier)

	bal, err := deps.Provider.FreeBalance(context.Background(), "USDT")
	require.NoError(t, err)
	assert.Equal(t, "1000", bal.String())
}

func TestWire_SQLiteBackend(t *testing.T) {
	cfg := paperConfig(t, quietExchange(t).URL)
	cfg.Store.Backend = "sqlite"

	deps, cleanup, err := Wire(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, deps.WeightStore.Save(ctx, []domain.SymbolWeight{{Symbol: "AAAUSDT", Weight: 2}}))
	got, err := deps.WeightStore.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.SymbolWeight{{Symbol: "AAAUSDT", Weight: 2}}, got)
}

func TestRun_TicksAndPersistsUntilCancelled(t *testing.T) {
	cfg := paperConfig(t, quietExchange(t).URL)
	cfg.Trading.Interval.Duration = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application := New(cfg, discardLogger())
	defer application.Close()

	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(cfg.Store.WeightsPath)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	raw, err := os.ReadFile(cfg.Store.WeightsPath)
	require.NoError(t, err)
	var weights []domain.SymbolWeight
	require.NoError(t, json.Unmarshal(raw, &weights))
	assert.Empty(t, weights)
}

func TestRun_CorruptHistoryIsFatal(t *testing.T) {
	cfg := paperConfig(t, quietExchange(t).URL)
	require.NoError(t, os.WriteFile(cfg.Store.HistoryPath, []byte("{not json"), 0o600))

	application := New(cfg, discardLogger())
	defer application.Close()

	err := application.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.Contains(t, err.Error(), "restore positions")
}
