package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ozzus/ring-exporter/internal/config"
	"ozzus/ring-exporter/internal/domain"
)

// fakeRunner records every ssh invocation and lets tests script the outcome
// per subcommand.
type fakeRunner struct {
	mu      sync.Mutex
	calls   [][]string
	onOpen  func(args []string) error
	onCheck func(args []string) error
	onExit  func(args []string) error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) error {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	onOpen, onCheck, onExit := f.onOpen, f.onCheck, f.onExit
	f.mu.Unlock()

	switch {
	case len(args) > 0 && args[0] == "-MNf":
		if onOpen != nil {
			return onOpen(args)
		}
	case len(args) > 1 && args[0] == "-O" && args[1] == "check":
		if onCheck != nil {
			return onCheck(args)
		}
	case len(args) > 1 && args[0] == "-O" && args[1] == "exit":
		if onExit != nil {
			return onExit(args)
		}
	}
	return nil
}

func (f *fakeRunner) CombinedOutput(ctx context.Context, name string, args ...string) (string, error) {
	return "", f.Run(ctx, name, args...)
}

// count returns how many recorded invocations were of the given kind:
// "open", "check" or "exit".
func (f *fakeRunner) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, call := range f.calls {
		if len(call) < 2 {
			continue
		}
		switch kind {
		case "open":
			if call[1] == "-MNf" {
				n++
			}
		case "check", "exit":
			if len(call) > 2 && call[1] == "-O" && call[2] == kind {
				n++
			}
		}
	}
	return n
}

type statusRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *statusRecorder) record(hostname string, status domain.ChannelStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, hostname+":"+string(status))
}

func (r *statusRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		SSH: config.SSHConfig{
			Username:            "rise",
			ControlPathTemplate: filepath.Join(t.TempDir(), "nlnog-%r@%h:%p"),
			ConnectTimeout:      5,
			CommandTimeout:      15,
		},
		Pools:     config.PoolsConfig{StartupOpens: 8, ReconcileChecks: 4, ProbeWorkers: 8},
		Reconcile: config.ReconcileConfig{Interval: 300, FailThreshold: 3, RetryCooldown: 300},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenMarksHealthy(t *testing.T) {
	runner := &fakeRunner{}
	rec := &statusRecorder{}

	m := NewManager(testLogger(), runner, testConfig(t))
	m.SetStatusCallback(rec.record)

	require.NoError(t, m.Open(context.Background(), "node01.ring.nlnog.net"))

	assert.Equal(t, domain.ChannelHealthy, m.Status("node01.ring.nlnog.net"))
	assert.Equal(t, []string{
		"node01.ring.nlnog.net:connecting",
		"node01.ring.nlnog.net:healthy",
	}, rec.all())
	assert.Equal(t, 1, runner.count("open"))
}

func TestOpenIdempotentOnHealthyChannel(t *testing.T) {
	runner := &fakeRunner{}
	m := NewManager(testLogger(), runner, testConfig(t))

	ctx := context.Background()
	require.NoError(t, m.Open(ctx, "node01.ring.nlnog.net"))
	require.NoError(t, m.Open(ctx, "node01.ring.nlnog.net"))

	// Второй вызов не порождает нового ssh-процесса.
	assert.Equal(t, 1, runner.count("open"))
}

func TestOpenOnHealthyDoesNotResetFailureCounter(t *testing.T) {
	runner := &fakeRunner{}
	runner.onCheck = func([]string) error { return errors.New("control socket gone") }

	m := NewManager(testLogger(), runner, testConfig(t))
	ctx := context.Background()
	host := "node01.ring.nlnog.net"

	require.NoError(t, m.Open(ctx, host))

	// Два провала подряд: статус ещё healthy, счётчик = 2.
	require.Error(t, m.HealthCheck(ctx, host))
	require.Error(t, m.HealthCheck(ctx, host))
	assert.Equal(t, domain.ChannelHealthy, m.Status(host))

	// No-op open не должен сбросить счётчик...
	require.NoError(t, m.Open(ctx, host))

	// ...поэтому третий провал добивает канал.
	require.Error(t, m.HealthCheck(ctx, host))
	assert.Equal(t, domain.ChannelUnhealthy, m.Status(host))
}

func TestConcurrentOpensCoalesce(t *testing.T) {
	runner := &fakeRunner{}
	runner.onOpen = func([]string) error {
		time.Sleep(30 * time.Millisecond)
		return nil
	}

	m := NewManager(testLogger(), runner, testConfig(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.Open(ctx, "node01.ring.nlnog.net")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, runner.count("open"))
	assert.Equal(t, domain.ChannelHealthy, m.Status("node01.ring.nlnog.net"))
}

func TestOpenFailureEntersCooldown(t *testing.T) {
	runner := &fakeRunner{}
	runner.onOpen = func([]string) error { return errors.New("connection refused") }

	m := NewManager(testLogger(), runner, testConfig(t))
	ctx := context.Background()

	err := m.Open(ctx, "node01.ring.nlnog.net")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRetryCooldown)
	assert.Equal(t, domain.ChannelUnhealthy, m.Status("node01.ring.nlnog.net"))

	// Повторная попытка до истечения cooldown отклоняется без ssh-вызова.
	err = m.Open(ctx, "node01.ring.nlnog.net")
	require.ErrorIs(t, err, ErrRetryCooldown)
	assert.Equal(t, 1, runner.count("open"))
}

func TestOpenRetriesWhenCooldownDisabled(t *testing.T) {
	runner := &fakeRunner{}
	runner.onOpen = func([]string) error { return errors.New("connection refused") }

	cfg := testConfig(t)
	cfg.Reconcile.RetryCooldown = 0

	m := NewManager(testLogger(), runner, cfg)
	ctx := context.Background()

	require.Error(t, m.Open(ctx, "node01.ring.nlnog.net"))
	require.Error(t, m.Open(ctx, "node01.ring.nlnog.net"))

	assert.Equal(t, 2, runner.count("open"))
}

func TestHealthCheckDemotesAfterThreshold(t *testing.T) {
	runner := &fakeRunner{}
	runner.onCheck = func([]string) error { return errors.New("no such control socket") }
	rec := &statusRecorder{}

	m := NewManager(testLogger(), runner, testConfig(t))
	m.SetStatusCallback(rec.record)

	ctx := context.Background()
	host := "node01.ring.nlnog.net"
	require.NoError(t, m.Open(ctx, host))

	require.Error(t, m.HealthCheck(ctx, host))
	require.Error(t, m.HealthCheck(ctx, host))
	assert.Equal(t, domain.ChannelHealthy, m.Status(host))
	assert.Equal(t, 0, runner.count("exit"))

	require.Error(t, m.HealthCheck(ctx, host))
	assert.Equal(t, domain.ChannelUnhealthy, m.Status(host))
	// Демонтированный канал принудительно закрывается.
	assert.Equal(t, 1, runner.count("exit"))

	assert.Contains(t, rec.all(), host+":unhealthy")
}

func TestHealthCheckSuccessResetsFailures(t *testing.T) {
	var fails int
	runner := &fakeRunner{}
	runner.onCheck = func([]string) error {
		fails++
		if fails <= 2 {
			return errors.New("no such control socket")
		}
		return nil
	}

	m := NewManager(testLogger(), runner, testConfig(t))
	ctx := context.Background()
	host := "node01.ring.nlnog.net"
	require.NoError(t, m.Open(ctx, host))

	require.Error(t, m.HealthCheck(ctx, host))
	require.Error(t, m.HealthCheck(ctx, host))
	require.NoError(t, m.HealthCheck(ctx, host))

	// Счётчик сброшен: до демонтажа снова нужно три провала.
	runner.onCheck = func([]string) error { return errors.New("gone") }
	require.Error(t, m.HealthCheck(ctx, host))
	require.Error(t, m.HealthCheck(ctx, host))
	assert.Equal(t, domain.ChannelHealthy, m.Status(host))
	require.Error(t, m.HealthCheck(ctx, host))
	assert.Equal(t, domain.ChannelUnhealthy, m.Status(host))
}

func TestCloseIsIdempotent(t *testing.T) {
	runner := &fakeRunner{}
	m := NewManager(testLogger(), runner, testConfig(t))
	ctx := context.Background()

	// Закрытие неизвестного канала ничего не делает.
	m.Close(ctx, "node01.ring.nlnog.net")
	assert.Equal(t, 0, runner.count("exit"))

	require.NoError(t, m.Open(ctx, "node01.ring.nlnog.net"))
	m.Close(ctx, "node01.ring.nlnog.net")
	m.Close(ctx, "node01.ring.nlnog.net")

	assert.Equal(t, 1, runner.count("exit"))
	assert.Equal(t, domain.ChannelUnknown, m.Status("node01.ring.nlnog.net"))
}

func TestCloseStaleKeepsDesired(t *testing.T) {
	runner := &fakeRunner{}
	m := NewManager(testLogger(), runner, testConfig(t))
	ctx := context.Background()

	require.NoError(t, m.Open(ctx, "keep.ring.nlnog.net"))
	require.NoError(t, m.Open(ctx, "retired.ring.nlnog.net"))

	m.CloseStale(ctx, []string{"keep.ring.nlnog.net"})

	summary := m.StatusSummary()
	assert.Contains(t, summary, "keep.ring.nlnog.net")
	assert.NotContains(t, summary, "retired.ring.nlnog.net")
	assert.Equal(t, 1, runner.count("exit"))
}

func TestOpenMissingSkipsHealthy(t *testing.T) {
	runner := &fakeRunner{}
	m := NewManager(testLogger(), runner, testConfig(t))
	ctx := context.Background()

	require.NoError(t, m.Open(ctx, "node01.ring.nlnog.net"))
	m.OpenMissing(ctx, []string{"node01.ring.nlnog.net", "node02.ring.nlnog.net", "node03.ring.nlnog.net"})

	assert.Equal(t, 3, runner.count("open"))
	assert.Equal(t, domain.ChannelHealthy, m.Status("node02.ring.nlnog.net"))
	assert.Equal(t, domain.ChannelHealthy, m.Status("node03.ring.nlnog.net"))
}

func TestCheckAllReopensDropped(t *testing.T) {
	runner := &fakeRunner{}
	m := NewManager(testLogger(), runner, testConfig(t))
	ctx := context.Background()

	require.NoError(t, m.Open(ctx, "alive.ring.nlnog.net"))

	m.CheckAll(ctx, []string{"alive.ring.nlnog.net", "fresh.ring.nlnog.net"})

	// alive проверяется через -O check, fresh открывается заново.
	assert.Equal(t, 1, runner.count("check"))
	assert.Equal(t, 2, runner.count("open"))
	assert.Equal(t, domain.ChannelHealthy, m.Status("fresh.ring.nlnog.net"))
}
