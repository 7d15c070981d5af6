// Package session maintains persistent multiplexed SSH master connections
// to ring nodes, one per hostname, reused by every probe.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/semaphore"

	"ozzus/ring-exporter/internal/config"
	"ozzus/ring-exporter/internal/domain"
	"ozzus/ring-exporter/internal/execx"
)

// ErrRetryCooldown is returned by Open when the channel was recently demoted
// and must not be reopened yet.
var ErrRetryCooldown = errors.New("channel in retry cooldown")

// StatusCallback получает каждое изменение статуса канала.
type StatusCallback func(hostname string, status domain.ChannelStatus)

// channelState tracks one SSH master connection.
type channelState struct {
	status    domain.ChannelStatus
	failures  int       // consecutive health check failures
	lastCheck time.Time // when the channel was last verified
	downSince time.Time // when the channel was demoted, gates reopen
	opening   chan struct{}
	openErr   error
}

// Manager owns the channel table. All mutations of channel state happen
// here; consumers observe it through Status, StatusSummary and the
// status callback.
type Manager struct {
	log    *slog.Logger
	runner execx.Runner
	cfg    *config.Config

	openSem *semaphore.Weighted

	mu       sync.RWMutex
	channels map[string]*channelState
	onStatus StatusCallback
}

func NewManager(log *slog.Logger, runner execx.Runner, cfg *config.Config) *Manager {
	opens := cfg.Pools.StartupOpens
	if opens <= 0 {
		opens = 1
	}

	return &Manager{
		log:      log,
		runner:   runner,
		cfg:      cfg,
		openSem:  semaphore.NewWeighted(int64(opens)),
		channels: make(map[string]*channelState),
	}
}

// SetStatusCallback registers the listener notified on every status change.
func (m *Manager) SetStatusCallback(cb StatusCallback) {
	m.mu.Lock()
	m.onStatus = cb
	m.mu.Unlock()
}

// ControlPath returns the multiplexing socket path for a hostname.
func (m *Manager) ControlPath(hostname string) string {
	return m.cfg.ControlPath(hostname)
}

// Status is a non-blocking read of the current channel state.
func (m *Manager) Status(hostname string) domain.ChannelStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if ch, ok := m.channels[hostname]; ok {
		return ch.status
	}
	return domain.ChannelUnknown
}

// StatusSummary returns a copy of the full channel table status view.
func (m *Manager) StatusSummary() map[string]domain.ChannelStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]domain.ChannelStatus, len(m.channels))
	for hostname, ch := range m.channels {
		out[hostname] = ch.status
	}
	return out
}

// Open establishes the SSH master for hostname. Opening an already healthy
// channel is a no-op; concurrent opens for the same hostname coalesce into a
// single attempt. Demoted channels are refused with ErrRetryCooldown until
// the cooldown has elapsed.
func (m *Manager) Open(ctx context.Context, hostname string) error {
	m.mu.Lock()
	ch := m.ensureLocked(hostname)

	switch ch.status {
	case domain.ChannelHealthy:
		m.mu.Unlock()
		return nil

	case domain.ChannelConnecting:
		done := ch.opening
		m.mu.Unlock()
		if done == nil {
			return nil
		}
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		m.mu.RLock()
		err := ch.openErr
		m.mu.RUnlock()
		return err

	case domain.ChannelUnhealthy:
		if cooldown := m.cfg.GetRetryCooldown(); cooldown > 0 && time.Since(ch.downSince) < cooldown {
			m.mu.Unlock()
			return ErrRetryCooldown
		}
	}

	done := make(chan struct{})
	ch.status = domain.ChannelConnecting
	ch.opening = done
	m.mu.Unlock()
	m.publish(hostname, domain.ChannelConnecting)

	err := m.openMaster(ctx, hostname)

	m.mu.Lock()
	ch.opening = nil
	ch.openErr = err
	if err != nil {
		ch.status = domain.ChannelUnhealthy
		ch.downSince = time.Now()
	} else {
		ch.status = domain.ChannelHealthy
		ch.failures = 0
		ch.lastCheck = time.Now()
	}
	status := ch.status
	m.mu.Unlock()

	close(done)
	m.publish(hostname, status)
	return err
}

// HealthCheck runs `ssh -O check` through the existing master. Success marks
// the channel healthy and resets the failure counter; failures accumulate and
// past the threshold the channel is demoted and force-closed.
func (m *Manager) HealthCheck(ctx context.Context, hostname string) error {
	cctx, cancel := context.WithTimeout(ctx, m.cfg.GetCommandTimeout())
	defer cancel()

	err := m.runner.Run(cctx, "ssh", m.controlArgs("check", m.ControlPath(hostname), hostname)...)

	now := time.Now()
	m.mu.Lock()
	ch := m.ensureLocked(hostname)
	ch.lastCheck = now

	if err == nil {
		changed := ch.status != domain.ChannelHealthy
		ch.status = domain.ChannelHealthy
		ch.failures = 0
		m.mu.Unlock()
		if changed {
			m.publish(hostname, domain.ChannelHealthy)
		}
		return nil
	}

	ch.failures++
	failures := ch.failures
	demote := failures >= m.failThreshold()
	if demote {
		ch.status = domain.ChannelUnhealthy
		ch.downSince = now
		ch.failures = 0
	}
	m.mu.Unlock()

	if demote {
		m.log.Warn("SSH health check failed, closing channel",
			"host", hostname, "failures", failures, "error", err)
		m.teardown(ctx, hostname)
		m.publish(hostname, domain.ChannelUnhealthy)
	} else {
		m.log.Debug("SSH health check failed",
			"host", hostname, "failures", failures, "error", err)
	}

	return fmt.Errorf("health check %s: %w", hostname, err)
}

// Close tears down the master and its control socket, and forgets the
// channel. Closing an untracked channel is a no-op.
func (m *Manager) Close(ctx context.Context, hostname string) {
	m.mu.Lock()
	if _, ok := m.channels[hostname]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.channels, hostname)
	m.mu.Unlock()

	m.teardown(ctx, hostname)
	m.publish(hostname, domain.ChannelClosed)
}

// OpenMissing opens channels for every hostname that does not already have a
// healthy or in-flight one. The semaphore inside Open bounds how many ssh
// processes actually spawn at once.
func (m *Manager) OpenMissing(ctx context.Context, hostnames []string) {
	var missing []string
	m.mu.RLock()
	for _, hostname := range hostnames {
		ch, ok := m.channels[hostname]
		if !ok || (ch.status != domain.ChannelHealthy && ch.status != domain.ChannelConnecting) {
			missing = append(missing, hostname)
		}
	}
	m.mu.RUnlock()

	if len(missing) == 0 {
		return
	}

	sort.Strings(missing)
	m.log.Info("opening SSH sessions", "count", len(missing))

	var wg conc.WaitGroup
	for _, hostname := range missing {
		hostname := hostname
		wg.Go(func() {
			err := m.Open(ctx, hostname)
			switch {
			case errors.Is(err, ErrRetryCooldown):
				m.log.Debug("skipping SSH open, channel in cooldown", "host", hostname)
			case err != nil:
				m.log.Warn("SSH session open failed", "host", hostname, "error", err)
			}
		})
	}
	wg.Wait()
}

// CheckAll verifies every desired channel and reopens the ones that dropped.
func (m *Manager) CheckAll(ctx context.Context, hostnames []string) {
	workers := m.cfg.Pools.ReconcileChecks
	if workers <= 0 {
		workers = 1
	}

	p := pool.New().WithMaxGoroutines(workers)
	for _, hostname := range hostnames {
		hostname := hostname
		p.Go(func() {
			switch m.Status(hostname) {
			case domain.ChannelHealthy:
				_ = m.HealthCheck(ctx, hostname)
			case domain.ChannelConnecting:
				// попытка уже в полёте
			default:
				err := m.Open(ctx, hostname)
				if err != nil && !errors.Is(err, ErrRetryCooldown) {
					m.log.Warn("SSH session reopen failed", "host", hostname, "error", err)
				}
			}
		})
	}
	p.Wait()
}

// CloseStale closes every tracked channel whose hostname is not in desired.
func (m *Manager) CloseStale(ctx context.Context, desired []string) {
	want := make(map[string]struct{}, len(desired))
	for _, hostname := range desired {
		want[hostname] = struct{}{}
	}

	m.mu.RLock()
	var stale []string
	for hostname := range m.channels {
		if _, ok := want[hostname]; !ok {
			stale = append(stale, hostname)
		}
	}
	m.mu.RUnlock()

	sort.Strings(stale)
	for _, hostname := range stale {
		m.log.Info("closing retired SSH session", "host", hostname)
		m.Close(ctx, hostname)
	}
}

// CloseAll tears down every tracked channel. Used on shutdown.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.RLock()
	hosts := make([]string, 0, len(m.channels))
	for hostname := range m.channels {
		hosts = append(hosts, hostname)
	}
	m.mu.RUnlock()

	sort.Strings(hosts)
	for _, hostname := range hosts {
		m.Close(ctx, hostname)
	}
}

func (m *Manager) openMaster(ctx context.Context, hostname string) error {
	if err := m.openSem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.openSem.Release(1)

	controlPath := m.ControlPath(hostname)
	if err := os.MkdirAll(filepath.Dir(controlPath), 0o700); err != nil {
		return fmt.Errorf("create control socket dir: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, m.cfg.GetCommandTimeout())
	defer cancel()

	args := []string{"-MNf"}
	args = append(args, m.commonOpts()...)
	args = append(args,
		"-o", "ControlMaster=auto",
		"-o", "ControlPath="+controlPath,
		"-o", "ControlPersist=yes",
	)
	if m.cfg.SSH.KeyPath != "" {
		args = append(args, "-i", m.cfg.SSH.KeyPath)
	}
	args = append(args, m.cfg.SSH.Username+"@"+hostname)

	m.log.Debug("starting persistent SSH session", "host", hostname, "user", m.cfg.SSH.Username)
	if err := m.runner.Run(cctx, "ssh", args...); err != nil {
		return fmt.Errorf("start ssh master for %s: %w", hostname, err)
	}
	return nil
}

// teardown stops the master and removes its control socket, best effort.
func (m *Manager) teardown(ctx context.Context, hostname string) {
	cctx, cancel := context.WithTimeout(ctx, m.cfg.GetCommandTimeout())
	defer cancel()

	controlPath := m.ControlPath(hostname)
	if err := m.runner.Run(cctx, "ssh", m.controlArgs("exit", controlPath, hostname)...); err != nil {
		m.log.Debug("SSH master exit failed", "host", hostname, "error", err)
	}

	if err := os.Remove(controlPath); err != nil && !os.IsNotExist(err) {
		m.log.Debug("control socket removal failed", "host", hostname, "error", err)
	}
}

// commonOpts apply to every ssh invocation (master, check, exit).
func (m *Manager) commonOpts() []string {
	return []string{
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=No",
		"-o", fmt.Sprintf("ConnectTimeout=%d", int(m.cfg.GetConnectTimeout().Seconds())),
	}
}

func (m *Manager) controlArgs(op, controlPath, hostname string) []string {
	args := []string{"-O", op}
	args = append(args, m.commonOpts()...)
	args = append(args, "-o", "ControlPath="+controlPath)
	args = append(args, m.cfg.SSH.Username+"@"+hostname)
	return args
}

func (m *Manager) failThreshold() int {
	if m.cfg.Reconcile.FailThreshold > 0 {
		return m.cfg.Reconcile.FailThreshold
	}
	return 1
}

// ensureLocked returns the channel entry for hostname, creating it in the
// Unknown state. Caller holds m.mu.
func (m *Manager) ensureLocked(hostname string) *channelState {
	ch, ok := m.channels[hostname]
	if !ok {
		ch = &channelState{status: domain.ChannelUnknown}
		m.channels[hostname] = ch
	}
	return ch
}

func (m *Manager) publish(hostname string, status domain.ChannelStatus) {
	m.mu.RLock()
	cb := m.onStatus
	m.mu.RUnlock()

	if cb != nil {
		cb(hostname, status)
	}
}
