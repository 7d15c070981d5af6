package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ozzus/ring-exporter/internal/domain"
)

// controlDir derives the directory holding control sockets from the
// configured template.
func (m *Manager) controlDir() string {
	return filepath.Dir(m.cfg.ControlPath("x"))
}

// socketPrefix is the part of the socket file name before the first
// %-token, e.g. "nlnog-" for "nlnog-%r@%h:%p".
func (m *Manager) socketPrefix() string {
	base := filepath.Base(m.cfg.SSH.ControlPathTemplate)
	if i := strings.IndexByte(base, '%'); i >= 0 {
		return base[:i]
	}
	return base
}

// parseSocketHost extracts the hostname from a control socket file name of
// the form "<prefix><user>@<hostname>:<port>".
func parseSocketHost(name, prefix string) (string, bool) {
	remainder := strings.TrimPrefix(name, prefix)
	at := strings.IndexByte(remainder, '@')
	colon := strings.LastIndexByte(remainder, ':')
	if at < 0 || colon <= at+1 {
		return "", false
	}
	return remainder[at+1 : colon], true
}

// RecoverSockets scans the control socket directory left over from a
// previous run. Sockets with a live master behind them are adopted as
// healthy channels, dead ones are removed from disk.
func (m *Manager) RecoverSockets(ctx context.Context) {
	dir := m.controlDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			m.log.Info("control socket directory does not exist", "dir", dir)
			return
		}
		m.log.Warn("control socket scan failed", "dir", dir, "error", err)
		return
	}

	prefix := m.socketPrefix()
	recovered, removed := 0, 0

	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}

		hostname, ok := parseSocketHost(entry.Name(), prefix)
		if !ok {
			m.log.Debug("could not parse hostname from socket file", "file", entry.Name())
			continue
		}

		socketPath := filepath.Join(dir, entry.Name())

		cctx, cancel := context.WithTimeout(ctx, m.cfg.GetConnectTimeout())
		checkErr := m.runner.Run(cctx, "ssh", m.controlArgs("check", socketPath, hostname)...)
		cancel()

		if checkErr == nil {
			m.mu.Lock()
			ch := m.ensureLocked(hostname)
			ch.status = domain.ChannelHealthy
			ch.failures = 0
			ch.lastCheck = time.Now()
			m.mu.Unlock()
			m.publish(hostname, domain.ChannelHealthy)
			m.log.Info("recovered live SSH session from socket", "host", hostname)
			recovered++
			continue
		}

		if rmErr := os.Remove(socketPath); rmErr != nil && !os.IsNotExist(rmErr) {
			m.log.Warn("stale socket removal failed", "file", socketPath, "error", rmErr)
			continue
		}
		removed++
	}

	m.log.Info("socket cleanup finished", "recovered", recovered, "removed", removed)
}
