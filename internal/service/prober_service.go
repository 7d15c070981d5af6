package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"ozzus/ring-exporter/internal/config"
	"ozzus/ring-exporter/internal/domain"
	"ozzus/ring-exporter/internal/geo"
	"ozzus/ring-exporter/internal/metrics"
	"ozzus/ring-exporter/internal/registry"
	"ozzus/ring-exporter/internal/repository"
	"ozzus/ring-exporter/internal/ringapi"
)

// DirectoryClient reads the public node directory.
type DirectoryClient interface {
	ActiveNodes(ctx context.Context) ([]ringapi.Node, error)
	Participants(ctx context.Context) (map[int]string, error)
}

// SessionManager is the slice of the session layer the reconciler drives.
type SessionManager interface {
	RecoverSockets(ctx context.Context)
	OpenMissing(ctx context.Context, hostnames []string)
	CheckAll(ctx context.Context, hostnames []string)
	CloseStale(ctx context.Context, desired []string)
	StatusSummary() map[string]domain.ChannelStatus
}

// Prober runs one measurement across a set of nodes.
type Prober interface {
	Probe(ctx context.Context, target string, nodes []domain.RingNode) domain.ResultSet
}

// ProberService владеет жизненным циклом экспортера: восстановление после
// рестарта, периодическая сверка каталога узлов с открытыми SSH-сессиями
// и выполнение запросов на замер.
type ProberService struct {
	log       *slog.Logger
	cfg       *config.Config
	directory DirectoryClient
	sessions  SessionManager
	registry  *registry.Registry
	snapshots repository.SnapshotRepository
	prober    Prober
	results   repository.ResultRepository
	metrics   *metrics.Metrics
}

func NewProberService(
	log *slog.Logger,
	cfg *config.Config,
	directory DirectoryClient,
	sessions SessionManager,
	reg *registry.Registry,
	snapshots repository.SnapshotRepository,
	prober Prober,
	results repository.ResultRepository,
	m *metrics.Metrics,
) *ProberService {
	return &ProberService{
		log:       log,
		cfg:       cfg,
		directory: directory,
		sessions:  sessions,
		registry:  reg,
		snapshots: snapshots,
		prober:    prober,
		results:   results,
		metrics:   m,
	}
}

// Start восстанавливает состояние и крутит цикл сверки до отмены контекста.
func (s *ProberService) Start(ctx context.Context) error {
	s.restore(ctx)

	if err := s.Reconcile(ctx); err != nil {
		s.log.Error("initial directory sync failed", "error", err)
	}

	ticker := time.NewTicker(s.cfg.GetReconcileInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Reconcile(ctx); err != nil {
				s.log.Error("directory sync failed", "error", err)
			}
		case <-ctx.Done():
			s.log.Info("reconcile loop stopped")
			return nil
		}
	}
}

// restore seeds the registry from the last snapshot and re-attaches to
// control sockets that survived the restart, so probes can be served before
// the first directory sync completes.
func (s *ProberService) restore(ctx context.Context) {
	snap, err := s.snapshots.Load()
	if err != nil {
		s.log.Warn("snapshot load failed", "error", err)
	}
	if snap != nil && len(snap.Nodes) > 0 {
		s.registry.ReplaceAll(snap.Nodes)
		s.log.Info("registry restored from snapshot",
			"nodes", len(snap.Nodes),
			"saved_at", snap.SavedAt,
		)
	}

	s.sessions.RecoverSockets(ctx)
	s.sessions.OpenMissing(ctx, s.registry.Hostnames())
}

// Reconcile выполняет один цикл: свежий список узлов из каталога, затем
// обслуживание сессий. Канальное хозяйство обслуживается даже когда API
// каталога недоступен, тогда живём на прошлом списке.
func (s *ProberService) Reconcile(ctx context.Context) error {
	s.metrics.ReconcileRuns.Inc()

	syncErr := s.syncDirectory(ctx)
	if syncErr != nil {
		s.metrics.ReconcileFailures.Inc()
	}

	hostnames := s.registry.Hostnames()
	s.sessions.CloseStale(ctx, hostnames)
	s.sessions.CheckAll(ctx, hostnames)
	s.updateSessionGauges()

	return syncErr
}

func (s *ProberService) syncDirectory(ctx context.Context) error {
	participants, err := s.directory.Participants(ctx)
	if err != nil {
		// без списка участников живём с компанией "Unknown"
		s.log.Warn("participants fetch failed", "error", err)
		participants = nil
	}

	apiNodes, err := s.directory.ActiveNodes(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch ring nodes: %w", err)
	}

	nodes := buildNodes(apiNodes, participants)
	if len(nodes) == 0 {
		// Пустой каталог почти наверняка значит сломанный API; не даём ему
		// снести реестр и закрыть все сессии разом.
		return fmt.Errorf("ring API returned no active nodes")
	}

	s.registry.ReplaceAll(nodes)
	s.log.Info("node registry synced", "nodes", len(nodes))

	s.saveSnapshot()
	return nil
}

func buildNodes(apiNodes []ringapi.Node, participants map[int]string) []domain.RingNode {
	nodes := make([]domain.RingNode, 0, len(apiNodes))
	for _, n := range apiNodes {
		if !n.Alive() {
			continue
		}

		cc := strings.ToUpper(n.CountryCode)
		company := participants[n.Participant]
		if company == "" {
			company = "Unknown"
		}

		nodes = append(nodes, domain.RingNode{
			Hostname:    n.Hostname,
			ASN:         strconv.Itoa(n.ASN),
			City:        n.City,
			CountryCode: cc,
			Continent:   geo.ContinentFor(cc),
			Company:     company,
		})
	}
	return nodes
}

func (s *ProberService) saveSnapshot() {
	snap := domain.Snapshot{
		SavedAt: time.Now().UTC(),
		Nodes:   s.registry.Nodes(),
	}
	if err := s.snapshots.Save(snap); err != nil {
		// потеря снапшота не мешает работе, пострадает только следующий рестарт
		s.log.Warn("failed to persist node snapshot", "error", err)
	}
}

func (s *ProberService) updateSessionGauges() {
	statuses := s.sessions.StatusSummary()
	healthy := 0
	for _, status := range statuses {
		if status == domain.ChannelHealthy {
			healthy++
		}
	}
	s.metrics.SessionsTotal.Set(float64(len(statuses)))
	s.metrics.SessionsHealthy.Set(float64(healthy))
}

// ResolveNodes picks the healthy nodes a probe request should run on.
func (s *ProberService) ResolveNodes(filters domain.Filters, limit int) []domain.RingNode {
	return s.registry.Resolve(filters, limit)
}

// Probe измеряет target со всех переданных узлов и отдаёт результаты в
// порядке узлов. Публикация в Kafka асинхронная и best-effort: ответ
// HTTP не должен зависеть от брокера.
func (s *ProberService) Probe(ctx context.Context, target string, nodes []domain.RingNode) domain.ResultSet {
	s.metrics.ProbeRequests.Inc()

	set := s.prober.Probe(ctx, target, nodes)
	set.RequestID = uuid.NewString()

	for _, result := range set.Results {
		s.metrics.ProbeResults.WithLabelValues(string(result.Status)).Inc()
	}

	go s.publishResults(set)

	return set
}

func (s *ProberService) publishResults(set domain.ResultSet) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.results.PublishResults(ctx, set); err != nil {
		s.log.Error("failed to publish probe results",
			"request_id", set.RequestID,
			"target", set.Target,
			"error", err,
		)
	}
}

// Nodes returns the current registry contents with channel statuses.
func (s *ProberService) Nodes() []domain.RingNode {
	return s.registry.Nodes()
}

// SessionsOverview summarises tracked sessions for the /sessions endpoint.
type SessionsOverview struct {
	Summary map[string]int    `json:"summary"`
	Nodes   map[string]string `json:"nodes"`
}

func (s *ProberService) Sessions() SessionsOverview {
	statuses := s.sessions.StatusSummary()

	summary := map[string]int{"total": len(statuses)}
	nodes := make(map[string]string, len(statuses))
	for hostname, status := range statuses {
		nodes[hostname] = string(status)
		summary[string(status)]++
	}

	return SessionsOverview{Summary: summary, Nodes: nodes}
}

// Health reports readiness: узлы в реестре и хотя бы одна живая сессия.
func (s *ProberService) Health() domain.HealthResponse {
	statuses := s.sessions.StatusSummary()
	healthy := 0
	for _, status := range statuses {
		if status == domain.ChannelHealthy {
			healthy++
		}
	}

	response := domain.HealthResponse{
		Status:          domain.HealthStatusUnhealthy,
		Timestamp:       time.Now().UTC(),
		NodeCacheSize:   s.registry.Len(),
		SessionsTotal:   len(statuses),
		SessionsHealthy: healthy,
	}
	if response.NodeCacheSize > 0 && healthy > 0 {
		response.Status = domain.HealthStatusHealthy
	}
	return response
}

// FilterOptions lists the distinct values of every filter dimension over
// healthy nodes, plus display names for country codes.
type FilterOptions struct {
	Options      map[string][]string
	CountryNames map[string]string
}

func (s *ProberService) FilterOptions() FilterOptions {
	options := s.registry.DistinctValues()

	names := make(map[string]string, len(options[domain.FilterCountryCode]))
	for _, cc := range options[domain.FilterCountryCode] {
		names[cc] = geo.CountryName(cc)
	}

	return FilterOptions{Options: options, CountryNames: names}
}
