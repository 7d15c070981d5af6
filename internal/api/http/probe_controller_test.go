package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ozzus/ring-exporter/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeProbeService struct {
	mu         sync.Mutex
	nodes      []domain.RingNode
	set        domain.ResultSet
	gotTarget  string
	gotFilters domain.Filters
	gotLimit   int
}

func (f *fakeProbeService) ResolveNodes(filters domain.Filters, limit int) []domain.RingNode {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotFilters = filters
	f.gotLimit = limit
	return f.nodes
}

func (f *fakeProbeService) Probe(_ context.Context, target string, _ []domain.RingNode) domain.ResultSet {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotTarget = target

	set := f.set
	set.Target = target
	return set
}

func testNode(hostname string) domain.RingNode {
	return domain.RingNode{
		Hostname:    hostname,
		ASN:         "64496",
		City:        "Amsterdam",
		CountryCode: "NL",
		Continent:   "Europe",
		Company:     "ExampleNet",
		Status:      domain.ChannelHealthy,
	}
}

func okResult(hostname, target string) domain.ProbeResult {
	return domain.ProbeResult{
		Node:        testNode(hostname),
		Target:      target,
		Status:      domain.ProbeOK,
		RTT:         &domain.RTTStats{Min: 1.2, Avg: 2.3, Max: 4.5, Mdev: 0.6},
		PacketsSent: 10,
		PacketsRecv: 10,
	}
}

func probeRouter(svc *fakeProbeService) *gin.Engine {
	router := gin.New()
	router.GET("/probe", NewProbeController(svc).Probe)
	return router
}

func performRequest(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestProbeMissingTarget(t *testing.T) {
	router := probeRouter(&fakeProbeService{})

	w := performRequest(router, "/probe")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Missing target parameter")
}

func TestProbeInvalidLimit(t *testing.T) {
	router := probeRouter(&fakeProbeService{})

	w := performRequest(router, "/probe?target=192.0.2.10&limit=ten")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid limit parameter")
}

func TestProbeNoHealthyNodes(t *testing.T) {
	router := probeRouter(&fakeProbeService{})

	w := performRequest(router, "/probe?target=192.0.2.10")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "No nodes with healthy SSH sessions available")

	w = performRequest(router, "/probe?target=192.0.2.10&format=json")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Contains(t, payload["error"], "No nodes with healthy SSH sessions")
}

func TestProbeStripsQueryTailFromTarget(t *testing.T) {
	svc := &fakeProbeService{
		nodes: []domain.RingNode{testNode("ams01.ring.nlnog.net")},
		set: domain.ResultSet{
			RequestID: "req-1",
			Results:   []domain.ProbeResult{okResult("ams01.ring.nlnog.net", "192.0.2.10")},
		},
	}
	router := probeRouter(svc)

	// '?x=1' приезжает урл-экранированным внутри значения target
	w := performRequest(router, "/probe?target=192.0.2.10%3Fx%3D1")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "192.0.2.10", svc.gotTarget)
}

func TestProbeParsesFiltersAndLimit(t *testing.T) {
	svc := &fakeProbeService{
		nodes: []domain.RingNode{testNode("ams01.ring.nlnog.net")},
		set: domain.ResultSet{
			Results: []domain.ProbeResult{okResult("ams01.ring.nlnog.net", "192.0.2.10")},
		},
	}
	router := probeRouter(svc)

	w := performRequest(router, "/probe?target=192.0.2.10&countrycode=NL,de&company=ExampleNet&limit=5")
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 5, svc.gotLimit)
	require.Contains(t, svc.gotFilters, "countrycode")
	assert.Equal(t, map[string]struct{}{"nl": {}, "de": {}}, svc.gotFilters["countrycode"])
	assert.Equal(t, map[string]struct{}{"examplenet": {}}, svc.gotFilters["company"])
	assert.NotContains(t, svc.gotFilters, "city")
}

func TestProbeExpositionFormat(t *testing.T) {
	timedOut := domain.ProbeResult{
		Node:   testNode("nyc01.ring.nlnog.net"),
		Target: "192.0.2.10",
		Status: domain.ProbeSSHTimeout,
		Error:  "ssh command timed out",
	}
	svc := &fakeProbeService{
		nodes: []domain.RingNode{testNode("ams01.ring.nlnog.net"), testNode("nyc01.ring.nlnog.net")},
		set: domain.ResultSet{
			Results: []domain.ProbeResult{okResult("ams01.ring.nlnog.net", "192.0.2.10"), timedOut},
		},
	}
	router := probeRouter(svc)

	w := performRequest(router, "/probe?target=192.0.2.10")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()

	// удачный узел: все четыре rtt-гейджа и success=1
	assert.Contains(t, body, `nlnog_ping_rtt_min_ms{`)
	assert.Contains(t, body, `node="ams01"`)
	assert.Contains(t, body, `status="ok"`)

	// узел с таймаутом: только success=0, rtt-серий нет
	assert.Contains(t, body, `status="ssh_timeout"`)
	assert.Equal(t, 1, strings.Count(body, "nlnog_ping_rtt_min_ms{"))
	assert.Equal(t, 2, strings.Count(body, "nlnog_ping_success{"))
}

func TestProbeJSONFormat(t *testing.T) {
	timedOut := domain.ProbeResult{
		Node:   testNode("nyc01.ring.nlnog.net"),
		Target: "192.0.2.10",
		Status: domain.ProbeSSHTimeout,
		Error:  "ssh command timed out",
	}
	svc := &fakeProbeService{
		nodes: []domain.RingNode{testNode("ams01.ring.nlnog.net"), testNode("nyc01.ring.nlnog.net")},
		set: domain.ResultSet{
			RequestID: "req-42",
			Results:   []domain.ProbeResult{okResult("ams01.ring.nlnog.net", "192.0.2.10"), timedOut},
		},
	}
	router := probeRouter(svc)

	w := performRequest(router, "/probe?target=192.0.2.10&format=json")
	require.Equal(t, http.StatusOK, w.Code)

	var payload struct {
		RequestID string            `json:"request_id"`
		Results   []probeResultJSON `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))

	assert.Equal(t, "req-42", payload.RequestID)
	require.Len(t, payload.Results, 2)

	first := payload.Results[0]
	assert.Equal(t, "ams01", first.Node)
	assert.Equal(t, "ok", first.Status)
	require.NotNil(t, first.RTTMin)
	assert.Equal(t, 1.2, *first.RTTMin)
	assert.Equal(t, 0.6, *first.RTTMdev)

	second := payload.Results[1]
	assert.Equal(t, "nyc01", second.Node)
	assert.Equal(t, "ssh_timeout", second.Status)
	assert.Nil(t, second.RTTMin)
}

func TestMetricsEndpointServesExporterSeries(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ring_exporter_probe_requests_total",
		Help: "Probe requests accepted by the HTTP API.",
	})
	registry.MustRegister(counter)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := NewRouter(log,
		NewProbeController(&fakeProbeService{}),
		NewStatusController(&fakeStatusService{}),
		registry,
	)

	w := performRequest(router, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ring_exporter_probe_requests_total 0")
}
