package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ozzus/ring-exporter/internal/domain"
	"ozzus/ring-exporter/internal/probe"
)

// ProbeService is the application surface the probe endpoint drives.
type ProbeService interface {
	ResolveNodes(filters domain.Filters, limit int) []domain.RingNode
	Probe(ctx context.Context, target string, nodes []domain.RingNode) domain.ResultSet
}

type ProbeController struct {
	service ProbeService
}

func NewProbeController(service ProbeService) *ProbeController {
	return &ProbeController{service: service}
}

// probeLabels задаёт порядок и состав меток у гейджей замера.
var probeLabels = []string{"node", "target", "asn", "city", "countrycode", "status", "continent", "company"}

type probeResultJSON struct {
	Node        string   `json:"node"`
	Target      string   `json:"target"`
	ASN         string   `json:"asn"`
	City        string   `json:"city"`
	CountryCode string   `json:"countrycode"`
	Continent   string   `json:"continent"`
	Company     string   `json:"company"`
	Status      string   `json:"status"`
	RTTMin      *float64 `json:"rtt_min"`
	RTTAvg      *float64 `json:"rtt_avg"`
	RTTMax      *float64 `json:"rtt_max"`
	RTTMdev     *float64 `json:"rtt_mdev"`
}

// Probe пингует target со всех подходящих узлов и отдаёт метрики в
// prometheus-экспозиции, либо плоский JSON при format=json.
func (p *ProbeController) Probe(c *gin.Context) {
	target := c.Query("target")
	if target == "" {
		c.String(http.StatusBadRequest, "Missing target parameter")
		return
	}

	// срезаем хвост после '?': цель часто копируют вместе с query-строкой
	target = strings.TrimSpace(strings.SplitN(target, "?", 2)[0])

	if !probe.ValidTarget(c.Request.Context(), target) {
		c.String(http.StatusBadRequest, "Invalid target IP or hostname")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.String(http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		limit = parsed
	}

	filters := parseFilters(c)
	outputFormat := c.Query("format")

	nodes := p.service.ResolveNodes(filters, limit)
	if len(nodes) == 0 {
		if outputFormat == "json" {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "No nodes with healthy SSH sessions available.",
			})
			return
		}
		c.String(http.StatusServiceUnavailable,
			"No nodes with healthy SSH sessions available. "+
				"The exporter may still be establishing connections.\n")
		return
	}

	set := p.service.Probe(c.Request.Context(), target, nodes)

	if outputFormat == "json" {
		p.renderJSON(c, set)
		return
	}
	p.renderExposition(c, set)
}

// parseFilters reads one comma-separated query parameter per filter
// dimension. Values are matched case-insensitively.
func parseFilters(c *gin.Context) domain.Filters {
	filters := domain.Filters{}
	for _, field := range domain.FilterFields {
		raw := c.Query(field)
		if raw == "" {
			continue
		}

		values := map[string]struct{}{}
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(strings.ToLower(v)); v != "" {
				values[v] = struct{}{}
			}
		}
		if len(values) > 0 {
			filters[field] = values
		}
	}
	return filters
}

func (p *ProbeController) renderJSON(c *gin.Context, set domain.ResultSet) {
	results := make([]probeResultJSON, 0, len(set.Results))
	for _, r := range set.Results {
		row := probeResultJSON{
			Node:        r.Node.ShortName(),
			Target:      r.Target,
			ASN:         r.Node.ASN,
			City:        r.Node.City,
			CountryCode: r.Node.CountryCode,
			Continent:   r.Node.Continent,
			Company:     r.Node.Company,
			Status:      string(r.Status),
		}
		if r.RTT != nil {
			row.RTTMin = &r.RTT.Min
			row.RTTAvg = &r.RTT.Avg
			row.RTTMax = &r.RTT.Max
			row.RTTMdev = &r.RTT.Mdev
		}
		results = append(results, row)
	}

	c.JSON(http.StatusOK, gin.H{
		"request_id": set.RequestID,
		"results":    results,
	})
}

// renderExposition строит одноразовый реестр на запрос: серии замера
// живут ровно столько, сколько ответ, и не копятся между запросами.
func (p *ProbeController) renderExposition(c *gin.Context, set domain.ResultSet) {
	registry := prometheus.NewRegistry()

	rttMin := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nlnog_ping_rtt_min_ms", Help: "Min RTT in ms",
	}, probeLabels)
	rttAvg := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nlnog_ping_rtt_avg_ms", Help: "Avg RTT in ms",
	}, probeLabels)
	rttMax := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nlnog_ping_rtt_max_ms", Help: "Max RTT in ms",
	}, probeLabels)
	rttMdev := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nlnog_ping_rtt_mdev_ms", Help: "Mdev RTT in ms",
	}, probeLabels)
	success := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nlnog_ping_success", Help: "Ping success (1) or failure (0)",
	}, probeLabels)

	registry.MustRegister(rttMin, rttAvg, rttMax, rttMdev, success)

	for _, r := range set.Results {
		labels := prometheus.Labels{
			"node":        r.Node.ShortName(),
			"target":      r.Target,
			"asn":         r.Node.ASN,
			"city":        r.Node.City,
			"countrycode": r.Node.CountryCode,
			"status":      string(r.Status),
			"continent":   r.Node.Continent,
			"company":     r.Node.Company,
		}

		if r.OK() {
			success.With(labels).Set(1)
		} else {
			success.With(labels).Set(0)
		}
		if r.RTT != nil {
			rttMin.With(labels).Set(r.RTT.Min)
			rttAvg.With(labels).Set(r.RTT.Avg)
			rttMax.With(labels).Set(r.RTT.Max)
			rttMdev.With(labels).Set(r.RTT.Mdev)
		}
	}

	promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).ServeHTTP(c.Writer, c.Request)
}
