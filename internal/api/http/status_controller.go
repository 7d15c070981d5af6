package http

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"ozzus/ring-exporter/internal/domain"
	"ozzus/ring-exporter/internal/geo"
	"ozzus/ring-exporter/internal/service"
)

// StatusService exposes the read-only state views behind the service
// endpoints.
type StatusService interface {
	Health() domain.HealthResponse
	Sessions() service.SessionsOverview
	Nodes() []domain.RingNode
	FilterOptions() service.FilterOptions
}

type StatusController struct {
	service StatusService
}

func NewStatusController(service StatusService) *StatusController {
	return &StatusController{service: service}
}

// Health handler для readiness-проверки экспортера
func (s *StatusController) Health(c *gin.Context) {
	response := s.service.Health()

	code := http.StatusOK
	if response.Status != domain.HealthStatusHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, response)
}

// Sessions handler отдаёт сводку и карту статусов SSH-сессий
func (s *StatusController) Sessions(c *gin.Context) {
	c.JSON(http.StatusOK, s.service.Sessions())
}

// порядок групп в /debug: сначала рабочие, потом переходные и мёртвые
var debugStatusOrder = map[domain.ChannelStatus]int{
	domain.ChannelHealthy:    0,
	domain.ChannelConnecting: 1,
	domain.ChannelUnhealthy:  2,
	domain.ChannelClosed:     3,
	domain.ChannelUnknown:    4,
}

// Debug handler печатает реестр узлов, сгруппированный по статусу канала.
func (s *StatusController) Debug(c *gin.Context) {
	grouped := map[domain.ChannelStatus][]domain.RingNode{}
	for _, node := range s.service.Nodes() {
		grouped[node.Status] = append(grouped[node.Status], node)
	}

	statuses := make([]domain.ChannelStatus, 0, len(grouped))
	for status := range grouped {
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool {
		oi, oj := debugStatusOrder[statuses[i]], debugStatusOrder[statuses[j]]
		if oi != oj {
			return oi < oj
		}
		return statuses[i] < statuses[j]
	})

	var lines []string
	for _, status := range statuses {
		nodes := grouped[status]
		sort.Slice(nodes, func(i, j int) bool { return nodes[i].Hostname < nodes[j].Hostname })

		lines = append(lines, fmt.Sprintf("=== %s (%d) ===", status, len(nodes)))
		for _, node := range nodes {
			lines = append(lines, fmt.Sprintf("%-30s [%s, %s, %s, ASN %s, %s]",
				node.ShortName(),
				node.Company,
				node.City,
				geo.CountryName(node.CountryCode),
				node.ASN,
				node.Continent,
			))
		}
		lines = append(lines, "")
	}

	c.String(http.StatusOK, strings.Join(lines, "\n"))
}

// FilterOptions handler перечисляет доступные значения каждого фильтра
// по узлам со здоровыми сессиями.
func (s *StatusController) FilterOptions(c *gin.Context) {
	opts := s.service.FilterOptions()

	response := gin.H{"countryNames": opts.CountryNames}
	for field, values := range opts.Options {
		response[field] = values
	}
	c.JSON(http.StatusOK, response)
}

// Index handler отдаёт страницу-подсказку в духе экспортеров.
func (s *StatusController) Index(c *gin.Context) {
	page := fmt.Sprintf(`<html>
<head><title>NLNOG RING Latency Exporter</title></head>
<body>
<h1>NLNOG RING Latency Exporter</h1>
<p>Probes latency to a target from NLNOG RING nodes over persistent SSH channels.</p>
<ul>
<li><a href="/probe?target=example.org">/probe?target=example.org</a> &mdash; run a measurement</li>
<li><a href="/health">/health</a></li>
<li><a href="/sessions">/sessions</a></li>
<li><a href="/debug">/debug</a></li>
<li><a href="/api/filter-options">/api/filter-options</a></li>
<li><a href="/metrics">/metrics</a> &mdash; exporter self-metrics</li>
</ul>
<p>Probe parameters: %s &mdash; plus limit=N and format=json.</p>
</body>
</html>`, strings.Join(domain.FilterFields, ", "))

	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}
