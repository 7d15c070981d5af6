package domain

import "time"

type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthResponse отражает готовность экспортера обслуживать /probe:
// статус healthy, когда реестр не пуст и есть хотя бы одна живая сессия.
type HealthResponse struct {
	Status          HealthStatus `json:"status"`
	Timestamp       time.Time    `json:"timestamp"`
	NodeCacheSize   int          `json:"node_cache_size"`
	SessionsTotal   int          `json:"sessions_total"`
	SessionsHealthy int          `json:"sessions_healthy"`
}
