package models

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status   string `json:"status"` // "healthy" or "busy"
	Uptime   string `json:"uptime"`
	Driver   string `json:"driver"`
	InFlight int    `json:"in_flight"`
	Capacity int    `json:"capacity"`
	Version  string `json:"version"`
}
