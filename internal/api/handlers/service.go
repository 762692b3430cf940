package handlers

import (
	"log/slog"
	"net/http"

	"github.com/matiasleandrokruk/scalechat/internal/domain/chat"
)

// SessionCounter reports live and lifetime streaming sessions.
// *session.Manager satisfies it.
type SessionCounter interface {
	Count() int
	Total() int64
}

// ServiceInfo identifies the running instance.
type ServiceInfo struct {
	Name        string
	Version     string
	Environment string
	PodName     string
	Namespace   string
}

// ServiceHandler serves the banner, health, metrics and stats endpoints.
type ServiceHandler struct {
	chat     ChatService
	sessions SessionCounter
	info     ServiceInfo
	logger   *slog.Logger
}

// NewServiceHandler creates a ServiceHandler.
func NewServiceHandler(chatSvc ChatService, sessions SessionCounter, info ServiceInfo, logger *slog.Logger) *ServiceHandler {
	return &ServiceHandler{chat: chatSvc, sessions: sessions, info: info, logger: logger}
}

// Root handles GET /.
func (h *ServiceHandler) Root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service":   h.info.Name,
		"status":    "healthy",
		"timestamp": now(),
		"version":   h.info.Version,
	})
}

type healthResponse struct {
	Status    string     `json:"status"`
	State     chat.State `json:"state"`
	Degraded  bool       `json:"degraded"`
	Detail    string     `json:"detail,omitempty"`
	Timestamp string     `json:"timestamp"`
}

// Health handles GET /health: 200 while the orchestrator can answer, 503
// otherwise. A degraded orchestrator is healthy and says so in the body.
func (h *ServiceHandler) Health(w http.ResponseWriter, r *http.Request) {
	healthy := h.chat.HealthCheck(r.Context())
	st := h.chat.Status()

	resp := healthResponse{
		Status:    "healthy",
		State:     st.State,
		Degraded:  st.State == chat.StateDegraded,
		Detail:    st.DegradedReason,
		Timestamp: now(),
	}
	if !healthy {
		resp.Status = "unhealthy"
		if resp.Detail == "" {
			resp.Detail = "LLM service unhealthy"
		}
		requestLogger(r, h.logger).Warn("health check failed", "state", st.State)
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type metricsResponse struct {
	ActiveConnections      int                  `json:"active_connections"`
	TotalMessagesProcessed int64                `json:"total_messages_processed"`
	UptimeSeconds          float64              `json:"uptime_seconds"`
	ModelStatus            chat.Status          `json:"model_status"`
	LLM                    chat.MetricsSnapshot `json:"llm"`
}

// Metrics handles GET /metrics.
func (h *ServiceHandler) Metrics(w http.ResponseWriter, _ *http.Request) {
	m := h.chat.Metrics()
	writeJSON(w, http.StatusOK, metricsResponse{
		ActiveConnections:      h.sessions.Count(),
		TotalMessagesProcessed: m.MessageCount,
		UptimeSeconds:          m.UptimeSeconds,
		ModelStatus:            h.chat.Status(),
		LLM:                    m,
	})
}

type statsResponse struct {
	ServiceInfo struct {
		Name        string `json:"name"`
		Version     string `json:"version"`
		Environment string `json:"environment"`
	} `json:"service_info"`
	Connections struct {
		Active int   `json:"active_websocket_connections"`
		Total  int64 `json:"total_connections_served"`
	} `json:"connections"`
	LLMService struct {
		MessagesProcessed   int64   `json:"messages_processed"`
		Failures            int64   `json:"failures"`
		AverageResponseTime float64 `json:"average_response_time"`
		ModelLoaded         bool    `json:"model_loaded"`
		UptimeSeconds       float64 `json:"uptime_seconds"`
	} `json:"llm_service"`
	System struct {
		Timestamp string `json:"timestamp"`
		PodName   string `json:"pod_name"`
		Namespace string `json:"namespace"`
	} `json:"system"`
}

// Stats handles GET /stats. average_response_time is in seconds.
func (h *ServiceHandler) Stats(w http.ResponseWriter, _ *http.Request) {
	m := h.chat.Metrics()
	st := h.chat.Status()

	var resp statsResponse
	resp.ServiceInfo.Name = h.info.Name
	resp.ServiceInfo.Version = h.info.Version
	resp.ServiceInfo.Environment = h.info.Environment
	resp.Connections.Active = h.sessions.Count()
	resp.Connections.Total = h.sessions.Total()
	resp.LLMService.MessagesProcessed = m.MessageCount
	resp.LLMService.Failures = m.FailureCount
	resp.LLMService.AverageResponseTime = m.AvgLatencyMs / 1000
	resp.LLMService.ModelLoaded = st.ModelLoaded
	resp.LLMService.UptimeSeconds = m.UptimeSeconds
	resp.System.Timestamp = now()
	resp.System.PodName = h.info.PodName
	if resp.System.PodName == "" {
		resp.System.PodName = "unknown"
	}
	resp.System.Namespace = h.info.Namespace

	writeJSON(w, http.StatusOK, resp)
}
