package proxy

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
)

// Handler builds the full fasthttp handler: the routed operator surface and
// chat-completions endpoint, each wrapped in the shared middleware chain.
func (s *Server) Handler() fasthttp.RequestHandler {
	r := router.New()

	r.POST("/v1/chat/completions", chain(s.log, s.corsOrigins, s.prom, s.handleChatCompletions))
	r.GET("/health", chain(s.log, s.corsOrigins, s.prom, s.handleHealth))
	r.GET("/metrics", chain(s.log, s.corsOrigins, s.prom, s.handleMetrics))
	r.GET("/dashboard", chain(s.log, s.corsOrigins, s.prom, s.handleDashboard))
	r.POST("/admin/cache/clear", chain(s.log, s.corsOrigins, s.prom, s.handleCacheClear))
	r.GET("/admin/stats", chain(s.log, s.corsOrigins, s.prom, s.handleAdminStats))
	r.GET("/internal/prometheus", s.prom.Handler())

	return r.Handler
}
