package proxy

import _ "embed"

// DashboardHTML is the static operator dashboard. It polls GET /metrics
// every 5 seconds and is served verbatim from GET /dashboard.
//go:embed dashboard.html
var DashboardHTML []byte
