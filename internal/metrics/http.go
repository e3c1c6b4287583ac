package metrics

import (
	"strconv"
	"strings"
	"time"
)

// unmatchedRoute labels requests gin could not route, so scanners cannot
// grow the label set with arbitrary paths.
const unmatchedRoute = "unmatched"

// RecordHTTPRequest observes one API call under its route template.
func (m *Metrics) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	if route == "" {
		route = unmatchedRoute
	}
	m.safeExecute("RecordHTTPRequest", func() {
		m.HTTPRequestsTotal.WithLabelValues(method, route, statusClass(statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
	})
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}

// Observed reports whether a route belongs in the request metrics. The
// websocket route is excluded because its duration is the connection
// lifetime; health and scrape routes are excluded as noise.
func Observed(route string) bool {
	switch {
	case route == "/metrics", strings.HasSuffix(route, "/health"), strings.HasSuffix(route, "/ready"):
		return false
	case strings.HasSuffix(route, "/ws"):
		return false
	}
	return true
}
