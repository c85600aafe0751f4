// Package health aggregates per-component health status for the gateway's
// /health endpoint. Messages are sanitized before they leave the process so
// a failing collaborator cannot leak endpoints or credentials through a
// health probe.
package health

import (
	"regexp"
	"strings"
	"time"
)

var (
	urlRegex        = regexp.MustCompile(`(?:https?|wss?)://[^\s]+`)
	unixPathRegex   = regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`)
	ipAddrRegex     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex       = regexp.MustCompile(`:\d{2,5}\b`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status is the health state of one component or of the whole gateway.
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"` // "healthy", "degraded", "unhealthy"
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
}

// Healthy builds a healthy status for a component.
func Healthy(component string) Status {
	return Status{
		Component: component,
		Healthy:   true,
		Status:    "healthy",
		Timestamp: time.Now(),
	}
}

// Degraded builds a degraded status with a sanitized message.
func Degraded(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   true,
		Status:    "degraded",
		Message:   sanitizeMessage(message),
		Timestamp: time.Now(),
	}
}

// Unhealthy builds an unhealthy status with a sanitized message.
func Unhealthy(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   false,
		Status:    "unhealthy",
		Message:   sanitizeMessage(message),
		Timestamp: time.Now(),
	}
}

// IsHealthy reports whether the status is fully healthy.
func (s Status) IsHealthy() bool {
	return s.Status == "healthy"
}

// Aggregate rolls sub-statuses into one overall status: any unhealthy child
// makes the whole unhealthy, any degraded child makes it degraded.
func Aggregate(component string, subs []Status) Status {
	overall := Healthy(component)
	overall.SubStatuses = subs

	for _, sub := range subs {
		if !sub.Healthy {
			overall.Healthy = false
			overall.Status = "unhealthy"
			return overall
		}
		if sub.Status == "degraded" {
			overall.Status = "degraded"
		}
	}
	return overall
}

// sanitizeMessage removes URLs, filesystem paths, IP addresses, ports and
// credential-looking fragments from a message.
func sanitizeMessage(msg string) string {
	if msg == "" {
		return ""
	}

	sanitized := urlRegex.ReplaceAllString(msg, "[URL]")
	sanitized = unixPathRegex.ReplaceAllString(sanitized, "[PATH]")
	sanitized = ipAddrRegex.ReplaceAllString(sanitized, "[IP]")
	sanitized = portRegex.ReplaceAllString(sanitized, "[PORT]")

	lowered := strings.ToLower(sanitized)
	if strings.Contains(lowered, "password") || strings.Contains(lowered, "token") ||
		strings.Contains(lowered, "key") || strings.Contains(lowered, "secret") ||
		strings.Contains(lowered, "credential") {
		sanitized = credentialRegex.ReplaceAllString(sanitized, "[REDACTED]")
	}

	return sanitized
}
