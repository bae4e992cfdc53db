// Package observability provides metrics and logging utilities.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrMethod        = "method"
	attrPath          = "path"
	attrStatus        = "status"
	attrSessionStatus = "session_status"
	attrEventType     = "event_type"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	// Normalize paths with IDs to reduce cardinality
	// /v1/jobs/abc123/progress -> /v1/jobs/{sessionId}/progress
	return attribute.String(attrPath, normalizePath(path))
}

func statusAttr(code int) attribute.KeyValue {
	// Group status codes to reduce cardinality
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	group := fmt.Sprintf("%dxx", code/100)
	return attribute.String(attrStatus, group)
}

func sessionStatusAttr(status string) attribute.KeyValue {
	return attribute.String(attrSessionStatus, status)
}

func eventTypeAttr(eventType string) attribute.KeyValue {
	return attribute.String(attrEventType, eventType)
}

// normalizePath replaces dynamic path segments with placeholders.
func normalizePath(path string) string {
	const jobs = "/v1/jobs/"
	if strings.HasPrefix(path, jobs) && len(path) > len(jobs) {
		rest := path[len(jobs):]
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			return jobs + "{sessionId}" + rest[i:]
		}
		return jobs + "{sessionId}"
	}

	const cachePrefix = "/v1/cache/"
	if strings.HasPrefix(path, cachePrefix) && len(path) > len(cachePrefix) {
		switch path {
		case "/v1/cache/stats", "/v1/cache/cleanup":
			return path
		}
		return cachePrefix + "{userId}"
	}

	return path
}
