// Package requestid propagates X-Request-ID through the request context, logs, audit entries
// and trace spans.
package requestid
