// Package apierr is the uniform error boundary of the HTTP surface.
//
// Every rejection leaves the service as
//
//	{"errorCode": "...", "message": "...", "details": {...}, "remediationUrl": "..."}
//
// Translator maps domain sentinels from the tenant, lease and partition packages to a Code, an
// HTTP status and, for billing and capability failures, a remediation link. Unknown errors become
// INTERNAL with a constant message; the original error is kept only for server-side logs.
package apierr
