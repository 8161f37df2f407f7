// Package clientip resolves the client address of a request for audit entries.
//
// X-Forwarded-For and X-Real-IP are spoofable, so they are read only when the direct peer is
// listed in Config.TrustedProxies. X-Forwarded-For is walked from the right and the first hop
// that is not a trusted proxy wins.
package clientip
