package clientip

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Config lists the proxies whose forwarding headers are believed.
type Config struct {
	TrustedProxies []string `env:"CLIENTIP_TRUSTED_PROXIES" envSeparator:","`
}

// Resolver derives the client address of a request. Forwarding headers are only honored when
// the direct peer is a trusted proxy; otherwise the peer address is the client.
type Resolver struct {
	trusted []netip.Prefix
}

// New creates a Resolver. Entries may be addresses or CIDR prefixes.
func New(cfg Config) (*Resolver, error) {
	r := &Resolver{}
	for _, entry := range cfg.TrustedProxies {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			addr, err := netip.ParseAddr(entry)
			if err != nil {
				return nil, fmt.Errorf("clientip: trusted proxy %q: %w", entry, err)
			}
			r.trusted = append(r.trusted, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(entry)
		if err != nil {
			return nil, fmt.Errorf("clientip: trusted proxy %q: %w", entry, err)
		}
		r.trusted = append(r.trusted, p.Masked())
	}
	return r, nil
}

// IP returns the client address of r, or "" when it cannot be determined.
func (res *Resolver) IP(r *http.Request) string {
	peer, ok := parseHostPort(r.RemoteAddr)
	if !ok {
		return ""
	}
	if !res.isTrusted(peer) {
		return peer.String()
	}

	// Walk X-Forwarded-For from the nearest hop; the first untrusted hop is the client.
	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			addr, ok := parseAddr(hops[i])
			if !ok {
				break
			}
			if !res.isTrusted(addr) || i == 0 {
				return addr.String()
			}
		}
	}
	if addr, ok := parseAddr(r.Header.Get("X-Real-IP")); ok {
		return addr.String()
	}
	return peer.String()
}

// Middleware stores the client address in the request context.
func (res *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithIP(r.Context(), res.IP(r))))
	})
}

func (res *Resolver) isTrusted(addr netip.Addr) bool {
	for _, p := range res.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

type contextKey struct{}

// WithIP stores ip in ctx.
func WithIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, contextKey{}, ip)
}

// FromContext returns the client address stored by Middleware.
func FromContext(ctx context.Context) string {
	ip, _ := ctx.Value(contextKey{}).(string)
	return ip
}

func parseHostPort(s string) (netip.Addr, bool) {
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	return parseAddr(s)
}

func parseAddr(s string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap().WithZone(""), true
}
