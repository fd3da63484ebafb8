package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/httprate"
)

type peerKey struct{}

// CapturePeer remembers the socket peer address. It must run before chi's
// RealIP, which overwrites RemoteAddr with whatever the forwarding headers
// claim.
func CapturePeer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), peerKey{}, hostOnly(r.RemoteAddr))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PeerFromContext returns the address CapturePeer recorded.
func PeerFromContext(ctx context.Context) (string, bool) {
	peer, ok := ctx.Value(peerKey{}).(string)
	return peer, ok
}

// ClientKey keys a request by the socket peer. The forwarded address is only
// believed when the peer itself is one of the trusted proxies.
func ClientKey(trusted []netip.Prefix) httprate.KeyFunc {
	return func(r *http.Request) (string, error) {
		peer, ok := PeerFromContext(r.Context())
		if !ok {
			peer = hostOnly(r.RemoteAddr)
		}
		if isTrusted(peer, trusted) {
			return hostOnly(r.RemoteAddr), nil
		}
		return peer, nil
	}
}

func isTrusted(peer string, trusted []netip.Prefix) bool {
	if len(trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(peer)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// RateLimit allows perMinute requests per key in a sliding one-minute
// window. Refused requests get 429 with Retry-After and a JSON body;
// onLimited, when non-nil, is called for each of them. A perMinute of zero
// disables limiting.
func RateLimit(perMinute int, key httprate.KeyFunc, onLimited func(r *http.Request)) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			if onLimited != nil {
				onLimited(r)
			}
			if w.Header().Get("Retry-After") == "" {
				w.Header().Set("Retry-After", "60")
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{
				"error":   "rate_limited",
				"message": "too many requests, try again later",
			})
		}),
	)
}

// hostOnly strips the port from an address, if it has one.
func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
