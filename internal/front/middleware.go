package front

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/zold-go/zold/internal/metrics"
	"github.com/zold-go/zold/internal/score"
)

// haltMiddleware honors ?halt=<secret> by shutting the server down
// (§4.6 "Pre-request middleware", §5 "Cancellation"). A configured
// empty Halt disables the mechanism entirely.
func (s *Server) haltMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Halt != "" {
			if secret := r.URL.Query().Get("halt"); secret != "" && secret == s.cfg.Halt {
				writePlain(w, http.StatusOK, "halting")
				go func() {
					s.cfg.Logger.Printf("[front] halt: matched ?halt= token, shutting down")
					_ = s.Shutdown(r.Context())
				}()
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// zoldHeaders stamps every response with the standard headers required
// of every route (§4.6).
func (s *Server) zoldHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Zold-Version", s.cfg.Version)
		h.Set("X-Zold-Protocol", s.cfg.Protocol)
		h.Set("X-Zold-Score", s.currentScoreText())
		h.Set("X-Zold-Request-Id", uuid.NewString())
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Connection", "close")
		h.Set("Cache-Control", "no-cache")
		next.ServeHTTP(w, r)
	})
}

// validateZoldHeaders implements §4.6's header validation: a mismatched
// X-Zold-Network or X-Zold-Protocol is a 400; a malformed or (when
// StrictScore) too-weak X-Zold-Score is a 400; a healthy score above 3
// registers the caller as a known remote.
func (s *Server) validateZoldHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if network := r.Header.Get("X-Zold-Network"); network != "" && network != s.cfg.Network {
			writeError(w, http.StatusBadRequest, "network mismatch")
			return
		}
		if protocol := r.Header.Get("X-Zold-Protocol"); protocol != "" && protocol != s.cfg.Protocol {
			writeError(w, http.StatusBadRequest, "protocol mismatch")
			return
		}
		if raw := r.Header.Get("X-Zold-Score"); raw != "" {
			sc, ok := parseScoreHeader(raw)
			if !ok {
				writeError(w, http.StatusBadRequest, "invalid X-Zold-Score header")
				return
			}
			value := sc.Value()
			if s.cfg.StrictScore && value < s.cfg.RequiredStrength {
				writeError(w, http.StatusBadRequest, "score too weak")
				return
			}
			if value > 3 && s.cfg.Remotes != nil {
				if host, port, ok := remotePeer(r); ok {
					_ = s.cfg.Remotes.Add(host, port)
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// observeLatency records each request's duration in
// metrics.FrontRequestDuration, labeled by the matched chi route pattern
// (falling back to the raw path for unmatched routes) and status class.
func observeLatency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.ObserveRequest(route, strconv.Itoa(rec.status), time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// parseScoreHeader parses raw as the §6 "Score header text form" and
// rejects anything whose hash chain doesn't actually satisfy its claimed
// strength — a bare integer (or any other forgery) fails to parse or
// fails Valid(), rather than being trusted at face value.
func parseScoreHeader(raw string) (score.Score, bool) {
	sc, err := score.ParseText(raw)
	if err != nil || !sc.Valid() {
		return score.Score{}, false
	}
	return sc, true
}

// remotePeer extracts the caller's host and port from the connection's
// remote address, used to register it as a known remote when it proves
// its score (§4.6). The node has no way to learn the caller's listening
// port from RemoteAddr alone (that's an ephemeral client port), so a
// caller wanting to be added as a gossip peer is expected to advertise
// its listening port explicitly.
func remotePeer(r *http.Request) (host string, port int, ok bool) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "", 0, false
	}
	if raw := r.Header.Get("X-Zold-Port"); raw != "" {
		if p, err := strconv.Atoi(raw); err == nil {
			return host, p, true
		}
	}
	return "", 0, false
}
