// Package front implements the Node HTTP front (§4.6 "HTTP front"): the
// chi router, middleware stack, and route handlers that expose wallets,
// farm state, remotes, and node status over HTTP/1.1.
package front

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zold-go/zold/internal/entrance"
	"github.com/zold-go/zold/internal/farm"
	"github.com/zold-go/zold/internal/remotes"
	"github.com/zold-go/zold/internal/score"
	"github.com/zold-go/zold/internal/wallet"
)

// Metronomer is the subset of the metronome the "/metronome" route needs.
// Declared here, rather than importing the metronome package, to keep
// front free of a dependency cycle (the metronome in turn pings front's
// "/" route on peers).
type Metronomer interface {
	ToText() string
}

// Config wires together everything the front needs to answer requests
// (§4.6). Metronome may be nil until the metronome is attached.
type Config struct {
	Version          string
	Network          string
	Protocol         string
	RequiredStrength int
	StrictScore      bool // ignore_score_weakness: reject weak X-Zold-Score when true
	Halt             string
	Started          time.Time

	Wallets   *wallet.Wallets
	Farm      *farm.Farm
	Remotes   remotes.Registry
	Entrance  *entrance.Entrance
	Metronome Metronomer

	Logger *log.Logger
}

// Server is the Node HTTP front.
type Server struct {
	cfg Config

	mu         sync.Mutex
	httpServer *http.Server
}

// NewServer constructs a Server from cfg. A nil cfg.Logger defaults to
// log.Default().
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Started.IsZero() {
		cfg.Started = time.Now()
	}
	return &Server{cfg: cfg}
}

// SetMetronome attaches the metronome once it is constructed, so "/node"
// startup order need not match attachment order.
func (s *Server) SetMetronome(m Metronomer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Metronome = m
}

// Handler builds the chi router with every route and middleware from
// §4.6 mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(recoverer)
	r.Use(middleware.Timeout(RuntimeLimit))
	r.Use(s.haltMiddleware)
	r.Use(s.zoldHeaders)
	r.Use(s.validateZoldHeaders)
	r.Use(observeLatency)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writePlain(w, http.StatusNotFound, "not found")
	})

	// Ambient Prometheus endpoint (SUPPLEMENTED FEATURES 1) — additive,
	// not part of the §4.6 route table itself.
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", s.handleStatus)
	r.Get("/version", s.handleVersion)
	r.Get("/pid", s.handlePid)
	r.Get("/score", s.handleScore)
	r.Get("/remotes", s.handleRemotes)
	r.Get("/farm", s.handleFarm)
	r.Get("/metronome", s.handleMetronome)
	r.Get("/robots.txt", s.handleRobots)
	r.Get("/favicon.ico", s.handleFavicon)

	r.Get("/wallet/{id:[0-9a-f]{16}}", s.handleWalletGet)
	r.Get("/wallet/{id:[0-9a-f]{16}}.json", s.handleWalletJSON)
	r.Get("/wallet/{id:[0-9a-f]{16}}.txt", s.handleWalletText)
	r.Get("/wallet/{id:[0-9a-f]{16}}/balance", s.handleWalletBalance)
	r.Get("/wallet/{id:[0-9a-f]{16}}/key", s.handleWalletKey)
	r.Get("/wallet/{id:[0-9a-f]{16}}/mtime", s.handleWalletMtime)
	r.Get("/wallet/{id:[0-9a-f]{16}}/digest", s.handleWalletDigest)
	r.Put("/wallet/{id:[0-9a-f]{16}}", s.handleWalletPut)

	return r
}

// RuntimeLimit bounds how long any single request may run (§5 "Blocking
// calls must not exceed RUNTIME_LIMIT (16s)").
const RuntimeLimit = 16 * time.Second

// ListenAndServe starts serving on addr, blocking until the server is
// shut down via Shutdown or a matched ?halt= request.
func (s *Server) ListenAndServe(addr string) error {
	httpServer := &http.Server{Addr: addr, Handler: s.Handler()}
	s.mu.Lock()
	s.httpServer = httpServer
	s.mu.Unlock()
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("front: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, per SIGTERM or ?halt= (§5
// "Cancellation").
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()
	if httpServer == nil {
		return nil
	}
	return httpServer.Shutdown(ctx)
}

// currentScore returns the node's best known score, or a zero-suffix
// fallback built from the farm's own identity fields when nothing has
// been mined yet (or there is no farm at all).
func (s *Server) currentScore() score.Score {
	if s.cfg.Farm == nil {
		return score.Score{}
	}
	best := s.cfg.Farm.Best()
	if len(best) > 0 {
		return best[0]
	}
	return score.New(s.cfg.Farm.Host, s.cfg.Farm.Port, s.cfg.Farm.Invoice, s.cfg.Farm.Strength)
}

func (s *Server) currentScoreValue() int {
	return s.currentScore().Value()
}

// currentScoreText renders the current best score in the §6 "Score
// header text form", the form every X-Zold-Score header carries. An
// invoice-less fallback Score (no farm configured) can't be rendered, so
// callers get "" in that case.
func (s *Server) currentScoreText() string {
	text, err := s.currentScore().Text()
	if err != nil {
		return ""
	}
	return text
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writePlain(w, status, msg)
}

func writePlain(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintln(w, body)
}

// recoverer turns a panicking handler into a 503 with a backtrace body
// (§4.6 "503 with backtrace body for unhandled exceptions"), in place of
// chi/middleware.Recoverer's 500-and-stderr-log behavior.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				buf := make([]byte, 8192)
				n := runtime.Stack(buf, false)
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprintf(w, "%v\n\n%s", rec, buf[:n])
			}
		}()
		next.ServeHTTP(w, r)
	})
}
