// Package server exposes a generation host over HTTP: a small JSON control
// API and a WebSocket stream of resolution events for live viewers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/lawnchairsociety/tilecollapse/internal/config"
	"github.com/lawnchairsociety/tilecollapse/internal/database"
	"github.com/lawnchairsociety/tilecollapse/internal/host"
	"github.com/lawnchairsociety/tilecollapse/internal/logger"
	"github.com/lawnchairsociety/tilecollapse/internal/wfc"
)

// RunReader is the read side of run history.
type RunReader interface {
	ListRuns(limit int) ([]*host.RunRecord, error)
	GetRun(id int64) (*host.RunRecord, error)
	GetResolutions(runID int64) ([]host.Resolution, error)
}

// Server serves one host.
type Server struct {
	cfg     config.ServerConfig
	host    *host.Host
	runs    RunReader
	conns   *ConnLimiter
	control *ControlLimiter

	upgrader websocket.Upgrader

	// baseCtx outlives individual requests; runs started over HTTP and open
	// watchers end when it is cancelled.
	baseCtx context.Context
	stop    context.CancelFunc

	httpServer *http.Server
	watchers   sync.WaitGroup
}

// New creates a server for h. runs may be nil, in which case the history
// endpoints answer 503.
func New(cfg config.ServerConfig, h *host.Host, runs RunReader) *Server {
	ctx, stop := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		host:    h,
		runs:    runs,
		conns:   NewConnLimiter(cfg.Connections),
		control: NewControlLimiter(cfg.RateLimit),
		baseCtx: ctx,
		stop:    stop,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			allowed := s.cfg.WebSocket.IsOriginAllowed(origin, r.Host)
			if !allowed {
				logger.Warning("WebSocket connection rejected: origin not allowed",
					"origin", origin,
					"host", r.Host,
					"remote_addr", r.RemoteAddr)
			}
			return allowed
		},
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)

		r.Group(func(r chi.Router) {
			r.Use(s.throttle)
			r.Post("/start", s.handleStart)
			r.Post("/cancel", s.handleCancel)
			r.Post("/reset", s.handleReset)
		})

		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	r.Get("/ws", s.handleWebSocket)
	return r
}

// ListenAndServe serves on the configured address until Shutdown.
func (s *Server) ListenAndServe() error {
	logger.Always("Watch server listening", "address", s.cfg.Address)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests, ends open watchers and waits for them
// or for ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop()
	s.control.Stop()

	err := s.httpServer.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.watchers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.host.Status())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	// The run must outlive this request.
	err := s.host.Start(s.baseCtx)
	switch {
	case err == nil:
		respondJSON(w, http.StatusAccepted, s.host.Status())
	case errors.Is(err, host.ErrBusy), errors.Is(err, wfc.ErrFinished):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, host.ErrClosed):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		logger.Error("Failed to start run", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to start run")
	}
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.host.Cancel()
	respondJSON(w, http.StatusAccepted, s.host.Status())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var seed uint64
	if raw := r.URL.Query().Get("seed"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid seed %q", raw))
			return
		}
		seed = v
	}

	if err := s.host.Reset(seed); err != nil {
		if errors.Is(err, host.ErrClosed) {
			respondError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		logger.Error("Failed to reset grid", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to reset grid")
		return
	}
	respondJSON(w, http.StatusOK, s.host.Status())
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		respondError(w, http.StatusServiceUnavailable, "run history is disabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = v
	}

	runs, err := s.runs.ListRuns(limit)
	if err != nil {
		logger.Error("Failed to list runs", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	out := make([]runView, 0, len(runs))
	for _, rec := range runs {
		out = append(out, newRunView(rec, nil))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		respondError(w, http.StatusServiceUnavailable, "run history is disabled")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	rec, err := s.runs.GetRun(id)
	if errors.Is(err, database.ErrRunNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		logger.Error("Failed to load run", "run_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load run")
		return
	}

	res, err := s.runs.GetResolutions(id)
	if err != nil {
		logger.Error("Failed to load resolutions", "run_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	respondJSON(w, http.StatusOK, newRunView(rec, res))
}

func (s *Server) clientIP(r *http.Request) string {
	return getRealIP(r, s.cfg.TrustProxyHeaders)
}

// throttle applies the control rate limit.
func (s *Server) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := s.clientIP(r)
		if ok, wait := s.control.Allow(ip); !ok {
			logger.Warning("Control request throttled", "ip", ip, "path", r.URL.Path, "retry_after", wait)
			secs := int(wait.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			respondError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs each request at debug level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"remote_addr", s.clientIP(r))
	})
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

// respondError writes an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

type resolutionView struct {
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Artwork  string `json:"artwork"`
	Rotation int    `json:"rotation"`
	Forced   bool   `json:"forced,omitempty"`
}

func newResolutionViews(res []host.Resolution) []resolutionView {
	out := make([]resolutionView, 0, len(res))
	for _, r := range res {
		out = append(out, resolutionView{X: r.X, Y: r.Y, Artwork: r.Artwork, Rotation: r.Rotation, Forced: r.Forced})
	}
	return out
}

type failureView struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Reason string `json:"reason"`
}

type runView struct {
	ID          int64            `json:"id"`
	Seed        uint64           `json:"seed"`
	Width       int              `json:"width"`
	Height      int              `json:"height"`
	CellSize    float64          `json:"cell_size"`
	Palette     string           `json:"palette"`
	Fingerprint string           `json:"fingerprint"`
	State       string           `json:"state"`
	Collapsed   int              `json:"collapsed"`
	ElapsedMS   int64            `json:"elapsed_ms"`
	Failure     *failureView     `json:"failure,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	Resolutions []resolutionView `json:"resolutions,omitempty"`
}

func newRunView(rec *host.RunRecord, res []host.Resolution) runView {
	v := runView{
		ID:          rec.ID,
		Seed:        rec.Seed,
		Width:       rec.Width,
		Height:      rec.Height,
		CellSize:    rec.CellSize,
		Palette:     rec.Palette,
		Fingerprint: rec.Fingerprint,
		State:       rec.State,
		Collapsed:   rec.Collapsed,
		ElapsedMS:   rec.Elapsed.Milliseconds(),
		CreatedAt:   rec.CreatedAt,
	}
	if rec.Failure != nil {
		v.Failure = &failureView{X: rec.Failure.X, Y: rec.Failure.Y, Reason: rec.Failure.Reason}
	}
	if res != nil {
		v.Resolutions = newResolutionViews(res)
	}
	return v
}
