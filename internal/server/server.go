package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/raysh454/coinpilot/internal/app"
	"github.com/raysh454/coinpilot/internal/launch"
	"github.com/raysh454/coinpilot/internal/logging"
	_ "github.com/raysh454/coinpilot/internal/server/docs" // registers the swagger doc
)

const (
	defaultWaitFor   = 1000
	defaultRunsLimit = 50
)

// Server is the HTTP + WebSocket API surface for coinpilot.
type Server struct {
	cfg          Config
	orchestrator *app.Orchestrator
	router       chi.Router
	upgrader     websocket.Upgrader
	logger       logging.Logger
}

// NewServer creates a new Server. A launch orchestrator is started only when
// cfg.Launch is set.
func NewServer(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("Server")
	}
	if cfg.ScreenshotPath == "" {
		cfg.ScreenshotPath = app.FileScreenshot
	}

	s := &Server{
		cfg:    cfg,
		router: chi.NewRouter(),
		logger: logger.With(logging.Field{Key: "component", Value: "server"}),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	if cfg.Launch != nil {
		s.orchestrator = app.NewOrchestrator(s.countedLaunch(cfg.Launch), logger)
	}

	s.routes()
	return s, nil
}

func (s *Server) countedLaunch(fn app.LaunchFunc) app.LaunchFunc {
	return func(ctx context.Context, runID string, payload launch.FormPayload, onEvent func(launch.Event)) (*launch.Result, error) {
		res, err := fn(ctx, runID, payload, onEvent)
		outcome := "completed"
		switch {
		case err != nil && ctx.Err() != nil:
			outcome = "canceled"
		case err != nil:
			outcome = "failed"
		}
		metricLaunches.WithLabelValues(outcome).Inc()
		return res, err
	}
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)
	r.Use(s.metricsMiddleware)

	r.Options("/init", s.optionsHandler("POST"))
	r.Options("/screenshot", s.optionsHandler("POST"))
	r.Options("/post", s.optionsHandler("POST"))
	r.Options("/jobs", s.optionsHandler("GET"))
	r.Options("/jobs/launch", s.optionsHandler("POST"))
	r.Options("/jobs/{jobID}", s.optionsHandler("GET, DELETE"))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	// Scraping and model
	r.Post("/init", s.handleInit)
	r.Post("/screenshot", s.handleScreenshot)
	r.Post("/post", s.handlePost)

	// History
	r.Get("/runs", s.handleListRuns)

	// Launch jobs
	r.Post("/jobs/launch", s.handleStartLaunchJob)
	r.Get("/jobs", s.handleListJobs)
	r.Get("/jobs/{jobID}", s.handleGetJob)
	r.Delete("/jobs/{jobID}", s.handleCancelJob)
	r.Get("/ws/launch", s.handleLaunchWS)
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or ""
// when the origin is not allowed.
func (s *Server) allowOrigin(origin string) string {
	if len(s.cfg.AllowedOrigins) == 0 {
		return "*"
	}
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" {
			return "*"
		}
		if strings.EqualFold(o, origin) {
			return origin
		}
	}
	return ""
}

// checkOrigin admits websocket clients that send no Origin (non-browser) or an
// allowed one.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || s.allowOrigin(origin) != ""
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.cfg.AllowedOrigins) > 0 {
			w.Header().Add("Vary", "Origin")
		}
		if allow := s.allowOrigin(r.Header.Get("Origin")); allow != "" {
			w.Header().Set("Access-Control-Allow-Origin", allow)
		}
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}

	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}

	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
		if bodyBytes, err := io.ReadAll(r.Body); err == nil {
			fields = append(fields, logging.Field{Key: "body", Value: string(bodyBytes)})
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}

	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// Close cancels running launch jobs and waits for their cleanup.
func (s *Server) Close() {
	if s.orchestrator != nil {
		s.orchestrator.Close()
	}
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// --- HTTP handlers ---

// handleHealth godoc
// @Summary Liveness probe
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /healthz [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleInit godoc
// @Summary Scrape a page through the configured backend
// @Accept json
// @Produce json
// @Param request body InitRequest true "page to scrape"
// @Success 200 {object} scrape.Result
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /init [post]
func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Scraper == nil {
		writeError(w, http.StatusServiceUnavailable, "scraping is not configured")
		return
	}
	var body InitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	waitFor := defaultWaitFor
	if body.WaitFor != nil {
		waitFor = *body.WaitFor
	}

	res, err := s.cfg.Scraper.Scrape(r.Context(), body.URL, time.Duration(waitFor)*time.Millisecond)
	if err != nil {
		s.logger.Warn("scraping page", logging.Field{Key: "url", Value: body.URL}, logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.logger.Info("scraped page", logging.Field{Key: "url", Value: body.URL})
	writeJSON(w, http.StatusOK, res)
}

// handleScreenshot godoc
// @Summary Capture a page screenshot
// @Accept json
// @Produce json
// @Param request body ScreenshotRequest true "page to capture"
// @Success 200 {object} ScreenshotResponse
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /screenshot [post]
func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Scraper == nil {
		writeError(w, http.StatusServiceUnavailable, "scraping is not configured")
		return
	}
	var body ScreenshotRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	fullPage := true
	if body.FullPage != nil {
		fullPage = *body.FullPage
	}

	path, err := s.cfg.Scraper.Screenshot(r.Context(), body.URL, fullPage, s.cfg.ScreenshotPath)
	if err != nil {
		s.logger.Warn("taking screenshot", logging.Field{Key: "url", Value: body.URL}, logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.logger.Info("saved screenshot", logging.Field{Key: "url", Value: body.URL}, logging.Field{Key: "path", Value: path})
	writeJSON(w, http.StatusOK, ScreenshotResponse{ScreenshotPath: path})
}

// handlePost godoc
// @Summary Generate text with the language model
// @Accept json
// @Produce json
// @Param request body PostRequest true "prompt"
// @Success 200 {object} PostResponse
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /post [post]
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Generator == nil {
		writeError(w, http.StatusServiceUnavailable, "language model is not configured")
		return
	}
	var body PostRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	out, err := s.cfg.Generator.Generate(r.Context(), body.Text)
	if err != nil {
		s.logger.Warn("generating text", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, PostResponse{Response: out})
}

// handleListRuns godoc
// @Summary List recent launch runs
// @Produce json
// @Param limit query int false "maximum number of runs"
// @Success 200 {array} history.Run
// @Router /runs [get]
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Runs == nil {
		writeError(w, http.StatusServiceUnavailable, "history is not configured")
		return
	}
	limit := defaultRunsLimit
	if ls := r.URL.Query().Get("limit"); ls != "" {
		if v, err := strconv.Atoi(ls); err == nil && v > 0 {
			limit = v
		}
	}
	runs, err := s.cfg.Runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Warn("listing runs", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// Jobs (REST)

func (s *Server) requireOrchestrator(w http.ResponseWriter) bool {
	if s.orchestrator == nil {
		writeError(w, http.StatusServiceUnavailable, "launching is not configured")
		return false
	}
	return true
}

// payloadFrom decodes an optional launch payload; an empty body means the
// configured coin.
func (s *Server) payloadFrom(r *http.Request) (launch.FormPayload, error) {
	var p launch.FormPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return s.cfg.DefaultPayload, nil
		}
		return p, err
	}
	if p == (launch.FormPayload{}) {
		return s.cfg.DefaultPayload, nil
	}
	return p, nil
}

// handleStartLaunchJob godoc
// @Summary Start a launch job
// @Accept json
// @Produce json
// @Param request body launch.FormPayload false "coin to launch; defaults to the configured coin"
// @Success 202 {object} app.Job
// @Failure 409 {object} ErrorResponse
// @Router /jobs/launch [post]
func (s *Server) handleStartLaunchJob(w http.ResponseWriter, r *http.Request) {
	if !s.requireOrchestrator(w) {
		return
	}
	payload, err := s.payloadFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	job, err := s.orchestrator.StartLaunchJob(r.Context(), payload)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, app.ErrJobActive) {
			status = http.StatusConflict
		}
		s.logger.Warn("starting launch job", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, status, err.Error())
		return
	}
	s.logger.Info("started launch job", logging.Field{Key: "job_id", Value: job.ID})
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if !s.requireOrchestrator(w) {
		return
	}
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		s.logger.Warn("getting job: not found", logging.Field{Key: "job_id", Value: jobID})
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	if !s.requireOrchestrator(w) {
		return
	}
	jobID := chi.URLParam(r, "jobID")
	if !s.orchestrator.CancelJob(jobID) {
		writeError(w, http.StatusNotFound, "no running job with that id")
		return
	}
	s.logger.Info("canceled job", logging.Field{Key: "job_id", Value: jobID})
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if !s.requireOrchestrator(w) {
		return
	}
	writeJSON(w, http.StatusOK, s.orchestrator.ListJobs())
}

// WebSockets

// handleLaunchWS streams a job's events. With ?job_id it follows an existing
// job; without it starts a launch of the configured coin and cancels it if the
// client goes away.
func (s *Server) handleLaunchWS(w http.ResponseWriter, r *http.Request) {
	if !s.requireOrchestrator(w) {
		return
	}
	jobID := r.URL.Query().Get("job_id")
	if jobID != "" && s.orchestrator.GetJob(jobID) == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	owned := false
	if jobID == "" {
		job, err := s.orchestrator.StartLaunchJob(r.Context(), s.cfg.DefaultPayload)
		if err != nil {
			s.logger.Warn("starting launch job", logging.Field{Key: "error", Value: err.Error()})
			_ = conn.WriteJSON(ErrorResponse{Error: err.Error()})
			return
		}
		jobID = job.ID
		owned = true
		s.logger.Info("started launch job", logging.Field{Key: "job_id", Value: jobID})
	}

	// The client never sends data; reading only surfaces the close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	clientGone := func() {
		if owned && s.orchestrator.CancelJob(jobID) {
			s.logger.Info("client left, launch job canceled", logging.Field{Key: "job_id", Value: jobID})
		}
	}

	if err := conn.WriteJSON(s.orchestrator.GetJob(jobID)); err != nil {
		clientGone()
		return
	}

	events, _ := s.orchestrator.Events(jobID)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				clientGone()
				return
			}
		case <-gone:
			clientGone()
			return
		}
	}
}
