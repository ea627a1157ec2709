package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rickgao/autowhitelist/internal/quiz"
	"github.com/rickgao/autowhitelist/internal/session"
	"github.com/rickgao/autowhitelist/internal/store"
	"github.com/rickgao/autowhitelist/internal/version"
)

// Handler serves the relay's HTTP and WebSocket endpoints.
type Handler struct {
	ctx      context.Context
	cfg      Config
	router   Router
	store    store.Store
	quizzes  *quiz.Repository
	upgrader websocket.Upgrader
	logger   *slog.Logger

	sessions sync.WaitGroup
}

// NewHandler creates a Handler. Sessions run until ctx is cancelled or their
// connection ends.
func NewHandler(ctx context.Context, cfg Config, r Router, st store.Store, quizzes *quiz.Repository, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	allowed := originChecker(cfg.AllowedOrigins)
	return &Handler{
		ctx:     ctx,
		cfg:     cfg,
		router:  r,
		store:   st,
		quizzes: quizzes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true // game servers are not browsers
				}
				return allowed(origin)
			},
		},
		logger: logger,
	}
}

// Routes returns the request multiplexer.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ws", h.ServeWS)
	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("GET /api/get_test/{id}", WithLogging(h.logger, h.GetTest))
	mux.HandleFunc("POST /api/submit", WithLogging(h.logger, h.Submit))
	if !h.quizzes.SelfHosted() {
		mux.HandleFunc("POST /api/upload", WithLogging(h.logger, h.Upload))
		mux.HandleFunc("POST /api/register", WithLogging(h.logger, h.Register))
	}
	if h.cfg.WebDir != "" {
		h.registerWebRoutes(mux, h.cfg.WebDir)
	}

	return CORS(h.cfg.AllowedOrigins, mux)
}

// Wait blocks until every running session has ended or ctx is done.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ServeWS handles GET /ws
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	h.sessions.Add(1)
	defer h.sessions.Done()

	s := session.New(h.cfg.Session, conn, h.router, h.logger)
	if err := s.Run(h.ctx); err != nil {
		h.logger.Debug("session ended", "remote", r.RemoteAddr, "error", err)
	}
}

// GetTest handles GET /api/get_test/{id}
// Returns the quiz without answers, plus whether its owner is connected.
func (h *Handler) GetTest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil && !h.quizzes.SelfHosted() {
		writeCode(w, http.StatusBadRequest, http.StatusBadRequest)
		return
	}

	q, err := h.quizzes.Load(id)
	if errors.Is(err, quiz.ErrNotFound) {
		writeCode(w, http.StatusOK, http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to load quiz", "quiz_id", id, "error", err)
		writeCode(w, http.StatusInternalServerError, http.StatusInternalServerError)
		return
	}

	online := false
	if key := h.quizzes.DeliveryKey(q); key != "" {
		online, err = h.router.Online(r.Context(), key)
		if err != nil {
			h.logger.Warn("failed to query server status", "quiz_id", id, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, testResponse{
		Code:           http.StatusOK,
		Data:           q.Public(),
		IsServerOnline: online,
	})
}

// Submit handles POST /api/submit
// Marks the answers and, on a pass, notifies the owning server.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := parseJSONBody(r, &req); err != nil {
		writeCode(w, http.StatusBadRequest, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.PlayerID) == "" {
		writeCode(w, http.StatusBadRequest, http.StatusBadRequest)
		return
	}

	id := int64(req.PaperID)
	q, err := h.quizzes.Load(id)
	if errors.Is(err, quiz.ErrNotFound) {
		writeCode(w, http.StatusNotFound, http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to load quiz", "quiz_id", id, "error", err)
		writeCode(w, http.StatusInternalServerError, http.StatusInternalServerError)
		return
	}

	score := q.Mark(req.Answer)
	pass := q.Passed(score)

	if pass {
		if key := h.quizzes.DeliveryKey(q); key != "" {
			h.router.Deliver(key, req.PlayerID)
		} else {
			h.logger.Warn("passing quiz has no owner key", "quiz_id", id)
		}

		if !h.quizzes.SelfHosted() {
			if err := h.store.RecordPass(r.Context(), id, req.PlayerID, clientIP(r)); err != nil {
				h.logger.Error("failed to record pass", "quiz_id", id, "error", err)
			}
		}

		h.logger.Info("quiz passed", "quiz_id", id, "player_id", req.PlayerID, "score", score)
	}

	count, err := h.store.PassCount(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to count passes", "quiz_id", id, "error", err)
	}

	writeJSON(w, http.StatusOK, submitResponse{Score: score, Pass: pass, Count: count})
}

// Upload handles POST /api/upload
// Accepts the quiz as the first multipart field or as a raw JSON body.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	data, err := readUpload(r)
	if err != nil {
		h.logger.Debug("unreadable upload", "error", err)
		writeCode(w, http.StatusBadRequest, http.StatusBadRequest)
		return
	}

	q, err := quiz.Parse(data)
	if err != nil || q.ClientKey == "" {
		writeCode(w, http.StatusBadRequest, http.StatusBadRequest)
		return
	}

	id, err := h.store.ClientID(r.Context(), q.ClientKey)
	if errors.Is(err, store.ErrNotFound) {
		writeCode(w, http.StatusForbidden, http.StatusForbidden)
		return
	}
	if err != nil {
		h.logger.Error("failed to resolve client", "error", err)
		writeCode(w, http.StatusInternalServerError, http.StatusInternalServerError)
		return
	}

	if _, err := h.quizzes.Save(id, data); err != nil {
		h.logger.Error("failed to save quiz", "client_id", id, "error", err)
		writeCode(w, http.StatusInternalServerError, http.StatusInternalServerError)
		return
	}

	writeCode(w, http.StatusOK, http.StatusOK)
}

// Register handles POST /api/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := parseJSONBody(r, &req); err != nil {
		writeCode(w, http.StatusBadRequest, http.StatusBadRequest)
		return
	}

	name := strings.TrimSpace(req.ServerName)
	key, err := h.store.Register(r.Context(), name)
	if errors.Is(err, store.ErrEmptyName) {
		writeCode(w, http.StatusBadRequest, http.StatusBadRequest)
		return
	}
	if err != nil {
		h.logger.Error("failed to register server", "error", err)
		writeCode(w, http.StatusInternalServerError, http.StatusInternalServerError)
		return
	}

	h.logger.Info("server registered", "server_name", name)
	writeJSON(w, http.StatusOK, registerResponse{Code: http.StatusOK, Key: key})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Store:   "ok",
		Version: version.Current(),
	}
	status := http.StatusOK

	if err := h.store.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Store = err.Error()
		status = http.StatusServiceUnavailable
	}

	stats, err := h.router.Stats(r.Context())
	if err != nil {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	} else {
		resp.Router = &stats
	}

	writeJSON(w, status, resp)
}

// readUpload returns the raw quiz bytes from a multipart or JSON request.
func readUpload(r *http.Request) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(mediaType, "multipart/") {
		defer r.Body.Close()
		return io.ReadAll(r.Body)
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	part, err := mr.NextPart()
	if err != nil {
		return nil, err
	}
	defer part.Close()
	return io.ReadAll(part)
}
