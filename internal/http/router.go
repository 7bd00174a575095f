package httpapi

import (
	"net/http"
	"time"

	"wisefido-pose/internal/realtime"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRouter 注册全部路由；hub 为 nil 时不提供 websocket
func NewRouter(pose *PoseHandler, events *FallEventHandler, hub *realtime.Hub, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
	})

	r.Route("/api/v1/pose", func(r chi.Router) {
		r.Post("/sessions", pose.StartSession)
		r.Get("/sessions/{sessionID}", pose.GetSession)
		r.Post("/sessions/{sessionID}/end", pose.EndSession)
		r.Post("/frames", pose.SubmitFrames)
		r.Get("/metrics", pose.Metrics)
	})

	r.Route("/api/v1/fall-events", func(r chi.Router) {
		r.Get("/", events.List)
		r.Get("/export", events.Export)
		r.Get("/{eventID}", events.Get)
		r.Post("/{eventID}/feedback", events.Feedback)
	})

	if hub != nil {
		r.Get("/ws/fall-alerts", func(w http.ResponseWriter, req *http.Request) {
			userID := req.URL.Query().Get("user_id")
			if userID == "" {
				writeJSON(w, http.StatusBadRequest, Fail("user_id is required"))
				return
			}
			if err := hub.ServeWS(w, req, userID); err != nil {
				logger.Debug("Websocket closed", zap.String("user_id", userID), zap.Error(err))
			}
		})
	}

	return r
}

// requestLogger 以 zap 记录请求（websocket 长连接只记录建立）
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
