package httpapi

import (
	"fmt"
	"net/http"

	"wisefido-pose/internal/models"
	"wisefido-pose/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// PoseHandler 会话与帧接入
type PoseHandler struct {
	svc    *service.PoseService
	logger *zap.Logger
}

// NewPoseHandler 创建处理器
func NewPoseHandler(svc *service.PoseService, logger *zap.Logger) *PoseHandler {
	return &PoseHandler{svc: svc, logger: logger}
}

type startSessionRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// StartSession POST /api/v1/pose/sessions
func (h *PoseHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	session, err := h.svc.StartSession(r.Context(), req.UserID, req.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(session))
}

// GetSession GET /api/v1/pose/sessions/{sessionID}
func (h *PoseHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(session))
}

// EndSession POST /api/v1/pose/sessions/{sessionID}/end
func (h *PoseHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.EndSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(session))
}

// SubmitFrames POST /api/v1/pose/frames
// 单帧 {user_id, session_id, timestamp, landmarks} 或批量 {user_id, session_id, frames: [...]}
func (h *PoseHandler) SubmitFrames(w http.ResponseWriter, r *http.Request) {
	var req models.FrameBatch
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	frames := req.RawFrames()
	if len(frames) == 0 {
		writeError(w, fmt.Errorf("%w: frames or landmarks are required", service.ErrInvalidArgument))
		return
	}

	result, err := h.svc.SubmitFrames(r.Context(), req.UserID, req.SessionID, frames)
	if err != nil {
		h.logger.Warn("Failed to submit frames",
			zap.String("user_id", req.UserID),
			zap.String("session_id", req.SessionID),
			zap.Error(err),
		)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(result))
}

// Metrics GET /api/v1/pose/metrics
func (h *PoseHandler) Metrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.svc.Metrics()))
}
