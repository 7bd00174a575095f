package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"wisefido-pose/internal/models"
	"wisefido-pose/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// exportLimit 导出的最大事件数
const exportLimit = 1000

// FallEventHandler 跌倒事件查询、反馈与导出
type FallEventHandler struct {
	svc    *service.FallEventService
	logger *zap.Logger
}

// NewFallEventHandler 创建处理器
func NewFallEventHandler(svc *service.FallEventService, logger *zap.Logger) *FallEventHandler {
	return &FallEventHandler{svc: svc, logger: logger}
}

// Get GET /api/v1/fall-events/{eventID}
func (h *FallEventHandler) Get(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.GetFallEvent(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(event))
}

type listResult struct {
	Items []*models.FallEvent `json:"items"`
	Total int                 `json:"total"`
}

// List GET /api/v1/fall-events?user_id=&since=&limit=
func (h *FallEventHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	since, err := parseTime(q.Get("since"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid since"))
		return
	}
	events, err := h.svc.ListFallEvents(r.Context(), q.Get("user_id"), since, parseInt(q.Get("limit"), 0))
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []*models.FallEvent{}
	}
	writeJSON(w, http.StatusOK, Ok(listResult{Items: events, Total: len(events)}))
}

type feedbackRequest struct {
	IsFalsePositive bool   `json:"is_false_positive"`
	Comment         string `json:"comment"`
}

// Feedback POST /api/v1/fall-events/{eventID}/feedback
func (h *FallEventHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	event, err := h.svc.SubmitFeedback(r.Context(), chi.URLParam(r, "eventID"), req.IsFalsePositive, req.Comment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(event))
}

// Export GET /api/v1/fall-events/export?user_id=&since=
func (h *FallEventHandler) Export(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("user_id")
	since, err := parseTime(q.Get("since"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid since"))
		return
	}
	events, err := h.svc.ListFallEvents(r.Context(), userID, since, exportLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	data, err := GenerateFallEventExport(events)
	if err != nil {
		h.logger.Error("Failed to generate fall event export", zap.String("user_id", userID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to generate export"))
		return
	}

	filename := fmt.Sprintf("fall-events-%s-%s.xlsx", userID, time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
