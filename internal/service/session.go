package service

import (
	"time"

	"wisefido-pose/internal/buffer"
	"wisefido-pose/internal/evaluator"
)

// sessionState 单会话的内存状态，仅由所属 worker 访问
type sessionState struct {
	userID    string
	sessionID string
	ring      *buffer.Ring
	tracker   *evaluator.PhaseTracker
	frames    int64     // 已接受帧数
	lastSeen  time.Time // 最近一次收到帧的本地时间（空闲淘汰用）
}

func newSessionState(userID, sessionID string, capacity int, params evaluator.Params, now time.Time) *sessionState {
	return &sessionState{
		userID:    userID,
		sessionID: sessionID,
		ring:      buffer.NewRing(capacity, params.WindowDuration),
		tracker:   evaluator.NewPhaseTracker(params),
		lastSeen:  now,
	}
}
