package models

import (
	"time"
)

// LandmarkCount MediaPipe Pose 关键点数量
const LandmarkCount = 33

// MediaPipe Pose 躯干关键点索引
const (
	LandmarkNose          = 0
	LandmarkLeftShoulder  = 11
	LandmarkRightShoulder = 12
	LandmarkLeftHip       = 23
	LandmarkRightHip      = 24
)

// Landmark 单个关键点（归一化坐标 [0,1]，visibility ∈ [0,1]）
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// PoseFrame 一帧姿态数据（入库后不可变）
// 派生字段在进入缓冲区时由 geometry.Analyzer 一次性计算
type PoseFrame struct {
	UserID    string     `json:"user_id"`
	SessionID string     `json:"session_id"`
	Timestamp time.Time  `json:"timestamp"`
	Landmarks []Landmark `json:"landmarks"`

	// 派生字段
	CenterY           float64 `json:"center_y"`
	VelocityY         float64 `json:"velocity_y"` // 每秒 centerY 变化量，正值表示向下
	MotionScore       float64 `json:"motion_score"`
	IsHorizontal      bool    `json:"is_horizontal"`
	BodyAngle         float64 `json:"body_angle"` // 度，躯干与竖直方向的夹角，带符号
	OverallConfidence float64 `json:"overall_confidence"`
	Reliable          bool    `json:"reliable"` // OverallConfidence >= 可见度阈值
	HasPrev           bool    `json:"has_prev"` // 是否有上一帧参与 velocity/motion 计算
}

// RawFrame 采集端提交的原始帧（尚未计算派生字段）
type RawFrame struct {
	Timestamp time.Time  `json:"timestamp"`
	Landmarks []Landmark `json:"landmarks"`
}

// FrameBatch 采集端消息（HTTP / MQTT / Redis Stream 共用）：批量帧，或单帧（timestamp + landmarks）
type FrameBatch struct {
	UserID    string     `json:"user_id"`
	SessionID string     `json:"session_id"`
	Frames    []RawFrame `json:"frames,omitempty"`
	Timestamp time.Time  `json:"timestamp,omitempty"`
	Landmarks []Landmark `json:"landmarks,omitempty"`
}

// RawFrames 消息中的帧；单帧消息转换为长度 1 的批
func (b FrameBatch) RawFrames() []RawFrame {
	if len(b.Frames) > 0 {
		return b.Frames
	}
	if len(b.Landmarks) > 0 {
		return []RawFrame{{Timestamp: b.Timestamp, Landmarks: b.Landmarks}}
	}
	return nil
}
