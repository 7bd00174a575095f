package geometry

import (
	"errors"
	"fmt"
	"math"

	"wisefido-pose/internal/models"
)

// ErrMalformedFrame 帧结构或取值非法，不参与分析
var ErrMalformedFrame = errors.New("malformed pose frame")

// torsoIndices 躯干关键点（肩、髋）
var torsoIndices = [4]int{
	models.LandmarkLeftShoulder,
	models.LandmarkRightShoulder,
	models.LandmarkLeftHip,
	models.LandmarkRightHip,
}

// Params 几何分析参数
type Params struct {
	MinVisibility   float64 // 平均可见度低于该值的帧标记为不可靠
	HorizontalRatio float64 // 躯干水平跨度 > 竖直跨度 * ratio 视为横躺
}

// DefaultParams 默认参数
func DefaultParams() Params {
	return Params{
		MinVisibility:   0.5,
		HorizontalRatio: 1.2,
	}
}

// Analyzer 由原始关键点计算每帧派生特征
type Analyzer struct {
	params Params
}

// NewAnalyzer 创建几何分析器
func NewAnalyzer(params Params) *Analyzer {
	return &Analyzer{params: params}
}

// Validate 校验原始帧：33 个关键点，x/y/visibility ∈ [0,1]，z 为有限值
func Validate(userID, sessionID string, raw models.RawFrame) error {
	if userID == "" || sessionID == "" {
		return fmt.Errorf("%w: user_id and session_id are required", ErrMalformedFrame)
	}
	if raw.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrMalformedFrame)
	}
	if len(raw.Landmarks) != models.LandmarkCount {
		return fmt.Errorf("%w: expected %d landmarks, got %d", ErrMalformedFrame, models.LandmarkCount, len(raw.Landmarks))
	}
	for i, lm := range raw.Landmarks {
		if !inUnit(lm.X) || !inUnit(lm.Y) {
			return fmt.Errorf("%w: landmark %d coordinates out of range (x=%v, y=%v)", ErrMalformedFrame, i, lm.X, lm.Y)
		}
		if !inUnit(lm.Visibility) {
			return fmt.Errorf("%w: landmark %d visibility out of range (%v)", ErrMalformedFrame, i, lm.Visibility)
		}
		if math.IsNaN(lm.Z) || math.IsInf(lm.Z, 0) {
			return fmt.Errorf("%w: landmark %d depth is not finite", ErrMalformedFrame, i)
		}
	}
	return nil
}

// Analyze 计算派生字段并返回不可变帧；prev 为同一会话的上一帧（可为 nil）
// 调用方需先 Validate
func (a *Analyzer) Analyze(userID, sessionID string, raw models.RawFrame, prev *models.PoseFrame) models.PoseFrame {
	landmarks := make([]models.Landmark, len(raw.Landmarks))
	copy(landmarks, raw.Landmarks)

	frame := models.PoseFrame{
		UserID:    userID,
		SessionID: sessionID,
		Timestamp: raw.Timestamp,
		Landmarks: landmarks,
	}

	frame.CenterY = CenterY(landmarks)
	frame.IsHorizontal = IsHorizontal(landmarks, a.params.HorizontalRatio)
	frame.BodyAngle = BodyAngle(landmarks)
	frame.OverallConfidence = OverallConfidence(landmarks)
	frame.Reliable = frame.OverallConfidence >= a.params.MinVisibility

	if prev != nil {
		frame.HasPrev = true
		frame.MotionScore = MotionScore(prev.Landmarks, landmarks)
		if dt := raw.Timestamp.Sub(prev.Timestamp).Seconds(); dt > 0 {
			frame.VelocityY = (frame.CenterY - prev.CenterY) / dt
		}
	}

	return frame
}

// CenterY 躯干关键点按可见度加权的平均 Y
func CenterY(landmarks []models.Landmark) float64 {
	var sum, weight, plain float64
	for _, idx := range torsoIndices {
		lm := landmarks[idx]
		sum += lm.Y * lm.Visibility
		weight += lm.Visibility
		plain += lm.Y
	}
	if weight <= 0 {
		return plain / float64(len(torsoIndices))
	}
	return sum / weight
}

// IsHorizontal 躯干水平跨度超过竖直跨度的 ratio 倍
func IsHorizontal(landmarks []models.Landmark, ratio float64) bool {
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, idx := range torsoIndices {
		lm := landmarks[idx]
		minX = math.Min(minX, lm.X)
		maxX = math.Max(maxX, lm.X)
		minY = math.Min(minY, lm.Y)
		maxY = math.Max(maxY, lm.Y)
	}
	hSpan := maxX - minX
	vSpan := maxY - minY
	return hSpan > 0 && hSpan > vSpan*ratio
}

// BodyAngle 髋中点→肩中点向量与竖直向上方向的夹角（度）
// 0 为直立，正值表示上身偏向画面右侧，±90 为水平，绝对值 > 90 为头低于髋
func BodyAngle(landmarks []models.Landmark) float64 {
	ls, rs := landmarks[models.LandmarkLeftShoulder], landmarks[models.LandmarkRightShoulder]
	lh, rh := landmarks[models.LandmarkLeftHip], landmarks[models.LandmarkRightHip]

	dx := (ls.X+rs.X)/2 - (lh.X+rh.X)/2
	dy := (ls.Y+rs.Y)/2 - (lh.Y+rh.Y)/2
	if dx == 0 && dy == 0 {
		return 0
	}
	// 图像坐标 Y 向下，竖直向上为 (0, -1)
	return math.Atan2(dx, -dy) * 180 / math.Pi
}

// MotionScore 相邻两帧所有关键点平面位移的平均值
func MotionScore(prev, cur []models.Landmark) float64 {
	n := len(cur)
	if len(prev) < n {
		n = len(prev)
	}
	if n == 0 {
		return 0
	}
	var total float64
	for i := 0; i < n; i++ {
		total += math.Hypot(cur[i].X-prev[i].X, cur[i].Y-prev[i].Y)
	}
	return total / float64(n)
}

// OverallConfidence 所有关键点的平均可见度
func OverallConfidence(landmarks []models.Landmark) float64 {
	if len(landmarks) == 0 {
		return 0
	}
	var sum float64
	for _, lm := range landmarks {
		sum += lm.Visibility
	}
	return sum / float64(len(landmarks))
}

func inUnit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
