package buffer

import (
	"errors"
	"fmt"
	"math"
	"time"

	"wisefido-pose/internal/models"

	"gonum.org/v1/gonum/stat"
)

// ErrOutOfOrder 帧时间戳早于缓冲区最后一帧
var ErrOutOfOrder = errors.New("frame timestamp out of order")

// Stats 分析窗口内帧的聚合值
type Stats struct {
	Count            int
	MinCenterY       float64
	MaxCenterY       float64
	MeanCenterY      float64
	MeanConfidence   float64
	ReliableFraction float64
	ConfidenceSwing  float64 // 相邻帧可见度差的样本标准差（不足两个差值时为 0）
}

type seqValue struct {
	seq   uint64
	value float64
}

// Ring 单会话的有界、按时间排序的帧缓冲区
// 聚合值只覆盖分析窗口（最新帧时间戳往前 window 内的帧），追加时增量维护；
// window <= 0 时覆盖整个缓冲区。
// 非并发安全：由会话所属的 worker 独占访问
type Ring struct {
	frames []models.PoseFrame
	head   int // 最旧帧位置
	size   int
	seq    uint64 // 下一帧序号
	window time.Duration

	// 窗口内帧数；窗口帧始终是缓冲区最新的 winSize 帧
	winSize       int
	sumCenterY    float64
	sumConfidence float64
	reliable      int
	sumDelta      float64 // 相邻帧可见度差之和
	sumDeltaSq    float64

	// 单调队列：O(1) 均摊维护窗口最小/最大 centerY
	minQ []seqValue
	maxQ []seqValue
}

// NewRing 创建容量为 capacity、分析窗口时长为 window 的缓冲区
func NewRing(capacity int, window time.Duration) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{frames: make([]models.PoseFrame, capacity), window: window}
}

// Cap 容量
func (r *Ring) Cap() int { return len(r.frames) }

// Len 当前帧数
func (r *Ring) Len() int { return r.size }

// Append 追加一帧；满时淘汰最旧帧，并把超出分析窗口的帧移出聚合
func (r *Ring) Append(frame models.PoseFrame) error {
	if last, ok := r.Last(); ok && frame.Timestamp.Before(last.Timestamp) {
		return fmt.Errorf("%w: %s before %s", ErrOutOfOrder,
			frame.Timestamp.Format(time.RFC3339Nano), last.Timestamp.Format(time.RFC3339Nano))
	}

	if r.size == len(r.frames) {
		r.evictOldest()
	}

	pos := (r.head + r.size) % len(r.frames)
	r.frames[pos] = frame
	r.size++

	if r.winSize > 0 {
		d := frame.OverallConfidence - r.at(r.size-2).OverallConfidence
		r.sumDelta += d
		r.sumDeltaSq += d * d
	}
	r.winSize++
	r.sumCenterY += frame.CenterY
	r.sumConfidence += frame.OverallConfidence
	if frame.Reliable {
		r.reliable++
	}

	sv := seqValue{seq: r.seq, value: frame.CenterY}
	for len(r.minQ) > 0 && r.minQ[len(r.minQ)-1].value >= sv.value {
		r.minQ = r.minQ[:len(r.minQ)-1]
	}
	r.minQ = append(r.minQ, sv)
	for len(r.maxQ) > 0 && r.maxQ[len(r.maxQ)-1].value <= sv.value {
		r.maxQ = r.maxQ[:len(r.maxQ)-1]
	}
	r.maxQ = append(r.maxQ, sv)
	r.seq++

	if r.window > 0 {
		since := frame.Timestamp.Add(-r.window)
		for r.winSize > 0 && r.at(r.size-r.winSize).Timestamp.Before(since) {
			r.dropOldestFromWindow()
		}
	}
	return nil
}

// dropOldestFromWindow 把窗口内最旧的一帧移出聚合（帧仍留在缓冲区）
func (r *Ring) dropOldestFromWindow() {
	idx := r.size - r.winSize
	old := r.at(idx)
	oldSeq := r.seq - uint64(r.winSize)

	if r.winSize > 1 {
		d := r.at(idx+1).OverallConfidence - old.OverallConfidence
		r.sumDelta -= d
		r.sumDeltaSq -= d * d
	}
	r.sumCenterY -= old.CenterY
	r.sumConfidence -= old.OverallConfidence
	if old.Reliable {
		r.reliable--
	}
	if len(r.minQ) > 0 && r.minQ[0].seq == oldSeq {
		r.minQ = r.minQ[1:]
	}
	if len(r.maxQ) > 0 && r.maxQ[0].seq == oldSeq {
		r.maxQ = r.maxQ[1:]
	}
	r.winSize--
	if r.winSize == 0 {
		// 窗口清空时重置，避免浮点累加误差残留
		r.sumCenterY, r.sumConfidence, r.sumDelta, r.sumDeltaSq = 0, 0, 0, 0
	}
}

func (r *Ring) evictOldest() {
	if r.winSize == r.size {
		r.dropOldestFromWindow()
	}
	r.frames[r.head] = models.PoseFrame{}
	r.head = (r.head + 1) % len(r.frames)
	r.size--
}

// at 第 i 帧（0 为最旧）
func (r *Ring) at(i int) *models.PoseFrame {
	return &r.frames[(r.head+i)%len(r.frames)]
}

// Last 最新一帧
func (r *Ring) Last() (models.PoseFrame, bool) {
	if r.size == 0 {
		return models.PoseFrame{}, false
	}
	return *r.at(r.size - 1), true
}

// Stats 分析窗口的聚合值，O(1)
func (r *Ring) Stats() Stats {
	if r.winSize == 0 {
		return Stats{}
	}
	n := float64(r.winSize)
	s := Stats{
		Count:            r.winSize,
		MinCenterY:       r.minQ[0].value,
		MaxCenterY:       r.maxQ[0].value,
		MeanCenterY:      r.sumCenterY / n,
		MeanConfidence:   r.sumConfidence / n,
		ReliableFraction: float64(r.reliable) / n,
	}
	if m := float64(r.winSize - 1); m >= 2 {
		variance := (r.sumDeltaSq - r.sumDelta*r.sumDelta/m) / (m - 1)
		s.ConfidenceSwing = math.Sqrt(math.Max(variance, 0))
	}
	return s
}

// WindowFrames 分析窗口内的帧（按时间升序的副本）
func (r *Ring) WindowFrames() []models.PoseFrame {
	out := make([]models.PoseFrame, 0, r.winSize)
	for i := r.size - r.winSize; i < r.size; i++ {
		out = append(out, *r.at(i))
	}
	return out
}

// Summarize 对一组帧整体计算聚合值，结果与同一窗口上 Ring.Stats 一致
func Summarize(frames []models.PoseFrame) Stats {
	if len(frames) == 0 {
		return Stats{}
	}
	heights := make([]float64, len(frames))
	confs := make([]float64, len(frames))
	reliable := 0
	for i, f := range frames {
		heights[i] = f.CenterY
		confs[i] = f.OverallConfidence
		if f.Reliable {
			reliable++
		}
	}
	s := Stats{
		Count:            len(frames),
		MinCenterY:       heights[0],
		MaxCenterY:       heights[0],
		MeanCenterY:      stat.Mean(heights, nil),
		MeanConfidence:   stat.Mean(confs, nil),
		ReliableFraction: float64(reliable) / float64(len(frames)),
	}
	for _, h := range heights {
		s.MinCenterY = math.Min(s.MinCenterY, h)
		s.MaxCenterY = math.Max(s.MaxCenterY, h)
	}
	if len(confs) > 2 {
		deltas := make([]float64, len(confs)-1)
		for i := 1; i < len(confs); i++ {
			deltas[i-1] = confs[i] - confs[i-1]
		}
		s.ConfidenceSwing = stat.StdDev(deltas, nil)
	}
	return s
}
