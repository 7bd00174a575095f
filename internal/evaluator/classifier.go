package evaluator

import (
	"math"
	"strings"

	"wisefido-pose/internal/models"
)

// 规则名称
const (
	RuleNameRapidDescent  = "rapid_descent"
	RuleNameStagedPattern = "staged_pattern"
	RuleNameAngleChange   = "angle_change"
)

// corroborationBonus 每多一条规则触发的加分
const corroborationBonus = 0.05

// Candidate 分类器输出的候选跌倒
type Candidate struct {
	Confidence float64            // 合并后的原始置信度 [0,1]
	Rules      map[string]float64 // 触发规则 → 部分置信度
}

// Fired 是否有规则触发
func (c Candidate) Fired() bool { return c.Confidence > 0 }

// RuleNames 触发规则名称（固定顺序，逗号分隔）
func (c Candidate) RuleNames() string {
	var names []string
	for _, name := range []string{RuleNameRapidDescent, RuleNameStagedPattern, RuleNameAngleChange} {
		if _, ok := c.Rules[name]; ok {
			names = append(names, name)
		}
	}
	return strings.Join(names, ",")
}

// Classifier 模式分类器：三条独立规则，取最大值并对多规则印证加分（封顶 1）
type Classifier struct {
	ruleA *RuleRapidDescent
	ruleB *RuleStagedPattern
	ruleC *RuleAngleChange
}

// NewClassifier 创建分类器
func NewClassifier(params Params) *Classifier {
	return &Classifier{
		ruleA: NewRuleRapidDescent(params),
		ruleB: NewRuleStagedPattern(params),
		ruleC: NewRuleAngleChange(params),
	}
}

// Classify 对窗口（含最新帧）评估三条规则
func (c *Classifier) Classify(window []models.PoseFrame, tracker *PhaseTracker) Candidate {
	cand := Candidate{Rules: make(map[string]float64)}

	if v := c.ruleA.Evaluate(tracker); v > 0 {
		cand.Rules[RuleNameRapidDescent] = v
	}
	// 规则B 需要扫描窗口，仅在下降后进入稳定阶段时评估
	if tracker.Phase() == PhaseSettled {
		if v := c.ruleB.Evaluate(window); v > 0 {
			cand.Rules[RuleNameStagedPattern] = v
		}
	}
	if v := c.ruleC.Evaluate(tracker); v > 0 {
		cand.Rules[RuleNameAngleChange] = v
	}

	var best float64
	for _, v := range cand.Rules {
		best = math.Max(best, v)
	}
	if len(cand.Rules) > 1 {
		best += corroborationBonus * float64(len(cand.Rules)-1)
	}
	cand.Confidence = math.Min(1, best)
	return cand
}
