package models

import "time"

// 比较器代码
const (
	ComparatorGTE         = "gte"
	ComparatorLTE         = "lte"
	ComparatorEQ          = "eq"
	ComparatorCrossesUp   = "crosses_up"
	ComparatorCrossesDown = "crosses_down"
)

// UI 方向字符串
const (
	DirectionAtOrAbove    = "at_or_above"
	DirectionAtOrBelow    = "at_or_below"
	DirectionCrossesAbove = "crosses_above"
	DirectionCrossesBelow = "crosses_below"
)

// 比较指标
const (
	MetricOddsPrice = "odds_price"
	MetricLineValue = "line_value"
)

// 时间窗口
const (
	WindowBoth    = "both"
	WindowLive    = "live"
	WindowPregame = "pregame"
)

// ComparatorForDirection UI 方向 → 比较器, 未知输入回退到 gte
func ComparatorForDirection(direction string) string {
	switch direction {
	case DirectionAtOrAbove:
		return ComparatorGTE
	case DirectionAtOrBelow:
		return ComparatorLTE
	case DirectionCrossesAbove:
		return ComparatorCrossesUp
	case DirectionCrossesBelow:
		return ComparatorCrossesDown
	default:
		return ComparatorGTE
	}
}

// DirectionForComparator 比较器 → UI 方向, 未知输入回退到 at_or_above
func DirectionForComparator(comparator string) string {
	switch comparator {
	case ComparatorGTE:
		return DirectionAtOrAbove
	case ComparatorLTE:
		return DirectionAtOrBelow
	case ComparatorCrossesUp:
		return DirectionCrossesAbove
	case ComparatorCrossesDown:
		return DirectionCrossesBelow
	default:
		return DirectionAtOrAbove
	}
}

// StoredAlert 用户定义的阈值规则, 由外部 API 管理, 本服务只读并回写 LastFiredAt
// OneShot/AvailableRequired 为 nil 时默认 true
type StoredAlert struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	EventID           string     `json:"event_id"`
	OddID             string     `json:"odd_id"`
	BookmakerID       string     `json:"bookmaker_id"`
	Comparator        string     `json:"comparator"`
	TargetValue       float64    `json:"target_value"`
	TargetMetric      string     `json:"target_metric,omitempty"`
	TimeWindow        string     `json:"time_window,omitempty"`
	OneShot           *bool      `json:"one_shot,omitempty"`
	CooldownSeconds   int        `json:"cooldown_seconds,omitempty"`
	AvailableRequired *bool      `json:"available_required,omitempty"`
	LastFiredAt       *time.Time `json:"last_fired_at,omitempty"`
	Channels          []string   `json:"channels"`

	// UI 元数据, 原样带入通知任务
	RuleType   string `json:"rule_type,omitempty"`
	MarketType string `json:"market_type,omitempty"`
	TeamSide   string `json:"team_side,omitempty"`
}

// IsOneShot nil 默认 true
func (a *StoredAlert) IsOneShot() bool {
	return a.OneShot == nil || *a.OneShot
}

// IsAvailableRequired nil 默认 true
func (a *StoredAlert) IsAvailableRequired() bool {
	return a.AvailableRequired == nil || *a.AvailableRequired
}

// EffectiveComparator 空值默认 gte
func (a *StoredAlert) EffectiveComparator() string {
	if a.Comparator == "" {
		return ComparatorGTE
	}
	return a.Comparator
}

// EffectiveMetric 空值默认 odds_price
func (a *StoredAlert) EffectiveMetric() string {
	if a.TargetMetric == "" {
		return MetricOddsPrice
	}
	return a.TargetMetric
}

// EffectiveWindow 空值默认 both
func (a *StoredAlert) EffectiveWindow() string {
	if a.TimeWindow == "" {
		return WindowBoth
	}
	return a.TimeWindow
}
