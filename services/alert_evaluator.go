package services

import (
	"fmt"
	"time"

	"odds-alert-service/models"
)

// 评估结果原因码, 只有 ReasonFire 携带触发键
const (
	ReasonFire                = "fire"
	ReasonAvailableFalse      = "available_false"
	ReasonOneShotAlreadyFired = "one_shot_already_fired"
	ReasonCooldownActive      = "cooldown_active"
	ReasonMissingEventStatus  = "missing_event_status"
	ReasonTimeWindowNotMet    = "time_window_not_met"
	ReasonMissingLineValue    = "missing_line_value"
	ReasonMissingPrevValue    = "missing_previous_value"
	ReasonComparatorNotMet    = "comparator_not_met"
)

// EvalResult 单条规则对单个 tick 的评估结果
type EvalResult struct {
	Fire      bool
	Reason    string
	FiringKey string
}

func skip(reason string) EvalResult {
	return EvalResult{Reason: reason}
}

// FiringKeyFor 确定性触发键: eventID:oddID:bookmakerID:源时间戳(毫秒)
func FiringKeyFor(tick *models.OddsTick) string {
	return fmt.Sprintf("%s:%s:%s:%d", tick.EventID, tick.OddID, tick.BookmakerID, tick.SourceTimestamp().UnixMilli())
}

// statusInWindow 检查赛事状态是否落在规则的时间窗口内
func statusInWindow(window string, status *models.EventStatusTick) bool {
	switch window {
	case models.WindowLive:
		return status.Live || (status.Started && !status.Ended && !status.Finalized && !status.Cancelled)
	case models.WindowPregame:
		return !status.Started && !status.Ended && !status.Finalized
	default:
		return true
	}
}

// EvaluateAlert 纯状态机: 按固定顺序短路, 第一个命中的原因生效
// 只有 fire 结果对调用方有效, 其余都是无操作
func EvaluateAlert(alert *models.StoredAlert, tick *models.OddsTick, prev *models.OddsTick, status *models.EventStatusTick, now time.Time) EvalResult {
	// 1. 可用性
	if alert.IsAvailableRequired() && !tick.Available {
		return skip(ReasonAvailableFalse)
	}

	// 2. one-shot 已触发
	if alert.IsOneShot() && alert.LastFiredAt != nil {
		return skip(ReasonOneShotAlreadyFired)
	}

	// 3. 冷却期
	if !alert.IsOneShot() && alert.LastFiredAt != nil && alert.CooldownSeconds > 0 {
		if now.Sub(*alert.LastFiredAt) < time.Duration(alert.CooldownSeconds)*time.Second {
			return skip(ReasonCooldownActive)
		}
	}

	// 4. 时间窗口
	if window := alert.EffectiveWindow(); window != models.WindowBoth {
		if status == nil {
			return skip(ReasonMissingEventStatus)
		}
		if !statusInWindow(window, status) {
			return skip(ReasonTimeWindowNotMet)
		}
	}

	// 5. 选取比较指标
	var current float64
	var prevValue *float64
	if alert.EffectiveMetric() == models.MetricLineValue {
		if tick.Line == nil {
			return skip(ReasonMissingLineValue)
		}
		current = *tick.Line
		if prev != nil && prev.Line != nil {
			v := *prev.Line
			prevValue = &v
		}
	} else {
		current = float64(tick.CurrentOdds)
		if prev != nil {
			v := float64(prev.CurrentOdds)
			prevValue = &v
		}
	}

	// 6. 比较器
	target := alert.TargetValue
	var met bool
	switch alert.EffectiveComparator() {
	case models.ComparatorGTE:
		met = current >= target
	case models.ComparatorLTE:
		met = current <= target
	case models.ComparatorEQ:
		met = current == target
	case models.ComparatorCrossesUp:
		if prevValue == nil {
			return skip(ReasonMissingPrevValue)
		}
		met = *prevValue < target && current >= target
	case models.ComparatorCrossesDown:
		if prevValue == nil {
			return skip(ReasonMissingPrevValue)
		}
		met = *prevValue > target && current <= target
	default:
		met = current >= target
	}

	if !met {
		return skip(ReasonComparatorNotMet)
	}

	return EvalResult{Fire: true, Reason: ReasonFire, FiringKey: FiringKeyFor(tick)}
}
