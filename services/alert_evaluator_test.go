package services

import (
	"fmt"
	"testing"
	"time"

	"odds-alert-service/models"
)

func boolPtr(v bool) *bool { return &v }

func tickAt(odds int, vendorAt time.Time) *models.OddsTick {
	return &models.OddsTick{
		EventID:         "ev1",
		OddID:           "ml_home",
		BookmakerID:     "book1",
		CurrentOdds:     odds,
		Available:       true,
		VendorUpdatedAt: &vendorAt,
		ObservedAt:      vendorAt.Add(time.Second),
	}
}

func gteAlert(target float64) *models.StoredAlert {
	return &models.StoredAlert{
		ID:          "a1",
		UserID:      "u1",
		EventID:     "ev1",
		OddID:       "ml_home",
		BookmakerID: "book1",
		Comparator:  models.ComparatorGTE,
		TargetValue: target,
	}
}

func TestEvaluateGTEFiresWithVendorTimestampKey(t *testing.T) {
	vendorAt := time.Date(2026, 1, 2, 19, 30, 0, 0, time.UTC)
	tick := tickAt(150, vendorAt)

	result := EvaluateAlert(gteAlert(150), tick, nil, nil, vendorAt)

	if !result.Fire {
		t.Fatalf("Expected fire, got reason %s", result.Reason)
	}

	expected := fmt.Sprintf("ev1:ml_home:book1:%d", vendorAt.UnixMilli())
	if result.FiringKey != expected {
		t.Errorf("Expected firing key '%s', got '%s'", expected, result.FiringKey)
	}
}

func TestEvaluateFiringKeyFallsBackToObservedAt(t *testing.T) {
	vendorAt := time.Date(2026, 1, 2, 19, 30, 0, 0, time.UTC)
	tick := tickAt(150, vendorAt)
	tick.VendorUpdatedAt = nil

	result := EvaluateAlert(gteAlert(100), tick, nil, nil, vendorAt)

	if !result.Fire {
		t.Fatalf("Expected fire, got reason %s", result.Reason)
	}
	expected := fmt.Sprintf("ev1:ml_home:book1:%d", tick.ObservedAt.UnixMilli())
	if result.FiringKey != expected {
		t.Errorf("Expected firing key '%s', got '%s'", expected, result.FiringKey)
	}
}

func TestEvaluateAvailabilityGate(t *testing.T) {
	now := time.Now()
	tick := tickAt(150, now)
	tick.Available = false

	result := EvaluateAlert(gteAlert(100), tick, nil, nil, now)
	if result.Fire || result.Reason != ReasonAvailableFalse {
		t.Errorf("Expected available_false, got %+v", result)
	}

	// 显式关闭可用性要求后正常评估
	alert := gteAlert(100)
	alert.AvailableRequired = boolPtr(false)
	result = EvaluateAlert(alert, tick, nil, nil, now)
	if !result.Fire {
		t.Errorf("Expected fire with availability check disabled, got %s", result.Reason)
	}
}

func TestEvaluateOneShotAlreadyFired(t *testing.T) {
	now := time.Now()
	fired := now.Add(-time.Hour)

	alert := gteAlert(100)
	alert.LastFiredAt = &fired

	// one-shot 默认 true, 无论比较器是否满足都不再触发
	result := EvaluateAlert(alert, tickAt(150, now), nil, nil, now)
	if result.Fire || result.Reason != ReasonOneShotAlreadyFired {
		t.Errorf("Expected one_shot_already_fired, got %+v", result)
	}
}

func TestEvaluateCooldown(t *testing.T) {
	now := time.Now()
	fired := now.Add(-30 * time.Second)

	alert := gteAlert(100)
	alert.OneShot = boolPtr(false)
	alert.CooldownSeconds = 60
	alert.LastFiredAt = &fired

	result := EvaluateAlert(alert, tickAt(150, now), nil, nil, now)
	if result.Fire || result.Reason != ReasonCooldownActive {
		t.Errorf("Expected cooldown_active, got %+v", result)
	}

	// 冷却期过后触发
	later := now.Add(31 * time.Second)
	result = EvaluateAlert(alert, tickAt(150, later), nil, nil, later)
	if !result.Fire {
		t.Errorf("Expected fire after cooldown, got %s", result.Reason)
	}
}

func TestEvaluateTimeWindow(t *testing.T) {
	now := time.Now()
	alert := gteAlert(100)
	alert.TimeWindow = models.WindowLive

	result := EvaluateAlert(alert, tickAt(150, now), nil, nil, now)
	if result.Reason != ReasonMissingEventStatus {
		t.Errorf("Expected missing_event_status, got %s", result.Reason)
	}

	pregame := &models.EventStatusTick{EventID: "ev1", ObservedAt: now}
	result = EvaluateAlert(alert, tickAt(150, now), nil, pregame, now)
	if result.Reason != ReasonTimeWindowNotMet {
		t.Errorf("Expected time_window_not_met, got %s", result.Reason)
	}

	live := &models.EventStatusTick{EventID: "ev1", Started: true, ObservedAt: now}
	result = EvaluateAlert(alert, tickAt(150, now), nil, live, now)
	if !result.Fire {
		t.Errorf("Expected fire in live window, got %s", result.Reason)
	}

	// pregame 窗口排斥已开赛
	alert.TimeWindow = models.WindowPregame
	result = EvaluateAlert(alert, tickAt(150, now), nil, live, now)
	if result.Reason != ReasonTimeWindowNotMet {
		t.Errorf("Expected time_window_not_met for started event, got %s", result.Reason)
	}
}

func TestEvaluateLineMetric(t *testing.T) {
	now := time.Now()
	alert := gteAlert(3.5)
	alert.TargetMetric = models.MetricLineValue

	result := EvaluateAlert(alert, tickAt(-110, now), nil, nil, now)
	if result.Reason != ReasonMissingLineValue {
		t.Errorf("Expected missing_line_value, got %s", result.Reason)
	}

	tick := tickAt(-110, now)
	line := 4.5
	tick.Line = &line
	result = EvaluateAlert(alert, tick, nil, nil, now)
	if !result.Fire {
		t.Errorf("Expected fire on line 4.5 >= 3.5, got %s", result.Reason)
	}
}

func TestEvaluateCrossesUp(t *testing.T) {
	now := time.Now()
	alert := gteAlert(150)
	alert.Comparator = models.ComparatorCrossesUp

	result := EvaluateAlert(alert, tickAt(155, now), nil, nil, now)
	if result.Reason != ReasonMissingPrevValue {
		t.Errorf("Expected missing_previous_value, got %s", result.Reason)
	}

	// 145 → 155 跨越 150
	result = EvaluateAlert(alert, tickAt(155, now), tickAt(145, now.Add(-time.Minute)), nil, now)
	if !result.Fire {
		t.Errorf("Expected fire on upward cross, got %s", result.Reason)
	}

	// 已经在目标上方不算跨越
	result = EvaluateAlert(alert, tickAt(155, now), tickAt(152, now.Add(-time.Minute)), nil, now)
	if result.Reason != ReasonComparatorNotMet {
		t.Errorf("Expected comparator_not_met without straddle, got %s", result.Reason)
	}
}

func TestEvaluateCrossesDown(t *testing.T) {
	now := time.Now()
	alert := gteAlert(-110)
	alert.Comparator = models.ComparatorCrossesDown

	result := EvaluateAlert(alert, tickAt(-115, now), tickAt(-105, now.Add(-time.Minute)), nil, now)
	if !result.Fire {
		t.Errorf("Expected fire on downward cross, got %s", result.Reason)
	}

	result = EvaluateAlert(alert, tickAt(-105, now), tickAt(-102, now.Add(-time.Minute)), nil, now)
	if result.Reason != ReasonComparatorNotMet {
		t.Errorf("Expected comparator_not_met, got %s", result.Reason)
	}
}

func TestDirectionComparatorMapping(t *testing.T) {
	cases := map[string]string{
		models.DirectionAtOrAbove:    models.ComparatorGTE,
		models.DirectionAtOrBelow:    models.ComparatorLTE,
		models.DirectionCrossesAbove: models.ComparatorCrossesUp,
		models.DirectionCrossesBelow: models.ComparatorCrossesDown,
		"garbage":                    models.ComparatorGTE,
	}
	for direction, comparator := range cases {
		if got := models.ComparatorForDirection(direction); got != comparator {
			t.Errorf("Expected direction %s → %s, got %s", direction, comparator, got)
		}
	}

	reverse := map[string]string{
		models.ComparatorGTE:         models.DirectionAtOrAbove,
		models.ComparatorLTE:         models.DirectionAtOrBelow,
		models.ComparatorCrossesUp:   models.DirectionCrossesAbove,
		models.ComparatorCrossesDown: models.DirectionCrossesBelow,
		"garbage":                    models.DirectionAtOrAbove,
	}
	for comparator, direction := range reverse {
		if got := models.DirectionForComparator(comparator); got != direction {
			t.Errorf("Expected comparator %s → %s, got %s", comparator, direction, got)
		}
	}
}
