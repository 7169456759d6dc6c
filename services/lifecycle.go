package services

import (
	"time"

	"odds-alert-service/models"
)

// Lifecycle 赛事生命周期分组, 决定轮询频率
type Lifecycle string

const (
	LifecycleLive         Lifecycle = "live"
	LifecycleStartingSoon Lifecycle = "starting_soon"
	LifecycleUpcoming     Lifecycle = "upcoming"
	LifecycleFarFuture    Lifecycle = "far_future"
	LifecycleFinalized    Lifecycle = "finalized"
)

// Cadence 轮询节奏区间, 单位秒
type Cadence struct {
	MinSeconds int
	MaxSeconds int
}

// lifecycleOrder 稳定的枚举顺序, 规划时靠前的分组优先获得预算
var lifecycleOrder = []Lifecycle{
	LifecycleLive,
	LifecycleStartingSoon,
	LifecycleUpcoming,
	LifecycleFarFuture,
	LifecycleFinalized,
}

// cadenceTable 各生命周期的静态节奏表
var cadenceTable = map[Lifecycle]Cadence{
	LifecycleLive:         {MinSeconds: 30, MaxSeconds: 60},
	LifecycleStartingSoon: {MinSeconds: 60, MaxSeconds: 120},
	LifecycleUpcoming:     {MinSeconds: 300, MaxSeconds: 600},
	LifecycleFarFuture:    {MinSeconds: 900, MaxSeconds: 1800},
	LifecycleFinalized:    {MinSeconds: 1800, MaxSeconds: 7200},
}

// CadenceFor 返回生命周期的节奏区间
func CadenceFor(lc Lifecycle) Cadence {
	return cadenceTable[lc]
}

// ClassifyLifecycle 按优先级分类:
// ended/finalized > live > 按开赛距离 (≤2h / ≤24h / 更远)
// StartsAt 缺失或无效时归入 upcoming
func ClassifyLifecycle(ev *models.EventSummary, now time.Time) Lifecycle {
	if ev.Ended || ev.Finalized {
		return LifecycleFinalized
	}
	if ev.Started {
		return LifecycleLive
	}

	if ev.StartsAt == nil || ev.StartsAt.IsZero() {
		return LifecycleUpcoming
	}

	until := ev.StartsAt.Sub(now)
	switch {
	case until <= 2*time.Hour:
		return LifecycleStartingSoon
	case until <= 24*time.Hour:
		return LifecycleUpcoming
	default:
		return LifecycleFarFuture
	}
}

// NextDelay 返回带抖动的下次轮询延迟: min + (max-min) * clamp(seed)
func NextDelay(lc Lifecycle, seed float64) time.Duration {
	c := cadenceTable[lc]
	if seed < 0 {
		seed = 0
	}
	if seed > 1 {
		seed = 1
	}
	seconds := float64(c.MinSeconds) + float64(c.MaxSeconds-c.MinSeconds)*seed
	return time.Duration(seconds * float64(time.Second))
}

// PollingSegment 同一生命周期的赛事分组, 每个发现周期重建
type PollingSegment struct {
	Lifecycle Lifecycle
	Cadence   Cadence
	EventIDs  []string
}

// BuildSegments 按生命周期分组, 按稳定枚举顺序返回非空分组
func BuildSegments(events []*models.EventSummary, now time.Time) []PollingSegment {
	grouped := make(map[Lifecycle][]string)
	for _, ev := range events {
		lc := ClassifyLifecycle(ev, now)
		grouped[lc] = append(grouped[lc], ev.EventID)
	}

	var segments []PollingSegment
	for _, lc := range lifecycleOrder {
		ids := grouped[lc]
		if len(ids) == 0 {
			continue
		}
		segments = append(segments, PollingSegment{
			Lifecycle: lc,
			Cadence:   cadenceTable[lc],
			EventIDs:  ids,
		})
	}
	return segments
}
