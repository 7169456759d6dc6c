package models

import (
	"fmt"
	"time"
)

// OddsTick 一次赔率观测, 不可变值对象
// 变更检测的身份键是 (EventID, OddID, BookmakerID)
type OddsTick struct {
	EventID         string     `json:"event_id"`
	OddID           string     `json:"odd_id"`
	BookmakerID     string     `json:"bookmaker_id"`
	CurrentOdds     int        `json:"current_odds"` // 美式赔率, 带符号整数
	Line            *float64   `json:"line,omitempty"`
	Available       bool       `json:"available"`
	VendorUpdatedAt *time.Time `json:"vendor_updated_at,omitempty"`
	ObservedAt      time.Time  `json:"observed_at"`
}

// SourceTimestamp 供应商更新时间, 缺失时回退到本地观测时间
func (t *OddsTick) SourceTimestamp() time.Time {
	if t.VendorUpdatedAt != nil {
		return *t.VendorUpdatedAt
	}
	return t.ObservedAt
}

// MarketKey (EventID, OddID, BookmakerID) 组合键
func (t *OddsTick) MarketKey() string {
	return fmt.Sprintf("%s:%s:%s", t.EventID, t.OddID, t.BookmakerID)
}

// LineEqual 比较两个可空的盘口线
func LineEqual(a, b *float64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

// EventStatusTick 一次赛事状态观测, 键为 EventID
type EventStatusTick struct {
	EventID         string     `json:"event_id"`
	LeagueID        string     `json:"league_id"`
	SportID         string     `json:"sport_id"`
	StartsAt        *time.Time `json:"starts_at,omitempty"`
	Started         bool       `json:"started"`
	Ended           bool       `json:"ended"`
	Finalized       bool       `json:"finalized"`
	Cancelled       bool       `json:"cancelled"`
	Live            bool       `json:"live"`
	Period          string     `json:"period,omitempty"`
	Clock           string     `json:"clock,omitempty"`
	HomeScore       *int       `json:"home_score,omitempty"`
	AwayScore       *int       `json:"away_score,omitempty"`
	VendorUpdatedAt *time.Time `json:"vendor_updated_at,omitempty"`
	ObservedAt      time.Time  `json:"observed_at"`
}

// SourceTimestamp 供应商更新时间, 缺失时回退到本地观测时间
func (t *EventStatusTick) SourceTimestamp() time.Time {
	if t.VendorUpdatedAt != nil {
		return *t.VendorUpdatedAt
	}
	return t.ObservedAt
}

// EventSummary 发现周期产出的赛事摘要, 供分类和轮询规划使用
type EventSummary struct {
	EventID   string     `json:"event_id"`
	LeagueID  string     `json:"league_id"`
	SportID   string     `json:"sport_id"`
	StartsAt  *time.Time `json:"starts_at,omitempty"`
	Started   bool       `json:"started"`
	Ended     bool       `json:"ended"`
	Finalized bool       `json:"finalized"`
	Cancelled bool       `json:"cancelled"`
	Live      bool       `json:"live"`
}
