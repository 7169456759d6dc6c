package models

import "time"

// 通知投递状态
const (
	DeliveryStatusPending = "pending"
	DeliveryStatusSent    = "sent"
	DeliveryStatusFailed  = "failed"
)

// NotificationJob 一次成功触发产生的通知任务, 短暂存在于任务流中
type NotificationJob struct {
	AlertFiringID string `json:"alert_firing_id"`
	AlertID       string `json:"alert_id"`
	UserID        string `json:"user_id"`

	Channels []string `json:"channels"`

	// 市场/赔率上下文
	EventID       string   `json:"event_id"`
	OddID         string   `json:"odd_id"`
	BookmakerID   string   `json:"bookmaker_id"`
	CurrentOdds   int      `json:"current_odds"`
	PreviousOdds  *int     `json:"previous_odds,omitempty"`
	Line          *float64 `json:"line,omitempty"`
	PreviousLine  *float64 `json:"previous_line,omitempty"`

	// 规则元数据
	RuleType    string  `json:"rule_type,omitempty"`
	MarketType  string  `json:"market_type,omitempty"`
	TeamSide    string  `json:"team_side,omitempty"`
	TargetValue float64 `json:"target_value"`
	Direction   string  `json:"direction"`

	ObservedAt time.Time `json:"observed_at"`
}

// NotificationDelivery 单个渠道一次投递尝试的审计记录, 只追加不更新
type NotificationDelivery struct {
	AlertFiringID     string    `json:"alert_firing_id"`
	Channel           string    `json:"channel"`
	Destination       string    `json:"destination"`
	Status            string    `json:"status"`
	AttemptNumber     int       `json:"attempt_number"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	ErrorText         string    `json:"error_text,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}
