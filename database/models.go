package database

import (
	"time"
)

// AlertRow 预警规则行
type AlertRow struct {
	ID                string     `db:"id"`
	UserID            string     `db:"user_id"`
	EventID           string     `db:"event_id"`
	OddID             string     `db:"odd_id"`
	BookmakerID       string     `db:"bookmaker_id"`
	Comparator        string     `db:"comparator"`
	TargetValue       float64    `db:"target_value"`
	TargetMetric      string     `db:"target_metric"`
	TimeWindow        string     `db:"time_window"`
	OneShot           bool       `db:"one_shot"`
	CooldownSeconds   int        `db:"cooldown_seconds"`
	AvailableRequired bool       `db:"available_required"`
	Channels          string     `db:"channels"`
	RuleType          *string    `db:"rule_type"`
	MarketType        *string    `db:"market_type"`
	TeamSide          *string    `db:"team_side"`
	Enabled           bool       `db:"enabled"`
	LastFiredAt       *time.Time `db:"last_fired_at"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

// AlertFiringRow 预警触发行
type AlertFiringRow struct {
	ID          string    `db:"id"`
	AlertID     string    `db:"alert_id"`
	FiringKey   string    `db:"firing_key"`
	EventID     string    `db:"event_id"`
	OddID       string    `db:"odd_id"`
	BookmakerID string    `db:"bookmaker_id"`
	CurrentOdds int       `db:"current_odds"`
	Line        *float64  `db:"line"`
	ObservedAt  time.Time `db:"observed_at"`
	CreatedAt   time.Time `db:"created_at"`
}

// NotificationDeliveryRow 通知投递审计行
type NotificationDeliveryRow struct {
	ID                int64     `db:"id"`
	AlertFiringID     string    `db:"alert_firing_id"`
	Channel           string    `db:"channel"`
	Destination       string    `db:"destination"`
	Status            string    `db:"status"`
	AttemptNumber     int       `db:"attempt_number"`
	ProviderMessageID *string   `db:"provider_message_id"`
	ErrorText         *string   `db:"error_text"`
	CreatedAt         time.Time `db:"created_at"`
}

// UserDestinationRow 用户渠道地址行
type UserDestinationRow struct {
	ID          int64     `db:"id"`
	UserID      string    `db:"user_id"`
	Channel     string    `db:"channel"`
	Destination string    `db:"destination"`
	CreatedAt   time.Time `db:"created_at"`
}
