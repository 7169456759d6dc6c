package services

import (
	"fmt"
	"strconv"
	"time"

	"odds-alert-service/models"
)

// 流记录里缺失值的哨兵
const nullSentinel = "null"

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimeField(raw string) *time.Time {
	if raw == "" || raw == nullSentinel {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil
	}
	return &t
}

func formatIntPtr(v *int) string {
	if v == nil {
		return nullSentinel
	}
	return strconv.Itoa(*v)
}

// OddsTickFields 把 tick 平铺成流记录的字符串字段
func OddsTickFields(t *models.OddsTick) map[string]string {
	line := nullSentinel
	if t.Line != nil {
		line = strconv.FormatFloat(*t.Line, 'f', -1, 64)
	}
	return map[string]string{
		"event_id":          t.EventID,
		"odd_id":            t.OddID,
		"bookmaker_id":      t.BookmakerID,
		"current_odds":      strconv.Itoa(t.CurrentOdds),
		"line":              line,
		"available":         strconv.FormatBool(t.Available),
		"vendor_updated_at": formatTimePtr(t.VendorUpdatedAt),
		"observed_at":       t.ObservedAt.UTC().Format(time.RFC3339Nano),
	}
}

// DecodeOddsTickFields 从流记录还原 tick
func DecodeOddsTickFields(values map[string]string) (*models.OddsTick, error) {
	currentOdds, err := strconv.Atoi(values["current_odds"])
	if err != nil {
		return nil, fmt.Errorf("invalid current_odds %q: %w", values["current_odds"], err)
	}

	observedAt, err := time.Parse(time.RFC3339Nano, values["observed_at"])
	if err != nil {
		return nil, fmt.Errorf("invalid observed_at %q: %w", values["observed_at"], err)
	}

	tick := &models.OddsTick{
		EventID:         values["event_id"],
		OddID:           values["odd_id"],
		BookmakerID:     values["bookmaker_id"],
		CurrentOdds:     currentOdds,
		Available:       values["available"] == "true",
		VendorUpdatedAt: parseTimeField(values["vendor_updated_at"]),
		ObservedAt:      observedAt,
	}

	if raw := values["line"]; raw != "" && raw != nullSentinel {
		line, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid line %q: %w", raw, err)
		}
		tick.Line = &line
	}

	if tick.EventID == "" || tick.OddID == "" || tick.BookmakerID == "" {
		return nil, fmt.Errorf("incomplete tick identity: %v", values)
	}
	return tick, nil
}

// StatusTickFields 把状态 tick 平铺成流记录的字符串字段
func StatusTickFields(t *models.EventStatusTick) map[string]string {
	return map[string]string{
		"event_id":          t.EventID,
		"league_id":         t.LeagueID,
		"sport_id":          t.SportID,
		"starts_at":         formatTimePtr(t.StartsAt),
		"started":           strconv.FormatBool(t.Started),
		"ended":             strconv.FormatBool(t.Ended),
		"finalized":         strconv.FormatBool(t.Finalized),
		"cancelled":         strconv.FormatBool(t.Cancelled),
		"live":              strconv.FormatBool(t.Live),
		"period":            t.Period,
		"clock":             t.Clock,
		"home_score":        formatIntPtr(t.HomeScore),
		"away_score":        formatIntPtr(t.AwayScore),
		"updated_at":        t.SourceTimestamp().UTC().Format(time.RFC3339Nano),
		"vendor_updated_at": formatTimePtr(t.VendorUpdatedAt),
		"observed_at":       t.ObservedAt.UTC().Format(time.RFC3339Nano),
	}
}
