package store

import "fmt"

// 流名称, 与下游消费方约定, 不可更改
const (
	StreamOddsTicks              = "stream:odds_ticks"
	StreamEventStatusTicks       = "stream:event_status_ticks"
	StreamNotificationJobs       = "stream:notification_jobs"
	StreamAlertDeadLetter        = "stream:alert_dead_letter"
	StreamNotificationDeadLetter = "stream:notification_dead_letter"
)

// 监控心跳键
const (
	KeyHeartbeatIngestion = "monitor:heartbeat:ingestion"
	KeyHeartbeatDiscovery = "monitor:heartbeat:discovery"
	KeyVendorUsage        = "monitor:vendor:last_request_at"
)

// EventStatusKey 赛事状态缓存键
func EventStatusKey(eventID string) string {
	return fmt.Sprintf("odds:event:%s:status", eventID)
}

// EventBooksKey 赛事关联 bookmaker 集合键
func EventBooksKey(eventID string) string {
	return fmt.Sprintf("odds:event:%s:books", eventID)
}

// MarketQuoteKey 市场赔率缓存键
func MarketQuoteKey(eventID, oddID, bookmakerID string) string {
	return fmt.Sprintf("odds:event:%s:market:%s:book:%s", eventID, oddID, bookmakerID)
}

// EventMetaKey 赛事元数据键
func EventMetaKey(eventID string) string {
	return fmt.Sprintf("event:%s:meta", eventID)
}

// EventOddsCoreKey 赛事核心赔率汇总键
func EventOddsCoreKey(eventID string) string {
	return fmt.Sprintf("odds:event:%s:odds_core", eventID)
}

// LeagueLiveIndexKey 联赛进行中赛事索引键
func LeagueLiveIndexKey(leagueID string) string {
	return fmt.Sprintf("idx:league:%s:live", leagueID)
}

// LeagueUpcomingIndexKey 联赛未开赛赛事索引键
func LeagueUpcomingIndexKey(leagueID string) string {
	return fmt.Sprintf("idx:league:%s:upcoming", leagueID)
}

// NextPollAtKey 赛事下次轮询时间键, 值为毫秒时间戳字符串
func NextPollAtKey(eventID string) string {
	return fmt.Sprintf("poll:event:%s:next_at", eventID)
}

// AlertMarketIndexKey 市场 → 预警 ID 集合索引键
func AlertMarketIndexKey(eventID, oddID, bookmakerID string) string {
	return fmt.Sprintf("alerts:idx:event:%s:odd:%s:book:%s", eventID, oddID, bookmakerID)
}

// AlertMetaKey 预警元数据缓存键
func AlertMetaKey(alertID string) string {
	return fmt.Sprintf("alerts:meta:%s", alertID)
}

// UserAlertIndexKey 用户 → 预警 ID 集合索引键
func UserAlertIndexKey(userID string) string {
	return fmt.Sprintf("alerts:idx:user:%s", userID)
}

// LatestTickKey 预警比较用的最近一次 tick 键
func LatestTickKey(eventID, oddID, bookmakerID string) string {
	return fmt.Sprintf("alerts:prev:event:%s:odd:%s:book:%s", eventID, oddID, bookmakerID)
}

// NotifySentKey 通知去重键
func NotifySentKey(firingID, channel string) string {
	return fmt.Sprintf("notify:sent:%s:%s", firingID, channel)
}
