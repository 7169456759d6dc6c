package services

import "time"

// 健康裁决
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusDown     = "down"
)

// MonitoringSignals 监控裁决的输入信号, nil 年龄表示信号缺失
type MonitoringSignals struct {
	IngestionHeartbeatAge *time.Duration
	DiscoveryHeartbeatAge *time.Duration
	VendorUsageAge        *time.Duration
	StorePingOK           bool
	StreamBacklogs        map[string]int64
}

// MonitoringThresholds 各信号的过期阈值
type MonitoringThresholds struct {
	HeartbeatStale  time.Duration // 采集心跳
	DiscoveryStale  time.Duration // 发现周期
	VendorUsageStale time.Duration
	BacklogWarn     int64
}

// ComputeMonitoringStatus 纯函数聚合: down > degraded > healthy
// down 只由采集心跳彻底缺失 (缺失或超过 3 倍阈值) 或存储 ping 失败驱动,
// 单一信号过期只降级, 避免瞬时抖动触发与完全故障相同的告警
func ComputeMonitoringStatus(signals MonitoringSignals, thresholds MonitoringThresholds) string {
	if signals.IngestionHeartbeatAge == nil || *signals.IngestionHeartbeatAge > 3*thresholds.HeartbeatStale {
		return StatusDown
	}
	if !signals.StorePingOK {
		return StatusDown
	}

	if signals.VendorUsageAge == nil || *signals.VendorUsageAge > thresholds.VendorUsageStale {
		return StatusDegraded
	}
	if *signals.IngestionHeartbeatAge > thresholds.HeartbeatStale {
		return StatusDegraded
	}
	if signals.DiscoveryHeartbeatAge == nil || *signals.DiscoveryHeartbeatAge > thresholds.DiscoveryStale {
		return StatusDegraded
	}
	for _, backlog := range signals.StreamBacklogs {
		if backlog > thresholds.BacklogWarn {
			return StatusDegraded
		}
	}

	return StatusHealthy
}
