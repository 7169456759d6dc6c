package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Connect 连接到数据库
func Connect(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// 设置连接池
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return db, nil
}

// Migrate 运行数据库迁移
func Migrate(db *sql.DB) error {
	migrations := []string{
		// 预警规则表 (由 API 服务写入, 本服务只读 + 回写 last_fired_at)
		`CREATE TABLE IF NOT EXISTS alerts (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL,
			event_id VARCHAR(100) NOT NULL,
			odd_id VARCHAR(100) NOT NULL,
			bookmaker_id VARCHAR(100) NOT NULL,
			comparator VARCHAR(20) NOT NULL DEFAULT 'gte',
			target_value DOUBLE PRECISION NOT NULL,
			target_metric VARCHAR(20) NOT NULL DEFAULT 'odds_price',
			time_window VARCHAR(20) NOT NULL DEFAULT 'both',
			one_shot BOOLEAN NOT NULL DEFAULT TRUE,
			cooldown_seconds INTEGER NOT NULL DEFAULT 0,
			available_required BOOLEAN NOT NULL DEFAULT TRUE,
			channels VARCHAR(255) NOT NULL DEFAULT '',
			rule_type VARCHAR(50),
			market_type VARCHAR(50),
			team_side VARCHAR(20),
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			last_fired_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_market ON alerts(event_id, odd_id, bookmaker_id)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_user_id ON alerts(user_id)`,

		// 预警触发表, (alert_id, firing_key) 唯一约束是幂等触发的关键
		`CREATE TABLE IF NOT EXISTS alert_firings (
			id UUID PRIMARY KEY,
			alert_id UUID NOT NULL,
			firing_key VARCHAR(255) NOT NULL,
			event_id VARCHAR(100) NOT NULL,
			odd_id VARCHAR(100) NOT NULL,
			bookmaker_id VARCHAR(100) NOT NULL,
			current_odds INTEGER NOT NULL,
			line DOUBLE PRECISION,
			observed_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT uq_alert_firings_key UNIQUE (alert_id, firing_key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_firings_alert_id ON alert_firings(alert_id)`,

		// 通知投递审计表, 只追加
		`CREATE TABLE IF NOT EXISTS notification_deliveries (
			id BIGSERIAL PRIMARY KEY,
			alert_firing_id UUID NOT NULL,
			channel VARCHAR(20) NOT NULL,
			destination VARCHAR(255) NOT NULL,
			status VARCHAR(20) NOT NULL,
			attempt_number INTEGER NOT NULL,
			provider_message_id VARCHAR(255),
			error_text TEXT,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notification_deliveries_firing ON notification_deliveries(alert_firing_id)`,

		// 用户渠道地址表
		`CREATE TABLE IF NOT EXISTS user_destinations (
			id BIGSERIAL PRIMARY KEY,
			user_id UUID NOT NULL,
			channel VARCHAR(20) NOT NULL,
			destination VARCHAR(255) NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT uq_user_destinations UNIQUE (user_id, channel)
		)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
