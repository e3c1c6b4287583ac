package metrics

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SessionMetricsCollector refreshes the session gauges periodically
type SessionMetricsCollector struct {
	db       *gorm.DB
	metrics  *Metrics
	logger   *zap.Logger
	interval time.Duration
	done     chan struct{}
}

func NewSessionMetricsCollector(db *gorm.DB, metrics *Metrics, logger *zap.Logger, interval time.Duration) *SessionMetricsCollector {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &SessionMetricsCollector{
		db:       db,
		metrics:  metrics,
		logger:   logger,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *SessionMetricsCollector) Start() {
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		// 즉시 한 번 수집
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.done:
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *SessionMetricsCollector) Stop() {
	close(c.done)
}

func (c *SessionMetricsCollector) collect() {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Panic in session metrics collection",
				zap.Any("panic", r),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var active int64
	if err := c.db.WithContext(ctx).Table("active_sessions").Where("status = ?", "active").Count(&active).Error; err != nil {
		c.logger.Error("Failed to count active sessions", zap.Error(err))
	} else {
		c.metrics.SetActiveSessions(active)
	}

	var pending int64
	if err := c.db.WithContext(ctx).Table("session_requests").Where("status = ?", "pending").Count(&pending).Error; err != nil {
		c.logger.Error("Failed to count pending requests", zap.Error(err))
	} else {
		c.metrics.SetPendingRequests(pending)
	}
}
