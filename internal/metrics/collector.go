package metrics

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Collector 指标收集器
// 定期从数据库刷新连接池、任务状态分布和信任分均值指标
type Collector struct {
	db       *gorm.DB
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewCollector 创建指标收集器
func NewCollector(db *gorm.DB, interval time.Duration) *Collector {
	ctx, cancel := context.WithCancel(context.Background())
	return &Collector{
		db:       db,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start 启动指标收集器
func (c *Collector) Start() {
	go c.collect()
}

// Stop 停止指标收集器
func (c *Collector) Stop() {
	c.cancel()
	<-c.done
}

// collect 定期收集指标
func (c *Collector) collect() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	defer close(c.done)

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			_ = UpdateDatabaseConnections(c.db)
			c.refreshTaskStates()
			c.refreshTrustAverage()
		}
	}
}

// refreshTaskStates 刷新任务状态分布指标
func (c *Collector) refreshTaskStates() {
	var rows []struct {
		State string
		Count int64
	}
	if err := c.db.Table("tasks").
		Select("state, count(*) as count").
		Group("state").
		Scan(&rows).Error; err != nil {
		return
	}
	for _, row := range rows {
		UpdateTasksByState(row.State, float64(row.Count))
	}
}

// refreshTrustAverage 刷新信任分均值指标
func (c *Collector) refreshTrustAverage() {
	var avg *float64
	if err := c.db.Table("trust_records").
		Select("avg(trust_score)").
		Scan(&avg).Error; err != nil || avg == nil {
		return
	}
	UpdateWorkerTrustAverage(*avg)
}
