package repository

import (
	"errors"
	"time"

	"github.com/crowdqc/quality-gin/internal/model"
	"github.com/crowdqc/quality-gin/internal/utils"
	"gorm.io/gorm"
)

// TaskRepository 任务仓储接口
type TaskRepository interface {
	Save(task *model.TaskModel) error
	FindByID(id string) (*model.TaskModel, error)
	FindAll() ([]*model.TaskModel, error)
	FindByFilter(filter *TaskFilter) ([]*model.TaskModel, error)
	FindExpired(now time.Time) ([]*model.TaskModel, error)
	CountByState() (map[string]int64, error)
}

// TaskFilter 任务查询过滤器
type TaskFilter struct {
	State      *string
	BatchID    *string
	IsHoneypot *bool
	AssignedTo *string
	CreatedBy  *string
	StartTime  *string
	EndTime    *string
	SortBy     string
	SortOrder  string
	Limit      int
	Offset     int
}

// taskRepository 任务仓储实现
type taskRepository struct {
	db *gorm.DB
}

// NewTaskRepository 创建任务仓储
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db}
}

// Save 保存任务
func (r *taskRepository) Save(task *model.TaskModel) error {
	return r.db.Save(task).Error
}

// FindByID 根据 ID 查找任务,不存在时返回 nil
func (r *taskRepository) FindByID(id string) (*model.TaskModel, error) {
	var task model.TaskModel
	if err := r.db.Where("id = ?", id).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

// FindAll 查找所有任务
func (r *taskRepository) FindAll() ([]*model.TaskModel, error) {
	var tasks []*model.TaskModel
	err := r.db.Order("created_at DESC").Find(&tasks).Error
	return tasks, err
}

// FindByFilter 根据过滤器查找任务
func (r *taskRepository) FindByFilter(filter *TaskFilter) ([]*model.TaskModel, error) {
	var tasks []*model.TaskModel
	query := r.db.Model(&model.TaskModel{})

	if filter != nil {
		if filter.State != nil {
			query = query.Where("state = ?", *filter.State)
		}
		if filter.BatchID != nil {
			query = query.Where("batch_id = ?", *filter.BatchID)
		}
		if filter.IsHoneypot != nil {
			query = query.Where("is_honeypot = ?", *filter.IsHoneypot)
		}
		if filter.AssignedTo != nil {
			query = query.Where("assigned_to = ?", *filter.AssignedTo)
		}
		if filter.CreatedBy != nil {
			query = query.Where("created_by = ?", *filter.CreatedBy)
		}
		if filter.StartTime != nil {
			query = query.Where("created_at >= ?", *filter.StartTime)
		}
		if filter.EndTime != nil {
			query = query.Where("created_at <= ?", *filter.EndTime)
		}
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit).Offset(filter.Offset)
		}
	}

	// 排序字段经过白名单清洗, 拼接前再过一次防注入
	order := "created_at DESC"
	if filter != nil && filter.SortBy != "" {
		order = utils.SanitizeSortField(filter.SortBy) + " " + utils.SanitizeSortOrder(filter.SortOrder)
	}

	err := query.Order(order).Find(&tasks).Error
	return tasks, err
}

// FindExpired 查找已超时但尚未进入终态的任务,用于过期扫描
func (r *taskRepository) FindExpired(now time.Time) ([]*model.TaskModel, error) {
	var tasks []*model.TaskModel
	err := r.db.
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Where("state NOT IN ?", []string{"COMPLETED", "FAILED", "CANCELLED", "EXPIRED"}).
		Find(&tasks).Error
	return tasks, err
}

// CountByState 按状态统计任务数量
func (r *taskRepository) CountByState() (map[string]int64, error) {
	type row struct {
		State string
		Count int64
	}
	var rows []row
	err := r.db.Model(&model.TaskModel{}).
		Select("state, count(*) as count").
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.State] = r.Count
	}
	return counts, nil
}
