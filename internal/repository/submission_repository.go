package repository

import (
	"errors"

	"github.com/crowdqc/quality-gin/internal/model"
	"gorm.io/gorm"
)

// ErrDuplicateSubmission 同一工作者对同一任务的重复提交
var ErrDuplicateSubmission = errors.New("duplicate submission")

// SubmissionRepository 提交仓储接口
type SubmissionRepository interface {
	Save(sub *model.SubmissionModel) error
	FindByTaskID(taskID string) ([]*model.SubmissionModel, error)
	FindByUserID(userID string, limit int) ([]*model.SubmissionModel, error)
	CountByTaskID(taskID string) (int64, error)
	// MarkCorrectness 共识裁决后回填: 与最终标签一致的提交标记正确,其余标记错误
	MarkCorrectness(taskID, finalAnswer string) error
	// DeleteByTaskUser 删除指定工作者对指定任务的提交,用于占位行补偿回滚
	DeleteByTaskUser(taskID, userID string) error
}

// submissionRepository 提交仓储实现
type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository 创建提交仓储
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

// Save 保存提交
// (task_id, user_id) 唯一索引冲突映射为 ErrDuplicateSubmission
func (r *submissionRepository) Save(sub *model.SubmissionModel) error {
	if err := r.db.Create(sub).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateSubmission
		}
		return err
	}
	return nil
}

// FindByTaskID 按任务查找全部提交,提交时间升序
func (r *submissionRepository) FindByTaskID(taskID string) ([]*model.SubmissionModel, error) {
	var subs []*model.SubmissionModel
	err := r.db.Where("task_id = ?", taskID).Order("submitted_at ASC").Find(&subs).Error
	return subs, err
}

// FindByUserID 按工作者查找最近的提交
func (r *submissionRepository) FindByUserID(userID string, limit int) ([]*model.SubmissionModel, error) {
	var subs []*model.SubmissionModel
	query := r.db.Where("user_id = ?", userID).Order("submitted_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&subs).Error
	return subs, err
}

// CountByTaskID 统计任务的提交数
func (r *submissionRepository) CountByTaskID(taskID string) (int64, error) {
	var count int64
	err := r.db.Model(&model.SubmissionModel{}).Where("task_id = ?", taskID).Count(&count).Error
	return count, err
}

// DeleteByTaskUser 删除工作者对任务的提交
func (r *submissionRepository) DeleteByTaskUser(taskID, userID string) error {
	return r.db.Where("task_id = ? AND user_id = ?", taskID, userID).
		Delete(&model.SubmissionModel{}).Error
}

// MarkCorrectness 回填提交正确性
func (r *submissionRepository) MarkCorrectness(taskID, finalAnswer string) error {
	if err := r.db.Model(&model.SubmissionModel{}).
		Where("task_id = ? AND answer = ?", taskID, finalAnswer).
		Update("is_correct", true).Error; err != nil {
		return err
	}
	return r.db.Model(&model.SubmissionModel{}).
		Where("task_id = ? AND answer <> ?", taskID, finalAnswer).
		Update("is_correct", false).Error
}
