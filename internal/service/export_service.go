package service

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/crowdqc/quality-gin/internal/config"
	"github.com/crowdqc/quality-gin/internal/model"
	"github.com/crowdqc/quality-gin/internal/statemachine"
	"github.com/crowdqc/quality-gin/internal/utils"
)

// ExportService 数据集导出服务
// 把已完成的标注任务和它们的提交导出为 gzip 压缩的 JSONL 快照,
// 供下游训练流水线消费。配置了密钥时导出文件整体加密。
type ExportService struct {
	db        *gorm.DB
	exportDir string
	encKey    string
	logger    *logrus.Logger
}

// ExportInfo 导出文件信息
type ExportInfo struct {
	Filename  string    `json:"filename"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	Encrypted bool      `json:"encrypted"`
}

// exportRecord 导出文件中的一行: 一个任务及其全部提交
type exportRecord struct {
	TaskID         string             `json:"task_id"`
	BatchID        string             `json:"batch_id,omitempty"`
	Title          string             `json:"title,omitempty"`
	Payload        json.RawMessage    `json:"payload"`
	FinalAnswer    string             `json:"final_answer"`
	ConsensusLevel string             `json:"consensus_level"`
	CompletedAt    time.Time          `json:"completed_at"`
	Submissions    []exportSubmission `json:"submissions"`
}

type exportSubmission struct {
	UserID      string  `json:"user_id"`
	Answer      string  `json:"answer"`
	Confidence  float64 `json:"confidence"`
	TimeSpentMs int64   `json:"time_spent_ms"`
	IsCorrect   *bool   `json:"is_correct,omitempty"`
}

// NewExportService 创建导出服务
func NewExportService(db *gorm.DB, cfg config.ExportConfig, logger *logrus.Logger) *ExportService {
	if logger == nil {
		logger = logrus.New()
	}

	exportDir := cfg.Dir
	if exportDir == "" {
		exportDir = "./exports"
	}
	if err := os.MkdirAll(exportDir, 0755); err != nil {
		// 目录创建失败时退回临时目录
		exportDir = os.TempDir()
	}

	return &ExportService{
		db:        db,
		exportDir: exportDir,
		encKey:    cfg.EncryptionKey,
		logger:    logger,
	}
}

// CreateExport 导出一批已完成任务
// batchID 非空时只导出该批次, 返回导出文件信息和导出的任务数
func (s *ExportService) CreateExport(ctx context.Context, batchID string) (*ExportInfo, int, error) {
	var tasks []model.TaskModel
	query := s.db.WithContext(ctx).
		Where("state = ?", string(statemachine.StateCompleted)).
		Where("is_honeypot = ?", false).
		Order("created_at asc")
	if batchID != "" {
		query = query.Where("batch_id = ?", batchID)
	}
	if err := query.Find(&tasks).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to load completed tasks: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	encoder := json.NewEncoder(gz)

	for i := range tasks {
		record, err := s.buildRecord(ctx, &tasks[i])
		if err != nil {
			gz.Close()
			return nil, 0, err
		}
		if err := encoder.Encode(record); err != nil {
			gz.Close()
			return nil, 0, fmt.Errorf("failed to encode export record: %w", err)
		}
	}
	if err := gz.Close(); err != nil {
		return nil, 0, fmt.Errorf("failed to finish gzip stream: %w", err)
	}

	data := buf.Bytes()
	encrypted := s.encKey != ""
	ext := ".jsonl.gz"
	if encrypted {
		sealed, err := utils.Encrypt(string(data), s.encKey)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to encrypt export: %w", err)
		}
		data = []byte(sealed)
		ext = ".jsonl.gz.enc"
	}

	timestamp := time.Now().UTC().Format("20060102_150405")
	filename := fmt.Sprintf("export_%s%s", timestamp, ext)
	if batchID != "" {
		filename = fmt.Sprintf("export_%s_%s%s", batchID, timestamp, ext)
	}
	path := filepath.Join(s.exportDir, filename)

	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, 0, fmt.Errorf("failed to write export file: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"filename": filename,
		"tasks":    len(tasks),
		"batch_id": batchID,
	}).Info("dataset export created")

	return &ExportInfo{
		Filename:  filename,
		Path:      path,
		Size:      int64(len(data)),
		CreatedAt: time.Now(),
		Encrypted: encrypted,
	}, len(tasks), nil
}

// buildRecord 组装单个任务的导出行
func (s *ExportService) buildRecord(ctx context.Context, task *model.TaskModel) (*exportRecord, error) {
	var subs []model.SubmissionModel
	if err := s.db.WithContext(ctx).
		Where("task_id = ?", task.ID).
		Order("submitted_at asc").
		Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to load submissions for task %s: %w", task.ID, err)
	}

	record := &exportRecord{
		TaskID:         task.ID,
		BatchID:        task.BatchID,
		Title:          task.Title,
		Payload:        json.RawMessage(task.Payload),
		FinalAnswer:    task.FinalAnswer,
		ConsensusLevel: task.ConsensusLevel,
		CompletedAt:    task.UpdatedAt,
		Submissions:    make([]exportSubmission, 0, len(subs)),
	}
	for _, sub := range subs {
		record.Submissions = append(record.Submissions, exportSubmission{
			UserID:      sub.UserID,
			Answer:      sub.Answer,
			Confidence:  sub.Confidence,
			TimeSpentMs: sub.TimeSpentMs,
			IsCorrect:   sub.IsCorrect,
		})
	}
	return record, nil
}

// ListExports 列出所有导出文件
func (s *ExportService) ListExports(ctx context.Context) ([]ExportInfo, error) {
	entries, err := os.ReadDir(s.exportDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read export directory: %w", err)
	}

	exports := make([]ExportInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isExportFile(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		exports = append(exports, ExportInfo{
			Filename:  entry.Name(),
			Path:      filepath.Join(s.exportDir, entry.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
			Encrypted: strings.HasSuffix(entry.Name(), ".enc"),
		})
	}

	return exports, nil
}

// DeleteExport 删除导出文件
func (s *ExportService) DeleteExport(ctx context.Context, filename string) error {
	if !isExportFile(filename) {
		return fmt.Errorf("invalid export filename: %s", filename)
	}

	path := filepath.Join(s.exportDir, filename)

	// 确保目标文件在导出目录内
	absDir, err := filepath.Abs(s.exportDir)
	if err != nil {
		return fmt.Errorf("failed to resolve export directory: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve export path: %w", err)
	}
	if !strings.HasPrefix(absPath, absDir+string(filepath.Separator)) {
		return fmt.Errorf("invalid export path: %s", filename)
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete export: %w", err)
	}
	return nil
}

// PruneOlderThan 清理超过保留期的导出文件, 返回删除数量
func (s *ExportService) PruneOlderThan(ctx context.Context, age time.Duration) (int, error) {
	exports, err := s.ListExports(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-age)
	pruned := 0
	for _, export := range exports {
		if export.CreatedAt.After(cutoff) {
			continue
		}
		if err := s.DeleteExport(ctx, export.Filename); err != nil {
			s.logger.WithError(err).WithField("filename", export.Filename).Warn("failed to prune export")
			continue
		}
		pruned++
	}
	return pruned, nil
}

// ExportDir 获取导出目录
func (s *ExportService) ExportDir() string {
	return s.exportDir
}

// isExportFile 检查是否是导出文件
func isExportFile(filename string) bool {
	if !strings.HasPrefix(filename, "export_") {
		return false
	}
	return strings.HasSuffix(filename, ".jsonl.gz") || strings.HasSuffix(filename, ".jsonl.gz.enc")
}
