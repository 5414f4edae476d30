// Package persistence provides database storage implementations.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ragmag/ragmag/domain/task"
	"github.com/ragmag/ragmag/internal/database"
)

// TaskModel represents an ingest task in the database.
type TaskModel struct {
	ID            string    `gorm:"column:id;primaryKey"`
	Operation     string    `gorm:"column:operation"`
	DocumentID    string    `gorm:"column:document_id;index"`
	Filename      string    `gorm:"column:filename"`
	InputPath     string    `gorm:"column:input_path"`
	State         string    `gorm:"column:state;index"`
	ErrorMessage  string    `gorm:"column:error_message"`
	PageCount     int       `gorm:"column:page_count"`
	ImagesDeleted int       `gorm:"column:images_deleted"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

// TableName returns the database table name.
func (TaskModel) TableName() string {
	return "ingest_tasks"
}

// TaskMapper converts between task.Task and TaskModel.
type TaskMapper struct{}

// ToDomain converts a model to a domain task.
func (TaskMapper) ToDomain(m TaskModel) task.Task {
	return task.NewWithID(
		m.ID,
		task.Operation(m.Operation),
		m.DocumentID,
		m.Filename,
		m.InputPath,
		task.State(m.State),
		m.ErrorMessage,
		m.PageCount,
		m.ImagesDeleted,
		m.CreatedAt,
		m.UpdatedAt,
	)
}

// ToModel converts a domain task to a model.
func (TaskMapper) ToModel(t task.Task) TaskModel {
	return TaskModel{
		ID:            t.ID(),
		Operation:     string(t.Operation()),
		DocumentID:    t.DocumentID(),
		Filename:      t.Filename(),
		InputPath:     t.InputPath(),
		State:         string(t.State()),
		ErrorMessage:  t.ErrorMessage(),
		PageCount:     t.PageCount(),
		ImagesDeleted: t.ImagesDeleted(),
		CreatedAt:     t.CreatedAt(),
		UpdatedAt:     t.UpdatedAt(),
	}
}

// TaskStore persists ingest tasks using GORM.
type TaskStore struct {
	db     database.Database
	mapper TaskMapper
}

// NewTaskStore creates a new TaskStore.
func NewTaskStore(db database.Database) TaskStore {
	return TaskStore{db: db, mapper: TaskMapper{}}
}

// AutoMigrate creates or updates the task table schema.
func AutoMigrate(db database.Database) error {
	return db.GORM().AutoMigrate(&TaskModel{})
}

// Get retrieves a task by id.
func (s TaskStore) Get(ctx context.Context, id string) (task.Task, error) {
	var model TaskModel
	result := s.db.Session(ctx).Where("id = ?", id).First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return task.Task{}, fmt.Errorf("%w: task %s", database.ErrNotFound, id)
		}
		return task.Task{}, fmt.Errorf("get task: %w", result.Error)
	}
	return s.mapper.ToDomain(model), nil
}

// Save creates a new task or updates an existing one.
func (s TaskStore) Save(ctx context.Context, t task.Task) error {
	model := s.mapper.ToModel(t)
	result := s.db.Session(ctx).Save(&model)
	if result.Error != nil {
		return fmt.Errorf("save task: %w", result.Error)
	}
	return nil
}

// Claim atomically transitions the oldest pending task to running and
// returns it. A second worker claiming concurrently loses the compare-and-
// swap and falls through to the next pending task.
func (s TaskStore) Claim(ctx context.Context) (task.Task, bool, error) {
	for {
		var model TaskModel
		result := s.db.Session(ctx).
			Where("state = ?", string(task.StatePending)).
			Order("created_at ASC").
			First(&model)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return task.Task{}, false, nil
			}
			return task.Task{}, false, fmt.Errorf("find pending task: %w", result.Error)
		}

		running := s.mapper.ToDomain(model).Running()
		claimed := s.db.Session(ctx).Model(&TaskModel{}).
			Where("id = ? AND state = ?", model.ID, string(task.StatePending)).
			Updates(map[string]any{
				"state":      string(running.State()),
				"updated_at": running.UpdatedAt(),
			})
		if claimed.Error != nil {
			return task.Task{}, false, fmt.Errorf("claim task: %w", claimed.Error)
		}
		if claimed.RowsAffected == 0 {
			continue // lost the race, try the next pending task
		}

		return running, true, nil
	}
}

// FindByDocument retrieves tasks targeting a document id, newest first.
func (s TaskStore) FindByDocument(ctx context.Context, documentID string) ([]task.Task, error) {
	var models []TaskModel
	result := s.db.Session(ctx).
		Where("document_id = ?", documentID).
		Order("created_at DESC").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("find tasks by document: %w", result.Error)
	}

	tasks := make([]task.Task, len(models))
	for i, m := range models {
		tasks[i] = s.mapper.ToDomain(m)
	}
	return tasks, nil
}

// CountPending returns the number of tasks waiting to run.
func (s TaskStore) CountPending(ctx context.Context) (int64, error) {
	var count int64
	result := s.db.Session(ctx).Model(&TaskModel{}).
		Where("state = ?", string(task.StatePending)).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("count pending tasks: %w", result.Error)
	}
	return count, nil
}
