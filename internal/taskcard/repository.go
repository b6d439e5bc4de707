package taskcard

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	GetUser(ctx context.Context, id uuid.UUID) (Users, error)
	ListUsers(ctx context.Context) ([]Users, error)

	CreateTask(ctx context.Context, t TaskCard) error
	GetTask(ctx context.Context, id uuid.UUID) (TaskCard, error)
	UpdateTask(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	DeleteTask(ctx context.Context, id uuid.UUID) error

	// RespondTask удаляет карточку и вставляет ответ одной транзакцией.
	RespondTask(ctx context.Context, taskID uuid.UUID, resp TaskResponse) error

	OpenTasksByTarget(ctx context.Context, userID uuid.UUID) ([]TaskCard, error)
	OpenTasksByCreator(ctx context.Context, userID uuid.UUID) ([]TaskCard, error)
	ResponsesByEmployee(ctx context.Context, userID uuid.UUID) ([]TaskResponse, error)
	ResponsesByEmployer(ctx context.Context, userID uuid.UUID) ([]TaskResponse, error)
}

type taskRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &taskRepository{db: db}
}

func (r *taskRepository) GetUser(ctx context.Context, id uuid.UUID) (Users, error) {
	var user Users
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	return user, err
}

func (r *taskRepository) ListUsers(ctx context.Context) ([]Users, error) {
	var users []Users
	if err := r.db.WithContext(ctx).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *taskRepository) CreateTask(ctx context.Context, t TaskCard) error {
	return r.db.WithContext(ctx).Create(&t).Error
}

func (r *taskRepository) GetTask(ctx context.Context, id uuid.UUID) (TaskCard, error) {
	var task TaskCard
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error
	return task, err
}

func (r *taskRepository) UpdateTask(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&TaskCard{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *taskRepository) DeleteTask(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&TaskCard{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *taskRepository) RespondTask(ctx context.Context, taskID uuid.UUID, resp TaskResponse) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Удаляем карточку первой: RowsAffected == 0 означает, что её уже
		// забрал конкурентный respond или delete — вся транзакция откатывается.
		res := tx.Where("id = ?", taskID).Delete(&TaskCard{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Create(&resp).Error
	})
}

func (r *taskRepository) OpenTasksByTarget(ctx context.Context, userID uuid.UUID) ([]TaskCard, error) {
	var tasks []TaskCard
	err := r.db.WithContext(ctx).Where("target_user_id = ?", userID).Find(&tasks).Error
	return tasks, err
}

func (r *taskRepository) OpenTasksByCreator(ctx context.Context, userID uuid.UUID) ([]TaskCard, error) {
	var tasks []TaskCard
	err := r.db.WithContext(ctx).Where("employer_id = ?", userID).Find(&tasks).Error
	return tasks, err
}

func (r *taskRepository) ResponsesByEmployee(ctx context.Context, userID uuid.UUID) ([]TaskResponse, error) {
	var responses []TaskResponse
	err := r.db.WithContext(ctx).Where("employee_id = ?", userID).Find(&responses).Error
	return responses, err
}

func (r *taskRepository) ResponsesByEmployer(ctx context.Context, userID uuid.UUID) ([]TaskResponse, error) {
	var responses []TaskResponse
	err := r.db.WithContext(ctx).Where("employer_id = ?", userID).Find(&responses).Error
	return responses, err
}
