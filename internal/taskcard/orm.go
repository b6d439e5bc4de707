package taskcard

import (
	"time"

	"github.com/google/uuid"

	"github.com/Miv21/TaskManager/internal/assignment"
)

// TaskCard — открытое задание. Живёт до явного удаления создателем либо до
// ответа исполнителя: ответ удаляет карточку в той же транзакции.
type TaskCard struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	Title        string    `json:"title" gorm:"not null"`
	Description  string    `json:"description"`
	EmployerID   uuid.UUID `json:"employer_id" gorm:"type:uuid;not null"`
	TargetUserID uuid.UUID `json:"target_user_id" gorm:"type:uuid;not null"`
	FileURL      *string   `json:"file_url,omitempty"`
	Deadline     time.Time `json:"deadline" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at" gorm:"not null;default:now()"`
}

// TaskResponse — неизменяемый ответ. Не ссылается на живую карточку:
// все поля задания скопированы в момент ответа.
type TaskResponse struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	EmployeeID   uuid.UUID `json:"employee_id" gorm:"type:uuid;not null"`
	EmployerID   uuid.UUID `json:"employer_id" gorm:"type:uuid;not null"`
	ResponseText string    `json:"response_text" gorm:"not null"`
	FileURL      *string   `json:"file_url,omitempty"`
	SubmittedAt  time.Time `json:"submitted_at" gorm:"not null;default:now()"`

	// Поля, скопированные из TaskCard при ответе
	Title           string    `json:"title" gorm:"not null"`
	Description     string    `json:"description"`
	Deadline        time.Time `json:"deadline" gorm:"not null"`
	OriginalFileURL *string   `json:"original_file_url,omitempty"`
	TaskCreatedAt   time.Time `json:"task_created_at"`
}

// Users принадлежит внешней учётной подсистеме; ядро только читает
// роль, отдел и контактные поля.
type Users struct {
	ID           uuid.UUID       `json:"id" gorm:"type:uuid;primary_key"`
	Name         string          `json:"name"`
	Login        string          `json:"login"`
	Email        string          `json:"email"`
	Role         assignment.Role `json:"role" gorm:"type:text;not null"`
	DepartmentID *uuid.UUID      `json:"department_id" gorm:"type:uuid"`
	PositionID   *uuid.UUID      `json:"position_id" gorm:"type:uuid"`
}

func (u Users) Subject() assignment.Subject {
	return assignment.Subject{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Role:         u.Role,
		DepartmentID: u.DepartmentID,
	}
}
