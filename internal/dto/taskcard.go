package dto

// CreateTaskResponse - ответ на создание задания (HTTP)
type CreateTaskResponse struct {
	TaskID string `json:"taskId"`
}

// RespondResponse - ответ на отправку ответа по заданию (HTTP)
type RespondResponse struct {
	ResponseID string `json:"responseId"`
}

// TaskCardResponse - карточка задания (HTTP)
type TaskCardResponse struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	EmployerID   string  `json:"employerId"`
	TargetUserID string  `json:"targetUserId"`
	FileURL      *string `json:"fileUrl,omitempty"`
	Deadline     string  `json:"deadline"`
	CreatedAt    string  `json:"createdAt"`
}

// AssigneeResponse - доступный исполнитель (HTTP)
type AssigneeResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ViewCardResponse - элемент плоского списка представлений.
// Имена полей повторяют контракт клиента.
type ViewCardResponse struct {
	Type             string  `json:"type"`
	TaskID           *string `json:"taskId,omitempty"`
	ResponseID       *string `json:"responseId,omitempty"`
	Title            string  `json:"title"`
	Description      string  `json:"description"`
	Deadline         string  `json:"deadline"`
	TaskCreationTime string  `json:"taskCreationTime"`
	FileURL          *string `json:"fileUrl,omitempty"`
	OriginalFileURL  *string `json:"originalFileUrl,omitempty"`
	ResponseText     string  `json:"responseText,omitempty"`
	EmployerName     string  `json:"employerName,omitempty"`
	TargetUserID     *string `json:"targetUserId,omitempty"`
	TargetUserEmail  string  `json:"targetUserEmail,omitempty"`
}
