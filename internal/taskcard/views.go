package taskcard

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ViewType помечает источник карточки, чтобы единый плоский список
// не терял происхождение элементов.
type ViewType string

const (
	ViewMyTasks            ViewType = "MyTasks"
	ViewCreatedTasks       ViewType = "CreatedTasks"
	ViewMyResponses        ViewType = "MyResponses"
	ViewResponsesToMyTasks ViewType = "ResponsesToMyTasks"
)

// ViewCard — элемент проекции: либо открытое задание, либо ответ.
type ViewCard struct {
	Type             ViewType
	TaskID           *uuid.UUID
	ResponseID       *uuid.UUID
	Title            string
	Description      string
	Deadline         time.Time
	TaskCreationTime time.Time
	FileURL          *string
	OriginalFileURL  *string
	ResponseText     string
	EmployerID       uuid.UUID
	EmployerName     string
	TargetUserID     *uuid.UUID
	TargetUserEmail  string
}

// ProjectViews строит четыре пользовательских представления одним плоским
// списком: назначенные мне, созданные мной, мои ответы, ответы на мои задания.
// Только чтение, всегда свежее состояние.
func (s *taskService) ProjectViews(ctx context.Context, userID uuid.UUID) ([]ViewCard, error) {
	myTasks, err := s.repo.OpenTasksByTarget(ctx, userID)
	if err != nil {
		return nil, transient(err)
	}
	createdTasks, err := s.repo.OpenTasksByCreator(ctx, userID)
	if err != nil {
		return nil, transient(err)
	}
	myResponses, err := s.repo.ResponsesByEmployee(ctx, userID)
	if err != nil {
		return nil, transient(err)
	}
	responsesToMine, err := s.repo.ResponsesByEmployer(ctx, userID)
	if err != nil {
		return nil, transient(err)
	}

	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, transient(err)
	}
	byID := make(map[uuid.UUID]Users, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	cards := make([]ViewCard, 0, len(myTasks)+len(createdTasks)+len(myResponses)+len(responsesToMine))
	for _, t := range myTasks {
		cards = append(cards, taskView(ViewMyTasks, t, byID))
	}
	for _, t := range createdTasks {
		cards = append(cards, taskView(ViewCreatedTasks, t, byID))
	}
	for _, r := range myResponses {
		cards = append(cards, responseView(ViewMyResponses, r, byID))
	}
	for _, r := range responsesToMine {
		cards = append(cards, responseView(ViewResponsesToMyTasks, r, byID))
	}

	return cards, nil
}

func taskView(vt ViewType, t TaskCard, users map[uuid.UUID]Users) ViewCard {
	taskID := t.ID
	targetID := t.TargetUserID
	return ViewCard{
		Type:             vt,
		TaskID:           &taskID,
		Title:            t.Title,
		Description:      t.Description,
		Deadline:         t.Deadline,
		TaskCreationTime: t.CreatedAt,
		FileURL:          t.FileURL,
		EmployerID:       t.EmployerID,
		EmployerName:     users[t.EmployerID].Name,
		TargetUserID:     &targetID,
		TargetUserEmail:  users[t.TargetUserID].Email,
	}
}

func responseView(vt ViewType, r TaskResponse, users map[uuid.UUID]Users) ViewCard {
	responseID := r.ID
	employeeID := r.EmployeeID
	return ViewCard{
		Type:             vt,
		ResponseID:       &responseID,
		Title:            r.Title,
		Description:      r.Description,
		Deadline:         r.Deadline,
		TaskCreationTime: r.TaskCreatedAt,
		FileURL:          r.FileURL,
		OriginalFileURL:  r.OriginalFileURL,
		ResponseText:     r.ResponseText,
		EmployerID:       r.EmployerID,
		EmployerName:     users[r.EmployerID].Name,
		TargetUserID:     &employeeID,
		TargetUserEmail:  users[r.EmployeeID].Email,
	}
}
