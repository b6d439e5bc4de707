package taskcard

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Miv21/TaskManager/internal/assignment"
	"github.com/Miv21/TaskManager/internal/storage"
)

// Диапазон допустимых смещений часового пояса клиента (как у time.FixedZone:
// реальные зоны лежат в пределах UTC-12..UTC+14).
const maxTzOffsetMinutes = 14 * 60

type Service interface {
	CreateTask(ctx context.Context, creatorID uuid.UUID, input CreateTaskInput) (TaskCard, error)
	UpdateTask(ctx context.Context, requesterID, taskID uuid.UUID, input UpdateTaskInput) (TaskCard, error)
	DeleteTask(ctx context.Context, requesterID, taskID uuid.UUID) error
	RespondToTask(ctx context.Context, responderID uuid.UUID, input RespondInput) (TaskResponse, error)
	AvailableAssignees(ctx context.Context, actorID uuid.UUID) ([]assignment.Subject, error)
	ProjectViews(ctx context.Context, userID uuid.UUID) ([]ViewCard, error)
}

type CreateTaskInput struct {
	Title           string
	Description     string
	TargetUserID    uuid.UUID
	DeadlineRaw     string
	TzOffsetMinutes *int // nil — клиент не прислал смещение
	Attachment      *storage.Upload
}

type UpdateTaskInput struct {
	Title           string
	Description     string
	TargetUserID    uuid.UUID
	DeadlineRaw     string
	TzOffsetMinutes *int
	Attachment      *storage.Upload
}

type RespondInput struct {
	TaskID         uuid.UUID
	ResponseText   string
	Attachment     *storage.Upload
	IdempotencyKey string
}

type taskService struct {
	repo     Repository
	files    *storage.Coordinator
	producer EventProducer
	idem     IdempotencyStore
	logger   *log.Logger
}

func NewService(repo Repository, files *storage.Coordinator, producer EventProducer, idem IdempotencyStore, logger *log.Logger) Service {
	if logger == nil {
		logger = log.Default()
	}
	return &taskService{
		repo:     repo,
		files:    files,
		producer: producer,
		idem:     idem,
		logger:   logger,
	}
}

func (s *taskService) CreateTask(ctx context.Context, creatorID uuid.UUID, input CreateTaskInput) (TaskCard, error) {
	creator, err := s.repo.GetUser(ctx, creatorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TaskCard{}, ErrUserNotFound
		}
		return TaskCard{}, transient(err)
	}

	target, err := s.repo.GetUser(ctx, input.TargetUserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TaskCard{}, ErrTargetNotFound
		}
		return TaskCard{}, transient(err)
	}

	if !assignment.CanAssign(creator.Subject(), target.Subject()) {
		return TaskCard{}, forbidden(assignment.DenyReason(creator.Role))
	}

	if strings.TrimSpace(input.Title) == "" {
		return TaskCard{}, validationf("название задания обязательно")
	}

	deadline, err := normalizeDeadline(input.DeadlineRaw, input.TzOffsetMinutes)
	if err != nil {
		return TaskCard{}, err
	}

	card := TaskCard{
		ID:           uuid.New(),
		Title:        input.Title,
		Description:  input.Description,
		EmployerID:   creator.ID,
		TargetUserID: target.ID,
		Deadline:     deadline,
		CreatedAt:    time.Now().UTC(),
	}

	if input.Attachment != nil {
		if err := ValidateAttachment(input.Attachment.Filename, input.Attachment.ContentType); err != nil {
			return TaskCard{}, err
		}
		// Файл загружается до вставки; при неудачной вставке координатор
		// удалит только что загруженный объект.
		_, err := s.files.StoreWithRecord(ctx, *input.Attachment, func(fileURL string) error {
			card.FileURL = &fileURL
			return s.repo.CreateTask(ctx, card)
		})
		if err != nil {
			return TaskCard{}, transient(err)
		}
	} else {
		if err := s.repo.CreateTask(ctx, card); err != nil {
			return TaskCard{}, transient(err)
		}
	}

	s.emit(TaskEvent{
		Type:     EventTaskCreated,
		TaskID:   card.ID.String(),
		ActorID:  creator.ID.String(),
		TargetID: target.ID.String(),
	})

	return card, nil
}

func (s *taskService) UpdateTask(ctx context.Context, requesterID, taskID uuid.UUID, input UpdateTaskInput) (TaskCard, error) {
	card, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TaskCard{}, ErrTaskNotFound
		}
		return TaskCard{}, transient(err)
	}

	if card.EmployerID != requesterID {
		return TaskCard{}, forbidden("вы можете изменять только свои задания")
	}

	if strings.TrimSpace(input.Title) == "" {
		return TaskCard{}, validationf("название задания обязательно")
	}

	deadline, err := normalizeDeadline(input.DeadlineRaw, input.TzOffsetMinutes)
	if err != nil {
		return TaskCard{}, err
	}

	// Смена исполнителя проходит матрицу назначений заново.
	if input.TargetUserID != card.TargetUserID {
		requester, err := s.repo.GetUser(ctx, requesterID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return TaskCard{}, ErrUserNotFound
			}
			return TaskCard{}, transient(err)
		}
		target, err := s.repo.GetUser(ctx, input.TargetUserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return TaskCard{}, ErrTargetNotFound
			}
			return TaskCard{}, transient(err)
		}
		if !assignment.CanAssign(requester.Subject(), target.Subject()) {
			return TaskCard{}, forbidden(assignment.DenyReason(requester.Role))
		}
	}

	updates := map[string]interface{}{
		"title":          input.Title,
		"description":    input.Description,
		"deadline":       deadline,
		"target_user_id": input.TargetUserID,
	}

	if input.Attachment != nil {
		if err := ValidateAttachment(input.Attachment.Filename, input.Attachment.ContentType); err != nil {
			return TaskCard{}, err
		}
		oldURL := ""
		if card.FileURL != nil {
			oldURL = *card.FileURL
		}
		// Новый файл загружается первым; старый удаляется только после
		// коммита записи. Откат не трогает старый объект и старую ссылку.
		_, err := s.files.ReplaceWithRecord(ctx, oldURL, *input.Attachment, func(fileURL string) error {
			updates["file_url"] = fileURL
			return s.repo.UpdateTask(ctx, card.ID, updates)
		})
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return TaskCard{}, ErrTaskNotFound
			}
			return TaskCard{}, transient(err)
		}
	} else {
		if err := s.repo.UpdateTask(ctx, card.ID, updates); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return TaskCard{}, ErrTaskNotFound
			}
			return TaskCard{}, transient(err)
		}
	}

	updated, err := s.repo.GetTask(ctx, card.ID)
	if err != nil {
		return TaskCard{}, transient(err)
	}

	s.emit(TaskEvent{
		Type:     EventTaskUpdated,
		TaskID:   updated.ID.String(),
		ActorID:  requesterID.String(),
		TargetID: updated.TargetUserID.String(),
	})

	return updated, nil
}

func (s *taskService) DeleteTask(ctx context.Context, requesterID, taskID uuid.UUID) error {
	card, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTaskNotFound
		}
		return transient(err)
	}

	if card.EmployerID != requesterID {
		return forbidden("вы можете удалять только свои задания")
	}

	fileURL := ""
	if card.FileURL != nil {
		fileURL = *card.FileURL
	}

	// Строка удаляется первой; файл — best effort после неё.
	err = s.files.DeleteAfterRecord(ctx, fileURL, func() error {
		return s.repo.DeleteTask(ctx, card.ID)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTaskNotFound
		}
		return transient(err)
	}

	s.emit(TaskEvent{
		Type:    EventTaskDeleted,
		TaskID:  card.ID.String(),
		ActorID: requesterID.String(),
	})

	return nil
}

func (s *taskService) RespondToTask(ctx context.Context, responderID uuid.UUID, input RespondInput) (TaskResponse, error) {
	if strings.TrimSpace(input.ResponseText) == "" {
		return TaskResponse{}, validationf("текст ответа обязателен")
	}

	card, err := s.repo.GetTask(ctx, input.TaskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Уже отвеченная или удалённая карточка неотличима от несуществующей
			return TaskResponse{}, ErrTaskNotFound
		}
		return TaskResponse{}, transient(err)
	}

	if card.TargetUserID != responderID {
		return TaskResponse{}, forbidden("это задание адресовано не вам")
	}

	if input.IdempotencyKey != "" && s.idem != nil {
		ok, err := s.idem.Reserve(ctx, input.IdempotencyKey)
		if err != nil {
			return TaskResponse{}, transient(err)
		}
		if !ok {
			return TaskResponse{}, ErrIdempotencyReplay
		}
	}

	resp := TaskResponse{
		ID:           uuid.New(),
		EmployeeID:   responderID,
		EmployerID:   card.EmployerID,
		ResponseText: input.ResponseText,
		SubmittedAt:  time.Now().UTC(),

		Title:           card.Title,
		Description:     card.Description,
		Deadline:        card.Deadline,
		OriginalFileURL: card.FileURL,
		TaskCreatedAt:   card.CreatedAt,
	}

	if input.Attachment != nil {
		if err := ValidateAttachment(input.Attachment.Filename, input.Attachment.ContentType); err != nil {
			s.releaseIdempotency(input.IdempotencyKey)
			return TaskResponse{}, err
		}
		// Файл ответа загружается до транзакции; падение транзакции
		// откатывает и его.
		_, err := s.files.StoreWithRecord(ctx, *input.Attachment, func(fileURL string) error {
			resp.FileURL = &fileURL
			return s.repo.RespondTask(ctx, card.ID, resp)
		})
		if err != nil {
			s.releaseIdempotency(input.IdempotencyKey)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return TaskResponse{}, ErrTaskNotFound
			}
			return TaskResponse{}, transient(err)
		}
	} else {
		if err := s.repo.RespondTask(ctx, card.ID, resp); err != nil {
			s.releaseIdempotency(input.IdempotencyKey)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return TaskResponse{}, ErrTaskNotFound
			}
			return TaskResponse{}, transient(err)
		}
	}

	s.emit(TaskEvent{
		Type:       EventTaskResponded,
		TaskID:     card.ID.String(),
		ResponseID: resp.ID.String(),
		ActorID:    responderID.String(),
		TargetID:   card.EmployerID.String(),
	})

	return resp, nil
}

func (s *taskService) AvailableAssignees(ctx context.Context, actorID uuid.UUID) ([]assignment.Subject, error) {
	actor, err := s.repo.GetUser(ctx, actorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, transient(err)
	}

	if !assignment.CanAssignAnyone(actor.Role) {
		return nil, forbidden("у вас нет прав для получения списка пользователей")
	}

	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, transient(err)
	}

	subjects := make([]assignment.Subject, 0, len(users))
	for _, u := range users {
		subjects = append(subjects, u.Subject())
	}

	return assignment.VisibleAssignees(actor.Subject(), subjects), nil
}

// releaseIdempotency снимает резервацию ключа после неприменённого ответа.
// Контекст запроса к этому моменту мог быть отменён, поэтому свой.
func (s *taskService) releaseIdempotency(key string) {
	if key == "" || s.idem == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.idem.Release(ctx, key); err != nil {
		s.logger.Printf("failed to release idempotency key %q: %v", key, err)
	}
}

// normalizeDeadline приводит дедлайн к UTC. RFC3339 уже несёт смещение;
// значение без зоны требует явного провалидированного смещения клиента,
// молчаливого UTC по умолчанию нет.
func normalizeDeadline(raw string, tzOffsetMinutes *int) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, validationf("дедлайн обязателен")
	}

	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}

	if tzOffsetMinutes == nil {
		return time.Time{}, validationf("tz_offset_minutes обязателен для дедлайна без часового пояса")
	}
	if *tzOffsetMinutes < -maxTzOffsetMinutes || *tzOffsetMinutes > maxTzOffsetMinutes {
		return time.Time{}, validationf("tz_offset_minutes вне допустимого диапазона")
	}

	loc := time.FixedZone("client", *tzOffsetMinutes*60)
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, validationf("неверный формат дедлайна")
}

// emit отправляет событие асинхронно, не блокируя ответ клиенту.
func (s *taskService) emit(event TaskEvent) {
	if s.producer == nil {
		return
	}
	event.Timestamp = time.Now()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.producer.SendTaskEvent(ctx, event); err != nil {
			s.logger.Printf("failed to send task event %s: %v", event.Type, err)
		}
	}()
}
