package taskcard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Miv21/TaskManager/internal/assignment"
	"github.com/Miv21/TaskManager/internal/storage"
)

type fakeRepo struct {
	users     map[uuid.UUID]Users
	tasks     map[uuid.UUID]TaskCard
	responses map[uuid.UUID]TaskResponse

	createErr  error
	updateErr  error
	deleteErr  error
	respondErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:     make(map[uuid.UUID]Users),
		tasks:     make(map[uuid.UUID]TaskCard),
		responses: make(map[uuid.UUID]TaskResponse),
	}
}

func (r *fakeRepo) addUser(role assignment.Role, dept *uuid.UUID) Users {
	u := Users{
		ID:           uuid.New(),
		Name:         string(role) + " user",
		Email:        uuid.New().String()[:8] + "@example.com",
		Role:         role,
		DepartmentID: dept,
	}
	r.users[u.ID] = u
	return u
}

func (r *fakeRepo) GetUser(_ context.Context, id uuid.UUID) (Users, error) {
	u, ok := r.users[id]
	if !ok {
		return Users{}, gorm.ErrRecordNotFound
	}
	return u, nil
}

func (r *fakeRepo) ListUsers(_ context.Context) ([]Users, error) {
	users := make([]Users, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, u)
	}
	return users, nil
}

func (r *fakeRepo) CreateTask(_ context.Context, t TaskCard) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.tasks[t.ID] = t
	return nil
}

func (r *fakeRepo) GetTask(_ context.Context, id uuid.UUID) (TaskCard, error) {
	t, ok := r.tasks[id]
	if !ok {
		return TaskCard{}, gorm.ErrRecordNotFound
	}
	return t, nil
}

func (r *fakeRepo) UpdateTask(_ context.Context, id uuid.UUID, updates map[string]interface{}) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	t, ok := r.tasks[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if v, ok := updates["title"]; ok {
		t.Title = v.(string)
	}
	if v, ok := updates["description"]; ok {
		t.Description = v.(string)
	}
	if v, ok := updates["deadline"]; ok {
		t.Deadline = v.(time.Time)
	}
	if v, ok := updates["target_user_id"]; ok {
		t.TargetUserID = v.(uuid.UUID)
	}
	if v, ok := updates["file_url"]; ok {
		url := v.(string)
		t.FileURL = &url
	}
	r.tasks[id] = t
	return nil
}

func (r *fakeRepo) DeleteTask(_ context.Context, id uuid.UUID) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	if _, ok := r.tasks[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.tasks, id)
	return nil
}

func (r *fakeRepo) RespondTask(_ context.Context, taskID uuid.UUID, resp TaskResponse) error {
	if r.respondErr != nil {
		return r.respondErr
	}
	if _, ok := r.tasks[taskID]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.tasks, taskID)
	r.responses[resp.ID] = resp
	return nil
}

func (r *fakeRepo) OpenTasksByTarget(_ context.Context, userID uuid.UUID) ([]TaskCard, error) {
	var tasks []TaskCard
	for _, t := range r.tasks {
		if t.TargetUserID == userID {
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

func (r *fakeRepo) OpenTasksByCreator(_ context.Context, userID uuid.UUID) ([]TaskCard, error) {
	var tasks []TaskCard
	for _, t := range r.tasks {
		if t.EmployerID == userID {
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

func (r *fakeRepo) ResponsesByEmployee(_ context.Context, userID uuid.UUID) ([]TaskResponse, error) {
	var responses []TaskResponse
	for _, resp := range r.responses {
		if resp.EmployeeID == userID {
			responses = append(responses, resp)
		}
	}
	return responses, nil
}

func (r *fakeRepo) ResponsesByEmployer(_ context.Context, userID uuid.UUID) ([]TaskResponse, error) {
	var responses []TaskResponse
	for _, resp := range r.responses {
		if resp.EmployerID == userID {
			responses = append(responses, resp)
		}
	}
	return responses, nil
}

type fakeObjectStorage struct {
	saved     []string
	deleted   []string
	saveErr   error
	deleteErr error
	saveCalls int
}

func (f *fakeObjectStorage) Save(_ context.Context, filename, _ string, _ []byte) (string, error) {
	f.saveCalls++
	if f.saveErr != nil {
		return "", f.saveErr
	}
	url := fmt.Sprintf("http://store/files/obj-%d-%s", f.saveCalls, filename)
	f.saved = append(f.saved, url)
	return url, nil
}

func (f *fakeObjectStorage) Delete(_ context.Context, fileURL string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, fileURL)
	return nil
}

type fakeIdemStore struct {
	reserved map[string]bool
}

func (f *fakeIdemStore) Reserve(_ context.Context, key string) (bool, error) {
	if f.reserved == nil {
		f.reserved = make(map[string]bool)
	}
	if f.reserved[key] {
		return false, nil
	}
	f.reserved[key] = true
	return true, nil
}

func (f *fakeIdemStore) Release(_ context.Context, key string) error {
	delete(f.reserved, key)
	return nil
}

func newTestService(repo *fakeRepo, store *fakeObjectStorage, idem IdempotencyStore) Service {
	logger := log.New(io.Discard, "", 0)
	coordinator := storage.NewCoordinator(store, nil, nil, logger)
	return NewService(repo, coordinator, nil, idem, logger)
}

func pdfUpload() *storage.Upload {
	return &storage.Upload{Filename: "report.pdf", ContentType: "application/pdf", Data: []byte("%PDF-")}
}

func createInput(targetID uuid.UUID) CreateTaskInput {
	return CreateTaskInput{
		Title:        "Квартальный отчёт",
		Description:  "Собрать цифры по отделу",
		TargetUserID: targetID,
		DeadlineRaw:  "2025-10-01T18:00:00+03:00",
	}
}

func TestCreateTaskAuthorization(t *testing.T) {
	deptA := uuid.New()
	deptB := uuid.New()

	repo := newFakeRepo()
	employerA := repo.addUser(assignment.RoleEmployer, &deptA)
	employerB := repo.addUser(assignment.RoleEmployer, &deptB)
	employeeA := repo.addUser(assignment.RoleEmployee, &deptA)
	employeeB := repo.addUser(assignment.RoleEmployee, &deptB)
	freeAgent := repo.addUser(assignment.RoleEmployee, nil)
	senior := repo.addUser(assignment.RoleSeniorEmployer, nil)

	svc := newTestService(repo, &fakeObjectStorage{}, nil)
	ctx := context.Background()

	cases := []struct {
		name       string
		creator    Users
		target     Users
		wantOK     bool
		wantReason string
	}{
		{"employer same department", employerA, employeeA, true, ""},
		{"employer other department", employerA, employeeB, false, assignment.DenyReason(assignment.RoleEmployer)},
		{"senior to employer", senior, employerB, true, ""},
		{"senior to department employee", senior, employeeA, false, assignment.DenyReason(assignment.RoleSeniorEmployer)},
		{"senior to free agent", senior, freeAgent, true, ""},
		{"employee cannot assign", employeeA, employeeB, false, assignment.DenyReason(assignment.RoleEmployee)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			card, err := svc.CreateTask(ctx, tc.creator.ID, createInput(tc.target.ID))
			if tc.wantOK {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				stored, ok := repo.tasks[card.ID]
				if !ok {
					t.Fatal("card not persisted")
				}
				if stored.EmployerID != tc.creator.ID || stored.TargetUserID != tc.target.ID {
					t.Errorf("wrong card ownership: %+v", stored)
				}
				return
			}

			var fErr *ForbiddenError
			if !errors.As(err, &fErr) {
				t.Fatalf("expected ForbiddenError, got %v", err)
			}
			if fErr.Reason != tc.wantReason {
				t.Errorf("reason = %q, want %q", fErr.Reason, tc.wantReason)
			}
		})
	}
}

func TestCreateTaskValidation(t *testing.T) {
	dept := uuid.New()
	repo := newFakeRepo()
	employer := repo.addUser(assignment.RoleEmployer, &dept)
	employee := repo.addUser(assignment.RoleEmployee, &dept)
	svc := newTestService(repo, &fakeObjectStorage{}, nil)
	ctx := context.Background()

	t.Run("empty title", func(t *testing.T) {
		input := createInput(employee.ID)
		input.Title = "   "
		_, err := svc.CreateTask(ctx, employer.ID, input)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("unknown target", func(t *testing.T) {
		_, err := svc.CreateTask(ctx, employer.ID, createInput(uuid.New()))
		if !errors.Is(err, ErrTargetNotFound) {
			t.Fatalf("expected ErrTargetNotFound, got %v", err)
		}
	})

	t.Run("unknown creator", func(t *testing.T) {
		_, err := svc.CreateTask(ctx, uuid.New(), createInput(employee.ID))
		if !errors.Is(err, ErrUserNotFound) {
			t.Fatalf("expected ErrUserNotFound, got %v", err)
		}
	})
}

func offset(minutes int) *int { return &minutes }

func TestNormalizeDeadline(t *testing.T) {
	t.Run("naive value uses client offset", func(t *testing.T) {
		got, err := normalizeDeadline("2025-10-01T10:00", offset(180))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := time.Date(2025, 10, 1, 7, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("rfc3339 keeps its own offset", func(t *testing.T) {
		got, err := normalizeDeadline("2025-10-01T10:00:00-05:00", offset(180))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := time.Date(2025, 10, 1, 15, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("rfc3339 does not need an offset", func(t *testing.T) {
		if _, err := normalizeDeadline("2025-10-01T10:00:00+03:00", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("naive value without offset is rejected", func(t *testing.T) {
		_, err := normalizeDeadline("2025-10-01T10:00", nil)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("offset out of range", func(t *testing.T) {
		_, err := normalizeDeadline("2025-10-01T10:00", offset(15*60))
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("empty deadline", func(t *testing.T) {
		_, err := normalizeDeadline("  ", nil)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})
}

func TestCreateTaskAttachmentSaga(t *testing.T) {
	dept := uuid.New()

	t.Run("upload failure leaves no row", func(t *testing.T) {
		repo := newFakeRepo()
		employer := repo.addUser(assignment.RoleEmployer, &dept)
		employee := repo.addUser(assignment.RoleEmployee, &dept)
		store := &fakeObjectStorage{saveErr: errors.New("store down")}
		svc := newTestService(repo, store, nil)

		input := createInput(employee.ID)
		input.Attachment = pdfUpload()
		_, err := svc.CreateTask(context.Background(), employer.ID, input)

		var tErr *TransientError
		if !errors.As(err, &tErr) {
			t.Fatalf("expected TransientError, got %v", err)
		}
		if len(repo.tasks) != 0 {
			t.Error("no card may exist after a failed upload")
		}
	})

	t.Run("insert failure deletes uploaded blob", func(t *testing.T) {
		repo := newFakeRepo()
		employer := repo.addUser(assignment.RoleEmployer, &dept)
		employee := repo.addUser(assignment.RoleEmployee, &dept)
		repo.createErr = errors.New("insert failed")
		store := &fakeObjectStorage{}
		svc := newTestService(repo, store, nil)

		input := createInput(employee.ID)
		input.Attachment = pdfUpload()
		_, err := svc.CreateTask(context.Background(), employer.ID, input)
		if err == nil {
			t.Fatal("expected error")
		}
		if len(store.saved) != 1 || len(store.deleted) != 1 || store.deleted[0] != store.saved[0] {
			t.Errorf("uploaded blob must be compensated: saved=%v deleted=%v", store.saved, store.deleted)
		}
	})

	t.Run("rejects disallowed file type", func(t *testing.T) {
		repo := newFakeRepo()
		employer := repo.addUser(assignment.RoleEmployer, &dept)
		employee := repo.addUser(assignment.RoleEmployee, &dept)
		store := &fakeObjectStorage{}
		svc := newTestService(repo, store, nil)

		input := createInput(employee.ID)
		input.Attachment = &storage.Upload{Filename: "run.exe", ContentType: "application/octet-stream"}
		_, err := svc.CreateTask(context.Background(), employer.ID, input)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if store.saveCalls != 0 {
			t.Error("invalid attachment must not reach the store")
		}
	})
}

func TestRespondToTask(t *testing.T) {
	dept := uuid.New()

	setup := func() (*fakeRepo, *fakeObjectStorage, Service, Users, Users, TaskCard) {
		repo := newFakeRepo()
		employer := repo.addUser(assignment.RoleEmployer, &dept)
		employee := repo.addUser(assignment.RoleEmployee, &dept)
		store := &fakeObjectStorage{}
		svc := newTestService(repo, store, nil)

		card, err := svc.CreateTask(context.Background(), employer.ID, createInput(employee.ID))
		if err != nil {
			t.Fatalf("setup create failed: %v", err)
		}
		return repo, store, svc, employer, employee, card
	}

	t.Run("empty text is rejected without state change", func(t *testing.T) {
		repo, _, svc, _, employee, card := setup()
		_, err := svc.RespondToTask(context.Background(), employee.ID, RespondInput{TaskID: card.ID, ResponseText: "   "})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if _, ok := repo.tasks[card.ID]; !ok {
			t.Error("card must survive a rejected respond")
		}
	})

	t.Run("only the target may respond", func(t *testing.T) {
		repo, _, svc, employer, _, card := setup()
		_, err := svc.RespondToTask(context.Background(), employer.ID, RespondInput{TaskID: card.ID, ResponseText: "готово"})
		var fErr *ForbiddenError
		if !errors.As(err, &fErr) {
			t.Fatalf("expected ForbiddenError, got %v", err)
		}
		if _, ok := repo.tasks[card.ID]; !ok {
			t.Error("card must survive a forbidden respond")
		}
	})

	t.Run("success consumes the card and snapshots it", func(t *testing.T) {
		repo, _, svc, employer, employee, card := setup()
		resp, err := svc.RespondToTask(context.Background(), employee.ID, RespondInput{TaskID: card.ID, ResponseText: "готово"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, ok := repo.tasks[card.ID]; ok {
			t.Error("card must be gone after respond")
		}
		stored, ok := repo.responses[resp.ID]
		if !ok {
			t.Fatal("response not persisted")
		}
		if stored.Title != card.Title || stored.Description != card.Description || !stored.Deadline.Equal(card.Deadline) {
			t.Errorf("snapshot mismatch: %+v vs card %+v", stored, card)
		}
		if stored.EmployeeID != employee.ID || stored.EmployerID != employer.ID {
			t.Errorf("provenance mismatch: %+v", stored)
		}

		// повторный ответ по той же карточке — уже NotFound
		_, err = svc.RespondToTask(context.Background(), employee.ID, RespondInput{TaskID: card.ID, ResponseText: "ещё раз"})
		if !errors.Is(err, ErrTaskNotFound) {
			t.Fatalf("expected ErrTaskNotFound, got %v", err)
		}
	})

	t.Run("snapshot keeps the original attachment reference", func(t *testing.T) {
		repo := newFakeRepo()
		employer := repo.addUser(assignment.RoleEmployer, &dept)
		employee := repo.addUser(assignment.RoleEmployee, &dept)
		store := &fakeObjectStorage{}
		svc := newTestService(repo, store, nil)

		input := createInput(employee.ID)
		input.Attachment = pdfUpload()
		card, err := svc.CreateTask(context.Background(), employer.ID, input)
		if err != nil {
			t.Fatalf("setup create failed: %v", err)
		}

		resp, err := svc.RespondToTask(context.Background(), employee.ID, RespondInput{TaskID: card.ID, ResponseText: "готово"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		stored := repo.responses[resp.ID]
		if stored.OriginalFileURL == nil || *stored.OriginalFileURL != store.saved[0] {
			t.Errorf("original attachment reference lost: %+v", stored.OriginalFileURL)
		}
	})

	t.Run("failed transaction rolls back the response attachment", func(t *testing.T) {
		repo, store, svc, _, employee, card := setup()
		repo.respondErr = errors.New("tx failed")

		_, err := svc.RespondToTask(context.Background(), employee.ID, RespondInput{
			TaskID:       card.ID,
			ResponseText: "готово",
			Attachment:   pdfUpload(),
		})
		if err == nil {
			t.Fatal("expected error")
		}
		if _, ok := repo.tasks[card.ID]; !ok {
			t.Error("card must survive a failed transaction")
		}
		if len(store.deleted) == 0 || store.deleted[len(store.deleted)-1] != store.saved[len(store.saved)-1] {
			t.Errorf("response blob must be compensated: saved=%v deleted=%v", store.saved, store.deleted)
		}
	})

	t.Run("key is released after a transient failure so the retry passes", func(t *testing.T) {
		repo := newFakeRepo()
		employer := repo.addUser(assignment.RoleEmployer, &dept)
		employee := repo.addUser(assignment.RoleEmployee, &dept)
		svc := newTestService(repo, &fakeObjectStorage{}, &fakeIdemStore{})

		card, err := svc.CreateTask(context.Background(), employer.ID, createInput(employee.ID))
		if err != nil {
			t.Fatalf("setup create failed: %v", err)
		}

		repo.respondErr = errors.New("connection reset")
		input := RespondInput{TaskID: card.ID, ResponseText: "готово", IdempotencyKey: "key-retry"}
		_, err = svc.RespondToTask(context.Background(), employee.ID, input)
		var tErr *TransientError
		if !errors.As(err, &tErr) {
			t.Fatalf("expected TransientError, got %v", err)
		}

		repo.respondErr = nil
		if _, err := svc.RespondToTask(context.Background(), employee.ID, input); err != nil {
			t.Fatalf("retry after a transient failure must succeed, got: %v", err)
		}
		if _, ok := repo.tasks[card.ID]; ok {
			t.Error("card must be consumed by the successful retry")
		}
	})

	t.Run("idempotency key blocks a replay", func(t *testing.T) {
		repo := newFakeRepo()
		employer := repo.addUser(assignment.RoleEmployer, &dept)
		employee := repo.addUser(assignment.RoleEmployee, &dept)
		svc := newTestService(repo, &fakeObjectStorage{}, &fakeIdemStore{})

		first, err := svc.CreateTask(context.Background(), employer.ID, createInput(employee.ID))
		if err != nil {
			t.Fatalf("setup create failed: %v", err)
		}
		second, err := svc.CreateTask(context.Background(), employer.ID, createInput(employee.ID))
		if err != nil {
			t.Fatalf("setup create failed: %v", err)
		}

		if _, err := svc.RespondToTask(context.Background(), employee.ID, RespondInput{
			TaskID: first.ID, ResponseText: "готово", IdempotencyKey: "key-1",
		}); err != nil {
			t.Fatalf("first respond failed: %v", err)
		}

		_, err = svc.RespondToTask(context.Background(), employee.ID, RespondInput{
			TaskID: second.ID, ResponseText: "готово", IdempotencyKey: "key-1",
		})
		if !errors.Is(err, ErrIdempotencyReplay) {
			t.Fatalf("expected ErrIdempotencyReplay, got %v", err)
		}
		if _, ok := repo.tasks[second.ID]; !ok {
			t.Error("replayed respond must not consume the card")
		}
	})
}

func TestDeleteTask(t *testing.T) {
	dept := uuid.New()

	setup := func(withFile bool) (*fakeRepo, *fakeObjectStorage, Service, Users, TaskCard) {
		repo := newFakeRepo()
		employer := repo.addUser(assignment.RoleEmployer, &dept)
		employee := repo.addUser(assignment.RoleEmployee, &dept)
		store := &fakeObjectStorage{}
		svc := newTestService(repo, store, nil)

		input := createInput(employee.ID)
		if withFile {
			input.Attachment = pdfUpload()
		}
		card, err := svc.CreateTask(context.Background(), employer.ID, input)
		if err != nil {
			t.Fatalf("setup create failed: %v", err)
		}
		return repo, store, svc, employer, card
	}

	t.Run("stranger cannot delete", func(t *testing.T) {
		repo, store, svc, _, card := setup(true)
		stranger := repo.addUser(assignment.RoleEmployer, &dept)

		err := svc.DeleteTask(context.Background(), stranger.ID, card.ID)
		var fErr *ForbiddenError
		if !errors.As(err, &fErr) {
			t.Fatalf("expected ForbiddenError, got %v", err)
		}
		if _, ok := repo.tasks[card.ID]; !ok {
			t.Error("card must survive")
		}
		if len(store.deleted) != 0 {
			t.Error("attachment must survive")
		}
	})

	t.Run("creator deletes card and attachment", func(t *testing.T) {
		repo, store, svc, employer, card := setup(true)

		if err := svc.DeleteTask(context.Background(), employer.ID, card.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := repo.tasks[card.ID]; ok {
			t.Error("card must be gone")
		}
		if len(store.deleted) != 1 || store.deleted[0] != store.saved[0] {
			t.Errorf("attachment must be deleted: %v", store.deleted)
		}
	})

	t.Run("blob delete failure is swallowed", func(t *testing.T) {
		repo, store, svc, employer, card := setup(true)
		store.deleteErr = errors.New("store unreachable")

		if err := svc.DeleteTask(context.Background(), employer.ID, card.ID); err != nil {
			t.Fatalf("orphaned blob must not fail the delete: %v", err)
		}
		if _, ok := repo.tasks[card.ID]; ok {
			t.Error("card must be gone")
		}
	})

	t.Run("missing card is not found", func(t *testing.T) {
		_, _, svc, employer, _ := setup(false)
		err := svc.DeleteTask(context.Background(), employer.ID, uuid.New())
		if !errors.Is(err, ErrTaskNotFound) {
			t.Fatalf("expected ErrTaskNotFound, got %v", err)
		}
	})
}

func TestUpdateTask(t *testing.T) {
	dept := uuid.New()

	setup := func(withFile bool) (*fakeRepo, *fakeObjectStorage, Service, Users, Users, TaskCard) {
		repo := newFakeRepo()
		employer := repo.addUser(assignment.RoleEmployer, &dept)
		employee := repo.addUser(assignment.RoleEmployee, &dept)
		store := &fakeObjectStorage{}
		svc := newTestService(repo, store, nil)

		input := createInput(employee.ID)
		if withFile {
			input.Attachment = pdfUpload()
		}
		card, err := svc.CreateTask(context.Background(), employer.ID, input)
		if err != nil {
			t.Fatalf("setup create failed: %v", err)
		}
		return repo, store, svc, employer, employee, card
	}

	updInput := func(targetID uuid.UUID) UpdateTaskInput {
		return UpdateTaskInput{
			Title:        "Обновлённый отчёт",
			Description:  "Новое описание",
			TargetUserID: targetID,
			DeadlineRaw:  "2025-11-01T18:00:00+03:00",
		}
	}

	t.Run("only the creator may update", func(t *testing.T) {
		repo, _, svc, _, employee, card := setup(false)
		stranger := repo.addUser(assignment.RoleEmployer, &dept)

		_, err := svc.UpdateTask(context.Background(), stranger.ID, card.ID, updInput(employee.ID))
		var fErr *ForbiddenError
		if !errors.As(err, &fErr) {
			t.Fatalf("expected ForbiddenError, got %v", err)
		}
	})

	t.Run("fields are updated", func(t *testing.T) {
		repo, _, svc, employer, employee, card := setup(false)

		updated, err := svc.UpdateTask(context.Background(), employer.ID, card.ID, updInput(employee.ID))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if updated.Title != "Обновлённый отчёт" {
			t.Errorf("title not updated: %q", updated.Title)
		}
		if got := repo.tasks[card.ID]; got.Title != updated.Title {
			t.Errorf("repo state mismatch: %q", got.Title)
		}
	})

	t.Run("target change is re-validated", func(t *testing.T) {
		repo, _, svc, employer, _, card := setup(false)
		otherDept := uuid.New()
		outsider := repo.addUser(assignment.RoleEmployee, &otherDept)

		_, err := svc.UpdateTask(context.Background(), employer.ID, card.ID, updInput(outsider.ID))
		var fErr *ForbiddenError
		if !errors.As(err, &fErr) {
			t.Fatalf("expected ForbiddenError, got %v", err)
		}
		if fErr.Reason != assignment.DenyReason(assignment.RoleEmployer) {
			t.Errorf("reason = %q", fErr.Reason)
		}
	})

	t.Run("replacement deletes the old attachment after commit", func(t *testing.T) {
		repo, store, svc, employer, employee, card := setup(true)
		oldURL := store.saved[0]

		input := updInput(employee.ID)
		input.Attachment = pdfUpload()
		updated, err := svc.UpdateTask(context.Background(), employer.ID, card.ID, input)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if updated.FileURL == nil || *updated.FileURL == oldURL {
			t.Errorf("card must reference the new object, got %v", updated.FileURL)
		}
		if len(store.deleted) != 1 || store.deleted[0] != oldURL {
			t.Errorf("old object must be deleted, deleted=%v", store.deleted)
		}
		if got := repo.tasks[card.ID]; got.FileURL == nil || *got.FileURL != *updated.FileURL {
			t.Errorf("repo reference mismatch: %v", got.FileURL)
		}
	})

	t.Run("failed commit keeps old reference and rolls back new blob", func(t *testing.T) {
		repo, store, svc, employer, employee, card := setup(true)
		oldURL := store.saved[0]
		repo.updateErr = errors.New("update failed")

		input := updInput(employee.ID)
		input.Attachment = pdfUpload()
		_, err := svc.UpdateTask(context.Background(), employer.ID, card.ID, input)
		if err == nil {
			t.Fatal("expected error")
		}

		current := repo.tasks[card.ID]
		if current.FileURL == nil || *current.FileURL != oldURL {
			t.Errorf("old reference must be intact, got %v", current.FileURL)
		}
		newURL := store.saved[len(store.saved)-1]
		if newURL == oldURL || len(store.deleted) != 1 || store.deleted[0] != newURL {
			t.Errorf("new blob must be rolled back: saved=%v deleted=%v", store.saved, store.deleted)
		}
	})
}

func TestAvailableAssignees(t *testing.T) {
	deptA := uuid.New()
	deptB := uuid.New()

	repo := newFakeRepo()
	employerA := repo.addUser(assignment.RoleEmployer, &deptA)
	repo.addUser(assignment.RoleEmployer, &deptB)
	colleague := repo.addUser(assignment.RoleEmployee, &deptA)
	repo.addUser(assignment.RoleEmployee, &deptB)
	employee := repo.addUser(assignment.RoleEmployee, &deptA)

	svc := newTestService(repo, &fakeObjectStorage{}, nil)
	ctx := context.Background()

	t.Run("employee is refused", func(t *testing.T) {
		_, err := svc.AvailableAssignees(ctx, employee.ID)
		var fErr *ForbiddenError
		if !errors.As(err, &fErr) {
			t.Fatalf("expected ForbiddenError, got %v", err)
		}
	})

	t.Run("list matches CanAssign exactly", func(t *testing.T) {
		subjects, err := svc.AvailableAssignees(ctx, employerA.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		actor := repo.users[employerA.ID].Subject()
		got := make(map[uuid.UUID]bool, len(subjects))
		for _, s := range subjects {
			got[s.ID] = true
			if !assignment.CanAssign(actor, s) {
				t.Errorf("listed subject %s fails CanAssign", s.ID)
			}
		}
		for _, u := range repo.users {
			if assignment.CanAssign(actor, u.Subject()) && !got[u.ID] {
				t.Errorf("assignable subject %s missing from the list", u.ID)
			}
		}
		if !got[colleague.ID] {
			t.Error("same-department colleague must be visible")
		}
	})
}

func TestDenyReasonDistinguishesCauses(t *testing.T) {
	if strings.Contains(assignment.DenyReason(assignment.RoleEmployee), "отдел") {
		t.Error("role-based denial must not mention departments")
	}
	if !strings.Contains(assignment.DenyReason(assignment.RoleEmployer), "отдел") {
		t.Error("employer denial is about departments")
	}
}
