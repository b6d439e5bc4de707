package taskcard

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Miv21/TaskManager/internal/assignment"
	"github.com/Miv21/TaskManager/internal/dto"
	"github.com/Miv21/TaskManager/internal/storage"
)

type Handler struct {
	service   Service
	jwtSecret []byte
	maxSize   int64
	rdb       *redis.Client
}

func NewHandler(service Service, jwtSecret []byte, maxSize int64, rdb *redis.Client) *Handler {
	return &Handler{
		service:   service,
		jwtSecret: jwtSecret,
		maxSize:   maxSize,
		rdb:       rdb,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/taskcard/create", h.CreateTask)
	mux.HandleFunc("/taskcard/update/", h.UpdateTask)
	mux.HandleFunc("/taskcard/delete/", h.DeleteTask)
	mux.HandleFunc("/taskcard/respond", h.RespondToTask)
	mux.HandleFunc("/taskcard/available", h.AvailableUsers)
	mux.HandleFunc("/taskcard/card", h.UserCards)
	return mux
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, _, err := h.authenticate(r)
	if h.handleAuthError(w, err) {
		return
	}

	if err := r.ParseMultipartForm(h.maxSize); err != nil {
		http.Error(w, "failed to parse multipart form", http.StatusBadRequest)
		return
	}

	targetID, err := uuid.Parse(r.FormValue("target_user_id"))
	if err != nil {
		http.Error(w, "invalid target_user_id", http.StatusBadRequest)
		return
	}

	offset, err := parseOffset(r.FormValue("tz_offset_minutes"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	input := CreateTaskInput{
		Title:           r.FormValue("title"),
		Description:     r.FormValue("description"),
		TargetUserID:    targetID,
		DeadlineRaw:     r.FormValue("deadline"),
		TzOffsetMinutes: offset,
	}

	attachment, err := h.formAttachment(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	input.Attachment = attachment

	card, err := h.service.CreateTask(r.Context(), userID, input)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(dto.CreateTaskResponse{TaskID: card.ID.String()})
}

func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, _, err := h.authenticate(r)
	if h.handleAuthError(w, err) {
		return
	}

	taskID, ok := pathID(w, r, "/taskcard/update/")
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(h.maxSize); err != nil {
		http.Error(w, "failed to parse multipart form", http.StatusBadRequest)
		return
	}

	targetID, err := uuid.Parse(r.FormValue("target_user_id"))
	if err != nil {
		http.Error(w, "invalid target_user_id", http.StatusBadRequest)
		return
	}

	offset, err := parseOffset(r.FormValue("tz_offset_minutes"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	input := UpdateTaskInput{
		Title:           r.FormValue("title"),
		Description:     r.FormValue("description"),
		TargetUserID:    targetID,
		DeadlineRaw:     r.FormValue("deadline"),
		TzOffsetMinutes: offset,
	}

	attachment, err := h.formAttachment(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	input.Attachment = attachment

	card, err := h.service.UpdateTask(r.Context(), userID, taskID, input)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(taskCardResponse(card))
}

func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, _, err := h.authenticate(r)
	if h.handleAuthError(w, err) {
		return
	}

	taskID, ok := pathID(w, r, "/taskcard/delete/")
	if !ok {
		return
	}

	if err := h.service.DeleteTask(r.Context(), userID, taskID); err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RespondToTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, _, err := h.authenticate(r)
	if h.handleAuthError(w, err) {
		return
	}

	if err := r.ParseMultipartForm(h.maxSize); err != nil {
		http.Error(w, "failed to parse multipart form", http.StatusBadRequest)
		return
	}

	taskID, err := uuid.Parse(r.FormValue("task_id"))
	if err != nil {
		http.Error(w, "invalid task_id", http.StatusBadRequest)
		return
	}

	input := RespondInput{
		TaskID:         taskID,
		ResponseText:   r.FormValue("response_text"),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}

	attachment, err := h.formAttachment(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	input.Attachment = attachment

	resp, err := h.service.RespondToTask(r.Context(), userID, input)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(dto.RespondResponse{ResponseID: resp.ID.String()})
}

func (h *Handler) AvailableUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, _, err := h.authenticate(r)
	if h.handleAuthError(w, err) {
		return
	}

	subjects, err := h.service.AvailableAssignees(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := make([]dto.AssigneeResponse, 0, len(subjects))
	for _, s := range subjects {
		resp = append(resp, dto.AssigneeResponse{
			ID:    s.ID.String(),
			Name:  s.Name,
			Email: s.Email,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) UserCards(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, _, err := h.authenticate(r)
	if h.handleAuthError(w, err) {
		return
	}

	cards, err := h.service.ProjectViews(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := make([]dto.ViewCardResponse, 0, len(cards))
	for _, c := range cards {
		resp = append(resp, viewCardResponse(c))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// writeServiceError переводит ошибки сервиса в HTTP-статусы. Детали сбоев
// хранилищ наружу не уходят.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var vErr *ValidationError
	var fErr *ForbiddenError
	var tErr *TransientError

	switch {
	case errors.As(err, &vErr):
		http.Error(w, vErr.Msg, http.StatusBadRequest)
	case errors.As(err, &fErr):
		http.Error(w, fErr.Reason, http.StatusForbidden)
	case errors.Is(err, ErrTaskNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrUserNotFound):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, ErrTargetNotFound):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrIdempotencyReplay):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &tErr):
		http.Error(w, "временный сбой, попробуйте позже", http.StatusBadGateway)
	default:
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// formAttachment достаёт необязательный файл из multipart-формы.
func (h *Handler) formAttachment(r *http.Request) (*storage.Upload, error) {
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, errors.New("failed to read file")
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.New("failed to read file")
	}

	filename := SanitizeFilename(fileHeader.Filename)
	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(content)
	}

	return &storage.Upload{
		Filename:    filename,
		ContentType: contentType,
		Data:        content,
	}, nil
}

type authClaims struct {
	UserID       string `json:"user_id"`
	Role         string `json:"role"`
	DepartmentID string `json:"department_id,omitempty"`
	jwt.RegisteredClaims
}

const (
	tokenBlacklistPrefix = "auth:token:blacklist:"
	authCookieName       = "access_token"
)

var errUnauthorized = errors.New("unauthorized")

func (h *Handler) authenticate(r *http.Request) (uuid.UUID, assignment.Role, error) {
	tokenString, err := h.tokenFromRequest(r)
	if err != nil {
		return uuid.Nil, "", err
	}

	claims := &authClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return h.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, "", errUnauthorized
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, "", errUnauthorized
	}

	role, ok := assignment.ParseRole(claims.Role)
	if !ok {
		return uuid.Nil, "", errUnauthorized
	}

	if claims.ID == "" {
		return uuid.Nil, "", errUnauthorized
	}

	if h.rdb != nil {
		key := tokenBlacklistPrefix + claims.ID
		exists, err := h.rdb.Exists(r.Context(), key).Result()
		if err != nil {
			return uuid.Nil, "", err
		}
		if exists == 1 {
			return uuid.Nil, "", errUnauthorized
		}
	}

	return userID, role, nil
}

func (h *Handler) handleAuthError(w http.ResponseWriter, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errUnauthorized) {
		http.Error(w, "требуется авторизация: войдите в систему", http.StatusUnauthorized)
	} else {
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
	return true
}

func (h *Handler) tokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if token, err := extractBearerToken(authHeader); err == nil {
		return token, nil
	}

	if cookie, err := r.Cookie(authCookieName); err == nil {
		if token := strings.TrimSpace(cookie.Value); token != "" {
			return token, nil
		}
	}

	return "", errUnauthorized
}

func extractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errUnauthorized
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errUnauthorized
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errUnauthorized
	}

	return token, nil
}

func pathID(w http.ResponseWriter, r *http.Request, prefix string) (uuid.UUID, bool) {
	path := strings.TrimPrefix(r.URL.Path, prefix)
	if path == "" || path == r.URL.Path {
		http.Error(w, "id is required in path", http.StatusBadRequest)
		return uuid.Nil, false
	}

	id, err := uuid.Parse(path)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// parseOffset различает отсутствующее смещение (nil) и присланное:
// нужен ли он вообще, решает сервис по формату дедлайна.
func parseOffset(value string) (*int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	offset, err := strconv.Atoi(value)
	if err != nil {
		return nil, errors.New("invalid tz_offset_minutes")
	}
	return &offset, nil
}

func taskCardResponse(card TaskCard) dto.TaskCardResponse {
	return dto.TaskCardResponse{
		ID:           card.ID.String(),
		Title:        card.Title,
		Description:  card.Description,
		EmployerID:   card.EmployerID.String(),
		TargetUserID: card.TargetUserID.String(),
		FileURL:      card.FileURL,
		Deadline:     card.Deadline.Format(time.RFC3339),
		CreatedAt:    card.CreatedAt.Format(time.RFC3339),
	}
}

func viewCardResponse(c ViewCard) dto.ViewCardResponse {
	resp := dto.ViewCardResponse{
		Type:             string(c.Type),
		Title:            c.Title,
		Description:      c.Description,
		Deadline:         c.Deadline.Format(time.RFC3339),
		TaskCreationTime: c.TaskCreationTime.Format(time.RFC3339),
		FileURL:          c.FileURL,
		OriginalFileURL:  c.OriginalFileURL,
		ResponseText:     c.ResponseText,
		EmployerName:     c.EmployerName,
		TargetUserEmail:  c.TargetUserEmail,
	}
	if c.TaskID != nil {
		id := c.TaskID.String()
		resp.TaskID = &id
	}
	if c.ResponseID != nil {
		id := c.ResponseID.String()
		resp.ResponseID = &id
	}
	if c.TargetUserID != nil {
		id := c.TargetUserID.String()
		resp.TargetUserID = &id
	}
	return resp
}
