package taskcard

import (
	"errors"
	"fmt"
)

var (
	ErrTaskNotFound      = errors.New("задание не найдено")
	ErrUserNotFound      = errors.New("пользователь не найден")
	ErrTargetNotFound    = errors.New("назначаемый пользователь не найден")
	ErrIdempotencyReplay = errors.New("ответ с этим ключом уже был применён")
)

// ValidationError — локальная ошибка входных данных, повтор бессмысленен.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ForbiddenError несёт причину отказа для пользователя: по тексту различимы
// "чужой отдел", "не та роль" и "не ваше задание".
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string { return e.Reason }

func forbidden(reason string) error {
	return &ForbiddenError{Reason: reason}
}

// TransientError — сбой транспорта к реляционной базе или хранилищу файлов.
// Вызывающий может повторить запрос; компенсации уже выполнены.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "временный сбой хранилища" }

func (e *TransientError) Unwrap() error { return e.Err }

func transient(err error) error {
	return &TransientError{Err: err}
}
