package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation возвращается для некорректных входных данных (пустой заголовок, неверная дата).
	ErrValidation = errors.New("validation error")
	// ErrInvalidSchedule возвращается, если время публикации не в будущем.
	ErrInvalidSchedule = errors.New("invalid schedule")
	// ErrIllegalTransition возвращается, если операция недопустима из текущего статуса.
	ErrIllegalTransition = errors.New("illegal transition")
	// ErrNotFound возвращается для неизвестного идентификатора объявления.
	ErrNotFound = errors.New("broadcast not found")
	// ErrTransientStore возвращается при временной недоступности хранилища.
	ErrTransientStore = errors.New("transient store error")
	// ErrForbidden возвращается, если у участника нет прав на операцию.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthenticated возвращается, если участник запроса не определён.
	ErrUnauthenticated = errors.New("unauthenticated")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Validationf создаёт ошибку валидации с описанием.
func Validationf(format string, args ...any) error {
	return validationf(format, args...)
}

// Transient оборачивает ошибку хранилища как временную.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransientStore, err)
}
