package domain

import "errors"

var (
	// ErrPermissionDenied — действие доступно только администратору.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrValidation — некорректные входные данные.
	ErrValidation = errors.New("validation failed")
	// ErrUserAdNotFound — пользовательское объявление не найдено.
	ErrUserAdNotFound = errors.New("user ad not found")
	// ErrInvalidTransition — переход недопустим из текущего состояния.
	ErrInvalidTransition = errors.New("invalid moderation transition")
	// ErrQueueFull — очередь уведомлений переполнена, событие отброшено.
	ErrQueueFull = errors.New("notification queue is full")
)
