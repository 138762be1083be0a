package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrInvalidClaimMode — неизвестный режим захвата заданий.
	ErrInvalidClaimMode = errors.New("invalid claim mode")

	// ErrInvalidIdentifier — имя таблицы, функции или канала некорректно.
	ErrInvalidIdentifier = errors.New("invalid identifier")
)
