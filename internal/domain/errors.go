package domain

import "errors"

var (
	// ErrNoMatchingNodes значит, что под фильтры не попал ни один узел
	// со здоровой SSH-сессией.
	ErrNoMatchingNodes = errors.New("no nodes with healthy SSH sessions available")

	// ErrInvalidTarget is returned for probe targets that are neither an
	// IP literal nor a resolvable hostname.
	ErrInvalidTarget = errors.New("invalid target IP or hostname")
)
