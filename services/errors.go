package services

import "errors"

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	// Ресурс не найден (универсальная)
	ErrNotFound = errors.New("requested resource not found")

	// Ошибки валидации счёта
	ErrInvalidScore = errors.New("invalid score: game scores must be non-negative numbers")
	ErrTiedResult   = errors.New("tied result: a decisive outcome is required")

	// Конфликты состояния верификации
	ErrDuplicateSubmission = errors.New("an open score submission already exists for this match")
	ErrAlreadyFinal        = errors.New("match result is already final")
	ErrMatchNotDisputed    = errors.New("match is not in a disputed state")
	ErrMatchNotPlayable    = errors.New("match is not ready for a score submission")

	// Ошибки прав и политики
	ErrUnauthorized     = errors.New("operation not allowed for the current user")
	ErrNotEligible      = errors.New("user is not eligible to confirm this submission")
	ErrDisputesDisabled = errors.New("disputes are disabled for this competition")

	// Продвижение по сетке не может продолжиться без перезаписи чужих данных;
	// автоматическое исправление запрещено, требуется ручное вмешательство.
	ErrConsistencyViolation = errors.New("bracket consistency violation: downstream slots already filled")

	// Ошибки формирования пулов
	ErrPoolDuplicateTeam = errors.New("team assigned to more than one pool")
	ErrPoolEmpty         = errors.New("pool assignment must not be empty")

	// Ошибки, специфичные для сущностей (дублируют ErrNotFound, но дают контекст)
	ErrUserNotFound        = errors.New("user not found")
	ErrMatchNotFound       = errors.New("match not found")
	ErrSubmissionNotFound  = errors.New("score submission not found")
	ErrCompetitionNotFound = errors.New("competition not found")
	ErrDivisionNotFound    = errors.New("division not found")
)
