package models

import "errors"

// Доменные ошибки. Хранилища возвращают их как есть (или обёрнутыми),
// HTTP-слой матчит через errors.Is и превращает в 400/404/409.
var (
	ErrSessionNotFound   = errors.New("batch session not found")
	ErrScanNotFound      = errors.New("scan not found")
	ErrDuplicateTracking = errors.New("tracking number already scanned in this session")
	ErrSessionNotActive  = errors.New("session is not active")
	ErrInvalidTransition = errors.New("invalid session status transition")
	ErrValidation        = errors.New("validation failed")
)
