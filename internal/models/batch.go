package models

import "time"

// Статусы сессии сканирования.
const (
	SessionStatusActive    = "active"
	SessionStatusPaused    = "paused"
	SessionStatusCompleted = "completed"
	SessionStatusCancelled = "cancelled"
)

// CanTransition отвечает, допустим ли переход статуса сессии.
// active ⇄ paused; active/paused → completed; active/paused → cancelled.
// completed и cancelled — терминальные.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	switch from {
	case SessionStatusActive:
		return to == SessionStatusPaused || to == SessionStatusCompleted || to == SessionStatusCancelled
	case SessionStatusPaused:
		return to == SessionStatusActive || to == SessionStatusCompleted || to == SessionStatusCancelled
	default:
		return false
	}
}

func IsValidSessionStatus(s string) bool {
	switch s {
	case SessionStatusActive, SessionStatusPaused, SessionStatusCompleted, SessionStatusCancelled:
		return true
	}
	return false
}

// BatchSession — сессия пакетного сканирования: значения по умолчанию
// для полей пакета и счётчик отсканированного.
type BatchSession struct {
	ID                string     `json:"session_id"`
	UserID            string     `json:"user_id"`
	UserName          string     `json:"user_name,omitempty"`
	DefaultPalletID   string     `json:"default_pallet_id,omitempty"`
	DefaultPriority   string     `json:"default_priority,omitempty"`
	DefaultWeightUnit string     `json:"default_weight_unit,omitempty"`
	DefaultContent    string     `json:"default_content,omitempty"`
	DefaultWeight     *float64   `json:"default_weight,omitempty"`
	DefaultBoxID      string     `json:"default_box_id,omitempty"`
	PackagesScanned   int        `json:"packages_scanned"`
	Status            string     `json:"status"`
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	LastActivityAt    time.Time  `json:"last_activity_at"`
}

// BatchScan — один скан трек-номера внутри сессии.
// Трек-номер уникален внутри сессии (без учёта регистра).
// Создаётся и удаляется, но никогда не изменяется.
type BatchScan struct {
	ID             string    `json:"scan_id"`
	SessionID      string    `json:"session_id"`
	TrackingNumber string    `json:"tracking_number"`
	Weight         *float64  `json:"weight,omitempty"`
	RecipientName  string    `json:"recipient_name,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	ScannedAt      time.Time `json:"scanned_at"`
}

// SessionUpdate — частичное обновление сессии (PATCH). nil-поле не трогаем.
type SessionUpdate struct {
	Status            *string
	DefaultPalletID   *string
	DefaultPriority   *string
	DefaultWeightUnit *string
	DefaultContent    *string
	DefaultWeight     *float64
	DefaultBoxID      *string
}
