package messages

import "time"

// ScanRecorded публикуется после успешного добавления скана в сессию.
type ScanRecorded struct {
	SessionID      string    `json:"session_id"`
	ScanID         string    `json:"scan_id"`
	UserID         string    `json:"user_id"`
	TrackingNumber string    `json:"tracking_number"`
	Weight         *float64  `json:"weight,omitempty"`
	ScannedAt      time.Time `json:"scanned_at"`
}

// SessionCompleted публикуется при переходе сессии в completed.
type SessionCompleted struct {
	SessionID       string    `json:"session_id"`
	UserID          string    `json:"user_id"`
	PackagesScanned int       `json:"packages_scanned"`
	CompletedAt     time.Time `json:"completed_at"`
}

// SessionCancelled публикуется reaper'ом при отмене брошенной сессии.
type SessionCancelled struct {
	SessionID       string    `json:"session_id"`
	UserID          string    `json:"user_id"`
	PackagesScanned int       `json:"packages_scanned"`
	IdleSince       time.Time `json:"idle_since"`
	CancelledAt     time.Time `json:"cancelled_at"`
}

// PackagesUpdated приходит от внешней системы при изменении пакетов.
// scan-api по этому событию инвалидирует поисковый кэш.
type PackagesUpdated struct {
	PackageIDs    []int64   `json:"package_ids,omitempty"`
	TrackingCodes []string  `json:"tracking_codes,omitempty"`
	StatusName    string    `json:"status_name,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}
