package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/ScanDock/internal/broker/messages"
	"github.com/BearBump/ScanDock/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Repository — единое хранилище сессий и сканов. Ровно один инстанс
// делится между всеми обработчиками: исторически у /batch и /batch/:id/scan
// были независимые Map'ы, и сессии "не видели" друг друга.
// Мутации выполняются атомарно по ключу сессии (замыкание под локом / tx).
type Repository interface {
	CreateSession(ctx context.Context, s *models.BatchSession) error
	GetSession(ctx context.Context, id string) (*models.BatchSession, error)
	ListSessionsByUser(ctx context.Context, userID string) ([]*models.BatchSession, error)
	UpdateSession(ctx context.Context, id string, mutate func(*models.BatchSession) error) (*models.BatchSession, error)
	DeleteSession(ctx context.Context, id string) error

	// AddScan атомарно проверяет, что сессия существует и активна,
	// отклоняет дубль трек-номера (без учёта регистра) и инкрементирует счётчик.
	AddScan(ctx context.Context, scan *models.BatchScan) error
	ListScans(ctx context.Context, sessionID string, limit, offset int) ([]*models.BatchScan, int, error)
	// DeleteScan декрементирует счётчик сессии (не ниже нуля).
	DeleteScan(ctx context.Context, sessionID, scanID string) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// StatusPusher проставляет статус отсканированным пакетам во внешнем
// Packages API при завершении сессии.
type StatusPusher interface {
	BulkUpdateStatus(ctx context.Context, trackingCodes []string, statusName string) error
}

type Topics struct {
	ScanRecorded     string
	SessionCompleted string
}

const (
	defaultScanLimit = 50
	maxScanLimit     = 500
)

var (
	validPriorities  = map[string]struct{}{"low": {}, "normal": {}, "high": {}, "urgent": {}}
	validWeightUnits = map[string]struct{}{"lb": {}, "kg": {}, "oz": {}}
)

type Service struct {
	repo     Repository
	producer Producer
	topics   Topics

	pusher          StatusPusher
	completedStatus string

	now func() time.Time
}

func New(repo Repository, producer Producer, topics Topics) *Service {
	return &Service{
		repo:     repo,
		producer: producer,
		topics:   topics,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithStatusPush включает bulk-update-status при завершении сессии.
func (s *Service) WithStatusPush(p StatusPusher, statusName string) *Service {
	s.pusher = p
	s.completedStatus = statusName
	return s
}

type CreateSessionInput struct {
	UserID            string
	UserName          string
	DefaultPalletID   string
	DefaultPriority   string
	DefaultWeightUnit string
	DefaultContent    string
	DefaultWeight     *float64
	DefaultBoxID      string
}

func (s *Service) CreateSession(ctx context.Context, in CreateSessionInput) (*models.BatchSession, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, errors.Wrap(models.ErrValidation, "user_id is required")
	}
	if in.DefaultPriority != "" {
		if _, ok := validPriorities[in.DefaultPriority]; !ok {
			return nil, errors.Wrapf(models.ErrValidation, "invalid priority %q", in.DefaultPriority)
		}
	}
	if in.DefaultWeightUnit != "" {
		if _, ok := validWeightUnits[in.DefaultWeightUnit]; !ok {
			return nil, errors.Wrapf(models.ErrValidation, "invalid weight unit %q", in.DefaultWeightUnit)
		}
	}
	if in.DefaultWeight != nil && *in.DefaultWeight <= 0 {
		return nil, errors.Wrap(models.ErrValidation, "default weight must be positive")
	}

	now := s.now()
	sess := &models.BatchSession{
		ID:                newID("bs", now),
		UserID:            in.UserID,
		UserName:          in.UserName,
		DefaultPalletID:   in.DefaultPalletID,
		DefaultPriority:   in.DefaultPriority,
		DefaultWeightUnit: in.DefaultWeightUnit,
		DefaultContent:    in.DefaultContent,
		DefaultWeight:     in.DefaultWeight,
		DefaultBoxID:      in.DefaultBoxID,
		PackagesScanned:   0,
		Status:            models.SessionStatusActive,
		StartedAt:         now,
		LastActivityAt:    now,
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) GetSession(ctx context.Context, id string) (*models.BatchSession, error) {
	if id == "" {
		return nil, errors.Wrap(models.ErrValidation, "session_id is required")
	}
	return s.repo.GetSession(ctx, id)
}

func (s *Service) ListSessionsByUser(ctx context.Context, userID string) ([]*models.BatchSession, error) {
	if userID == "" {
		return nil, errors.Wrap(models.ErrValidation, "user_id is required")
	}
	return s.repo.ListSessionsByUser(ctx, userID)
}

// UpdateSession — частичное обновление. Переход статуса проверяется по
// машине состояний: active ⇄ paused → completed/cancelled; терминальные
// статусы из PATCH не реанимируются.
func (s *Service) UpdateSession(ctx context.Context, id string, upd models.SessionUpdate) (*models.BatchSession, error) {
	if id == "" {
		return nil, errors.Wrap(models.ErrValidation, "session_id is required")
	}
	if upd.Status != nil && !models.IsValidSessionStatus(*upd.Status) {
		return nil, errors.Wrapf(models.ErrInvalidTransition, "unknown status %q", *upd.Status)
	}
	if upd.DefaultPriority != nil && *upd.DefaultPriority != "" {
		if _, ok := validPriorities[*upd.DefaultPriority]; !ok {
			return nil, errors.Wrapf(models.ErrValidation, "invalid priority %q", *upd.DefaultPriority)
		}
	}
	if upd.DefaultWeightUnit != nil && *upd.DefaultWeightUnit != "" {
		if _, ok := validWeightUnits[*upd.DefaultWeightUnit]; !ok {
			return nil, errors.Wrapf(models.ErrValidation, "invalid weight unit %q", *upd.DefaultWeightUnit)
		}
	}

	completedNow := false
	sess, err := s.repo.UpdateSession(ctx, id, func(sess *models.BatchSession) error {
		if upd.Status != nil && *upd.Status != sess.Status {
			if !models.CanTransition(sess.Status, *upd.Status) {
				return errors.Wrapf(models.ErrInvalidTransition, "%s -> %s", sess.Status, *upd.Status)
			}
			if *upd.Status == models.SessionStatusCompleted {
				now := s.now()
				sess.CompletedAt = &now
				completedNow = true
			}
			sess.Status = *upd.Status
		}
		if upd.DefaultPalletID != nil {
			sess.DefaultPalletID = *upd.DefaultPalletID
		}
		if upd.DefaultPriority != nil {
			sess.DefaultPriority = *upd.DefaultPriority
		}
		if upd.DefaultWeightUnit != nil {
			sess.DefaultWeightUnit = *upd.DefaultWeightUnit
		}
		if upd.DefaultContent != nil {
			sess.DefaultContent = *upd.DefaultContent
		}
		if upd.DefaultWeight != nil {
			sess.DefaultWeight = upd.DefaultWeight
		}
		if upd.DefaultBoxID != nil {
			sess.DefaultBoxID = *upd.DefaultBoxID
		}
		sess.LastActivityAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if completedNow {
		s.onSessionCompleted(ctx, sess)
	}
	return sess, nil
}

func (s *Service) DeleteSession(ctx context.Context, id string) error {
	if id == "" {
		return errors.Wrap(models.ErrValidation, "session_id is required")
	}
	return s.repo.DeleteSession(ctx, id)
}

type ScanInput struct {
	TrackingNumber string
	Weight         *float64
	RecipientName  string
	Notes          string
}

// AddScan записывает скан. Дубль трек-номера в рамках сессии (без учёта
// регистра) — 409 на уровне HTTP; счётчик при этом не меняется.
func (s *Service) AddScan(ctx context.Context, sessionID string, in ScanInput) (*models.BatchScan, *models.BatchSession, error) {
	if sessionID == "" {
		return nil, nil, errors.Wrap(models.ErrValidation, "session_id is required")
	}
	tracking := strings.TrimSpace(in.TrackingNumber)
	if tracking == "" {
		return nil, nil, errors.Wrap(models.ErrValidation, "tracking_number is required")
	}
	if in.Weight != nil && *in.Weight <= 0 {
		return nil, nil, errors.Wrap(models.ErrValidation, "weight must be positive")
	}

	now := s.now()
	scan := &models.BatchScan{
		ID:             newID("scan", now),
		SessionID:      sessionID,
		TrackingNumber: tracking,
		Weight:         in.Weight,
		RecipientName:  in.RecipientName,
		Notes:          in.Notes,
		ScannedAt:      now,
	}
	if err := s.repo.AddScan(ctx, scan); err != nil {
		return nil, nil, err
	}

	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	s.publish(ctx, s.topics.ScanRecorded, sessionID, messages.ScanRecorded{
		SessionID:      sessionID,
		ScanID:         scan.ID,
		UserID:         sess.UserID,
		TrackingNumber: scan.TrackingNumber,
		Weight:         scan.Weight,
		ScannedAt:      scan.ScannedAt,
	})

	return scan, sess, nil
}

func (s *Service) ListScans(ctx context.Context, sessionID string, limit, offset int) ([]*models.BatchScan, int, *models.BatchSession, error) {
	if sessionID == "" {
		return nil, 0, nil, errors.Wrap(models.ErrValidation, "session_id is required")
	}
	if limit <= 0 {
		limit = defaultScanLimit
	}
	if limit > maxScanLimit {
		limit = maxScanLimit
	}
	if offset < 0 {
		offset = 0
	}

	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, 0, nil, err
	}
	scans, total, err := s.repo.ListScans(ctx, sessionID, limit, offset)
	if err != nil {
		return nil, 0, nil, err
	}
	return scans, total, sess, nil
}

func (s *Service) DeleteScan(ctx context.Context, sessionID, scanID string) (*models.BatchSession, error) {
	if sessionID == "" {
		return nil, errors.Wrap(models.ErrValidation, "session_id is required")
	}
	if scanID == "" {
		return nil, errors.Wrap(models.ErrValidation, "scan_id is required")
	}
	if err := s.repo.DeleteScan(ctx, sessionID, scanID); err != nil {
		return nil, err
	}
	return s.repo.GetSession(ctx, sessionID)
}

// onSessionCompleted: событие в Kafka + best-effort bulk-update статусов
// во внешнем API. Ошибки не роняют завершение сессии — только в лог.
func (s *Service) onSessionCompleted(ctx context.Context, sess *models.BatchSession) {
	completedAt := s.now()
	if sess.CompletedAt != nil {
		completedAt = *sess.CompletedAt
	}
	s.publish(ctx, s.topics.SessionCompleted, sess.ID, messages.SessionCompleted{
		SessionID:       sess.ID,
		UserID:          sess.UserID,
		PackagesScanned: sess.PackagesScanned,
		CompletedAt:     completedAt,
	})

	if s.pusher == nil || s.completedStatus == "" {
		return
	}
	trackings, err := s.allTrackingNumbers(ctx, sess.ID)
	if err != nil {
		slog.Warn("collect trackings for bulk update", "session_id", sess.ID, "error", err.Error())
		return
	}
	if len(trackings) == 0 {
		return
	}
	if err := s.pusher.BulkUpdateStatus(ctx, trackings, s.completedStatus); err != nil {
		slog.Warn("bulk update status", "session_id", sess.ID, "error", err.Error())
	}
}

func (s *Service) allTrackingNumbers(ctx context.Context, sessionID string) ([]string, error) {
	var out []string
	offset := 0
	for {
		scans, total, err := s.repo.ListScans(ctx, sessionID, maxScanLimit, offset)
		if err != nil {
			return nil, err
		}
		for _, sc := range scans {
			out = append(out, sc.TrackingNumber)
		}
		offset += len(scans)
		if offset >= total || len(scans) == 0 {
			break
		}
	}
	return out, nil
}

func (s *Service) publish(ctx context.Context, topic, key string, msg any) {
	if s.producer == nil || topic == "" {
		return
	}
	b, err := json.Marshal(msg)
	if err != nil {
		slog.Warn("marshal event", "topic", topic, "error", err.Error())
		return
	}
	if err := s.producer.Publish(ctx, topic, []byte(key), b); err != nil {
		slog.Warn("publish event", "topic", topic, "error", err.Error())
	}
}

// newID — время + случайный хвост, как у "time+random" токенов оригинала.
func newID(prefix string, now time.Time) string {
	return fmt.Sprintf("%s_%d_%s", prefix, now.UnixMilli(), strings.Split(uuid.NewString(), "-")[0])
}
