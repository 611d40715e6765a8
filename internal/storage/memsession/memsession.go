package memsession

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/BearBump/ScanDock/internal/models"
)

// Store — in-memory реализация batch.Repository: один mutex на всё
// хранилище, мутации сессии выполняются целиком под локом. Закрывает
// check-then-act гонку оригинальных Map'ов и годится для dev-режима
// и тестов; состояние живёт ровно столько, сколько процесс.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*models.BatchSession
	scans    map[string][]*models.BatchScan
}

func New() *Store {
	return &Store{
		sessions: make(map[string]*models.BatchSession),
		scans:    make(map[string][]*models.BatchScan),
	}
}

func (s *Store) CreateSession(ctx context.Context, sess *models.BatchSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*models.BatchSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *Store) ListSessionsByUser(ctx context.Context, userID string) ([]*models.BatchSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.BatchSession, 0)
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			cp := *sess
			out = append(out, &cp)
		}
	}
	// Новые сессии первыми.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].StartedAt.After(out[i].StartedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (s *Store) UpdateSession(ctx context.Context, id string, mutate func(*models.BatchSession) error) (*models.BatchSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	// Мутируем копию: при ошибке mutate запись остаётся нетронутой.
	cp := *sess
	if err := mutate(&cp); err != nil {
		return nil, err
	}
	s.sessions[id] = &cp
	ret := cp
	return &ret, nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return models.ErrSessionNotFound
	}
	delete(s.sessions, id)
	delete(s.scans, id)
	return nil
}

func (s *Store) AddScan(ctx context.Context, scan *models.BatchScan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[scan.SessionID]
	if !ok {
		return models.ErrSessionNotFound
	}
	if sess.Status != models.SessionStatusActive {
		return models.ErrSessionNotActive
	}
	for _, existing := range s.scans[scan.SessionID] {
		if strings.EqualFold(existing.TrackingNumber, scan.TrackingNumber) {
			return models.ErrDuplicateTracking
		}
	}

	cp := *scan
	s.scans[scan.SessionID] = append(s.scans[scan.SessionID], &cp)
	sess.PackagesScanned++
	sess.LastActivityAt = scan.ScannedAt
	return nil
}

func (s *Store) ListScans(ctx context.Context, sessionID string, limit, offset int) ([]*models.BatchScan, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, 0, models.ErrSessionNotFound
	}

	all := s.scans[sessionID]
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	out := make([]*models.BatchScan, 0, end-offset)
	for _, sc := range all[offset:end] {
		cp := *sc
		out = append(out, &cp)
	}
	return out, total, nil
}

func (s *Store) DeleteScan(ctx context.Context, sessionID, scanID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return models.ErrSessionNotFound
	}

	list := s.scans[sessionID]
	idx := -1
	for i, sc := range list {
		if sc.ID == scanID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.ErrScanNotFound
	}

	s.scans[sessionID] = append(list[:idx], list[idx+1:]...)
	if sess.PackagesScanned > 0 {
		sess.PackagesScanned--
	}
	return nil
}

// CancelStaleSessions отменяет активные/приостановленные сессии,
// простаивающие дольше порога. Возвращает отменённые (для лога/статистики).
func (s *Store) CancelStaleSessions(ctx context.Context, idleBefore time.Time, limit int) ([]*models.BatchSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.BatchSession
	for _, sess := range s.sessions {
		if limit > 0 && len(out) >= limit {
			break
		}
		if sess.Status != models.SessionStatusActive && sess.Status != models.SessionStatusPaused {
			continue
		}
		if !sess.LastActivityAt.Before(idleBefore) {
			continue
		}
		sess.Status = models.SessionStatusCancelled
		cp := *sess
		out = append(out, &cp)
	}
	return out, nil
}
