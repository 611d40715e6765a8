package pgsession

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/ScanDock/internal/models"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPGSession_RepoFlow(t *testing.T) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "scandock_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/scandock_test?sslmode=disable"
	st, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)

	now := time.Now().UTC()
	sess := &models.BatchSession{
		ID:              "bs_test_1",
		UserID:          "u1",
		UserName:        "Ops",
		DefaultPalletID: "T-20250110",
		Status:          models.SessionStatusActive,
		StartedAt:       now,
		LastActivityAt:  now,
	}
	require.NoError(t, st.CreateSession(ctx, sess))

	got, err := st.GetSession(ctx, "bs_test_1")
	require.NoError(t, err)
	require.Equal(t, "T-20250110", got.DefaultPalletID)
	require.Nil(t, got.CompletedAt)

	_, err = st.GetSession(ctx, "missing")
	require.ErrorIs(t, err, models.ErrSessionNotFound)

	// сканы: добавление, дубль без учёта регистра, счётчик
	require.NoError(t, st.AddScan(ctx, &models.BatchScan{
		ID: "sc1", SessionID: "bs_test_1", TrackingNumber: "ABC123", ScannedAt: now,
	}))
	err = st.AddScan(ctx, &models.BatchScan{
		ID: "sc2", SessionID: "bs_test_1", TrackingNumber: "abc123", ScannedAt: now,
	})
	require.ErrorIs(t, err, models.ErrDuplicateTracking)

	got, err = st.GetSession(ctx, "bs_test_1")
	require.NoError(t, err)
	require.Equal(t, 1, got.PackagesScanned)

	scans, total, err := st.ListScans(ctx, "bs_test_1", 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, scans, 1)
	require.Equal(t, "ABC123", scans[0].TrackingNumber)

	// удаление скана: счётчик обратно к нулю, не ниже
	require.NoError(t, st.DeleteScan(ctx, "bs_test_1", "sc1"))
	require.ErrorIs(t, st.DeleteScan(ctx, "bs_test_1", "sc1"), models.ErrScanNotFound)
	got, _ = st.GetSession(ctx, "bs_test_1")
	require.Equal(t, 0, got.PackagesScanned)

	// атомарный апдейт через замыкание
	updated, err := st.UpdateSession(ctx, "bs_test_1", func(s *models.BatchSession) error {
		s.Status = models.SessionStatusPaused
		s.LastActivityAt = time.Now().UTC()
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusPaused, updated.Status)

	// ошибка из mutate не должна ничего записать
	_, err = st.UpdateSession(ctx, "bs_test_1", func(s *models.BatchSession) error {
		s.Status = models.SessionStatusCompleted
		return models.ErrInvalidTransition
	})
	require.ErrorIs(t, err, models.ErrInvalidTransition)
	got, _ = st.GetSession(ctx, "bs_test_1")
	require.Equal(t, models.SessionStatusPaused, got.Status)

	// скан в неактивную сессию
	err = st.AddScan(ctx, &models.BatchScan{
		ID: "sc3", SessionID: "bs_test_1", TrackingNumber: "XYZ", ScannedAt: now,
	})
	require.ErrorIs(t, err, models.ErrSessionNotActive)

	// reaper: сессия простаивает -> отменяется
	_, err = st.UpdateSession(ctx, "bs_test_1", func(s *models.BatchSession) error {
		s.LastActivityAt = time.Now().UTC().Add(-2 * time.Hour)
		return nil
	})
	require.NoError(t, err)

	cancelled, err := st.CancelStaleSessions(ctx, time.Now().UTC().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	require.Equal(t, models.SessionStatusCancelled, cancelled[0].Status)

	// списки по пользователю
	sessions, err := st.ListSessionsByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	// удаление сессии чистит сканы каскадом
	require.NoError(t, st.DeleteSession(ctx, "bs_test_1"))
	require.ErrorIs(t, st.DeleteSession(ctx, "bs_test_1"), models.ErrSessionNotFound)
	_, _, err = st.ListScans(ctx, "bs_test_1", 10, 0)
	require.ErrorIs(t, err, models.ErrSessionNotFound)
}
