package search

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BearBump/ScanDock/internal/integrations/packagesapi"
	"github.com/BearBump/ScanDock/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	trackingIn    string
	trackingOut   []*models.Package
	trackingErr   error
	trackingCalls int

	clientIn    string
	clientPage  *packagesapi.ClientPage
	clientErr   error
	clientCalls int

	metaOut json.RawMessage
}

func (f *fakeClient) TrackingMatches(ctx context.Context, query string) ([]*models.Package, error) {
	f.trackingIn = query
	f.trackingCalls++
	return f.trackingOut, f.trackingErr
}

func (f *fakeClient) ListByClient(ctx context.Context, query string, page, pageSize int) (*packagesapi.ClientPage, error) {
	f.clientIn = query
	f.clientCalls++
	return f.clientPage, f.clientErr
}

func (f *fakeClient) Metadata(ctx context.Context, kind string) (json.RawMessage, error) {
	return f.metaOut, nil
}

type fakeCache struct {
	m map[string][]byte
}

func newFakeCache() *fakeCache { return &fakeCache{m: map[string][]byte{}} }

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, ok := c.m[key]
	return b, ok, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.m[key] = value
	return nil
}

func pkgs(n int) []*models.Package {
	out := make([]*models.Package, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &models.Package{ID: int64(i + 1)})
	}
	return out
}

func TestSearch_TrackingPaginationSlicing(t *testing.T) {
	// 30 результатов, страница 2 по 25: ровно 5 штук, next нет, prev есть.
	c := &fakeClient{trackingOut: pkgs(30)}
	s := New(c, nil, 0, 0)

	res, err := s.Search(context.Background(), "1234567890", 2, 25)
	require.NoError(t, err)
	require.Equal(t, models.SearchKindTracking, res.Kind)
	require.Len(t, res.Results, 5)
	require.Equal(t, 5, res.TotalFound)
	require.NotNil(t, res.TotalAvailable)
	require.Equal(t, 30, *res.TotalAvailable)
	require.False(t, res.HasNextPage)
	require.True(t, res.HasPreviousPage)
	require.Equal(t, int64(26), res.Results[0].ID)
}

func TestSearch_TrackingFirstPage(t *testing.T) {
	c := &fakeClient{trackingOut: pkgs(30)}
	s := New(c, nil, 0, 0)

	res, err := s.Search(context.Background(), "1234567890", 1, 25)
	require.NoError(t, err)
	require.Len(t, res.Results, 25)
	require.True(t, res.HasNextPage)
	require.False(t, res.HasPreviousPage)
}

func TestSearch_TrackingPageBeyondEnd(t *testing.T) {
	c := &fakeClient{trackingOut: pkgs(3)}
	s := New(c, nil, 0, 0)

	res, err := s.Search(context.Background(), "1234567890", 5, 25)
	require.NoError(t, err)
	require.Empty(t, res.Results)
	require.False(t, res.HasNextPage)
	require.True(t, res.HasPreviousPage)
}

func TestSearch_ClientTrustsBackendPaging(t *testing.T) {
	c := &fakeClient{clientPage: &packagesapi.ClientPage{
		Items:           pkgs(25),
		TotalCount:      80,
		HasNextPage:     true,
		HasPreviousPage: true,
	}}
	s := New(c, nil, 0, 0)

	res, err := s.Search(context.Background(), "Maria Gonzalez", 2, 25)
	require.NoError(t, err)
	require.Equal(t, models.SearchKindClient, res.Kind)
	require.Equal(t, 25, res.TotalFound)
	require.Equal(t, 80, *res.TotalAvailable)
	require.True(t, res.HasNextPage)
	require.True(t, res.HasPreviousPage)
	require.Zero(t, c.trackingCalls)
}

func TestSearch_MixedFallsBackToClient(t *testing.T) {
	// mixed: трекинг пустой -> идём в клиентский поиск.
	c := &fakeClient{
		trackingOut: nil,
		clientPage:  &packagesapi.ClientPage{Items: pkgs(1), TotalCount: 1},
	}
	s := New(c, nil, 0, 0)

	res, err := s.Search(context.Background(), "123456", 1, 25)
	require.NoError(t, err)
	require.Equal(t, models.SearchKindMixed, res.Kind)
	require.Equal(t, 1, res.TotalFound)
	require.Equal(t, 1, c.trackingCalls)
	require.Equal(t, 1, c.clientCalls)
}

func TestSearch_MixedKeepsStrategyBeyondLastTrackingPage(t *testing.T) {
	// 30 трекинг-совпадений, страница 3 по 25 пуста — но совпадения есть,
	// значит fallback на клиентский поиск не делаем: стратегия не меняется
	// посреди пагинации одного и того же запроса.
	c := &fakeClient{
		trackingOut: pkgs(30),
		clientPage:  &packagesapi.ClientPage{Items: pkgs(7), TotalCount: 7},
	}
	s := New(c, nil, 0, 0)

	res, err := s.Search(context.Background(), "123456", 3, 25)
	require.NoError(t, err)
	require.Equal(t, models.SearchKindMixed, res.Kind)
	require.Empty(t, res.Results)
	require.Equal(t, 30, *res.TotalAvailable)
	require.False(t, res.HasNextPage)
	require.True(t, res.HasPreviousPage)
	require.Zero(t, c.clientCalls)
}

func TestSearch_MixedStopsAtTrackingHit(t *testing.T) {
	c := &fakeClient{trackingOut: pkgs(2)}
	s := New(c, nil, 0, 0)

	res, err := s.Search(context.Background(), "123456", 1, 25)
	require.NoError(t, err)
	require.Equal(t, 2, res.TotalFound)
	require.Zero(t, c.clientCalls)
}

func TestSearch_EmptyQuery(t *testing.T) {
	s := New(&fakeClient{}, nil, 0, 0)
	_, err := s.Search(context.Background(), "   ", 1, 25)
	require.Error(t, err)
}

func TestSearch_NormalizesPaging(t *testing.T) {
	c := &fakeClient{trackingOut: pkgs(3)}
	s := New(c, nil, 0, 0)

	res, err := s.Search(context.Background(), "1234567890", 0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, res.Page)
	require.Equal(t, defaultPageSize, res.PageSize)
}

func TestSearch_BackendError(t *testing.T) {
	c := &fakeClient{trackingErr: errors.New("boom")}
	s := New(c, nil, 0, 0)
	_, err := s.Search(context.Background(), "1234567890", 1, 25)
	require.Error(t, err)
}

func TestSearch_CacheRoundTrip(t *testing.T) {
	c := &fakeClient{trackingOut: pkgs(2)}
	fc := newFakeCache()
	s := New(c, fc, time.Minute, 0)

	first, err := s.Search(context.Background(), "1234567890", 1, 25)
	require.NoError(t, err)
	require.False(t, first.Cached)
	require.Equal(t, 1, c.trackingCalls)

	second, err := s.Search(context.Background(), "1234567890", 1, 25)
	require.NoError(t, err)
	require.True(t, second.Cached)
	require.Equal(t, 1, c.trackingCalls) // бэкенд не трогали
	require.Equal(t, first.TotalFound, second.TotalFound)
}

func TestSearch_VersionBumpInvalidatesCache(t *testing.T) {
	c := &fakeClient{trackingOut: pkgs(2)}
	fc := newFakeCache()
	s := New(c, fc, time.Minute, 0)

	_, err := s.Search(context.Background(), "1234567890", 1, 25)
	require.NoError(t, err)
	require.Equal(t, 1, c.trackingCalls)

	fc.m[VersionKey] = []byte("1")

	res, err := s.Search(context.Background(), "1234567890", 1, 25)
	require.NoError(t, err)
	require.False(t, res.Cached)
	require.Equal(t, 2, c.trackingCalls)
}

func TestMetadata_Cached(t *testing.T) {
	c := &fakeClient{metaOut: json.RawMessage(`[{"id":1}]`)}
	fc := newFakeCache()
	s := New(c, fc, 0, time.Minute)

	raw, cached, err := s.Metadata(context.Background(), "countries")
	require.NoError(t, err)
	require.False(t, cached)
	require.JSONEq(t, `[{"id":1}]`, string(raw))

	raw, cached, err = s.Metadata(context.Background(), "countries")
	require.NoError(t, err)
	require.True(t, cached)
	require.JSONEq(t, `[{"id":1}]`, string(raw))
}
