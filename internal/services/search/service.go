package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BearBump/ScanDock/internal/cache"
	"github.com/BearBump/ScanDock/internal/integrations/packagesapi"
	"github.com/BearBump/ScanDock/internal/models"
	"github.com/pkg/errors"
)

// VersionKey инкрементируется консьюмером packages.updated: бамп версии
// делает все ранее закэшированные страницы недостижимыми.
const VersionKey = "search:ver"

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

type PackagesClient interface {
	TrackingMatches(ctx context.Context, query string) ([]*models.Package, error)
	ListByClient(ctx context.Context, query string, page, pageSize int) (*packagesapi.ClientPage, error)
	Metadata(ctx context.Context, kind string) (json.RawMessage, error)
}

type Service struct {
	client    PackagesClient
	cache     cache.BytesCache
	searchTTL time.Duration
	metaTTL   time.Duration
}

func New(client PackagesClient, c cache.BytesCache, searchTTL, metaTTL time.Duration) *Service {
	return &Service{client: client, cache: c, searchTTL: searchTTL, metaTTL: metaTTL}
}

// Search — "умный" диспетчер: по виду запроса выбирает стратегию.
// tracking → трекинг-поиск; client → поиск по клиенту; mixed → сначала
// трекинг (дешевле: индексированный точный/частичный матч), при нуле
// результатов — fallback на клиентский поиск.
func (s *Service) Search(ctx context.Context, query string, page, pageSize int) (*models.SearchResult, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, errors.Wrap(models.ErrValidation, "query is required")
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	kind := Classify(q)

	key := s.cacheKey(ctx, kind, q, page, pageSize)
	if s.cache != nil && s.searchTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var res models.SearchResult
			if json.Unmarshal(b, &res) == nil {
				res.Cached = true
				return &res, nil
			}
		}
	}

	started := time.Now()

	var (
		res *models.SearchResult
		err error
	)
	switch kind {
	case models.SearchKindTracking:
		res, err = s.searchByTracking(ctx, q, page, pageSize)
	case models.SearchKindClient:
		res, err = s.searchByClient(ctx, q, page, pageSize)
	default:
		res, err = s.searchByTracking(ctx, q, page, pageSize)
		// Fallback только когда совпадений нет ВООБЩЕ. Пустая страница за
		// концом выдачи — не повод менять стратегию посреди пагинации.
		if err == nil && res.TotalAvailable != nil && *res.TotalAvailable == 0 {
			res, err = s.searchByClient(ctx, q, page, pageSize)
		}
	}
	if err != nil {
		return nil, err
	}

	res.Kind = kind
	res.ExecutionMS = time.Since(started).Milliseconds()

	if s.cache != nil && s.searchTTL > 0 {
		if b, err := json.Marshal(res); err == nil {
			_ = s.cache.Set(ctx, key, b, s.searchTTL)
		}
	}
	return res, nil
}

// searchByTracking: бэкенд отдаёт все совпадения разом, страницы режем сами.
// Это дёшево, пока трекинг-матчей немного (точный/префиксный матч по индексу).
func (s *Service) searchByTracking(ctx context.Context, q string, page, pageSize int) (*models.SearchResult, error) {
	all, err := s.client.TrackingMatches(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "tracking search")
	}

	total := len(all)
	start := (page - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	items := all[start:end]
	return &models.SearchResult{
		Query:           q,
		Results:         items,
		TotalFound:      len(items),
		TotalAvailable:  &total,
		Page:            page,
		PageSize:        pageSize,
		HasNextPage:     end < total,
		HasPreviousPage: page > 1,
	}, nil
}

// searchByClient: пагинация на стороне бэкенда, его totalCount/hasNext/hasPrev
// принимаем как есть. Стоимость страницы здесь другая, чем у трекинг-поиска, —
// это осознанная асимметрия двух стратегий.
func (s *Service) searchByClient(ctx context.Context, q string, page, pageSize int) (*models.SearchResult, error) {
	p, err := s.client.ListByClient(ctx, q, page, pageSize)
	if err != nil {
		return nil, errors.Wrap(err, "client search")
	}

	total := p.TotalCount
	return &models.SearchResult{
		Query:           q,
		Results:         p.Items,
		TotalFound:      len(p.Items),
		TotalAvailable:  &total,
		Page:            page,
		PageSize:        pageSize,
		HasNextPage:     p.HasNextPage,
		HasPreviousPage: p.HasPreviousPage,
	}, nil
}

// Metadata отдаёт справочник (states | countries | tarimas) с кэшированием.
func (s *Service) Metadata(ctx context.Context, kind string) (json.RawMessage, bool, error) {
	key := "meta:" + kind
	if s.cache != nil && s.metaTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			return json.RawMessage(b), true, nil
		}
	}

	raw, err := s.client.Metadata(ctx, kind)
	if err != nil {
		return nil, false, err
	}

	if s.cache != nil && s.metaTTL > 0 {
		_ = s.cache.Set(ctx, key, raw, s.metaTTL)
	}
	return raw, false, nil
}

func (s *Service) cacheKey(ctx context.Context, kind, q string, page, pageSize int) string {
	ver := "0"
	if s.cache != nil {
		if b, ok, err := s.cache.Get(ctx, VersionKey); err == nil && ok {
			ver = string(b)
		}
	}
	return fmt.Sprintf("search:v%s:%s:%d:%d:%s", ver, kind, page, pageSize, strings.ToLower(q))
}
