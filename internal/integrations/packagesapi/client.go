package packagesapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/BearBump/ScanDock/internal/models"
	"github.com/pkg/errors"
)

// ClientPage — страница серверной пагинации /api/Packages.
// totalCount/hasNextPage/hasPreviousPage приходят от бэкенда, мы им верим.
type ClientPage struct {
	Items           []*models.Package
	TotalCount      int
	HasNextPage     bool
	HasPreviousPage bool
}

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		// В легаси-конфигах встречались и :5001, и :5286 — каноничный дефолт :5001.
		baseURL = "http://localhost:5001"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type packageDTO struct {
	ID        int64   `json:"id"`
	Fecha     string  `json:"fecha"`
	CreadoPor string  `json:"creadoPor"`
	Tracking  string  `json:"tracking"`
	Pais      string  `json:"pais"`
	Tarima    string  `json:"tarima"`
	Guia      string  `json:"guia"`
	CIPaquete string  `json:"ciPaquete"`
	Contenido string  `json:"contenido"`
	Monto     float64 `json:"monto"`
	Peso      float64 `json:"peso"`
	Estado    string  `json:"estado"`
	EstadoID  *int64  `json:"estadoId"`
	UsuarioID string  `json:"usuarioId"`
}

type listResp struct {
	Data            []packageDTO `json:"data"`
	TotalCount      int          `json:"totalCount"`
	HasNextPage     bool         `json:"hasNextPage"`
	HasPreviousPage bool         `json:"hasPreviousPage"`
}

// TrackingMatches дёргает трекинг-поиск. Бэкенд отдаёт ВСЕ совпадения
// без пагинации — страницы нарезает вызывающая сторона.
func (c *Client) TrackingMatches(ctx context.Context, query string) ([]*models.Package, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	u.Path = "/api/Packages/search/tracking/" + url.PathEscape(query)

	var dtos []packageDTO
	if err := c.getJSON(ctx, u, &dtos); err != nil {
		return nil, err
	}

	out := make([]*models.Package, 0, len(dtos))
	for i := range dtos {
		out = append(out, toModel(&dtos[i]))
	}
	return out, nil
}

// ListByClient дёргает общий листинг с серверной пагинацией
// и фиксированной сортировкой по дате (новые первыми).
func (c *Client) ListByClient(ctx context.Context, query string, page, pageSize int) (*ClientPage, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	u.Path = "/api/Packages"

	q := u.Query()
	q.Set("BuscarPorCliente", query)
	q.Set("ElementosPorPagina", strconv.Itoa(pageSize))
	q.Set("Pagina", strconv.Itoa(page))
	q.Set("OrdenarPor", "fecha")
	q.Set("Descendente", "true")
	u.RawQuery = q.Encode()

	var r listResp
	if err := c.getJSON(ctx, u, &r); err != nil {
		return nil, err
	}

	items := make([]*models.Package, 0, len(r.Data))
	for i := range r.Data {
		items = append(items, toModel(&r.Data[i]))
	}
	return &ClientPage{
		Items:           items,
		TotalCount:      r.TotalCount,
		HasNextPage:     r.HasNextPage,
		HasPreviousPage: r.HasPreviousPage,
	}, nil
}

// Metadata отдаёт справочник как есть (states | countries | tarimas).
// Кэширование — забота вызывающей стороны.
func (c *Client) Metadata(ctx context.Context, kind string) (json.RawMessage, error) {
	switch kind {
	case "states", "countries", "tarimas":
	default:
		return nil, errors.Errorf("unknown metadata kind %q", kind)
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	u.Path = "/api/Packages/metadata/" + kind

	var raw json.RawMessage
	if err := c.getJSON(ctx, u, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// BulkUpdateStatus проставляет статус пачке пакетов по трек-номерам.
func (c *Client) BulkUpdateStatus(ctx context.Context, trackingCodes []string, statusName string) error {
	if len(trackingCodes) == 0 {
		return nil
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return errors.Wrap(err, "parse base url")
	}
	u.Path = "/api/Packages/bulk-update-status"

	body, err := json.Marshal(map[string]any{
		"trackings": trackingCodes,
		"estado":    statusName,
	})
	if err != nil {
		return errors.Wrap(err, "marshal body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("packages api http %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, u *url.URL, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	c.auth(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("packages api http %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode")
	}
	return nil
}

func (c *Client) auth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
}

func toModel(d *packageDTO) *models.Package {
	return &models.Package{
		ID:             d.ID,
		Date:           d.Fecha,
		CreatedBy:      d.CreadoPor,
		TrackingCode:   d.Tracking,
		Country:        d.Pais,
		PalletNumber:   d.Tarima,
		AirwayBill:     d.Guia,
		CustomsInvoice: d.CIPaquete,
		Content:        d.Contenido,
		AmountDue:      d.Monto,
		Weight:         d.Peso,
		StatusName:     d.Estado,
		StatusID:       d.EstadoID,
		UserID:         d.UsuarioID,
	}
}
