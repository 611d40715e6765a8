package models

// Виды поискового запроса (результат эвристического классификатора).
const (
	SearchKindTracking = "tracking"
	SearchKindClient   = "client"
	SearchKindMixed    = "mixed"
)

// Package — снимок пакета из внешнего Packages API.
// Не авторитетная сущность: всегда перечитывается, никогда не мутируется.
type Package struct {
	ID             int64    `json:"id"`
	Date           string   `json:"date"`
	CreatedBy      string   `json:"created_by"`
	TrackingCode   string   `json:"tracking_code"`
	Country        string   `json:"country"`
	PalletNumber   string   `json:"pallet_number"`
	AirwayBill     string   `json:"airway_bill"`
	CustomsInvoice string   `json:"customs_invoice"`
	Content        string   `json:"content"`
	AmountDue      float64  `json:"amount_due"`
	Weight         float64  `json:"weight"`
	StatusName     string   `json:"status_name"`
	StatusID       *int64   `json:"status_id,omitempty"`
	UserID         string   `json:"user_id"`
}

// SearchResult — одна страница результатов поиска.
// Инварианты: len(Results) <= PageSize, Page >= 1.
type SearchResult struct {
	Query           string     `json:"query"`
	Kind            string     `json:"kind"`
	Results         []*Package `json:"results"`
	TotalFound      int        `json:"total_found"`
	TotalAvailable  *int       `json:"total_available,omitempty"`
	Page            int        `json:"page"`
	PageSize        int        `json:"page_size"`
	HasNextPage     bool       `json:"has_next_page"`
	HasPreviousPage bool       `json:"has_previous_page"`
	ExecutionMS     int64      `json:"execution_ms"`
	Cached          bool       `json:"cached"`
}
