// Package analytics computes the business aggregates served by the API:
// sales totals, top products, operating costs, and profit tiers. All of it
// is plain arithmetic over the rows materialized by the last rebuild.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ledgerline/snapstore/internal/catalog"
)

// Table names as they appear in the SNAP export.
const (
	tableSales     = "ventas_registro"
	tableSaleLines = "ventas_detalle"
	tableProducts  = "productos"
	tableProfits   = "ganancias"
	tableCosts     = "costos_operativos"

	daysPerMonth = 30 // operating costs are monthly; daily cost divides by this
)

// ErrTableUnavailable indicates the current store has no table an aggregate
// needs, usually because the export did not include it.
var ErrTableUnavailable = errors.New("table not available in current store")

// Service computes aggregates through catalog sessions.
type Service struct {
	catalog *catalog.Catalog
	logger  *slog.Logger
}

// Option is a functional option for Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// New creates a Service over the given catalog.
func New(cat *catalog.Catalog, opts ...Option) *Service {
	s := &Service{
		catalog: cat,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// session opens a catalog session and verifies the tables the aggregate
// needs are present in its view.
func (s *Service) session(tables ...string) (*catalog.Session, error) {
	sess, err := s.catalog.NewSession()
	if err != nil {
		return nil, err
	}
	for _, name := range tables {
		if sess.Table(name) == nil {
			_ = sess.Close()
			return nil, fmt.Errorf("%w: %s", ErrTableUnavailable, name)
		}
	}
	return sess, nil
}

// DaySales summarizes one day of sales.
type DaySales struct {
	Date  string  `json:"date"`
	Count int64   `json:"count"`
	Total float64 `json:"total"`
}

// SalesForDay returns the sale count and amount for one day (YYYY-MM-DD).
func (s *Service) SalesForDay(ctx context.Context, day string) (*DaySales, error) {
	sess, err := s.session(tableSales)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	res := &DaySales{Date: day}
	err = sess.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(`total`), 0) FROM `ventas_registro` WHERE `fecha` LIKE ? || '%'",
		day,
	).Scan(&res.Count, &res.Total)
	if err != nil {
		return nil, fmt.Errorf("aggregate sales for %s: %w", day, err)
	}
	return res, nil
}

// DailySummary returns per-day sales totals, most recent first.
func (s *Service) DailySummary(ctx context.Context, limit int) ([]DaySales, error) {
	if limit <= 0 {
		limit = 30
	}
	sess, err := s.session(tableSales)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	rows, err := sess.QueryContext(ctx,
		"SELECT substr(`fecha`, 1, 10) AS day, COUNT(*), COALESCE(SUM(`total`), 0)"+
			" FROM `ventas_registro` GROUP BY day ORDER BY day DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate daily sales: %w", err)
	}
	defer rows.Close()

	var out []DaySales
	for rows.Next() {
		var d DaySales
		if err := rows.Scan(&d.Date, &d.Count, &d.Total); err != nil {
			return nil, fmt.Errorf("scan daily sales: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// TopProduct is one row of the best-sellers aggregate.
type TopProduct struct {
	ProductID int64   `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  float64 `json:"quantity"`
	Revenue   float64 `json:"revenue"`
}

// TopProducts returns the best-selling products by summed quantity.
func (s *Service) TopProducts(ctx context.Context, limit int) ([]TopProduct, error) {
	if limit <= 0 {
		limit = 10
	}
	sess, err := s.session(tableSaleLines, tableProducts)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	rows, err := sess.QueryContext(ctx,
		"SELECT d.`producto_id`, COALESCE(p.`nombre`, ''), "+
			"COALESCE(SUM(d.`cantidad`), 0), COALESCE(SUM(d.`subtotal`), 0)"+
			" FROM `ventas_detalle` d LEFT JOIN `productos` p ON p.`id` = d.`producto_id`"+
			" GROUP BY d.`producto_id` ORDER BY SUM(d.`cantidad`) DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate top products: %w", err)
	}
	defer rows.Close()

	var out []TopProduct
	for rows.Next() {
		var p TopProduct
		if err := rows.Scan(&p.ProductID, &p.Name, &p.Quantity, &p.Revenue); err != nil {
			return nil, fmt.Errorf("scan top products: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DailyOperatingCost returns the per-day share of active monthly operating
// costs. A missing costs table means zero, not an error.
func (s *Service) DailyOperatingCost(ctx context.Context) (float64, error) {
	sess, err := s.catalog.NewSession()
	if err != nil {
		return 0, err
	}
	defer sess.Close()

	if sess.Table(tableCosts) == nil {
		return 0, nil
	}

	var monthly float64
	err = sess.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(`monto`), 0) FROM `costos_operativos` WHERE `activo` = 1",
	).Scan(&monthly)
	if err != nil {
		return 0, fmt.Errorf("aggregate operating costs: %w", err)
	}
	return monthly / daysPerMonth, nil
}

// ProfitRow is one day's profit across the three tiers: gross is the sales
// total, simple subtracts stock cost, net further subtracts the daily share
// of operating costs.
type ProfitRow struct {
	Date   string  `json:"date"`
	Gross  float64 `json:"gross"`
	Simple float64 `json:"simple"`
	Net    float64 `json:"net"`
}

// Profits returns recent profit rows enriched with the net tier.
func (s *Service) Profits(ctx context.Context, limit int) ([]ProfitRow, float64, error) {
	if limit <= 0 {
		limit = 30
	}
	sess, err := s.session(tableProfits)
	if err != nil {
		return nil, 0, err
	}
	defer sess.Close()

	dailyCost, err := s.DailyOperatingCost(ctx)
	if err != nil {
		return nil, 0, err
	}

	rows, err := sess.QueryContext(ctx,
		"SELECT `fecha`, COALESCE(`ganancia_bruta`, 0), COALESCE(`ganancia_neta`, 0)"+
			" FROM `ganancias` ORDER BY `fecha` DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("aggregate profits: %w", err)
	}
	defer rows.Close()

	var out []ProfitRow
	for rows.Next() {
		var r ProfitRow
		// The store's ganancia_neta is gross minus stock cost; the true net
		// tier subtracts operating costs on top.
		if err := rows.Scan(&r.Date, &r.Gross, &r.Simple); err != nil {
			return nil, 0, fmt.Errorf("scan profits: %w", err)
		}
		r.Net = r.Simple - dailyCost
		out = append(out, r)
	}
	return out, dailyCost, rows.Err()
}
