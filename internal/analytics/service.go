package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"ms-gigs/internal/logger"
	"ms-gigs/internal/store"
)

const lineupSQL = `SELECT a.actname, aft.ontime, aft.finish_time
FROM act_finish_time aft
JOIN act a ON aft.actid = a.actid
WHERE aft.gigid = ?
ORDER BY aft.ontime`

// Report names accepted by Report, mapped to the store function behind each.
const (
	ReportBreakEven        = "break-even"
	ReportHeadlineSales    = "headline-sales"
	ReportRegularCustomers = "regular-customers"
	ReportFeasibleGigs     = "feasible-gigs"
)

var reportProcedures = map[string]string{
	ReportBreakEven:        "get_tickets_to_sell",
	ReportHeadlineSales:    "calculate_headline_act_ticket_sales",
	ReportRegularCustomers: "regular_customers",
	ReportFeasibleGigs:     "feasible_gigs",
}

// ReportNames lists the reports in a stable order.
func ReportNames() []string {
	names := make([]string, 0, len(reportProcedures))
	for name := range reportProcedures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Cache stores read projections under a generation that every mutation moves
// on. Readers take the generation before querying and write under it, so rows
// read before a mutation are never found after it. Generation reports false
// when the cache must not be used. A miss is never an error.
type Cache interface {
	Generation(ctx context.Context) (int64, bool)
	Get(ctx context.Context, generation int64, key string) (store.RowSet, bool)
	Set(ctx context.Context, generation int64, key string, rs store.RowSet)
}

// Service runs the read-only projections. Every read is its own unit of work and
// never mutates.
type Service struct {
	Gateway store.Gateway
	Cache   Cache
	Logger  *logger.Logger
}

func NewService(gw store.Gateway, cache Cache, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Service{Gateway: gw, Cache: cache, Logger: log}
}

// Lineup lists a gig's acts with their on and finish times in running order.
func (s *Service) Lineup(ctx context.Context, gigID int64) (store.RowSet, error) {
	return s.read(ctx, fmt.Sprintf("lineup:%d", gigID), func(unit store.Unit) (store.RowSet, error) {
		return unit.Query(ctx, lineupSQL, gigID)
	})
}

// BreakEvenTickets lists, per gig, the tickets still to sell to cover costs.
func (s *Service) BreakEvenTickets(ctx context.Context) (store.RowSet, error) {
	return s.Report(ctx, ReportBreakEven)
}

// HeadlineActSales totals ticket sales per headline act and year.
func (s *Service) HeadlineActSales(ctx context.Context) (store.RowSet, error) {
	return s.Report(ctx, ReportHeadlineSales)
}

// RegularCustomers pairs headline acts with customers who saw them more than once.
func (s *Service) RegularCustomers(ctx context.Context) (store.RowSet, error) {
	return s.Report(ctx, ReportRegularCustomers)
}

// FeasibleGigs lists gigs whose venue can hold enough customers to break even.
func (s *Service) FeasibleGigs(ctx context.Context) (store.RowSet, error) {
	return s.Report(ctx, ReportFeasibleGigs)
}

// Report runs one of the named reports.
func (s *Service) Report(ctx context.Context, name string) (store.RowSet, error) {
	procedure, ok := reportProcedures[name]
	if !ok {
		return store.EmptyRowSet(), store.NewError(store.KindNotFound, "report", "unknown report %q", name)
	}
	return s.read(ctx, "report:"+name, func(unit store.Unit) (store.RowSet, error) {
		return unit.CallProcedure(ctx, procedure)
	})
}

// read wraps one projection in a unit of work. On failure the caller gets an
// empty row set and the error, never partial rows.
func (s *Service) read(ctx context.Context, key string, run func(store.Unit) (store.RowSet, error)) (store.RowSet, error) {
	var generation int64
	cached := false
	if s.Cache != nil {
		generation, cached = s.Cache.Generation(ctx)
	}
	if cached {
		if rs, ok := s.Cache.Get(ctx, generation, key); ok {
			s.Logger.Debug("ANALYTICS", fmt.Sprintf("Cache hit for %s at generation %d", key, generation))
			return rs, nil
		}
	}

	unit, err := s.Gateway.BeginUnit(ctx)
	if err != nil {
		s.Logger.Error("ANALYTICS", fmt.Sprintf("Reading %s could not start: %v", key, err))
		return store.EmptyRowSet(), fmt.Errorf("reading %s: %w", key, err)
	}

	rs, err := run(unit)
	if err != nil {
		err = errors.Join(err, unit.Rollback())
		s.Logger.Error("ANALYTICS", fmt.Sprintf("Reading %s failed: %v", key, err))
		return store.EmptyRowSet(), fmt.Errorf("reading %s: %w", key, err)
	}
	if err := unit.Commit(); err != nil {
		err = errors.Join(err, unit.Rollback())
		s.Logger.Error("ANALYTICS", fmt.Sprintf("Reading %s failed to commit: %v", key, err))
		return store.EmptyRowSet(), fmt.Errorf("reading %s: %w", key, err)
	}

	s.Logger.LogDatabase("READ", key, fmt.Sprintf("%d rows", rs.Len()))
	if cached {
		s.Cache.Set(ctx, generation, key, rs)
	}
	return rs, nil
}
