// Package monitor runs one search, confirm, qualify and notify pass.
package monitor

import (
	"context"
	"sort"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seti-park/Skyscanner/internal/config"
	"github.com/seti-park/Skyscanner/internal/logger"
	"github.com/seti-park/Skyscanner/internal/notify"
	"github.com/seti-park/Skyscanner/internal/providers"
	"github.com/seti-park/Skyscanner/internal/service"
)

// Notifier delivers a rendered message. Implementations never fail the run.
type Notifier interface {
	Send(ctx context.Context, msg notify.Message) notify.DeliveryResult
}

// Options are the run policies. ConfirmMaxOffers caps re-pricing to the cheapest
// qualifying offers; 0 means all of them.
type Options struct {
	ConfirmEnabled        bool
	ConfirmMaxOffers      int
	NotifyOnEmpty         bool
	NotifyOnSearchFailure bool
	Format                notify.FormatOptions
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ConfirmEnabled:        cfg.Confirm.Enabled,
		ConfirmMaxOffers:      cfg.Confirm.MaxOffers,
		NotifyOnEmpty:         cfg.Notify.OnEmpty,
		NotifyOnSearchFailure: cfg.Notify.OnSearchFailure,
		Format:                notify.FormatOptionsFromConfig(cfg),
	}
}

// RunReport summarizes one run. Delivery is nil when nothing was sent.
type RunReport struct {
	RunID       string
	OffersSeen  int
	Confirmed   int
	Unconfirmed int
	Rejections  service.Rejections
	Flights     []service.QualifiedFlight
	Message     notify.Message
	Delivery    *notify.DeliveryResult
	Elapsed     time.Duration
}

type Monitor struct {
	provider  providers.FlightProvider
	confirmer *service.Confirmer
	notifier  Notifier
	query     providers.SearchQuery
	criteria  service.Criteria
	opts      Options
	logger    *logger.Logger
}

func New(cfg *config.Config, p providers.FlightProvider, n Notifier, lg *logger.Logger) *Monitor {
	return &Monitor{
		provider:  p,
		confirmer: service.NewConfirmer(p, service.RetryPolicyFromConfig(cfg.Confirm), lg),
		notifier:  n,
		query:     providers.QueryFromConfig(cfg.Search),
		criteria:  service.CriteriaFromConfig(cfg.Criteria),
		opts:      OptionsFromConfig(cfg),
		logger:    lg.Named("monitor"),
	}
}

// Run executes one strictly sequential pass. Only authentication and search
// failures are returned; every later failure is contained in the report.
func (m *Monitor) Run(ctx context.Context) (*RunReport, error) {
	start := time.Now()
	report := &RunReport{RunID: uuid.NewString()}
	lg := m.logger.With(zap.String("run_id", report.RunID))
	defer func() { report.Elapsed = time.Since(start) }()

	lg.Info("run started",
		zap.String("route", m.query.Origin+"-"+m.query.Destination),
		zap.String("departure", m.query.DepartureDate),
		zap.String("return", m.query.ReturnDate),
		zap.Int("adults", m.query.Adults))

	res, err := m.provider.Search(ctx, m.query)
	if err == nil && res == nil {
		err = &providers.RequestError{Kind: providers.ErrSearch, Op: "search", Err: errors.New("no result")}
	}
	if err != nil {
		lg.Error("run aborted", zap.String("provider", m.provider.Name()), zap.Error(err))
		if m.opts.NotifyOnSearchFailure {
			report.Message = notify.FormatSearchFailure(m.query, err)
			d := m.notifier.Send(ctx, report.Message)
			report.Delivery = &d
		}
		return report, errors.Wrap(err, "search offers")
	}
	report.OffersSeen = len(res.Offers)

	offers := res.Offers
	if m.opts.ConfirmEnabled {
		offers = m.confirmCandidates(ctx, lg, res, report)
	}

	report.Flights, report.Rejections = service.Evaluate(offers, res.Carriers, m.query, m.criteria)
	for reason, n := range report.Rejections {
		lg.Debug("offers dropped", zap.String("reason", string(reason)), zap.Int("count", n))
	}

	report.Message = notify.Format(report.Flights, m.query, m.opts.Format)
	if len(report.Flights) == 0 && !m.opts.NotifyOnEmpty {
		lg.Info("nothing qualified, notification skipped", zap.Int("offers", report.OffersSeen))
		return report, nil
	}

	d := m.notifier.Send(ctx, report.Message)
	report.Delivery = &d
	lg.Info("run finished",
		zap.Int("offers", report.OffersSeen),
		zap.Int("qualified", len(report.Flights)),
		zap.Bool("delivered", d.Delivered),
		zap.Duration("elapsed", time.Since(start)))
	return report, nil
}

// confirmCandidates re-prices the offers that qualify at their search price,
// cheapest first, one after another. Other offers pass through untouched.
func (m *Monitor) confirmCandidates(ctx context.Context, lg *logger.Logger, res *providers.SearchResult, report *RunReport) []providers.RawOffer {
	type candidate struct {
		idx   int
		price float64
	}
	var candidates []candidate
	for i, o := range res.Offers {
		if !service.Passes(o, res.Carriers, m.query, m.criteria) {
			continue
		}
		price, _, _ := o.SearchPrice()
		candidates = append(candidates, candidate{idx: i, price: price})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].price < candidates[j].price
	})
	if limit := m.opts.ConfirmMaxOffers; limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]providers.RawOffer, len(res.Offers))
	copy(out, res.Offers)
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			lg.Warn("confirmation interrupted", zap.Error(err))
			break
		}
		cp := m.confirmer.Confirm(ctx, out[c.idx])
		out[c.idx] = out[c.idx].WithConfirmation(cp)
		if cp.Confirmed {
			report.Confirmed++
		} else {
			report.Unconfirmed++
		}
	}

	lg.Info("confirmation finished",
		zap.Int("candidates", len(candidates)),
		zap.Int("confirmed", report.Confirmed),
		zap.Int("unconfirmed", report.Unconfirmed))
	return out
}
