package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/zone_strangler/internal/logging"
	"github.com/eddiefleurent/zone_strangler/internal/models"
	"github.com/eddiefleurent/zone_strangler/internal/provider"
	"github.com/eddiefleurent/zone_strangler/internal/util"
)

// Request describes one table to build. A zero Expiry picks the next
// weekly or monthly expiry and resolves it against the listed dates.
// A zero LotSize uses the index default.
type Request struct {
	Index   models.Index
	Horizon models.Horizon
	Expiry  time.Time
	LotSize int
}

// Builder computes strategy tables from the configured providers.
type Builder struct {
	history provider.HistoryProvider
	chain   provider.ChainProvider
	loc     *time.Location
	logger  *logrus.Logger
	now     func() time.Time
}

// NewBuilder creates a builder. now may be nil for the wall clock.
func NewBuilder(history provider.HistoryProvider, chain provider.ChainProvider, loc *time.Location, logger *logrus.Logger, now func() time.Time) *Builder {
	if loc == nil {
		loc = util.MarketLocation()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if now == nil {
		now = time.Now
	}
	return &Builder{history: history, chain: chain, loc: loc, logger: logger, now: now}
}

// Today returns the current date in the market timezone.
func (b *Builder) Today() time.Time {
	return util.DateOnly(b.now().In(b.loc))
}

// Expiries lists the exchange expiries for an index from today onwards.
func (b *Builder) Expiries(ctx context.Context, idx models.Index) ([]time.Time, error) {
	listed, err := b.chain.ListExpiries(ctx, provider.ChainSymbol(idx))
	if err != nil {
		return nil, fmt.Errorf("list %s expiries: %w", idx, err)
	}
	today := b.Today()
	out := make([]time.Time, 0, len(listed))
	for _, e := range listed {
		d := util.DateOnly(e.In(b.loc))
		if !d.Before(today) {
			out = append(out, d)
		}
	}
	return out, nil
}

// Build produces the High, Mid and Low table for a request. The option
// chain is required; history is not, and its absence falls back to zones
// around spot with a warning on the table.
func (b *Builder) Build(ctx context.Context, req Request) (*models.StrategyTable, error) {
	if !req.Index.Valid() {
		return nil, fmt.Errorf("unknown index %q", req.Index)
	}
	if !req.Horizon.Valid() {
		return nil, fmt.Errorf("unknown horizon %q", req.Horizon)
	}
	lot := req.LotSize
	if lot <= 0 {
		lot = req.Index.DefaultLotSize()
	}
	log := b.logger.WithFields(logrus.Fields{"index": req.Index, "horizon": req.Horizon})

	chain, err := b.chain.FetchChain(ctx, provider.ChainSymbol(req.Index))
	if err != nil {
		return nil, fmt.Errorf("fetch %s option chain: %w", req.Index, err)
	}

	var warnings []string
	expiry := util.DateOnly(req.Expiry.In(b.loc))
	listed := chain.ExpiryDates(b.loc)
	if req.Expiry.IsZero() {
		computed := NextExpiry(req.Horizon, b.Today())
		expiry = ResolveExpiry(computed, listed, b.Today())
		if !expiry.Equal(computed) {
			log.WithFields(logrus.Fields{
				"computed": models.FormatExpiry(computed),
				"listed":   models.FormatExpiry(expiry),
			}).Info("Expiry moved to listed date")
		}
	}
	quotes := chain.ForExpiry(expiry)
	if quotes == nil {
		warnings = append(warnings, fmt.Sprintf("Expiry %s is not in the option chain; all prices are zero", models.FormatExpiry(expiry)))
	}

	zones := b.zones(ctx, req, chain.Underlying, log)

	table := BuildTable(TableInput{
		Index:   req.Index,
		Horizon: req.Horizon,
		Expiry:  expiry,
		LotSize: lot,
		Zones:   zones,
		Spot:    chain.Underlying,
		Quotes:  quotes,
	})
	table.Warnings = append(warnings, table.Warnings...)

	log.WithFields(logrus.Fields{
		"expiry":     table.ExpiryLabel(),
		"supply":     zones.Supply,
		"demand":     zones.Demand,
		"zone_based": zones.ZoneBased,
		"warnings":   len(table.Warnings),
	}).Info("Strategy table built")
	return table, nil
}

func (b *Builder) zones(ctx context.Context, req Request, spot float64, log *logrus.Entry) models.Zones {
	candles, err := b.history.FetchDaily(ctx, req.Index.HistorySymbol(), HistoryPeriod(req.Index, req.Horizon))
	if err == nil {
		var z models.Zones
		if z, err = ComputeZones(candles, req.Horizon); err == nil {
			return z
		}
	}
	if errors.Is(err, ErrInsufficientHistory) {
		log.WithError(err).Warn("Not enough history for zones, using spot band")
	} else {
		log.WithError(err).Warn("History unavailable, using spot band")
	}
	return FallbackZones(spot)
}
