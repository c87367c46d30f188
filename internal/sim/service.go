// Package sim coordinates the market simulation: the price tick and shock
// loops, trade execution against the external cash ledger, aggregation, and
// snapshot persistence.
//
// One mutex guards the instrument registry and the portfolio book together.
// The lock is coarse on purpose: it trades throughput for simplicity and for
// preventing lost updates across the two related structures. Calls into the
// cash ledger happen outside the lock; event announcements happen strictly
// after the effect has been committed, also outside the lock.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/papertrade/market-sim/internal/ledger"
	"github.com/papertrade/market-sim/internal/market"
	"github.com/papertrade/market-sim/internal/metrics"
	"github.com/papertrade/market-sim/internal/model"
	"github.com/papertrade/market-sim/internal/notify"
	"github.com/papertrade/market-sim/internal/shock"
	"github.com/papertrade/market-sim/internal/store"
)

const (
	defaultTickInterval  = 15 * time.Minute
	defaultShockInterval = 2 * time.Hour

	tickFeedLimit = 5 // movers per side in the per-tick broadcast
)

// Options configures optional collaborators of the Service. Zero values get
// sensible defaults; Feed and Webhooks may stay nil.
type Options struct {
	// Feed receives per-tick price summaries and event broadcasts.
	Feed *notify.Hub
	// Webhooks receives event announcements and serves subscriptions.
	Webhooks *notify.WebhookSink
	// Generator rolls shock events. Defaults to the standard tuning.
	Generator *shock.Generator
	// Rand drives price evolution. Defaults to a time-seeded source.
	Rand *rand.Rand

	TickInterval  time.Duration
	ShockInterval time.Duration
}

// Service is the simulation core. All exported methods are safe for
// concurrent use.
type Service struct {
	mu         sync.Mutex
	registry   *market.Registry
	portfolios map[string]*model.Portfolio

	store    store.Store
	cash     ledger.Cash
	feed     *notify.Hub
	webhooks *notify.WebhookSink
	notifier notify.Sink

	gen        *shock.Generator
	rng        *rand.Rand
	tickEvery  time.Duration
	shockEvery time.Duration
}

// New creates the simulation service around a registry and portfolio book,
// typically both restored from a snapshot.
func New(registry *market.Registry, portfolios map[string]*model.Portfolio,
	st store.Store, cash ledger.Cash, opts Options) *Service {

	if portfolios == nil {
		portfolios = make(map[string]*model.Portfolio)
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	gen := opts.Generator
	if gen == nil {
		gen = shock.NewGenerator(rng)
	}
	tickEvery := opts.TickInterval
	if tickEvery <= 0 {
		tickEvery = defaultTickInterval
	}
	shockEvery := opts.ShockInterval
	if shockEvery <= 0 {
		shockEvery = defaultShockInterval
	}

	var sinks notify.Fanout
	if opts.Feed != nil {
		sinks = append(sinks, opts.Feed)
	}
	if opts.Webhooks != nil {
		sinks = append(sinks, opts.Webhooks)
	}

	s := &Service{
		registry:   registry,
		portfolios: portfolios,
		store:      st,
		cash:       cash,
		feed:       opts.Feed,
		webhooks:   opts.Webhooks,
		notifier:   sinks,
		gen:        gen,
		rng:        rng,
		tickEvery:  tickEvery,
		shockEvery: shockEvery,
	}

	if s.webhooks != nil {
		// Persist the subscriber set whenever a dead destination is pruned.
		s.webhooks.OnChange(func(snapshot map[string]string) {
			if err := st.SaveSubscribers(context.Background(), snapshot); err != nil {
				slog.Warn("persist subscribers failed", "err", err)
			}
		})
	}
	return s
}

// Run drives the two background loops until the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	ticks := time.NewTicker(s.tickEvery)
	defer ticks.Stop()
	shocks := time.NewTicker(s.shockEvery)
	defer shocks.Stop()

	slog.Info("simulation running",
		"instruments", s.registry.Len(),
		"tick_interval", s.tickEvery,
		"shock_interval", s.shockEvery,
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("simulation stopped")
			return
		case <-ticks.C:
			s.ApplyTick(ctx)
		case <-shocks.C:
			s.RollShock(ctx)
		}
	}
}

// ApplyTick advances every instrument one tick and persists the market, as
// a single atomic pass under the lock. The tick summary broadcast happens
// after the lock is released.
func (s *Service) ApplyTick(ctx context.Context) {
	s.mu.Lock()
	s.registry.ApplyTick(s.rng)
	instruments := s.registry.All()
	s.persistMarketLocked(ctx)
	s.mu.Unlock()

	metrics.TicksTotal.Inc()
	for _, inst := range instruments {
		metrics.InstrumentPrice.WithLabelValues(inst.Symbol).Set(inst.Price.InexactFloat64())
	}
	if s.feed != nil {
		s.feed.BroadcastTick(tickUpdate(instruments))
	}
}

// RollShock rolls for a market event and, when one occurs, applies its
// effect to every matching instrument. The announcement is emitted after
// the lock is released so slow delivery never blocks the simulation.
func (s *Service) RollShock(ctx context.Context) {
	s.mu.Lock()
	ev := s.gen.Roll(s.registry.Symbols(), market.Sectors)
	if ev == nil {
		s.mu.Unlock()
		return
	}
	ev.Affected = s.registry.AddEffect(ev.Kind, ev.Target, ev.Impact, ev.Duration)
	s.persistMarketLocked(ctx)
	s.mu.Unlock()

	metrics.ShockEventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	slog.Info("market shock injected",
		"kind", ev.Kind,
		"target", ev.Target,
		"label", ev.Label,
		"impact", ev.Impact,
		"affected", len(ev.Affected),
	)
	s.notifier.Announce(*ev)
}

// --- Trading ---

// TradeReceipt summarizes an executed trade.
type TradeReceipt struct {
	ID            string          `json:"id"`
	Participant   string          `json:"participant"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"` // "buy" or "sell"
	Quantity      int64           `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Total         decimal.Decimal `json:"total"`
	RealizedDelta decimal.Decimal `json:"realized_delta"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Buy purchases quantity shares at the current price. The affordability
// check and the debit run as one atomic operation inside the cash ledger;
// on any ledger failure the portfolio is untouched.
func (s *Service) Buy(ctx context.Context, participant, symbol string, quantity int64) (*TradeReceipt, error) {
	start := time.Now()
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	s.mu.Lock()
	inst, ok := s.registry.Get(symbol)
	s.mu.Unlock()
	if !ok {
		return nil, &UnknownInstrumentError{Symbol: strings.ToUpper(symbol)}
	}

	qty := decimal.NewFromInt(quantity)
	total := inst.Price.Mul(qty).Round(2)

	if err := s.cash.Debit(ctx, participant, total); err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			available, balErr := s.cash.Balance(ctx, participant)
			if balErr != nil {
				available = decimal.Zero
			}
			return nil, &InsufficientFundsError{
				Symbol:    inst.Symbol,
				Quantity:  quantity,
				Needed:    total,
				Available: available,
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrLedgerDebit, err)
	}

	s.mu.Lock()
	pf := s.portfolioLocked(participant)
	h := pf.Holdings[inst.Symbol]
	newShares := h.Shares + quantity
	newBasis := h.CostBasis.Mul(decimal.NewFromInt(h.Shares)).
		Add(inst.Price.Mul(qty)).
		Div(decimal.NewFromInt(newShares))
	pf.Holdings[inst.Symbol] = model.Holding{Shares: newShares, CostBasis: newBasis}
	s.persistPortfoliosLocked(ctx)
	s.mu.Unlock()

	metrics.TradesTotal.WithLabelValues("buy").Inc()
	metrics.TradeLatency.WithLabelValues("buy").Observe(time.Since(start).Seconds())

	receipt := &TradeReceipt{
		ID:            uuid.New().String(),
		Participant:   participant,
		Symbol:        inst.Symbol,
		Side:          "buy",
		Quantity:      quantity,
		UnitPrice:     inst.Price,
		Total:         total,
		RealizedDelta: decimal.Zero,
		Timestamp:     time.Now().UTC(),
	}
	slog.Info("trade executed",
		"trade_id", receipt.ID,
		"side", "buy",
		"participant", participant,
		"symbol", inst.Symbol,
		"quantity", quantity,
		"total", total.String(),
	)
	return receipt, nil
}

// Sell sells quantity shares at the current price, crystallizing profit or
// loss against the weighted-average cost basis. The portfolio mutation is
// persisted before the ledger credit; a credit failure is returned wrapped
// in ErrLedgerCredit alongside the receipt, and the mutation stands.
func (s *Service) Sell(ctx context.Context, participant, symbol string, quantity int64) (*TradeReceipt, error) {
	start := time.Now()
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	s.mu.Lock()
	inst, ok := s.registry.Get(symbol)
	if !ok {
		s.mu.Unlock()
		return nil, &UnknownInstrumentError{Symbol: strings.ToUpper(symbol)}
	}

	pf := s.portfolioLocked(participant)
	h := pf.Holdings[inst.Symbol]
	if h.Shares < quantity {
		owned := h.Shares
		s.mu.Unlock()
		return nil, &InsufficientSharesError{Symbol: inst.Symbol, Requested: quantity, Owned: owned}
	}

	qty := decimal.NewFromInt(quantity)
	proceeds := inst.Price.Mul(qty).Round(2)
	realized := inst.Price.Sub(h.CostBasis).Mul(qty)

	pf.RealizedPL = pf.RealizedPL.Add(realized)
	h.Shares -= quantity
	if h.Shares == 0 {
		// Full exit: a zero-share holding is "not owned"; prune it.
		delete(pf.Holdings, inst.Symbol)
	} else {
		pf.Holdings[inst.Symbol] = h
	}
	s.persistPortfoliosLocked(ctx)
	s.mu.Unlock()

	metrics.TradesTotal.WithLabelValues("sell").Inc()
	metrics.TradeLatency.WithLabelValues("sell").Observe(time.Since(start).Seconds())

	receipt := &TradeReceipt{
		ID:            uuid.New().String(),
		Participant:   participant,
		Symbol:        inst.Symbol,
		Side:          "sell",
		Quantity:      quantity,
		UnitPrice:     inst.Price,
		Total:         proceeds,
		RealizedDelta: realized,
		Timestamp:     time.Now().UTC(),
	}
	slog.Info("trade executed",
		"trade_id", receipt.ID,
		"side", "sell",
		"participant", participant,
		"symbol", inst.Symbol,
		"quantity", quantity,
		"total", proceeds.String(),
		"realized", realized.String(),
	)

	if err := s.cash.Credit(ctx, participant, proceeds); err != nil {
		slog.Error("ledger credit failed after sell",
			"trade_id", receipt.ID,
			"participant", participant,
			"amount", proceeds.String(),
			"err", err,
		)
		return receipt, fmt.Errorf("%w: %v", ErrLedgerCredit, err)
	}
	return receipt, nil
}

// --- Read paths ---

// Instruments returns the instrument universe, optionally filtered by a
// case-insensitive query over symbol, name, and sector.
func (s *Service) Instruments(query string) []model.Instrument {
	s.mu.Lock()
	defer s.mu.Unlock()
	if query == "" {
		return s.registry.All()
	}
	return s.registry.Search(query)
}

// Instrument returns one instrument by symbol.
func (s *Service) Instrument(symbol string) (model.Instrument, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Get(symbol)
}

// HoldingView is one line of a portfolio view, marked to the current price.
type HoldingView struct {
	Symbol       string          `json:"symbol"`
	Name         string          `json:"name"`
	Shares       int64           `json:"shares"`
	CostBasis    decimal.Decimal `json:"cost_basis"`
	Price        decimal.Decimal `json:"price"`
	Value        decimal.Decimal `json:"value"`
	UnrealizedPL decimal.Decimal `json:"unrealized_pl"`
}

// PortfolioView is a participant's positions with mark-to-market P&L.
type PortfolioView struct {
	Participant   string          `json:"participant"`
	Holdings      []HoldingView   `json:"holdings"`
	HoldingsValue decimal.Decimal `json:"holdings_value"`
	RealizedPL    decimal.Decimal `json:"realized_pl"`
}

// Portfolio returns the participant's current positions. Unknown
// participants get an empty view.
func (s *Service) Portfolio(participant string) PortfolioView {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := PortfolioView{
		Participant:   participant,
		Holdings:      []HoldingView{},
		HoldingsValue: decimal.Zero,
		RealizedPL:    decimal.Zero,
	}
	pf, ok := s.portfolios[participant]
	if !ok {
		return view
	}
	view.RealizedPL = pf.RealizedPL

	for sym, h := range pf.Holdings {
		if h.Shares <= 0 {
			continue
		}
		inst, ok := s.registry.Get(sym)
		if !ok {
			continue
		}
		value := inst.Price.Mul(decimal.NewFromInt(h.Shares))
		view.Holdings = append(view.Holdings, HoldingView{
			Symbol:       sym,
			Name:         inst.Name,
			Shares:       h.Shares,
			CostBasis:    h.CostBasis,
			Price:        inst.Price,
			Value:        value,
			UnrealizedPL: inst.Price.Sub(h.CostBasis).Mul(decimal.NewFromInt(h.Shares)),
		})
		view.HoldingsValue = view.HoldingsValue.Add(value)
	}
	sort.Slice(view.Holdings, func(i, j int) bool {
		return view.Holdings[i].Symbol < view.Holdings[j].Symbol
	})
	return view
}

// HoldingsValue is the mark-to-market value of the participant's positions.
func (s *Service) HoldingsValue(participant string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holdingsValueLocked(participant)
}

// NetWorth combines holdings value with the external cash balance.
type NetWorth struct {
	Participant string          `json:"participant"`
	Holdings    decimal.Decimal `json:"holdings"`
	Cash        decimal.Decimal `json:"cash"`
	Total       decimal.Decimal `json:"total"`
}

// NetWorth returns the participant's holdings value plus cash balance.
func (s *Service) NetWorth(ctx context.Context, participant string) (NetWorth, error) {
	hv := s.HoldingsValue(participant)
	cash, err := s.cash.Balance(ctx, participant)
	if err != nil {
		return NetWorth{}, fmt.Errorf("cash balance for %s: %w", participant, err)
	}
	return NetWorth{
		Participant: participant,
		Holdings:    hv,
		Cash:        cash,
		Total:       hv.Add(cash),
	}, nil
}

// Leaderboard ranks every known participant by net worth, descending. Ties
// keep the stable (symbol-sorted participant) order.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]NetWorth, error) {
	s.mu.Lock()
	participants := make([]string, 0, len(s.portfolios))
	for p := range s.portfolios {
		participants = append(participants, p)
	}
	sort.Strings(participants)
	values := make(map[string]decimal.Decimal, len(participants))
	for _, p := range participants {
		values[p] = s.holdingsValueLocked(p)
	}
	s.mu.Unlock()

	rows := make([]NetWorth, 0, len(participants))
	for _, p := range participants {
		cash, err := s.cash.Balance(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("cash balance for %s: %w", p, err)
		}
		rows = append(rows, NetWorth{
			Participant: p,
			Holdings:    values[p],
			Cash:        cash,
			Total:       values[p].Add(cash),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Total.GreaterThan(rows[j].Total)
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// Mover is an instrument ranked by percentage move since the last tick.
type Mover struct {
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	LastPrice decimal.Decimal `json:"last_price"`
	Pct       float64         `json:"pct"`
}

// MoversReport lists top gainers and losers since the last tick. Flat
// instruments are excluded.
type MoversReport struct {
	Gainers []Mover `json:"gainers"`
	Losers  []Mover `json:"losers"`
}

// Movers ranks instruments by percentage change since the last tick.
func (s *Service) Movers(limit int) MoversReport {
	s.mu.Lock()
	instruments := s.registry.All()
	s.mu.Unlock()

	var moved []Mover
	for _, inst := range instruments {
		if inst.LastPrice.Sign() <= 0 || inst.Price.Equal(inst.LastPrice) {
			continue
		}
		moved = append(moved, Mover{
			Symbol:    inst.Symbol,
			Name:      inst.Name,
			Price:     inst.Price,
			LastPrice: inst.LastPrice,
			Pct:       inst.PctChange(),
		})
	}

	gainers := make([]Mover, len(moved))
	copy(gainers, moved)
	sort.SliceStable(gainers, func(i, j int) bool { return gainers[i].Pct > gainers[j].Pct })
	losers := make([]Mover, len(moved))
	copy(losers, moved)
	sort.SliceStable(losers, func(i, j int) bool { return losers[i].Pct < losers[j].Pct })

	if limit > 0 {
		if len(gainers) > limit {
			gainers = gainers[:limit]
		}
		if len(losers) > limit {
			losers = losers[:limit]
		}
	}
	return MoversReport{Gainers: gainers, Losers: losers}
}

// --- Subscriptions ---

// Subscribe registers a webhook destination for market event announcements.
func (s *Service) Subscribe(ctx context.Context, participant, url string) error {
	if s.webhooks == nil {
		return &SubscriptionError{Reason: "subscriptions are not enabled"}
	}
	if participant == "" {
		return &SubscriptionError{Reason: "participant is required"}
	}
	if err := notify.ValidateURL(url); err != nil {
		return &SubscriptionError{Reason: err.Error()}
	}
	s.webhooks.Subscribe(participant, url)
	if err := s.store.SaveSubscribers(ctx, s.webhooks.Snapshot()); err != nil {
		slog.Warn("persist subscribers failed", "err", err)
	}
	slog.Info("event subscription added", "participant", participant)
	return nil
}

// Unsubscribe removes a participant's webhook destination, reporting
// whether a subscription existed.
func (s *Service) Unsubscribe(ctx context.Context, participant string) bool {
	if s.webhooks == nil {
		return false
	}
	found := s.webhooks.Unsubscribe(participant)
	if found {
		if err := s.store.SaveSubscribers(ctx, s.webhooks.Snapshot()); err != nil {
			slog.Warn("persist subscribers failed", "err", err)
		}
		slog.Info("event subscription removed", "participant", participant)
	}
	return found
}

// --- Internals (callers hold s.mu) ---

func (s *Service) portfolioLocked(participant string) *model.Portfolio {
	pf, ok := s.portfolios[participant]
	if !ok {
		pf = model.NewPortfolio()
		s.portfolios[participant] = pf
	}
	return pf
}

func (s *Service) holdingsValueLocked(participant string) decimal.Decimal {
	total := decimal.Zero
	pf, ok := s.portfolios[participant]
	if !ok {
		return total
	}
	for sym, h := range pf.Holdings {
		if h.Shares <= 0 {
			continue
		}
		inst, ok := s.registry.Get(sym)
		if !ok {
			continue
		}
		total = total.Add(inst.Price.Mul(decimal.NewFromInt(h.Shares)))
	}
	return total
}

// Snapshot failures are logged, not returned: in-memory state stays
// authoritative and the next save retries.
func (s *Service) persistMarketLocked(ctx context.Context) {
	if err := s.store.SaveMarket(ctx, s.registry.All()); err != nil {
		slog.Warn("persist market failed", "err", err)
	}
}

func (s *Service) persistPortfoliosLocked(ctx context.Context) {
	if err := s.store.SavePortfolios(ctx, s.portfolios); err != nil {
		slog.Warn("persist portfolios failed", "err", err)
	}
}

func tickUpdate(instruments []model.Instrument) notify.TickUpdate {
	var moved []model.Instrument
	for _, inst := range instruments {
		if inst.LastPrice.Sign() > 0 && !inst.Price.Equal(inst.LastPrice) {
			moved = append(moved, inst)
		}
	}
	quote := func(inst model.Instrument) notify.Quote {
		return notify.Quote{
			Symbol:    inst.Symbol,
			Price:     inst.Price.String(),
			LastPrice: inst.LastPrice.String(),
			Pct:       inst.PctChange(),
		}
	}

	up := make([]model.Instrument, len(moved))
	copy(up, moved)
	sort.SliceStable(up, func(i, j int) bool { return up[i].PctChange() > up[j].PctChange() })
	down := make([]model.Instrument, len(moved))
	copy(down, moved)
	sort.SliceStable(down, func(i, j int) bool { return down[i].PctChange() < down[j].PctChange() })

	t := notify.TickUpdate{At: time.Now().UTC()}
	for i, inst := range up {
		if i == tickFeedLimit {
			break
		}
		t.Gainers = append(t.Gainers, quote(inst))
	}
	for i, inst := range down {
		if i == tickFeedLimit {
			break
		}
		t.Losers = append(t.Losers, quote(inst))
	}
	return t
}
