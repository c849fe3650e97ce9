package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ensemble-trader/internal/market"
)

// CircuitState is the per-symbol breaker position.
type CircuitState string

const (
	CircuitClosed CircuitState = "closed"
	CircuitOpen   CircuitState = "open"
)

// FailureState tracks consecutive fetch failures for one symbol. Owned
// exclusively by the poller; any successful fetch resets it to zero/closed.
type FailureState struct {
	Failures int
	Circuit  CircuitState
	OpenedAt time.Time
}

// Cycle consumes a fresh quote plus the symbol's series snapshot and runs
// one evaluation cycle. Cycles for the same symbol are invoked serially.
type Cycle func(ctx context.Context, quote market.Quote, closes []float64)

// Options tune the poller.
type Options struct {
	Interval     time.Duration
	FetchTimeout time.Duration
	// MaxFailures consecutive fetch failures open the symbol's circuit.
	MaxFailures int
	// Cooldown re-closes an open circuit on the next tick after it elapses.
	// Zero disables auto-resume; only Reset re-closes the circuit then.
	Cooldown time.Duration
	// HistoryWindow is the series capacity; the poller seeds it from the
	// source's history endpoint when a symbol is first watched.
	HistoryWindow int
}

// Poller schedules recurring quote fetches per symbol and suspends symbols
// whose upstream keeps failing, so a dead source cannot generate unbounded
// retry traffic or feed the ensemble empty data.
type Poller struct {
	source market.Source
	opts   Options
	cycle  Cycle
	logger zerolog.Logger

	mu       sync.Mutex
	watchers map[string]*watcher
	wg       sync.WaitGroup
}

type watcher struct {
	symbol string
	kind   market.Kind
	cancel context.CancelFunc

	mu    sync.Mutex
	state FailureState
}

// New constructs a Poller.
func New(source market.Source, opts Options, cycle Cycle, logger zerolog.Logger) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = 3
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 200
	}

	return &Poller{
		source:   source,
		opts:     opts,
		cycle:    cycle,
		logger:   logger.With().Str("component", "poller").Logger(),
		watchers: make(map[string]*watcher),
	}
}

// Watch starts polling a symbol. The returned error only covers start-up
// conditions; fetch failures are tracked in the symbol's FailureState.
func (p *Poller) Watch(ctx context.Context, symbol string, kind market.Kind) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.watchers[symbol]; exists {
		return fmt.Errorf("poller: symbol %s already watched", symbol)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w := &watcher{
		symbol: symbol,
		kind:   kind,
		cancel: cancel,
		state:  FailureState{Circuit: CircuitClosed},
	}
	p.watchers[symbol] = w

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(watchCtx, w)
	}()

	return nil
}

// Stop cancels a symbol's polling, including any in-flight fetch.
func (p *Poller) Stop(symbol string) {
	p.mu.Lock()
	w, ok := p.watchers[symbol]
	if ok {
		delete(p.watchers, symbol)
	}
	p.mu.Unlock()

	if ok {
		w.cancel()
	}
}

// StopAll cancels every watcher and waits for their goroutines to exit.
func (p *Poller) StopAll() {
	p.mu.Lock()
	for symbol, w := range p.watchers {
		w.cancel()
		delete(p.watchers, symbol)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

// Reset closes a symbol's circuit and zeroes its failure counter, resuming
// polling on the next tick.
func (p *Poller) Reset(symbol string) error {
	p.mu.Lock()
	w, ok := p.watchers[symbol]
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("poller: symbol %s not watched", symbol)
	}

	w.mu.Lock()
	w.state = FailureState{Circuit: CircuitClosed}
	w.mu.Unlock()

	p.logger.Info().Str("symbol", symbol).Msg("circuit reset")
	return nil
}

// State returns a symbol's current failure state.
func (p *Poller) State(symbol string) (FailureState, bool) {
	p.mu.Lock()
	w, ok := p.watchers[symbol]
	p.mu.Unlock()

	if !ok {
		return FailureState{}, false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state, true
}

func (p *Poller) run(ctx context.Context, w *watcher) {
	series := market.NewSeries(p.opts.HistoryWindow)
	p.seed(ctx, w, series)

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.admitTick(w) {
				continue
			}
			p.poll(ctx, w, series)
		}
	}
}

// seed pre-fills the series from the history endpoint so evaluators have
// lookback data from the first cycle. Failure here is not counted; the
// regular fetch loop handles outages.
func (p *Poller) seed(ctx context.Context, w *watcher, series *market.Series) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	defer cancel()

	closes, err := p.source.FetchHistory(fetchCtx, w.symbol, w.kind, p.opts.HistoryWindow)
	if err != nil {
		p.logger.Warn().Str("symbol", w.symbol).Err(err).Msg("history seed unavailable")
		return
	}
	series.Seed(closes)
}

// admitTick decides whether this tick may fetch. An open circuit suspends
// fetching until the cooldown elapses or an external Reset arrives.
func (p *Poller) admitTick(w *watcher) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state.Circuit == CircuitClosed {
		return true
	}

	if p.opts.Cooldown > 0 && time.Since(w.state.OpenedAt) >= p.opts.Cooldown {
		w.state = FailureState{Circuit: CircuitClosed}
		p.logger.Info().Str("symbol", w.symbol).Msg("circuit cooldown elapsed, resuming polling")
		return true
	}

	return false
}

func (p *Poller) poll(ctx context.Context, w *watcher, series *market.Series) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	quote, err := p.source.FetchQuote(fetchCtx, w.symbol, w.kind)
	cancel()

	if err != nil {
		p.recordFailure(w, err)
		return
	}

	w.mu.Lock()
	w.state = FailureState{Circuit: CircuitClosed}
	w.mu.Unlock()

	series.Append(quote)

	if p.cycle != nil && ctx.Err() == nil {
		// Serial invocation keeps per-symbol decisions ordered: the next
		// fetch cannot start before this cycle's decision is consumed.
		p.cycle(ctx, quote, series.Closes())
	}
}

func (p *Poller) recordFailure(w *watcher, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.state.Failures++
	p.logger.Warn().
		Str("symbol", w.symbol).
		Int("failures", w.state.Failures).
		Err(err).
		Msg("quote fetch failed")

	if w.state.Failures >= p.opts.MaxFailures && w.state.Circuit == CircuitClosed {
		w.state.Circuit = CircuitOpen
		w.state.OpenedAt = time.Now()
		p.logger.Error().
			Str("symbol", w.symbol).
			Int("failures", w.state.Failures).
			Msg("circuit opened, polling suspended")
	}
}
