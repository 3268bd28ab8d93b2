package engine

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"backtestkit/types"
)

// simulator turns strategy-emitted orders into fills, positions, trades and
// realized pnl under the fixed timing/slippage/commission/rounding model.
// All state is owned by one run; nothing here is shared across runs.
type simulator struct {
	cfg       types.EngineConfig
	cash      decimal.Decimal
	positions map[string]*types.Position
	pending   []types.Order
	fills     []types.Fill
	trades    []types.Trade
	tradeSeq  int64
}

func newSimulator(cfg types.EngineConfig) *simulator {
	return &simulator{
		cfg:       cfg,
		cash:      cfg.InitialCash.Round(cfg.MoneyScale),
		positions: make(map[string]*types.Position),
	}
}

// queue accepts an order for later execution. Orders are consumed exactly
// once: they stay pending until their symbol has price data at an eligible
// step, then fill atomically for the entire quantity.
func (s *simulator) queue(order types.Order) error {
	if !order.Side.Valid() {
		return ErrUnknownSide
	}
	qty := order.Quantity.Round(s.cfg.QuantityScale)
	if !qty.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidQuantity, order.ID)
	}
	order.Quantity = qty
	s.pending = append(s.pending, order)
	return nil
}

// executeStep attempts fills for every pending order eligible at stepKey.
// bars maps symbol to the snapshot bar of this step; symbols without a bar
// keep their orders pending. The total order over eligible orders is
// (created_snapshot_key, sequence, id) ascending, never map iteration order.
func (s *simulator) executeStep(stepKey string, bars map[string]types.Bar) ([]types.Fill, error) {
	sort.Slice(s.pending, func(i, j int) bool {
		a, b := s.pending[i], s.pending[j]
		if a.CreatedSnapshotKey != b.CreatedSnapshotKey {
			return a.CreatedSnapshotKey < b.CreatedSnapshotKey
		}
		if a.Sequence != b.Sequence {
			return a.Sequence < b.Sequence
		}
		return a.ID < b.ID
	})

	var stepFills []types.Fill
	remaining := s.pending[:0]
	for _, order := range s.pending {
		bar, hasBar := bars[order.Symbol]
		if !hasBar || !s.eligible(order, stepKey) {
			remaining = append(remaining, order)
			continue
		}
		fill, err := s.fill(order, bar, stepKey)
		if err != nil {
			return nil, err
		}
		stepFills = append(stepFills, fill)
	}
	s.pending = remaining
	return stepFills, nil
}

func (s *simulator) eligible(order types.Order, stepKey string) bool {
	if s.cfg.FillTiming == types.FillSameSnapshot {
		return order.CreatedSnapshotKey <= stepKey
	}
	// next_snapshot: an order is never fillable at its creation step.
	return order.CreatedSnapshotKey < stepKey
}

// fill executes the whole order at the bar's base price. Each intermediate
// value is quantized before it feeds the next computation so replay is
// bit-for-bit reproducible regardless of the host float implementation.
func (s *simulator) fill(order types.Order, bar types.Bar, stepKey string) (types.Fill, error) {
	basePrice, err := s.basePrice(bar)
	if err != nil {
		return types.Fill{}, err
	}
	fillPrice := s.applySlippage(basePrice, order.Side)
	commission := s.cfg.CommissionPerOrder.Round(s.cfg.MoneyScale)

	if err := s.applyToPosition(order, fillPrice, commission, stepKey); err != nil {
		return types.Fill{}, err
	}

	fill := types.Fill{
		OrderID:     order.ID,
		Symbol:      order.Symbol,
		Side:        order.Side,
		FillPrice:   fillPrice,
		Quantity:    order.Quantity,
		Commission:  commission,
		SnapshotKey: stepKey,
	}
	s.fills = append(s.fills, fill)
	return fill, nil
}

// basePrice extracts the execution base price: the bar's open when present,
// else its standalone price. A bar with neither is a hard error, never a
// silent default.
func (s *simulator) basePrice(bar types.Bar) (decimal.Decimal, error) {
	if bar.Open.Valid {
		return bar.Open.Decimal.Round(s.cfg.PriceScale), nil
	}
	if bar.Price.Valid {
		return bar.Price.Decimal.Round(s.cfg.PriceScale), nil
	}
	return decimal.Zero, fmt.Errorf("%w: %s %s", ErrMissingPrice, bar.Symbol, bar.SnapshotKey())
}

func (s *simulator) applySlippage(price decimal.Decimal, side types.Side) decimal.Decimal {
	fraction := decimal.NewFromInt(int64(s.cfg.SlippageBps)).Div(decimal.NewFromInt(10000))
	if side == types.SideBuy {
		return price.Mul(decimal.NewFromInt(1).Add(fraction)).Round(s.cfg.PriceScale)
	}
	return price.Mul(decimal.NewFromInt(1).Sub(fraction)).Round(s.cfg.PriceScale)
}

func (s *simulator) applyToPosition(order types.Order, fillPrice, commission decimal.Decimal, stepKey string) error {
	pos := s.positions[order.Symbol]
	if pos == nil {
		pos = &types.Position{Symbol: order.Symbol, Quantity: decimal.Zero, AvgPrice: decimal.Zero}
		s.positions[order.Symbol] = pos
	}

	qty := order.Quantity
	notional := fillPrice.Mul(qty).Round(s.cfg.MoneyScale)

	if order.Side == types.SideBuy {
		newQty := pos.Quantity.Add(qty).Round(s.cfg.QuantityScale)
		weighted := pos.AvgPrice.Mul(pos.Quantity).Add(fillPrice.Mul(qty))
		pos.AvgPrice = weighted.Div(newQty).Round(s.cfg.PriceScale)
		pos.Quantity = newQty
		s.cash = s.cash.Sub(notional).Sub(commission).Round(s.cfg.MoneyScale)
		return nil
	}

	// SELL: never creates an implicit short.
	if qty.GreaterThan(pos.Quantity) {
		return fmt.Errorf("%w: %s", ErrOversell, order.Symbol)
	}
	pnl := fillPrice.Sub(pos.AvgPrice).Mul(qty).Round(s.cfg.MoneyScale).Sub(commission)
	s.tradeSeq++
	s.trades = append(s.trades, types.Trade{
		ID:              fmt.Sprintf("trade-%06d", s.tradeSeq),
		Symbol:          order.Symbol,
		Quantity:        qty,
		EntryAvgPrice:   pos.AvgPrice,
		ExitPrice:       fillPrice,
		ExitSnapshotKey: stepKey,
		RealizedPnL:     pnl,
	})

	remaining := pos.Quantity.Sub(qty).Round(s.cfg.QuantityScale)
	pos.Quantity = remaining
	if remaining.IsZero() {
		pos.AvgPrice = decimal.Zero
	}
	s.cash = s.cash.Add(notional).Sub(commission).Round(s.cfg.MoneyScale)
	return nil
}

// equity marks every open position at the supplied per-symbol mark price and
// adds cash. Symbols are walked in sorted order to keep the arithmetic path
// identical across runs.
func (s *simulator) equity(marks map[string]decimal.Decimal) decimal.Decimal {
	total := s.cash
	symbols := make([]string, 0, len(s.positions))
	for sym := range s.positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	for _, sym := range symbols {
		pos := s.positions[sym]
		if pos.Quantity.IsZero() {
			continue
		}
		mark, ok := marks[sym]
		if !ok {
			continue
		}
		total = total.Add(pos.Quantity.Mul(mark).Round(s.cfg.MoneyScale))
	}
	return total.Round(s.cfg.MoneyScale)
}

// positionList returns open and closed positions sorted by symbol.
func (s *simulator) positionList() []types.Position {
	symbols := make([]string, 0, len(s.positions))
	for sym := range s.positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	out := make([]types.Position, 0, len(symbols))
	for _, sym := range symbols {
		out = append(out, *s.positions[sym])
	}
	return out
}
