package engine

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"backtestkit/types"
)

// metricScale is the fixed output precision: round-half-to-even to 12
// fractional digits before serialization.
const metricScale = 12

// secondsPerYear matches the Julian year used for CAGR.
const secondsPerYear = 31_557_600.0

// MetricsResult is the pure output of Evaluate. It carries no hidden state
// and is recomputed wholesale on every evaluation. Absent metrics are
// invalid (null), never zero.
type MetricsResult struct {
	StartEquity    decimal.NullDecimal
	EndEquity      decimal.NullDecimal
	TotalReturn    decimal.NullDecimal
	CAGR           decimal.NullDecimal
	MaxDrawdown    decimal.NullDecimal
	SharpeRatio    decimal.NullDecimal
	WinRate        decimal.NullDecimal
	ProfitFactor   decimal.NullDecimal
	MedianTradePnL decimal.NullDecimal
	Expectancy     decimal.NullDecimal
	TradeCount     int
}

type equityPoint struct {
	epoch  float64
	equity float64
}

// Evaluate computes return/risk/trade statistics from an equity curve and a
// trade ledger. It is a pure function: no randomness, no system time, no
// locale dependence. Non-finite inputs or outputs are hard errors rather
// than silent nulls.
func Evaluate(summary Summary, curve []types.EquityPoint, trades []types.Trade) (MetricsResult, error) {
	points, err := canonicalCurve(curve)
	if err != nil {
		return MetricsResult{}, err
	}
	pnls, err := canonicalTradePnls(trades)
	if err != nil {
		return MetricsResult{}, err
	}

	startEquity, endEquity, err := boundaryEquity(summary, points)
	if err != nil {
		return MetricsResult{}, err
	}

	result := MetricsResult{TradeCount: len(pnls)}
	if startEquity != nil {
		if result.StartEquity, err = round12(*startEquity); err != nil {
			return MetricsResult{}, err
		}
	}
	if endEquity != nil {
		if result.EndEquity, err = round12(*endEquity); err != nil {
			return MetricsResult{}, err
		}
	}

	if startEquity != nil && endEquity != nil && *startEquity != 0 {
		if result.TotalReturn, err = round12((*endEquity - *startEquity) / *startEquity); err != nil {
			return MetricsResult{}, err
		}
	}
	if result.CAGR, err = computeCAGR(points); err != nil {
		return MetricsResult{}, err
	}
	if result.MaxDrawdown, err = computeMaxDrawdown(points); err != nil {
		return MetricsResult{}, err
	}
	if result.SharpeRatio, err = computeSharpe(points); err != nil {
		return MetricsResult{}, err
	}
	if err := computeTradeMetrics(pnls, &result); err != nil {
		return MetricsResult{}, err
	}
	return result, nil
}

// canonicalCurve sorts the equity curve by timestamp ascending and converts
// it to finite float pairs. Ties are broken by the raw timestamp string.
func canonicalCurve(curve []types.EquityPoint) ([]equityPoint, error) {
	type sortable struct {
		epoch  float64
		raw    string
		equity float64
	}
	points := make([]sortable, 0, len(curve))
	for _, p := range curve {
		ts, err := parseTimestamp(p.SnapshotKey)
		if err != nil {
			return nil, err
		}
		equity, err := finiteFloat(p.Equity)
		if err != nil {
			return nil, err
		}
		points = append(points, sortable{epoch: ts, raw: p.SnapshotKey, equity: equity})
	}
	sort.SliceStable(points, func(i, j int) bool {
		if points[i].epoch != points[j].epoch {
			return points[i].epoch < points[j].epoch
		}
		return points[i].raw < points[j].raw
	})
	out := make([]equityPoint, 0, len(points))
	for _, p := range points {
		out = append(out, equityPoint{epoch: p.epoch, equity: p.equity})
	}
	return out, nil
}

// canonicalTradePnls sorts trades by (exit_timestamp, trade_id) ascending
// with the id tie broken by canonical string comparison, never insertion
// order, then extracts finite pnl values.
func canonicalTradePnls(trades []types.Trade) ([]float64, error) {
	sorted := append([]types.Trade(nil), trades...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ExitSnapshotKey != sorted[j].ExitSnapshotKey {
			return sorted[i].ExitSnapshotKey < sorted[j].ExitSnapshotKey
		}
		return sorted[i].ID < sorted[j].ID
	})
	pnls := make([]float64, 0, len(sorted))
	for _, t := range sorted {
		pnl, err := finiteFloat(t.RealizedPnL)
		if err != nil {
			return nil, err
		}
		pnls = append(pnls, pnl)
	}
	return pnls, nil
}

// boundaryEquity picks start/end equity: an explicit summary value wins,
// otherwise the canonical curve endpoints.
func boundaryEquity(summary Summary, points []equityPoint) (*float64, *float64, error) {
	var start, end *float64
	if summary.StartEquity.Valid {
		v, err := finiteFloat(summary.StartEquity.Decimal)
		if err != nil {
			return nil, nil, err
		}
		start = &v
	} else if len(points) > 0 {
		v := points[0].equity
		start = &v
	}
	if summary.EndEquity.Valid {
		v, err := finiteFloat(summary.EndEquity.Decimal)
		if err != nil {
			return nil, nil, err
		}
		end = &v
	} else if len(points) > 0 {
		v := points[len(points)-1].equity
		end = &v
	}
	return start, end, nil
}

func computeCAGR(points []equityPoint) (decimal.NullDecimal, error) {
	if len(points) < 2 {
		return decimal.NullDecimal{}, nil
	}
	start, end := points[0], points[len(points)-1]
	if start.equity <= 0 || end.equity < 0 {
		return decimal.NullDecimal{}, nil
	}
	years := (end.epoch - start.epoch) / secondsPerYear
	if years <= 0 {
		return decimal.NullDecimal{}, nil
	}
	return round12(math.Pow(end.equity/start.equity, 1.0/years) - 1.0)
}

func computeMaxDrawdown(points []equityPoint) (decimal.NullDecimal, error) {
	if len(points) < 2 {
		return decimal.NullDecimal{}, nil
	}
	peak := math.Inf(-1)
	foundPositivePeak := false
	maxDrawdown := 0.0
	for _, p := range points {
		if p.equity > peak {
			peak = p.equity
		}
		if peak > 0 {
			foundPositivePeak = true
			if dd := (peak - p.equity) / peak; dd > maxDrawdown {
				maxDrawdown = dd
			}
		}
	}
	if !foundPositivePeak {
		return decimal.NullDecimal{}, nil
	}
	return round12(maxDrawdown)
}

// computeSharpe is the mean over sample standard deviation (N-1 denominator)
// of period returns, with no annualization.
func computeSharpe(points []equityPoint) (decimal.NullDecimal, error) {
	if len(points) < 2 {
		return decimal.NullDecimal{}, nil
	}
	returns := make([]float64, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		prev := points[i-1].equity
		if prev == 0 {
			continue
		}
		returns = append(returns, (points[i].equity-prev)/prev)
	}
	if len(returns) < 2 {
		return decimal.NullDecimal{}, nil
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))
	var varianceSum float64
	for _, r := range returns {
		diff := r - mean
		varianceSum += diff * diff
	}
	stdev := math.Sqrt(varianceSum / float64(len(returns)-1))
	if stdev == 0 {
		return decimal.NullDecimal{}, nil
	}
	return round12(mean / stdev)
}

func computeTradeMetrics(pnls []float64, result *MetricsResult) error {
	if len(pnls) == 0 {
		return nil
	}

	var wins, losses int
	var winSum, lossSum float64
	for _, pnl := range pnls {
		switch {
		case pnl > 0:
			wins++
			winSum += pnl
		case pnl < 0:
			losses++
			lossSum += pnl
		}
	}

	winRate := float64(wins) / float64(len(pnls))
	var err error
	if result.WinRate, err = round12(winRate); err != nil {
		return err
	}

	// profit_factor is null whenever there are no losing trades, regardless
	// of the numerator sign.
	if lossSum != 0 {
		if result.ProfitFactor, err = round12(winSum / math.Abs(lossSum)); err != nil {
			return err
		}
	}

	sorted := append([]float64(nil), pnls...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	median := sorted[mid]
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}
	if result.MedianTradePnL, err = round12(median); err != nil {
		return err
	}

	avgWin := 0.0
	if wins > 0 {
		avgWin = winSum / float64(wins)
	}
	avgLoss := 0.0
	if losses > 0 {
		avgLoss = lossSum / float64(losses)
	}
	expectancy := winRate*avgWin - (1-winRate)*math.Abs(avgLoss)
	result.Expectancy, err = round12(expectancy)
	return err
}

// round12 quantizes half-to-even at 12 fractional digits and rejects
// non-finite values. Negative zero cannot survive: decimals normalize it.
func round12(v float64) (decimal.NullDecimal, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.NullDecimal{}, fmt.Errorf("%w", ErrNonFiniteMetric)
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(v).RoundBank(metricScale)), nil
}

func finiteFloat(d decimal.Decimal) (float64, error) {
	v := d.InexactFloat64()
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w", ErrNonFiniteMetric)
	}
	return v, nil
}

func parseTimestamp(raw string) (float64, error) {
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, fmt.Errorf("%w: unparseable timestamp in equity curve", ErrInputInvalid)
	}
	return float64(ts.Unix()), nil
}

// SerializeMetrics renders the metrics artifact: schema_version plus the six
// public metric keys, each a JSON number or null, nothing else.
func SerializeMetrics(m MetricsResult) ([]byte, string, error) {
	payload := map[string]any{
		"schema_version": MetricsSchemaVersion,
		"total_return":   nullableNumber(m.TotalReturn),
		"cagr":           nullableNumber(m.CAGR),
		"max_drawdown":   nullableNumber(m.MaxDrawdown),
		"sharpe_ratio":   nullableNumber(m.SharpeRatio),
		"win_rate":       nullableNumber(m.WinRate),
		"profit_factor":  nullableNumber(m.ProfitFactor),
	}
	raw, err := CanonicalJSONBytes(payload)
	if err != nil {
		return nil, "", err
	}
	return raw, HashArtifact(raw), nil
}
