// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"text/template"
	"time"

	"github.com/jeranaias/stratchat/internal/model"
)

// ============================================================================
// SYNTHETIC PRICES
// ============================================================================

const (
	basePrice = 42000.0
	day       = 24 * time.Hour
)

// noise returns a deterministic value in [-1, 1) for t and a salt.
func noise(t time.Time, salt uint64) float64 {
	h := fnv.New64a()
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(t.Unix()))
	binary.LittleEndian.PutUint64(buf[8:], salt)
	h.Write(buf[:])
	return float64(h.Sum64()%2000000)/1000000 - 1
}

// priceAt is a smooth deterministic price path, so overlapping requests agree.
func priceAt(t time.Time) float64 {
	s := float64(t.Unix())
	month := float64(30 * day / time.Second)
	halfWeek := float64(84 * time.Hour / time.Second)
	daily := float64(day / time.Second)
	p := basePrice * (1 +
		0.18*math.Sin(2*math.Pi*s/month) +
		0.06*math.Sin(2*math.Pi*s/halfWeek) +
		0.015*math.Sin(2*math.Pi*s/daily))
	return math.Round(p*100) / 100
}

// candleAt builds the candle opening at t with the given width. When asOf
// falls inside the candle it is built as still forming.
func candleAt(t time.Time, step time.Duration, asOf time.Time) model.Candle {
	closeAt := t.Add(step)
	if asOf.Before(closeAt) && asOf.After(t) {
		closeAt = asOf
	}
	open, closePrice := priceAt(t), priceAt(closeAt)
	wick := math.Abs(noise(t, 1)) * open * 0.004
	return model.Candle{
		Time:   t.UTC(),
		Open:   open,
		High:   math.Round((math.Max(open, closePrice)+wick)*100) / 100,
		Low:    math.Round((math.Min(open, closePrice)-wick)*100) / 100,
		Close:  closePrice,
		Volume: math.Round((800+700*noise(t, 2))*step.Hours()*1000) / 1000,
	}
}

// syntheticCandles returns the candles opening in [from, to).
func syntheticCandles(from, to time.Time, step time.Duration, limit int) []model.Candle {
	start := from.Truncate(step)
	if start.Before(from) {
		start = start.Add(step)
	}
	var out []model.Candle
	for t := start; t.Before(to); t = t.Add(step) {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, candleAt(t, step, time.Time{}))
	}
	return out
}

// recentCandles returns the last n candles ending with the one forming at now.
func recentCandles(now time.Time, step time.Duration, n int) []model.Candle {
	current := now.Truncate(step)
	out := make([]model.Candle, 0, n)
	for i := n - 1; i >= 0; i-- {
		t := current.Add(-time.Duration(i) * step)
		out = append(out, candleAt(t, step, now))
	}
	return out
}

// ============================================================================
// STRATEGY ANALYSIS
// ============================================================================

type indicatorRule struct {
	name     string
	keywords []string
	columns  []string
	kind     string
}

var indicatorRules = []indicatorRule{
	{"RSI", []string{"rsi", "상대강도"}, []string{"rsi_14"}, "평균 회귀"},
	{"MACD", []string{"macd"}, []string{"macd", "macd_signal", "macd_hist"}, "추세 추종"},
	{"Bollinger Bands", []string{"볼린저", "bollinger"}, []string{"bb_upper", "bb_middle", "bb_lower"}, "평균 회귀"},
	{"Moving Average", []string{"이동평균", "이평", "moving average", "sma", "ema", "골든크로스", "데드크로스", "golden cross", "death cross"}, []string{"sma_5", "sma_20"}, "추세 추종"},
	{"Stochastic", []string{"스토캐스틱", "stochastic"}, []string{"stoch_k", "stoch_d"}, "평균 회귀"},
	{"Volume", []string{"거래량", "volume"}, []string{"volume_ma_20"}, "거래량 기반"},
}

var (
	entryWords = []string{"매수", "진입", "buy", "long", "entry"}
	exitWords  = []string{"매도", "청산", "sell", "exit", "익절", "손절"}
)

func detectIndicators(strategy string) []indicatorRule {
	lower := strings.ToLower(strategy)
	var found []indicatorRule
	for _, rule := range indicatorRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				found = append(found, rule)
				break
			}
		}
	}
	return found
}

// clauses splits a strategy description into sentences and comma clauses.
func clauses(strategy string) []string {
	parts := strings.FieldsFunc(strategy, func(r rune) bool {
		return r == '\n' || r == ',' || r == '.' || r == ';'
	})
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func findClause(parts []string, words []string) string {
	var hits []string
	for _, p := range parts {
		lower := strings.ToLower(p)
		for _, w := range words {
			if strings.Contains(lower, w) {
				hits = append(hits, p)
				break
			}
		}
	}
	return strings.Join(hits, ", ")
}

func analyzeStrategy(strategy string) *model.StrategyAnalysis {
	rules := detectIndicators(strategy)
	a := &model.StrategyAnalysis{
		Indicators:   []string{},
		StrategyType: "사용자 정의",
	}
	for _, r := range rules {
		a.Indicators = append(a.Indicators, r.name)
	}
	if len(rules) > 0 {
		a.StrategyType = rules[0].kind
	}

	parts := clauses(strategy)
	a.EntryConditions = findClause(parts, entryWords)
	a.ExitConditions = findClause(parts, exitWords)
	if a.EntryConditions == "" {
		a.EntryConditions = "명시되지 않음"
	}
	if a.ExitConditions == "" {
		a.ExitConditions = "손절/익절 파라미터에 따름"
	}
	return a
}

func indicatorColumns(strategy string) []string {
	cols := []string{}
	for _, r := range detectIndicators(strategy) {
		cols = append(cols, r.columns...)
	}
	return cols
}

// ============================================================================
// CODE GENERATION
// ============================================================================

var codeTemplate = template.Must(template.New("strategy").Parse(`import backtrader as bt


class GeneratedStrategy(bt.Strategy):
    """{{.Strategy}}"""

    params = (
        ("capital_pct", {{.CapitalPct}}),
        ("stop_loss", {{.StopLoss}}),
        ("take_profit", {{.TakeProfit}}),
        ("fast", 5),
        ("slow", 20),
    )

    def __init__(self):
        self.fast_ma = bt.indicators.SMA(self.data.close, period=self.p.fast)
        self.slow_ma = bt.indicators.SMA(self.data.close, period=self.p.slow)
        self.cross = bt.indicators.CrossOver(self.fast_ma, self.slow_ma)
{{- range .Indicators}}
        # indicator: {{.}}
{{- end}}
        self.entry_price = None

    def next(self):
        if not self.position:
            if self.cross > 0:
                size = (self.broker.getvalue() * self.p.capital_pct) / self.data.close[0]
                self.buy(size=size)
                self.entry_price = self.data.close[0]
            return

        change = (self.data.close[0] - self.entry_price) / self.entry_price * 100
        if change <= -self.p.stop_loss or change >= self.p.take_profit or self.cross < 0:
            self.close()


# capital={{.Capital}} commission={{.Commission}} period={{.StartDate}}~{{.EndDate}} timeframe={{.Timeframe}}
`))

type codeData struct {
	Strategy   string
	Indicators []string
	Capital    float64
	CapitalPct float64
	StopLoss   float64
	TakeProfit float64
	Commission float64
	StartDate  string
	EndDate    string
	Timeframe  string
}

func generateCode(strategy string, p model.Params) (string, error) {
	var b strings.Builder
	data := codeData{
		Strategy:   strings.ReplaceAll(strategy, `"""`, `'''`),
		Capital:    p.Capital,
		CapitalPct: p.CapitalPct,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
		Commission: p.Commission,
		StartDate:  p.StartDate,
		EndDate:    p.EndDate,
		Timeframe:  p.Timeframe,
	}
	for _, r := range detectIndicators(strategy) {
		data.Indicators = append(data.Indicators, r.name)
	}
	if err := codeTemplate.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render strategy code: %w", err)
	}
	return b.String(), nil
}

// ============================================================================
// BACKTEST SIMULATION
// ============================================================================

const (
	fastPeriod  = 5
	slowPeriod  = 20
	tradeLayout = "2006-01-02 15:04"
)

type backtestOutcome struct {
	TotalReturn     float64       `json:"total_return"`
	NumTrades       int           `json:"num_trades"`
	WinRate         float64       `json:"win_rate"`
	MaxDrawdown     float64       `json:"max_drawdown"`
	ProfitLossRatio float64       `json:"profit_loss_ratio"`
	TradeHistory    []model.Trade `json:"trade_history"`
	EquityCurve     curve         `json:"equity_curve"`
}

type curve struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

func sma(closes []float64, end, period int) float64 {
	sum := 0.0
	for i := end - period + 1; i <= end; i++ {
		sum += closes[i]
	}
	return sum / float64(period)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// simulate runs a moving-average crossover with stop loss and take profit
// over candles. Commission applies to both legs.
func simulate(candles []model.Candle, p model.Params) backtestOutcome {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	equity := p.Capital
	out := backtestOutcome{TradeHistory: []model.Trade{}}
	if len(candles) > 0 {
		out.EquityCurve.Labels = append(out.EquityCurve.Labels, candles[0].Time.Format(tradeLayout))
		out.EquityCurve.Values = append(out.EquityCurve.Values, equity)
	}

	var (
		inPosition bool
		entryIdx   int
		entryPrice float64
		qty        float64
		wins       int
		winSum     float64
		lossSum    float64
	)

	for i := slowPeriod; i < len(candles); i++ {
		fast, slow := sma(closes, i, fastPeriod), sma(closes, i, slowPeriod)
		prevFast, prevSlow := sma(closes, i-1, fastPeriod), sma(closes, i-1, slowPeriod)
		crossUp := prevFast <= prevSlow && fast > slow
		crossDown := prevFast >= prevSlow && fast < slow

		if !inPosition {
			if crossUp {
				inPosition = true
				entryIdx = i
				entryPrice = closes[i]
				qty = equity * p.CapitalPct / entryPrice
			}
			continue
		}

		change := (closes[i] - entryPrice) / entryPrice * 100
		last := i == len(candles)-1
		if change > -p.StopLoss && change < p.TakeProfit && !crossDown && !last {
			continue
		}

		exit := closes[i]
		fees := (entryPrice + exit) * qty * p.Commission
		pnl := (exit-entryPrice)*qty - fees
		equity += pnl
		inPosition = false

		out.TradeHistory = append(out.TradeHistory, model.Trade{
			EntryDate:  candles[entryIdx].Time.Format(tradeLayout),
			ExitDate:   candles[i].Time.Format(tradeLayout),
			EntryPrice: entryPrice,
			ExitPrice:  exit,
			PnL:        round2(pnl),
			PnLPct:     math.Round(pnl/(entryPrice*qty)*10000) / 10000,
		})
		out.EquityCurve.Labels = append(out.EquityCurve.Labels, candles[i].Time.Format(tradeLayout))
		out.EquityCurve.Values = append(out.EquityCurve.Values, round2(equity))

		if pnl > 0 {
			wins++
			winSum += pnl
		} else {
			lossSum += -pnl
		}
	}

	n := len(out.TradeHistory)
	if len(candles) > 0 && n == 0 {
		out.EquityCurve.Labels = append(out.EquityCurve.Labels, candles[len(candles)-1].Time.Format(tradeLayout))
		out.EquityCurve.Values = append(out.EquityCurve.Values, equity)
	}

	out.NumTrades = n
	if p.Capital > 0 {
		out.TotalReturn = round2((equity - p.Capital) / p.Capital * 100)
	}
	if n > 0 {
		out.WinRate = round2(float64(wins) / float64(n) * 100)
	}
	losses := n - wins
	if wins > 0 && losses > 0 && lossSum > 0 {
		out.ProfitLossRatio = round2((winSum / float64(wins)) / (lossSum / float64(losses)))
	}
	out.MaxDrawdown = maxDrawdown(out.EquityCurve.Values)
	return out
}

// maxDrawdown returns the deepest peak-to-trough fall in percent, as a
// negative number (0 when the curve never falls).
func maxDrawdown(values []float64) float64 {
	peak, worst := 0.0, 0.0
	for _, v := range values {
		peak = math.Max(peak, v)
		if peak > 0 {
			worst = math.Min(worst, (v-peak)/peak*100)
		}
	}
	return round2(worst)
}
