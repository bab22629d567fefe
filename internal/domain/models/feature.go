package models

import (
	"math"
	"time"
)

// TechnicalIndicators holds oscillator, momentum and band-position readings for one bar.
type TechnicalIndicators struct {
	RSI               float64 `json:"rsi"`
	MACD              float64 `json:"macd"`
	MACDSignal        float64 `json:"macd_signal"`
	BollingerPosition float64 `json:"bollinger_position"` // 0 at the lower band, 1 at the upper band
}

// Values returns the indicators in encoding order.
func (t TechnicalIndicators) Values() []float64 {
	return []float64{t.RSI, t.MACD, t.MACDSignal, t.BollingerPosition}
}

type StatisticalFeatures struct {
	Volatility  float64 `json:"volatility"`
	Skewness    float64 `json:"skewness"`
	Kurtosis    float64 `json:"kurtosis"`
	SharpeRatio float64 `json:"sharpe_ratio"`
}

// Values returns the statistics in encoding order.
func (s StatisticalFeatures) Values() []float64 {
	return []float64{s.Volatility, s.Skewness, s.Kurtosis, s.SharpeRatio}
}

type MarketFeatures struct {
	MarketCap         float64 `json:"market_cap"`
	PERatio           float64 `json:"pe_ratio"`
	PBRatio           float64 `json:"pb_ratio"`
	DividendYield     float64 `json:"dividend_yield"`
	SharesOutstanding float64 `json:"shares_outstanding,omitempty"`
}

// Values returns the encoded market attributes. SharesOutstanding is excluded.
func (m MarketFeatures) Values() []float64 {
	return []float64{m.MarketCap, m.PERatio, m.PBRatio, m.DividendYield}
}

// FeatureRecord is one time step of engineered attributes. Treat as immutable once built.
type FeatureRecord struct {
	Symbol      string              `json:"symbol,omitempty"`
	Timestamp   time.Time           `json:"timestamp"`
	Technical   TechnicalIndicators `json:"technical"`
	Statistical StatisticalFeatures `json:"statistical"`
	Market      MarketFeatures      `json:"market"`
}

// defaultShareCount stands in for SharesOutstanding when it is unknown.
const defaultShareCount = 1e9

// ReferencePrice derives a per-share value from market capitalization.
func (r FeatureRecord) ReferencePrice() float64 {
	shares := r.Market.SharesOutstanding
	if shares <= 0 || math.IsNaN(shares) || math.IsInf(shares, 0) {
		shares = defaultShareCount
	}
	return r.Market.MarketCap / shares
}

// Plausible reports whether every attribute is finite and inside a sane range.
func (r FeatureRecord) Plausible() bool {
	for _, group := range [][]float64{r.Technical.Values(), r.Statistical.Values(), r.Market.Values()} {
		for _, v := range group {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	switch {
	case r.Technical.RSI < 0 || r.Technical.RSI > 100:
		return false
	case r.Technical.BollingerPosition < -1 || r.Technical.BollingerPosition > 2:
		return false
	case r.Statistical.Volatility < 0 || r.Statistical.Volatility > 10:
		return false
	case r.Market.MarketCap < 0:
		return false
	case r.Market.DividendYield < 0 || r.Market.DividendYield > 1:
		return false
	case r.Market.SharesOutstanding < 0:
		return false
	}
	return true
}

// MarketSnapshot carries the latest fundamentals for a symbol.
type MarketSnapshot struct {
	Symbol            string    `json:"symbol"`
	Timestamp         time.Time `json:"timestamp"`
	MarketCap         float64   `json:"market_cap"`
	PERatio           float64   `json:"pe_ratio"`
	PBRatio           float64   `json:"pb_ratio"`
	DividendYield     float64   `json:"dividend_yield"`
	SharesOutstanding float64   `json:"shares_outstanding"`
}

// Candle represents an OHLCV record for feature engineering.
type Candle struct {
	Bucket time.Time
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}
