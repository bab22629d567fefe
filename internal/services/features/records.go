package features

import (
	"FinHybrid/internal/domain/models"
)

// Closes extracts the close prices of candles.
func Closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// BuildRecords produces one feature record per candle, oldest first. Indicators only look
// backwards, so record i depends on candles[:i+1]. Market attributes come from snap.
func BuildRecords(candles []models.Candle, snap models.MarketSnapshot) []models.FeatureRecord {
	if len(candles) == 0 {
		return nil
	}
	closes := Closes(candles)
	rsi := RSI(closes, RSIPeriod)
	macd, signal := MACD(closes, MACDFast, MACDSlow, MACDSignalPeriod)
	boll := BollingerPosition(closes, BollingerPeriod, BollingerWidth)
	returns := ComputeLogReturns(candles)

	market := models.MarketFeatures{
		MarketCap:         snap.MarketCap,
		PERatio:           snap.PERatio,
		PBRatio:           snap.PBRatio,
		DividendYield:     snap.DividendYield,
		SharesOutstanding: snap.SharesOutstanding,
	}

	out := make([]models.FeatureRecord, len(candles))
	for i, c := range candles {
		// returns[k] ends at candle k+1
		ws := ComputeWindowStats(returns[:i], StatsWindow)
		symbol := c.Symbol
		if symbol == "" {
			symbol = snap.Symbol
		}
		out[i] = models.FeatureRecord{
			Symbol:    symbol,
			Timestamp: c.Bucket,
			Technical: models.TechnicalIndicators{
				RSI:               rsi[i],
				MACD:              macd[i],
				MACDSignal:        signal[i],
				BollingerPosition: boll[i],
			},
			Statistical: models.StatisticalFeatures{
				Volatility:  ws.Volatility,
				Skewness:    ws.Skewness,
				Kurtosis:    ws.Kurtosis,
				SharpeRatio: ws.SharpeRatio,
			},
			Market: market,
		}
	}
	return out
}
