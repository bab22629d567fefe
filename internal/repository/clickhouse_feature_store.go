package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"FinHybrid/internal/domain/models"
	domrepo "FinHybrid/internal/domain/repository"
	pkgch "FinHybrid/pkg/clickhouse"
	applogger "FinHybrid/pkg/logger"
)

var _ domrepo.FeatureStore = (*CHFeatureStore)(nil)

const (
	candles1sTable  = "finhybrid.rt_candles_1s"
	candles1mTable  = "finhybrid.rt_candles_1m"
	snapshotsTable  = "finhybrid.market_snapshots"
	fiveMinuteWidth = 5 * time.Minute
)

// Schema returns the idempotent DDL for the tables the feature store reads.
func Schema() []string {
	candles := `
        CREATE TABLE IF NOT EXISTS %s (
            bucket DateTime64(3),
            symbol LowCardinality(String),
            open Float64,
            high Float64,
            low Float64,
            close Float64,
            vol Float64
        ) ENGINE = ReplacingMergeTree
        ORDER BY (symbol, bucket)
    `
	return []string{
		`CREATE DATABASE IF NOT EXISTS finhybrid`,
		fmt.Sprintf(candles, candles1sTable),
		fmt.Sprintf(candles, candles1mTable),
		`
        CREATE TABLE IF NOT EXISTS ` + snapshotsTable + ` (
            ts DateTime64(3),
            symbol LowCardinality(String),
            market_cap Float64,
            pe_ratio Float64,
            pb_ratio Float64,
            dividend_yield Float64,
            shares_outstanding Float64
        ) ENGINE = ReplacingMergeTree
        ORDER BY (symbol, ts)
    `,
	}
}

// CHFeatureStore implements FeatureStore backed by ClickHouse.
type CHFeatureStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHFeatureStore(ch *pkgch.Client) *CHFeatureStore {
	return &CHFeatureStore{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHFeatureStore) SetLogger(l *applogger.Logger) { s.l = l }

// GetLatestNCandles returns up to n candles in ascending bucket order. 5m candles are folded from 1m rows.
func (s *CHFeatureStore) GetLatestNCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	if n <= 0 {
		return []models.Candle{}, nil
	}
	start := time.Now()
	table, err := tableForTF(tf)
	if err != nil {
		return nil, err
	}
	limit := n
	if tf == domrepo.TF5m {
		// one extra bucket so a partial leading bucket can be dropped
		limit = (n + 1) * 5
	}

	const qtpl = `
        SELECT bucket, symbol, open, high, low, close, vol
        FROM %s
        WHERE symbol = ?
        ORDER BY bucket DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, table), symbol, limit)
	if err != nil {
		s.logError("latest_candles query error", table, symbol, err)
		return nil, fmt.Errorf("get latest candles: %w", err)
	}
	defer rows.Close()

	tmp := make([]models.Candle, 0, limit)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			s.logError("latest_candles scan error", table, symbol, err)
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		tmp = append(tmp, c)
	}
	if err := rows.Err(); err != nil {
		s.logError("latest_candles rows error", table, symbol, err)
		return nil, fmt.Errorf("rows: %w", err)
	}

	reverseCandles(tmp)
	if tf == domrepo.TF5m {
		tmp = aggregateCandles(tmp, fiveMinuteWidth)
		if len(tmp) > n {
			tmp = tmp[len(tmp)-n:]
		}
	}

	if s.l != nil {
		s.l.Debug("clickhouse latest_candles ok",
			applogger.String("table", table),
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Int("limit", n),
			applogger.Int("rows", len(tmp)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return tmp, nil
}

// GetMarketSnapshot returns the newest fundamentals row for symbol, or domrepo.ErrNotFound.
func (s *CHFeatureStore) GetMarketSnapshot(ctx context.Context, symbol string) (models.MarketSnapshot, error) {
	const q = `
        SELECT ts, symbol, market_cap, pe_ratio, pb_ratio, dividend_yield, shares_outstanding
        FROM ` + snapshotsTable + `
        WHERE symbol = ?
        ORDER BY ts DESC
        LIMIT 1
    `
	var m models.MarketSnapshot
	err := s.db.QueryRowContext(ctx, q, symbol).Scan(
		&m.Timestamp, &m.Symbol, &m.MarketCap, &m.PERatio, &m.PBRatio, &m.DividendYield, &m.SharesOutstanding,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.MarketSnapshot{Symbol: symbol}, fmt.Errorf("market snapshot %s: %w", symbol, domrepo.ErrNotFound)
	}
	if err != nil {
		s.logError("market_snapshot query error", snapshotsTable, symbol, err)
		return models.MarketSnapshot{}, fmt.Errorf("get market snapshot: %w", err)
	}
	return m, nil
}

func (s *CHFeatureStore) logError(msg, table, symbol string, err error) {
	if s.l == nil {
		return
	}
	s.l.Error("clickhouse "+msg,
		applogger.String("table", table),
		applogger.String("symbol", symbol),
		applogger.Error(err),
	)
}

func tableForTF(tf domrepo.Timeframe) (string, error) {
	switch tf {
	case domrepo.TF1s:
		return candles1sTable, nil
	case domrepo.TF1m, domrepo.TF5m:
		return candles1mTable, nil
	default:
		return "", fmt.Errorf("unsupported timeframe: %s", tf)
	}
}

func reverseCandles(cs []models.Candle) {
	for i, j := 0, len(cs)-1; i < j; i, j = i+1, j-1 {
		cs[i], cs[j] = cs[j], cs[i]
	}
}

// aggregateCandles folds ascending candles into buckets of width. The leading bucket is dropped
// when it does not start on a boundary, since its open would be wrong.
func aggregateCandles(cs []models.Candle, width time.Duration) []models.Candle {
	out := make([]models.Candle, 0, len(cs)/int(width/time.Minute)+1)
	var leadingPartial bool
	for i, c := range cs {
		b := c.Bucket.Truncate(width)
		if n := len(out); n > 0 && out[n-1].Bucket.Equal(b) {
			cur := &out[n-1]
			if c.High > cur.High {
				cur.High = c.High
			}
			if c.Low < cur.Low {
				cur.Low = c.Low
			}
			cur.Close = c.Close
			cur.Volume += c.Volume
			continue
		}
		if i == 0 && !c.Bucket.Equal(b) {
			leadingPartial = true
		}
		out = append(out, models.Candle{
			Bucket: b,
			Symbol: c.Symbol,
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
		})
	}
	if leadingPartial && len(out) > 0 {
		out = out[1:]
	}
	return out
}
