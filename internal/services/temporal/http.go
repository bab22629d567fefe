// Package temporal provides implementations of the sequence-model adapter consumed by the hybrid engine.
package temporal

import (
	"context"
	"fmt"
	"math"
	"time"

	"FinHybrid/internal/domain/models"
	domsvc "FinHybrid/internal/domain/service"
	"FinHybrid/internal/services/numeric"
	xhttp "FinHybrid/pkg/http"
	applogger "FinHybrid/pkg/logger"
)

const predictPath = "/temporal/predict"

var _ domsvc.TemporalAdapter = (*HTTPAdapter)(nil)

// HTTPOption configures HTTPAdapter.
type HTTPOption func(*HTTPAdapter)

// WithRetries sets how many times a transient failure is retried and the base backoff between attempts.
func WithRetries(n int, backoff time.Duration) HTTPOption {
	return func(a *HTTPAdapter) {
		if n >= 0 {
			a.retries = n
		}
		if backoff > 0 {
			a.backoff = backoff
		}
	}
}

// WithClient replaces the HTTP client.
func WithClient(c *xhttp.Client) HTTPOption {
	return func(a *HTTPAdapter) {
		a.client = c
	}
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(l *applogger.Logger) HTTPOption {
	return func(a *HTTPAdapter) {
		a.l = l
	}
}

// HTTPAdapter calls a remote sequence model over JSON.
type HTTPAdapter struct {
	baseURL string
	client  *xhttp.Client
	retries int
	backoff time.Duration
	l       *applogger.Logger
}

// NewHTTPAdapter builds an adapter for the service at baseURL with the given request timeout.
func NewHTTPAdapter(baseURL string, timeout time.Duration, opts ...HTTPOption) *HTTPAdapter {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	a := &HTTPAdapter{
		baseURL: baseURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
		retries: 2,
		backoff: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type sequenceRequest struct {
	Symbol  string                 `json:"symbol,omitempty"`
	Records []models.FeatureRecord `json:"records"`
}

func (a *HTTPAdapter) PredictSequence(ctx context.Context, features []models.FeatureRecord) (models.TemporalOutput, error) {
	req := sequenceRequest{Records: sanitizeRecords(features)}
	if len(features) > 0 {
		req.Symbol = features[len(features)-1].Symbol
	}

	var out models.TemporalOutput
	if err := a.postJSONWithRetry(ctx, predictPath, req, &out); err != nil {
		return models.TemporalOutput{}, fmt.Errorf("temporal predict: %w", err)
	}
	if err := normalizeOutput(&out); err != nil {
		return models.TemporalOutput{}, fmt.Errorf("temporal predict: %w", err)
	}
	return out, nil
}

func (a *HTTPAdapter) postJSON(ctx context.Context, path string, payload, dest interface{}) error {
	if a.client == nil || a.baseURL == "" {
		return fmt.Errorf("temporal http client not initialized")
	}
	err := a.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    a.baseURL + path,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// postJSONWithRetry retries transient failures with linear backoff. Client errors fail immediately.
func (a *HTTPAdapter) postJSONWithRetry(ctx context.Context, path string, payload, dest interface{}) error {
	var err error
	for attempt := 0; attempt <= a.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * a.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err = a.postJSON(ctx, path, payload, dest)
		if err == nil || !xhttp.IsRetryable(err) {
			return err
		}
		if a.l != nil {
			a.l.Warn("temporal request failed",
				applogger.String("path", path),
				applogger.Int("attempt", attempt+1),
				applogger.Error(err),
			)
		}
	}
	return err
}

// normalizeOutput fills a missing signal from the probabilities and rejects unusable responses.
func normalizeOutput(out *models.TemporalOutput) error {
	probs := out.Probabilities.Slice()
	sum := 0.0
	for _, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			return fmt.Errorf("invalid probability %v", p)
		}
		sum += p
	}
	if sum == 0 {
		return fmt.Errorf("empty probability vector")
	}
	switch out.Signal {
	case models.SignalBuy, models.SignalSell, models.SignalHold:
	case "":
		out.Signal = models.SignalFromIndex(numeric.ArgMax(probs))
	default:
		return fmt.Errorf("unknown signal %q", out.Signal)
	}
	if out.Confidence <= 0 {
		out.Confidence = probs[out.Signal.Index()] / sum
	}
	return nil
}

// sanitizeRecords replaces non-finite values with zero so the window can be JSON encoded.
func sanitizeRecords(in []models.FeatureRecord) []models.FeatureRecord {
	out := make([]models.FeatureRecord, len(in))
	for i, r := range in {
		out[i] = r
		t, s, m := &out[i].Technical, &out[i].Statistical, &out[i].Market
		for _, p := range []*float64{
			&t.RSI, &t.MACD, &t.MACDSignal, &t.BollingerPosition,
			&s.Volatility, &s.Skewness, &s.Kurtosis, &s.SharpeRatio,
			&m.MarketCap, &m.PERatio, &m.PBRatio, &m.DividendYield, &m.SharesOutstanding,
		} {
			if math.IsNaN(*p) || math.IsInf(*p, 0) {
				*p = 0
			}
		}
	}
	return out
}
