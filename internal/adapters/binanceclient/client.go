package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"btcFootprint/internal/domain"
	"btcFootprint/internal/metrics"
	"btcFootprint/internal/ports"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/jpillora/backoff"
	"golang.org/x/time/rate"
)

const (
	baseURLProduction = "https://api.binance.com"

	// AggTradesPageLimit is the largest page the aggTrades endpoint serves.
	// Windows with more trades are undercounted.
	AggTradesPageLimit = 1000
)

// RetryPolicy bounds one kind of exchange call.
type RetryPolicy struct {
	Attempts int           // total attempts, first one included
	Timeout  time.Duration // per attempt
}

// Client implements the ports.MarketDataClient interface using the go-binance spot client.
type Client struct {
	spot         *binance.Client
	symbol       string
	logger       ports.Logger
	metrics      *metrics.Metrics
	klinesPolicy RetryPolicy
	tradesPolicy RetryPolicy
	depthPolicy  RetryPolicy
	retryBackoff backoff.Backoff // template, copied per call
	limiter      *rate.Limiter   // nil when unthrottled
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	Symbol       string
	BaseURL      string // defaults to the production spot API
	Logger       ports.Logger
	Metrics      *metrics.Metrics // optional
	Klines       RetryPolicy      // default 3 attempts, 15s
	Trades       RetryPolicy      // default 2 attempts, 12s
	Depth        RetryPolicy      // default 2 attempts, 10s
	RetryBackoff time.Duration    // first delay between attempts, default 1s
	// RetryBackoffFactor grows each later delay; values below 1 mean 1, a fixed delay.
	RetryBackoffFactor float64
	RetryBackoffMax    time.Duration // caps grown delays, default 8x RetryBackoff
	RetryJitter        bool          // randomize each delay between RetryBackoff and its grown value
	RateLimit    float64          // requests per second across all calls, 0 disables
	RateBurst    int              // defaults to 1
	HTTPClient   *http.Client     // optional, shared by all calls
}

// New creates a new Binance client adapter. Only public market-data endpoints are used,
// so no API keys are required.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	symbol := strings.ToUpper(strings.TrimSpace(cfg.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required for Binance client: %w", ports.ErrConfigurationError)
	}

	spot := binance.NewClient("", "")
	spot.BaseURL = baseURLProduction
	if cfg.BaseURL != "" {
		spot.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		spot.HTTPClient = cfg.HTTPClient
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": spot.BaseURL, "symbol": symbol})

	retryBackoff := cfg.RetryBackoff
	if retryBackoff <= 0 {
		retryBackoff = 1 * time.Second
	}
	factor := cfg.RetryBackoffFactor
	if factor < 1 {
		factor = 1
	}
	maxBackoff := cfg.RetryBackoffMax
	if maxBackoff <= 0 {
		maxBackoff = 8 * retryBackoff
	}
	if factor == 1 || maxBackoff < retryBackoff {
		maxBackoff = retryBackoff
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		spot:         spot,
		symbol:       symbol,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		klinesPolicy: withDefaults(cfg.Klines, 3, 15*time.Second),
		tradesPolicy: withDefaults(cfg.Trades, 2, 12*time.Second),
		depthPolicy:  withDefaults(cfg.Depth, 2, 10*time.Second),
		retryBackoff: backoff.Backoff{Min: retryBackoff, Max: maxBackoff, Factor: factor, Jitter: cfg.RetryJitter},
		limiter:      limiter,
	}, nil
}

func withDefaults(p RetryPolicy, attempts int, timeout time.Duration) RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = attempts
	}
	if p.Timeout <= 0 {
		p.Timeout = timeout
	}
	return p
}

// Symbol returns the trading pair the client is bound to.
func (c *Client) Symbol() string {
	return c.symbol
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1007: // Timeout waiting for response from backend server
			mappedErr = ports.ErrTimeout
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1112, -1114, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrExchangeUnavailable, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// withRetry runs call up to policy.Attempts times, each attempt under its own timeout,
// sleeping between attempts on the configured backoff. Any error is retried. Every
// attempt first takes a token from the shared rate limiter.
func (c *Client) withRetry(ctx context.Context, op string, policy RetryPolicy, call func(ctx context.Context) error) error {
	b := c.newBackoff()

	var lastErr error
retry:
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				lastErr = err
				break retry
			}
		}
		attemptCtx, cancel := context.WithTimeout(ctx, policy.Timeout)
		err := call(attemptCtx)
		cancel()
		if err == nil {
			c.metrics.RecordUpstream(op, metrics.OutcomeSuccess)
			return nil
		}
		lastErr = err
		if ctx.Err() != nil || attempt == policy.Attempts {
			break
		}

		delay := b.Duration()
		c.logger.Warn(ctx, op+": attempt failed, retrying", map[string]interface{}{
			"attempt":     attempt,
			"maxAttempts": policy.Attempts,
			"delay":       delay.String(),
			"error":       err.Error(),
		})
		c.metrics.RecordRetry(op)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			lastErr = ctx.Err()
			break retry
		}
	}

	outcome := metrics.OutcomeError
	if errors.Is(lastErr, context.DeadlineExceeded) {
		outcome = metrics.OutcomeTimeout
	}
	c.metrics.RecordUpstream(op, outcome)
	return c.handleError(ctx, lastErr, op)
}

// newBackoff returns a fresh delay sequence for one call.
func (c *Client) newBackoff() *backoff.Backoff {
	b := c.retryBackoff
	b.Reset()
	return &b
}

// GetKlines retrieves the most recent klines for the interval, oldest first.
func (c *Client) GetKlines(ctx context.Context, interval string, limit int) ([]*domain.Kline, error) {
	op := "GetKlines"
	var binanceKlines []*binance.Kline
	err := c.withRetry(ctx, op, c.klinesPolicy, func(ctx context.Context) error {
		var err error
		binanceKlines, err = c.spot.NewKlinesService().Symbol(c.symbol).Interval(interval).Limit(limit).Do(ctx)
		return err
	})
	if err != nil {
		return []*domain.Kline{}, err
	}

	domainKlines := make([]*domain.Kline, 0, len(binanceKlines))
	for _, bk := range binanceKlines {
		dk, err := translateBinanceKline(bk, c.symbol, interval)
		if err != nil {
			return []*domain.Kline{}, c.handleError(ctx, fmt.Errorf("failed to translate kline: %w", err), op)
		}
		domainKlines = append(domainKlines, dk)
	}

	c.logger.Debug(ctx, op+" successful", map[string]interface{}{"interval": interval, "count": len(domainKlines)})
	return domainKlines, nil
}

// GetAggTrades retrieves aggregated trades with start <= time <= end, capped at one page.
// Trades whose price or quantity cannot be parsed are skipped.
func (c *Client) GetAggTrades(ctx context.Context, start, end time.Time) ([]*domain.AggTrade, error) {
	op := "GetAggTrades"
	var binanceTrades []*binance.AggTrade
	err := c.withRetry(ctx, op, c.tradesPolicy, func(ctx context.Context) error {
		var err error
		binanceTrades, err = c.spot.NewAggTradesService().
			Symbol(c.symbol).
			StartTime(start.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(AggTradesPageLimit).
			Do(ctx)
		return err
	})
	if err != nil {
		return []*domain.AggTrade{}, err
	}

	trades := make([]*domain.AggTrade, 0, len(binanceTrades))
	skipped := 0
	for _, bt := range binanceTrades {
		t, err := translateAggTrade(bt)
		if err != nil {
			skipped++
			continue
		}
		trades = append(trades, t)
	}
	if skipped > 0 {
		c.logger.Warn(ctx, op+": skipped malformed trades", map[string]interface{}{"skipped": skipped})
	}
	if len(binanceTrades) >= AggTradesPageLimit {
		c.logger.Debug(ctx, op+": trade page full, window is undercounted", map[string]interface{}{"start": start.UnixMilli(), "end": end.UnixMilli()})
	}
	return trades, nil
}

// GetOrderBook retrieves a depth snapshot with up to limit levels per side.
func (c *Client) GetOrderBook(ctx context.Context, limit int) (*domain.OrderBook, error) {
	op := "GetOrderBook"
	var depth *binance.DepthResponse
	err := c.withRetry(ctx, op, c.depthPolicy, func(ctx context.Context) error {
		var err error
		depth, err = c.spot.NewDepthService().Symbol(c.symbol).Limit(limit).Do(ctx)
		return err
	})
	if err != nil {
		return &domain.OrderBook{}, err
	}

	book, err := translateDepth(depth)
	if err != nil {
		return &domain.OrderBook{}, c.handleError(ctx, fmt.Errorf("failed to translate depth: %w", err), op)
	}
	book.FetchedAt = time.Now()
	return book, nil
}

// --- Translation Helpers ---

func translateBinanceKline(bk *binance.Kline, symbol, interval string) (*domain.Kline, error) {
	if bk == nil {
		return nil, errors.New("received nil kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	return &domain.Kline{
		OpenTime:  time.UnixMilli(bk.OpenTime),
		CloseTime: time.UnixMilli(bk.CloseTime),
		Symbol:    symbol,
		Interval:  interval,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
	}, nil
}

func translateAggTrade(bt *binance.AggTrade) (*domain.AggTrade, error) {
	if bt == nil {
		return nil, errors.New("received nil trade")
	}
	price, err := strconv.ParseFloat(bt.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing trade price '%s': %w", bt.Price, err)
	}
	qty, err := strconv.ParseFloat(bt.Quantity, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing trade quantity '%s': %w", bt.Quantity, err)
	}
	return &domain.AggTrade{
		ID:           bt.AggTradeID,
		Price:        price,
		Quantity:     qty,
		IsBuyerMaker: bt.IsBuyerMaker,
		Time:         time.UnixMilli(bt.Timestamp),
	}, nil
}

func translateDepth(depth *binance.DepthResponse) (*domain.OrderBook, error) {
	if depth == nil {
		return nil, errors.New("received nil depth")
	}
	book := &domain.OrderBook{
		LastUpdateID: depth.LastUpdateID,
		Bids:         make([]domain.BookLevel, 0, len(depth.Bids)),
		Asks:         make([]domain.BookLevel, 0, len(depth.Asks)),
	}
	for _, b := range depth.Bids {
		lvl, err := parseLevel(b.Price, b.Quantity)
		if err != nil {
			return nil, fmt.Errorf("bid: %w", err)
		}
		book.Bids = append(book.Bids, lvl)
	}
	for _, a := range depth.Asks {
		lvl, err := parseLevel(a.Price, a.Quantity)
		if err != nil {
			return nil, fmt.Errorf("ask: %w", err)
		}
		book.Asks = append(book.Asks, lvl)
	}
	return book, nil
}

func parseLevel(priceStr, qtyStr string) (domain.BookLevel, error) {
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return domain.BookLevel{}, fmt.Errorf("parsing price '%s': %w", priceStr, err)
	}
	qty, err := strconv.ParseFloat(qtyStr, 64)
	if err != nil {
		return domain.BookLevel{}, fmt.Errorf("parsing quantity '%s': %w", qtyStr, err)
	}
	return domain.BookLevel{Price: price, Quantity: qty}, nil
}
