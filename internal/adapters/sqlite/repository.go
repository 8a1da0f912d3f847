package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"btcFootprint/internal/domain"
	"btcFootprint/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.FootprintRepository using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/footprint.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode, and foreign keys so level rows follow their bar
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS footprint_bars (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL,
		step REAL NOT NULL,
		open_time INTEGER NOT NULL,
		time_label TEXT NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		open_rounded REAL NOT NULL,
		high_rounded REAL NOT NULL,
		low_rounded REAL NOT NULL,
		close_rounded REAL NOT NULL,
		volume REAL NOT NULL,
		total_bid REAL NOT NULL,
		total_ask REAL NOT NULL,
		delta REAL NOT NULL,
		bullish BOOLEAN NOT NULL,
		enriched BOOLEAN NOT NULL,
		UNIQUE (symbol, interval, step, open_time)
	);

	CREATE TABLE IF NOT EXISTS footprint_levels (
		bar_id INTEGER NOT NULL REFERENCES footprint_bars (id) ON DELETE CASCADE,
		price REAL NOT NULL,
		bid_volume REAL NOT NULL,
		ask_volume REAL NOT NULL,
		significant BOOLEAN NOT NULL,
		in_body BOOLEAN NOT NULL,
		PRIMARY KEY (bar_id, price)
	);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// SaveBars upserts bars keyed by (symbol, interval, step, open time). The levels of a
// bar that already exists are replaced. It returns the number of bars written.
func (r *Repository) SaveBars(ctx context.Context, key ports.SeriesKey, bars []domain.Bar) (int, error) {
	const upsertBar = `
	INSERT INTO footprint_bars (symbol, interval, step, open_time, time_label, open, high, low, close,
	                            open_rounded, high_rounded, low_rounded, close_rounded, volume,
	                            total_bid, total_ask, delta, bullish, enriched)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (symbol, interval, step, open_time) DO UPDATE SET
		time_label = excluded.time_label, open = excluded.open, high = excluded.high,
		low = excluded.low, close = excluded.close, open_rounded = excluded.open_rounded,
		high_rounded = excluded.high_rounded, low_rounded = excluded.low_rounded,
		close_rounded = excluded.close_rounded, volume = excluded.volume,
		total_bid = excluded.total_bid, total_ask = excluded.total_ask, delta = excluded.delta,
		bullish = excluded.bullish, enriched = excluded.enriched
	RETURNING id`
	const deleteLevels = `DELETE FROM footprint_levels WHERE bar_id = ?`
	const insertLevel = `
	INSERT INTO footprint_levels (bar_id, price, bid_volume, ask_volume, significant, in_body)
	VALUES (?, ?, ?, ?, ?, ?)`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w: %w", ports.ErrUpdateFailed, err)
	}
	defer tx.Rollback() // no-op after commit

	for _, b := range bars {
		var barID int64
		err := tx.QueryRowContext(ctx, upsertBar,
			key.Symbol, key.Interval, key.Step, b.Timestamp, b.TimeLabel, b.Open, b.High, b.Low, b.Close,
			b.OpenRounded, b.HighRounded, b.LowRounded, b.CloseRounded, b.Volume,
			b.TotalBid, b.TotalAsk, b.Delta, b.Bullish, b.Enriched).Scan(&barID)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert bar %d: %w: %w", b.Timestamp, ports.ErrUpdateFailed, err)
		}
		if _, err := tx.ExecContext(ctx, deleteLevels, barID); err != nil {
			return 0, fmt.Errorf("failed to clear levels of bar %d: %w: %w", b.Timestamp, ports.ErrUpdateFailed, err)
		}
		for _, l := range b.Levels {
			if _, err := tx.ExecContext(ctx, insertLevel, barID, l.Price, l.BidVolume, l.AskVolume, l.Significant, l.InBody); err != nil {
				return 0, fmt.Errorf("failed to insert level %v of bar %d: %w: %w", l.Price, b.Timestamp, ports.ErrUpdateFailed, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit bars: %w: %w", ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Footprint bars saved", map[string]interface{}{
		"symbol":   key.Symbol,
		"interval": key.Interval,
		"step":     key.Step,
		"bars":     len(bars),
	})
	return len(bars), nil
}

// FindBars returns the most recent bars of a series, oldest first. A limit of zero or
// less returns the whole series.
func (r *Repository) FindBars(ctx context.Context, key ports.SeriesKey, limit int) ([]domain.Bar, error) {
	const query = `
	SELECT id, open_time, time_label, open, high, low, close, open_rounded, high_rounded,
	       low_rounded, close_rounded, volume, total_bid, total_ask, delta, bullish, enriched
	FROM (
		SELECT * FROM footprint_bars
		WHERE symbol = ? AND interval = ? AND step = ?
		ORDER BY open_time DESC LIMIT ?
	)
	ORDER BY open_time ASC`

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := r.db.QueryContext(ctx, query, key.Symbol, key.Interval, key.Step, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars for %s %s: %w: %w", key.Symbol, key.Interval, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	bars := make([]domain.Bar, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		var b domain.Bar
		if err := rows.Scan(&id, &b.Timestamp, &b.TimeLabel, &b.Open, &b.High, &b.Low, &b.Close,
			&b.OpenRounded, &b.HighRounded, &b.LowRounded, &b.CloseRounded, &b.Volume,
			&b.TotalBid, &b.TotalAsk, &b.Delta, &b.Bullish, &b.Enriched); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w: %w", ports.ErrQueryFailed, err)
		}
		ids = append(ids, id)
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bar rows: %w: %w", ports.ErrQueryFailed, err)
	}
	rows.Close()

	for i, id := range ids {
		levels, err := r.findLevels(ctx, id)
		if err != nil {
			return nil, err
		}
		bars[i].Levels = levels
	}
	return bars, nil
}

func (r *Repository) findLevels(ctx context.Context, barID int64) ([]domain.PriceLevel, error) {
	const query = `
	SELECT price, bid_volume, ask_volume, significant, in_body
	FROM footprint_levels
	WHERE bar_id = ?
	ORDER BY price DESC`

	rows, err := r.db.QueryContext(ctx, query, barID)
	if err != nil {
		return nil, fmt.Errorf("failed to query levels of bar %d: %w: %w", barID, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	levels := make([]domain.PriceLevel, 0)
	for rows.Next() {
		var l domain.PriceLevel
		if err := rows.Scan(&l.Price, &l.BidVolume, &l.AskVolume, &l.Significant, &l.InBody); err != nil {
			return nil, fmt.Errorf("failed to scan level: %w: %w", ports.ErrQueryFailed, err)
		}
		levels = append(levels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating level rows: %w: %w", ports.ErrQueryFailed, err)
	}
	return levels, nil
}
