// Package sqlite is the optional append-only candle journal. Closed bars
// are batched into WAL-mode transactions for offline analysis and replay
// tooling. The journal is write-only at runtime: restart always starts
// from an empty in-process store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sharif3/momentum-trader/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// JournalConfig configures the SQLite journal.
type JournalConfig struct {
	DBPath string // e.g. "data/journal.db"
}

// Journal is a single-goroutine SQLite writer with transaction batching.
type Journal struct {
	db *sql.DB

	// OnCommit is called with the batch commit latency (optional).
	OnCommit func(d time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// New opens the journal database, enabling WAL mode and creating the
// schema when missing.
func New(cfg JournalConfig) (*Journal, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] journal opened at %s", cfg.DBPath)
	return &Journal{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol    TEXT    NOT NULL,
			timeframe TEXT    NOT NULL,
			start_ts  INTEGER NOT NULL,
			open      REAL    NOT NULL,
			high      REAL    NOT NULL,
			low       REAL    NOT NULL,
			close     REAL    NOT NULL,
			volume    REAL    NOT NULL,
			session   TEXT    NOT NULL,
			source    TEXT    NOT NULL,
			PRIMARY KEY (symbol, timeframe, start_ts)
		);
	`)
	return err
}

// Run reads closed candles from candleCh and inserts them in batched
// transactions: a flush every defaultBatchSize candles or defaultFlushDelay,
// whichever comes first. Blocks until ctx is cancelled or candleCh closes.
func (j *Journal) Run(ctx context.Context, candleCh <-chan model.Candle) {
	batch := make([]model.Candle, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := j.insertBatch(batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else if j.OnCommit != nil {
			j.OnCommit(time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case candle, ok := <-candleCh:
			if !ok {
				flush()
				return
			}
			if !candle.IsClosed {
				continue
			}
			batch = append(batch, candle)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertBatch inserts a batch of candles in a single transaction. A REST
// refresh re-journals replaced bars, so the insert is an upsert on the
// series key.
func (j *Journal) insertBatch(candles []model.Candle) error {
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles (symbol, timeframe, start_ts, open, high, low, close, volume, session, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.Exec(c.Symbol, string(c.Timeframe), c.StartTS, c.O, c.H, c.L, c.C, c.Volume, string(c.Session), string(c.Source))
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
