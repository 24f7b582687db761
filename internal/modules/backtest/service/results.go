package service

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	_ "modernc.org/sqlite" // SQLite driver
)

const sweepSchema = `
CREATE TABLE IF NOT EXISTS sweep_runs (
	run_id    TEXT PRIMARY KEY,
	mode      TEXT NOT NULL,
	grid_size REAL NOT NULL,
	trials    INTEGER NOT NULL,
	started   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS sweep_trials (
	run_id        TEXT NOT NULL,
	idx           INTEGER NOT NULL,
	params        TEXT NOT NULL,
	score         REAL NOT NULL,
	trades        INTEGER NOT NULL,
	net_profit    REAL NOT NULL,
	win_rate      REAL NOT NULL,
	profit_factor REAL NOT NULL,
	max_drawdown  REAL NOT NULL,
	sharpe        REAL NOT NULL,
	error         TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, idx)
);`

// ResultStore keeps sweep trials in a SQLite file.
type ResultStore struct {
	db *sql.DB
}

func OpenResultStore(path string) (*ResultStore, error) {
	if path == "" {
		return nil, fmt.Errorf("results path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create results directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // один писатель
	db.SetConnMaxLifetime(time.Hour)
	if _, err := db.Exec(sweepSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ResultStore.migrate: %w", err)
	}
	return &ResultStore{db: db}, nil
}

func (s *ResultStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *ResultStore) SaveSweep(ctx context.Context, res SweepResult) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("ResultStore.SaveSweep: %w", err)
		}
	}()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO sweep_runs (run_id, mode, grid_size, trials, started) VALUES (?, ?, ?, ?, ?)`,
		res.RunID, res.Mode, res.GridSize, len(res.Trials), res.Started.Format(time.RFC3339Nano),
	); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO sweep_trials
		(run_id, idx, params, score, trades, net_profit, win_rate, profit_factor, max_drawdown, sharpe, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, t := range res.Trials {
		params, mErr := sonic.Marshal(t.Params)
		if mErr != nil {
			return mErr
		}
		m := t.Report.Metrics
		if _, err = stmt.ExecContext(ctx, res.RunID, t.Index, string(params), t.Score,
			m.Trades, m.NetProfit, m.WinRate, m.ProfitFactor, m.MaxDrawdownPct, m.Sharpe, t.Error,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// StoredTrial is a trial row read back from the store.
type StoredTrial struct {
	Index     int
	Params    map[string]float64
	Score     float64
	Trades    int
	NetProfit float64
	Error     string
}

// TopTrials returns the best successful trials of a run.
func (s *ResultStore) TopTrials(ctx context.Context, runID string, limit int) (out []StoredTrial, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("ResultStore.TopTrials: %w", err)
		}
	}()
	rows, err := s.db.QueryContext(ctx, `SELECT idx, params, score, trades, net_profit, error
		FROM sweep_trials WHERE run_id = ? AND error = '' ORDER BY score DESC, idx ASC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()
	for rows.Next() {
		var (
			t      StoredTrial
			params string
		)
		if err = rows.Scan(&t.Index, &params, &t.Score, &t.Trades, &t.NetProfit, &t.Error); err != nil {
			return nil, err
		}
		if err = sonic.UnmarshalString(params, &t.Params); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
