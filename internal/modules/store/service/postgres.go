package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"trade_engine/internal/models"
	"trade_engine/pkg/db"
)

const (
	createStateTable = `CREATE TABLE IF NOT EXISTS engine_state (
	key      TEXT PRIMARY KEY,
	record   JSONB NOT NULL,
	saved_at TIMESTAMPTZ NOT NULL
)`
	upsertState = `INSERT INTO engine_state (key, record, saved_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET record = EXCLUDED.record, saved_at = EXCLUDED.saved_at`
	selectState = `SELECT record FROM engine_state WHERE key = $1`
)

// Postgres stores one row per engine key in engine_state.
type Postgres struct {
	db db.TxManager
}

func NewPostgres(tm db.TxManager) *Postgres {
	return &Postgres{db: tm}
}

// Migrate creates the table if it is missing.
func (p *Postgres) Migrate(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Postgres.Migrate: %w", err)
		}
	}()
	_, err = p.db.Conn().Exec(ctx, createStateTable)
	return err
}

func (p *Postgres) Load(ctx context.Context, key string) (rec *models.EngineRecord, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Postgres.Load: %w", err)
		}
	}()
	var data []byte
	// позиция и дневной риск читаются одним снимком
	err = p.db.RunRepeatableRead(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		err := tx.QueryRow(ctxTx, selectState, key).Scan(&data)
		if errors.Is(err, pgx.ErrNoRows) {
			data = nil
			return nil
		}
		return err
	})
	if err != nil || data == nil {
		return nil, err
	}
	return Decode(data)
}

func (p *Postgres) Save(ctx context.Context, key string, rec models.EngineRecord) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Postgres.Save: %w", err)
		}
	}()
	data, err := Encode(rec)
	if err != nil {
		return err
	}
	return p.db.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		_, err := tx.Exec(ctxTx, upsertState, key, data, rec.SavedAt)
		return err
	})
}
