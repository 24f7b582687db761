package service

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"trade_engine/internal/models"
)

// maxRecordVersion is the newest record layout this build can read.
const maxRecordVersion = 1

// Store persists engine records by key. Load returns nil, nil for an unknown key.
type Store interface {
	Load(ctx context.Context, key string) (*models.EngineRecord, error)
	Save(ctx context.Context, key string, rec models.EngineRecord) error
}

// Encode: запись в JSON.
func Encode(rec models.EngineRecord) ([]byte, error) {
	data, err := sonic.Marshal(rec)
	if err != nil {
		return nil, errors.Wrap(err, "encode engine record")
	}
	return data, nil
}

func Decode(data []byte) (*models.EngineRecord, error) {
	var rec models.EngineRecord
	if err := sonic.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(err, "decode engine record")
	}
	if rec.Version > maxRecordVersion {
		return nil, errors.Errorf("engine record version %d is newer than %d", rec.Version, maxRecordVersion)
	}
	return &rec, nil
}
