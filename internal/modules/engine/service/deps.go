package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"trade_engine/internal/models"
	features "trade_engine/internal/modules/features/service"
	monitor "trade_engine/internal/modules/monitor/service"
	regime "trade_engine/internal/modules/regime/service"
	risk "trade_engine/internal/modules/risk/service"
	signal "trade_engine/internal/modules/signal/service"
)

// Executor is the order venue: a real exchange adapter or the paper broker.
type Executor interface {
	SubmitOrder(ctx context.Context, req models.OrderRequest) (models.OrderAck, error)
	// GetPosition returns nil when the venue is flat.
	GetPosition(ctx context.Context, symbol string) (*models.VenuePosition, error)
	GetBalance(ctx context.Context) (float64, error)
}

// Store persists the engine record. Load returns nil, nil when nothing is stored.
type Store interface {
	Load(ctx context.Context, key string) (*models.EngineRecord, error)
	Save(ctx context.Context, key string, rec models.EngineRecord) error
}

// Oracle gates a candidate signal. Implementations must return within their
// own deadline and never block indefinitely.
type Oracle interface {
	Decide(ctx context.Context, req models.OracleRequest) models.OracleOutcome
}

type ServiceNotifier interface {
	SendService(ctx context.Context, format string, args ...any)
}

// Components are the collaborators of one engine instance.
type Components struct {
	Features *features.Engine
	Regime   *regime.Classifier
	Signals  *signal.Generator
	Risk     *risk.Manager
	Monitor  *monitor.Monitor

	Executor Executor
	Store    Store
	Oracle   Oracle
	Notifier ServiceNotifier
	Log      *zap.Logger
	Clock    func() time.Time
}

// NewPipeline builds fresh analysis components from settings. Every call
// returns new instances, nothing is shared between them.
func NewPipeline(set models.Settings) (Components, error) {
	fe, err := features.NewEngine(set.Indicators, nil)
	if err != nil {
		return Components{}, errors.Wrap(err, "features")
	}
	gen, err := signal.NewGenerator(set.Signal, nil)
	if err != nil {
		return Components{}, errors.Wrap(err, "signal")
	}
	return Components{
		Features: fe,
		Regime:   regime.NewClassifier(set.Regime),
		Signals:  gen,
		Risk:     risk.NewManager(set.Risk),
		Monitor:  monitor.NewMonitor(set.Trailing),
	}, nil
}
