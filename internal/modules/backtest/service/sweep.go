package service

import (
	"context"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trade_engine/internal/models"
)

const (
	ModeGrid   = "grid"
	ModeRandom = "random"
)

// Plan is the list of combinations a sweep will run.
type Plan struct {
	Mode      string      `json:"mode"`
	GridSize  float64     `json:"grid_size"`
	Threshold float64     `json:"threshold"`
	Dims      []Dimension `json:"dims"`
	Combos    [][]float64 `json:"-"`
}

// Trial is one parameter combination and its replay outcome.
type Trial struct {
	Index  int                `json:"index"`
	Params map[string]float64 `json:"params"`
	Score  float64            `json:"score"`
	Report Report             `json:"-"`
	Error  string             `json:"error,omitempty"`
}

type SweepResult struct {
	RunID    string    `json:"run_id"`
	Mode     string    `json:"mode"`
	GridSize float64   `json:"grid_size"`
	Started  time.Time `json:"started"`
	Trials   []Trial   `json:"trials"` // лучшие первыми, упавшие в конце
}

// Best returns the top trial that ran without error.
func (r SweepResult) Best() (Trial, bool) {
	for _, t := range r.Trials {
		if t.Error == "" {
			return t, true
		}
	}
	return Trial{}, false
}

// ResultSink persists finished sweeps; *ResultStore implements it.
type ResultSink interface {
	SaveSweep(ctx context.Context, res SweepResult) error
}

type Sweeper struct {
	runner *Runner
	cfg    models.SweepSettings
	sink   ResultSink
	log    *zap.Logger
}

// NewSweeper: sink may be nil.
func NewSweeper(runner *Runner, cfg models.SweepSettings, sink ResultSink, log *zap.Logger) *Sweeper {
	return &Sweeper{runner: runner, cfg: cfg, sink: sink, log: log.Named("sweep")}
}

// MakePlan enumerates the grid, or switches to random sampling of budget
// distinct combinations when the grid is larger than the threshold
// (max_combinations when set, safety_multiple × budget otherwise).
func MakePlan(dims []Dimension, cfg models.SweepSettings, log *zap.Logger) (Plan, error) {
	if len(dims) == 0 {
		return Plan{}, errors.New("sweep: no parameter ranges")
	}
	if cfg.Budget <= 0 {
		return Plan{}, errors.New("sweep: budget must be positive")
	}
	p := Plan{Dims: dims, GridSize: GridSize(dims)}
	p.Threshold = float64(cfg.MaxCombinations)
	if cfg.MaxCombinations <= 0 {
		mult := cfg.SafetyMultiple
		if mult < 1 {
			mult = 1
		}
		p.Threshold = mult * float64(cfg.Budget)
	}

	if p.GridSize <= p.Threshold {
		p.Mode = ModeGrid
		p.Combos = enumerate(dims)
		return p, nil
	}

	n := cfg.Budget
	if float64(n) > p.GridSize {
		n = int(p.GridSize)
	}
	log.Warn("grid too large, switching to random sampling",
		zap.Float64("grid_size", p.GridSize),
		zap.Float64("threshold", p.Threshold),
		zap.Int("budget", cfg.Budget),
		zap.Int("samples", n),
		zap.Int64("seed", cfg.Seed),
	)
	p.Mode = ModeRandom
	p.Combos = sample(dims, n, cfg.Seed)
	return p, nil
}

func enumerate(dims []Dimension) [][]float64 {
	idx := make([]int, len(dims))
	var out [][]float64
	for {
		c := make([]float64, len(dims))
		for i, d := range dims {
			c[i] = d.Values[idx[i]]
		}
		out = append(out, c)

		// одометр, младший разряд: последнее измерение
		i := len(dims) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(dims[i].Values) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return out
		}
	}
}

// sample draws n distinct combinations without materialising the grid.
func sample(dims []Dimension, n int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	seen := make(map[string]struct{}, n)
	out := make([][]float64, 0, n)
	var key strings.Builder
	for attempts := 0; len(out) < n && attempts < n*100; attempts++ {
		key.Reset()
		c := make([]float64, len(dims))
		for i, d := range dims {
			j := rng.Intn(len(d.Values))
			c[i] = d.Values[j]
			key.WriteString(strconv.Itoa(j))
			key.WriteByte(',')
		}
		if _, dup := seen[key.String()]; dup {
			continue
		}
		seen[key.String()] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Sweep replays every planned combination in parallel, each trial with its
// own settings clone and components.
func (s *Sweeper) Sweep(ctx context.Context, base models.Settings, extra map[string]models.ParamRange, bars []models.Bar) (SweepResult, error) {
	dims, err := Dimensions(base, extra)
	if err != nil {
		return SweepResult{}, err
	}
	plan, err := MakePlan(dims, s.cfg, s.log)
	if err != nil {
		return SweepResult{}, err
	}
	return s.RunPlan(ctx, base, plan, bars)
}

func (s *Sweeper) RunPlan(ctx context.Context, base models.Settings, plan Plan, bars []models.Bar) (SweepResult, error) {
	score, err := Objective(s.cfg.Objective)
	if err != nil {
		return SweepResult{}, err
	}
	res := SweepResult{
		RunID:    uuid.NewString(),
		Mode:     plan.Mode,
		GridSize: plan.GridSize,
		Started:  time.Now().UTC(),
		Trials:   make([]Trial, len(plan.Combos)),
	}
	s.log.Info("sweep started",
		zap.String("run_id", res.RunID),
		zap.String("mode", plan.Mode),
		zap.Int("trials", len(plan.Combos)),
		zap.String("objective", s.cfg.Objective),
	)

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var mu sync.Mutex
	done := 0
	for i, combo := range plan.Combos {
		i, combo := i, combo
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tr := Trial{Index: i, Params: make(map[string]float64, len(combo))}
			set := base.Clone()
			for j, d := range plan.Dims {
				tr.Params[d.Name] = combo[j]
				if err := Apply(&set, d.Name, combo[j]); err != nil {
					return err
				}
			}
			rep, err := s.runner.Run(gctx, set, bars)
			switch {
			case gctx.Err() != nil:
				return gctx.Err()
			case err != nil:
				// недопустимая комбинация не валит весь перебор
				tr.Error = err.Error()
			default:
				tr.Report = rep
				tr.Score = score(rep.Metrics)
			}
			res.Trials[i] = tr

			mu.Lock()
			done++
			if done%100 == 0 {
				s.log.Info("sweep progress", zap.Int("done", done), zap.Int("total", len(plan.Combos)))
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	sort.SliceStable(res.Trials, func(i, j int) bool {
		a, b := res.Trials[i], res.Trials[j]
		if (a.Error == "") != (b.Error == "") {
			return a.Error == ""
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Index < b.Index
	})

	if best, ok := res.Best(); ok {
		s.log.Info("sweep finished",
			zap.String("run_id", res.RunID),
			zap.Float64("best_score", best.Score),
			zap.Any("best_params", best.Params),
		)
	} else {
		s.log.Warn("sweep finished without a successful trial", zap.String("run_id", res.RunID))
	}

	if s.sink != nil {
		if err := s.sink.SaveSweep(ctx, res); err != nil {
			s.log.Error("save sweep", zap.Error(err))
		}
	}
	return res, nil
}
