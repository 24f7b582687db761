package service

import (
	"context"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"trade_engine/internal/helper"
	"trade_engine/internal/models"
)

const DefaultURL = "wss://ws.okx.com:8443/ws/v5/business"

// ConnState receives connection up/down changes (health state).
type ConnState interface {
	SetWSConnected(v bool)
}

type StreamConfig struct {
	URL          string
	InstID       string // инструмент на площадке
	Symbol       string // символ в барах
	Timeframe    string
	PingInterval time.Duration
	Reconnect    time.Duration
}

// Stream reads an OKX-style candle channel. Closed candles become bar
// events, updates of the forming candle become tick events with its current
// close. One connection, keepalive ping, reconnect after any read error.
type Stream struct {
	cfg    StreamConfig
	tf     time.Duration
	dialer *websocket.Dialer
	state  ConnState
	log    *zap.Logger
	now    func() time.Time
}

func NewStream(cfg StreamConfig, state ConnState, log *zap.Logger) (*Stream, error) {
	tf, err := helper.TimeframeDuration(cfg.Timeframe)
	if err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.InstID == "" {
		cfg.InstID = cfg.Symbol
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	if cfg.Reconnect <= 0 {
		cfg.Reconnect = time.Second
	}
	return &Stream{
		cfg:    cfg,
		tf:     tf,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		state:  state,
		log:    log.Named("stream"),
		now:    time.Now,
	}, nil
}

func (s *Stream) channel() string {
	return "candle" + okxBar(s.cfg.Timeframe)
}

// Run streams events until ctx is done; the channel is closed afterwards.
func (s *Stream) Run(ctx context.Context, buffer int) <-chan models.Event {
	out := make(chan models.Event, buffer)
	go func() {
		defer close(out)
		s.Pump(ctx, out)
	}()
	return out
}

// Pump writes bar and tick events into out until ctx is done. It never
// closes out.
func (s *Stream) Pump(ctx context.Context, out chan<- models.Event) {
	var last time.Time
	for {
		err := s.session(ctx, out, &last)
		s.setConnected(false)
		if ctx.Err() != nil {
			return
		}
		s.log.Warn("ws session ended, reconnecting",
			zap.String("channel", s.channel()),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.Reconnect):
		}
	}
}

func (s *Stream) session(ctx context.Context, out chan<- models.Event, last *time.Time) error {
	conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = conn.Close()
	}()

	sub := map[string]any{
		"op": "subscribe",
		"args": []map[string]string{{
			"channel": s.channel(),
			"instId":  s.cfg.InstID,
		}},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}
	s.setConnected(true)
	s.log.Info("ws subscribed", zap.String("channel", s.channel()), zap.String("inst_id", s.cfg.InstID))

	// пинг раз в PingInterval, иначе биржа рвёт соединение
	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		t := time.NewTicker(s.cfg.PingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-stopPing:
				return
			case <-t.C:
				if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		updates, err := parseCandles(msg, s.channel(), s.cfg.Symbol, helper.NormTF(s.cfg.Timeframe), s.tf, s.now())
		if err != nil {
			s.log.Debug("skip frame", zap.Error(err))
			continue
		}
		for _, u := range updates {
			// после переподключения биржа повторяет последнюю свечу
			if !last.IsZero() && !u.start.After(*last) {
				continue
			}
			if u.ev.Kind == models.EventBar {
				*last = u.start
			}
			select {
			case out <- u.ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (s *Stream) setConnected(v bool) {
	if s.state != nil {
		s.state.SetWSConnected(v)
	}
}

type candleFrame struct {
	Arg struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Event string     `json:"event"`
	Data  [][]string `json:"data"`
}

// candleUpdate is one decoded row: a bar event for a closed candle, a tick
// event for the forming one.
type candleUpdate struct {
	start time.Time
	ev    models.Event
}

// parseCandles decodes one frame; rows are
// [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm]. A row of the forming
// candle becomes a tick at its close price stamped with now.
func parseCandles(msg []byte, channel, symbol, timeframe string, tf time.Duration, now time.Time) ([]candleUpdate, error) {
	if string(msg) == "pong" {
		return nil, nil
	}
	var frame candleFrame
	if err := sonic.Unmarshal(msg, &frame); err != nil {
		return nil, err
	}
	if frame.Event != "" || frame.Arg.Channel != channel {
		return nil, nil
	}
	out := make([]candleUpdate, 0, len(frame.Data))
	for _, row := range frame.Data {
		if len(row) < 6 {
			continue
		}
		tsMs, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		var v [5]float64
		bad := false
		for i := range v {
			if v[i], err = strconv.ParseFloat(row[i+1], 64); err != nil {
				bad = true
				break
			}
		}
		if bad {
			continue
		}
		start := time.UnixMilli(tsMs).UTC()
		// confirm всегда в последнем элементе
		if row[len(row)-1] != "1" {
			if v[3] <= 0 {
				continue
			}
			out = append(out, candleUpdate{start: start, ev: models.TickEvent(models.Tick{
				Symbol: symbol,
				Price:  v[3],
				At:     now,
			})})
			continue
		}
		out = append(out, candleUpdate{start: start, ev: models.BarEvent(models.Bar{
			Symbol:    symbol,
			Timeframe: timeframe,
			Start:     start,
			End:       start.Add(tf),
			Open:      v[0],
			High:      v[1],
			Low:       v[2],
			Close:     v[3],
			Volume:    v[4],
		})})
	}
	return out, nil
}

func okxBar(tf string) string {
	switch s := helper.NormTF(tf); s {
	case "1h", "2h", "4h", "6h", "12h":
		return s[:len(s)-1] + "H"
	case "1d":
		return "1D"
	default:
		return s
	}
}
