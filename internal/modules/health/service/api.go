package service

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"trade_engine/internal/models"
)

// Controller: операции движка, доступные через API.
type Controller interface {
	GetStatus() models.Status
	ForceExit(ctx context.Context, reason string) (models.CycleReport, error)
	Stop(ctx context.Context) error
	Kill(reason string)
	ResetKillSwitch(ctx context.Context) error
	ClearErrorLock(ctx context.Context) error
}

type reasonBody struct {
	Reason string `json:"reason"`
}

// API serves probes, the status snapshot and the control endpoints.
type API struct {
	state *State
	ctrl  Controller
	log   *zap.Logger
}

func NewRouter(state *State, ctrl Controller, origins []string, log *zap.Logger) *gin.Engine {
	a := &API{state: state, ctrl: ctrl, log: log.Named("api")}

	r := gin.New()
	r.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(origins) > 0 {
		corsConfig.AllowOrigins = origins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	r.Use(cors.New(corsConfig))

	r.GET("/livez", a.livez)
	r.GET("/readyz", a.readyz)
	r.GET("/healthz", a.healthz)
	r.GET("/status", a.status)

	r.POST("/force-exit", a.forceExit)
	r.POST("/stop", a.stop)
	r.POST("/kill", a.kill)
	r.POST("/reset-kill-switch", a.resetKillSwitch)
	r.POST("/clear-lock", a.clearLock)
	return r
}

// liveness: процесс жив
func (a *API) livez(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (a *API) readyz(c *gin.Context) {
	if !a.state.Ready() {
		c.String(http.StatusServiceUnavailable, "not ready")
		return
	}
	c.String(http.StatusOK, "ready")
}

func (a *API) healthz(c *gin.Context) {
	var lastTick int64
	if t := a.state.LastTick(); !t.IsZero() {
		lastTick = t.Unix()
	}
	st := a.ctrl.GetStatus()
	c.JSON(http.StatusOK, gin.H{
		"ready":        a.state.Ready(),
		"wsConnected":  a.state.WSConnected(),
		"uptimeSec":    int64(a.state.Uptime().Seconds()),
		"lastTickUnix": lastTick,
		"state":        st.State,
		"degraded":     st.Degraded,
	})
}

func (a *API) status(c *gin.Context) {
	c.JSON(http.StatusOK, a.ctrl.GetStatus())
}

func (a *API) forceExit(c *gin.Context) {
	var body reasonBody
	_ = c.ShouldBindJSON(&body)
	rep, err := a.ctrl.ForceExit(c.Request.Context(), body.Reason)
	if err != nil {
		a.fail(c, "force exit", err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (a *API) stop(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()
	if err := a.ctrl.Stop(ctx); err != nil {
		a.fail(c, "stop", err)
		return
	}
	c.JSON(http.StatusOK, a.ctrl.GetStatus())
}

func (a *API) kill(c *gin.Context) {
	var body reasonBody
	_ = c.ShouldBindJSON(&body)
	if body.Reason == "" {
		body.Reason = "api"
	}
	a.ctrl.Kill(body.Reason)
	a.log.Warn("kill switch via api", zap.String("reason", body.Reason))
	c.JSON(http.StatusOK, a.ctrl.GetStatus())
}

func (a *API) resetKillSwitch(c *gin.Context) {
	if err := a.ctrl.ResetKillSwitch(c.Request.Context()); err != nil {
		a.fail(c, "reset kill switch", err)
		return
	}
	c.JSON(http.StatusOK, a.ctrl.GetStatus())
}

func (a *API) clearLock(c *gin.Context) {
	if err := a.ctrl.ClearErrorLock(c.Request.Context()); err != nil {
		a.fail(c, "clear lock", err)
		return
	}
	c.JSON(http.StatusOK, a.ctrl.GetStatus())
}

func (a *API) fail(c *gin.Context, op string, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNoPosition):
		code = http.StatusNotFound
	case errors.Is(err, models.ErrNotStarted), errors.Is(err, models.ErrErrorLock):
		code = http.StatusConflict
	case errors.Is(err, models.ErrOrderSubmission):
		code = http.StatusBadGateway
	}
	a.log.Warn(op+" failed", zap.Error(err))
	c.JSON(code, gin.H{"error": err.Error()})
}
