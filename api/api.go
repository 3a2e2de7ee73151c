// Package api implements the operator-facing HTTP control plane (§6.2),
// a thin gin router over broker.Bridge (C6).
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"plugnet/broker"
)

// Server wraps a gin.Engine bound to a broker.Bridge.
type Server struct {
	engine *gin.Engine
	bridge *broker.Bridge
	log    *logrus.Entry
}

// NewServer builds the router with all three operations wired (§6.2).
func NewServer(bridge *broker.Bridge, log *logrus.Entry) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{engine: gin.New(), bridge: bridge, log: log}

	s.engine.Use(gin.Recovery())
	s.engine.GET("/api/list", s.handleList)
	s.engine.GET("/api/query", s.handleQuery)
	s.engine.POST("/api/setstate", s.handleSetState)

	return s
}

// Run starts the HTTP server on addr, blocking until it errors out.
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

type plugView struct {
	ID       uuid.UUID `json:"id"`
	State    string    `json:"state"`
	LastSeen time.Time `json:"last_seen"`
}

type listResponse struct {
	Plugs []plugView `json:"plugs"`
}

func (s *Server) handleList(c *gin.Context) {
	entries := s.bridge.List()
	plugs := make([]plugView, 0, len(entries))
	for _, e := range entries {
		plugs = append(plugs, plugView{ID: e.ID, State: e.Power.String(), LastSeen: e.LastSeen})
	}
	c.JSON(http.StatusOK, listResponse{Plugs: plugs})
}

type queryResponse struct {
	State    *string    `json:"state"`
	LastSeen *time.Time `json:"lastseen"`
}

func (s *Server) handleQuery(c *gin.Context) {
	id, err := uuid.Parse(c.Query("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plug id"})
		return
	}

	status, err := s.bridge.QueryStatus(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, broker.ErrUnknownPlug) {
			c.JSON(http.StatusOK, queryResponse{})
			return
		}
		s.log.WithError(err).WithField("plug", id).Warn("query_status failed")
		c.JSON(http.StatusOK, queryResponse{})
		return
	}

	state := status.Power.String()
	lastSeen := status.LastSeen
	c.JSON(http.StatusOK, queryResponse{State: &state, LastSeen: &lastSeen})
}

type setStateResponse struct {
	Present bool `json:"present"`
	Success bool `json:"success"`
}

func (s *Server) handleSetState(c *gin.Context) {
	id, err := uuid.Parse(c.Query("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plug id"})
		return
	}

	var on bool
	switch c.Query("state") {
	case "on":
		on = true
	case "off":
		on = false
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "state must be \"on\" or \"off\""})
		return
	}

	err = s.bridge.SetState(c.Request.Context(), id, on)
	if errors.Is(err, broker.ErrUnknownPlug) {
		c.JSON(http.StatusOK, setStateResponse{Present: false, Success: false})
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("plug", id).Warn("set_state failed")
		c.JSON(http.StatusOK, setStateResponse{Present: true, Success: false})
		return
	}

	c.JSON(http.StatusOK, setStateResponse{Present: true, Success: true})
}
