package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agenthands/waygraph/internal/core"
	"github.com/agenthands/waygraph/internal/core/dedupe"
	"github.com/agenthands/waygraph/internal/core/merge"
	"github.com/agenthands/waygraph/internal/core/model"
	"github.com/agenthands/waygraph/internal/ioformat"
	"github.com/agenthands/waygraph/internal/observability"
)

type Server struct {
	Builder *core.GraphBuilder
	Logger  *zap.Logger
}

func NewServer(builder *core.GraphBuilder, logger *zap.Logger) *Server {
	logger = observability.OrNop(logger)
	return &Server{Builder: builder, Logger: logger}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", s.Health)
	r.POST("/graph/roads", s.BuildRoads)
	r.POST("/graph/proximity", s.BuildProximity)
	r.POST("/graph/connectivity", s.Connectivity)
	r.POST("/nodes/merge", s.MergeNodes)
	r.GET("/graphs/:name/places", s.Places)

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "backends": s.Builder.Backends(c.Request.Context())})
}

// RoadsRequest carries ways as a GeoJSON FeatureCollection. Graph, when set,
// names the stored graph the result is persisted to.
type RoadsRequest struct {
	Mode  string          `json:"mode"`
	Ways  json.RawMessage `json:"ways" binding:"required"`
	Graph string          `json:"graph"`
}

type RoadsResponse struct {
	*core.RoadGraph
	Rejected []ioformat.RecordError `json:"rejected,omitempty"`
}

func (s *Server) BuildRoads(c *gin.Context) {
	var req RoadsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.Mode == "" {
		req.Mode = string(dedupe.ModeWalk)
	}
	mode, ok := dedupe.ParseMode(req.Mode)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be walk or drive"})
		return
	}

	ways, bad, err := ioformat.DecodeWays(bytes.NewReader(req.Ways))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, e := range bad {
		s.Logger.Warn("skipping way", zap.String("ref", e.Ref), zap.String("reason", e.Reason))
	}

	rg := s.Builder.BuildRoadGraph(ways, mode)
	rg.Summary.Errored += len(bad)
	if !s.persist(c, req.Graph, &rg.Graph) {
		return
	}
	c.JSON(http.StatusOK, RoadsResponse{RoadGraph: rg, Rejected: bad})
}

type ProximityRequest struct {
	Nodes []model.Node `json:"nodes" binding:"required"`
	Graph string       `json:"graph"`
}

func (s *Server) BuildProximity(c *gin.Context) {
	var req ProximityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	graph, err := s.Builder.BuildProximityGraph(req.Nodes)
	if err != nil {
		s.Logger.Error("failed to build proximity graph", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build graph"})
		return
	}
	if !s.persist(c, req.Graph, graph) {
		return
	}
	c.JSON(http.StatusOK, graph)
}

type ConnectivityRequest struct {
	Nodes []model.Node `json:"nodes" binding:"required"`
	Edges []model.Edge `json:"edges"`
}

func (s *Server) Connectivity(c *gin.Context) {
	var req ConnectivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	c.JSON(http.StatusOK, s.Builder.Connectivity(req.Nodes, req.Edges))
}

// MergeRequest merges features into Nodes, or into the stored places of
// Graph when Nodes is omitted. DryRun skips persistence.
type MergeRequest struct {
	Nodes    []model.Node    `json:"nodes"`
	Features json.RawMessage `json:"features" binding:"required"`
	Graph    string          `json:"graph"`
	DryRun   bool            `json:"dry_run"`
}

type MergeResponse struct {
	*merge.Result
	Malformed []ioformat.RecordError `json:"malformed,omitempty"`
}

func (s *Server) MergeNodes(c *gin.Context) {
	var req MergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	features, bad, err := ioformat.DecodeFeatures(bytes.NewReader(req.Features))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, e := range bad {
		s.Logger.Warn("skipping feature", zap.String("ref", e.Ref), zap.String("reason", e.Reason))
	}

	existing := req.Nodes
	if existing == nil && req.Graph != "" {
		existing, err = s.Builder.LoadPlaces(c.Request.Context(), req.Graph)
		if err != nil {
			s.writeBackendError(c, err)
			return
		}
	}

	res := s.Builder.MergeFeatures(existing, features)
	res.Summary.Errored += len(bad)
	if !req.DryRun {
		if !s.persist(c, req.Graph, core.MergeGraph(res)) {
			return
		}
	}
	c.JSON(http.StatusOK, MergeResponse{Result: res, Malformed: bad})
}

func (s *Server) Places(c *gin.Context) {
	nodes, err := s.Builder.LoadPlaces(c.Request.Context(), c.Param("name"))
	if err != nil {
		s.writeBackendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"nodes": nodes})
}

// persist stores graph under name when a name is given. It writes the error
// response itself and reports whether the handler may continue.
func (s *Server) persist(c *gin.Context, name string, graph *core.Graph) bool {
	if name == "" {
		return true
	}
	if err := s.Builder.Persist(c.Request.Context(), name, graph); err != nil {
		s.writeBackendError(c, err)
		return false
	}
	return true
}

func (s *Server) writeBackendError(c *gin.Context, err error) {
	if errors.Is(err, core.ErrNoBackend) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	s.Logger.Error("persistence failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reach graph store"})
}
