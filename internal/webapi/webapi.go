// Package webapi exposes the query planner over HTTP: a /search endpoint
// that accepts a wildcard search string and returns the planned
// subqueries, for inspecting what an archive scan would have to visit.
package webapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clpgo/clpcore/internal/query"
)

// NewGinSlogger bridges gin request logging onto a slog.Logger.
func NewGinSlogger(level slog.Level, logger *slog.Logger) func(*gin.Context) {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		end := time.Now()
		latency := end.Sub(start)

		attributes := []slog.Attr{
			slog.Int("status", c.Writer.Status()),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.String("route", c.FullPath()),
			slog.String("ip", c.ClientIP()),
			slog.Duration("latency", latency),
			slog.Time("time", end),
		}
		logger.LogAttrs(c.Request.Context(), level, "", attributes...)
	}
}

// Params configures a Server.
type Params struct {
	Planner *query.Planner
	Logger  *slog.Logger
	Address string
}

// Server hosts the search planning API.
type Server struct {
	planner *query.Planner
	logger  *slog.Logger
	address string
	engine  *gin.Engine
}

func New(p Params) *Server {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(NewGinSlogger(slog.LevelInfo, logger))
	engine.Use(gin.Recovery())

	s := &Server{
		planner: p.Planner,
		logger:  logger,
		address: p.Address,
		engine:  engine,
	}
	engine.GET("/search", s.handleSearch)
	return s
}

// Engine exposes the router, mainly for tests.
func (s *Server) Engine() *gin.Engine { return s.engine }

// Serve blocks listening on the configured address.
func (s *Server) Serve() error {
	return s.engine.Run(s.address)
}

type subqueryResponse struct {
	NumPossibleLogtypes   int      `json:"numPossibleLogtypes"`
	LogtypeIDs            []uint64 `json:"logtypeIds"`
	NumVarConstraints     int      `json:"numVarConstraints"`
	WildcardMatchRequired bool     `json:"wildcardMatchRequired"`
	SegmentIDs            []string `json:"segmentIds"`
}

type queryResponse struct {
	SearchString string             `json:"searchString"`
	MatchesAll   bool               `json:"matchesAll"`
	Subqueries   []subqueryResponse `json:"subqueries"`
}

type searchResponse struct {
	Impossible   bool            `json:"impossible"`
	NotFragments []string        `json:"notFragments,omitempty"`
	Queries      []queryResponse `json:"queries"`
}

func (s *Server) handleSearch(c *gin.Context) {
	searchString := c.Query("q")
	if searchString == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter q"})
		return
	}
	ignoreCase := c.Query("ignoreCase") == "true"

	planned, err := s.planner.PlanSearch(searchString, ignoreCase, query.TimeRange{})
	if err != nil {
		s.logger.Warn("error planning search",
			slog.String("search", searchString),
			slog.Any("error", err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp := searchResponse{
		Impossible:   planned.Impossible,
		NotFragments: planned.NotFragments,
		Queries:      []queryResponse{},
	}
	for _, q := range planned.Queries {
		qr := queryResponse{
			SearchString: q.SearchString,
			MatchesAll:   q.MatchesAll,
			Subqueries:   []subqueryResponse{},
		}
		for _, sq := range q.Subqueries {
			sr := subqueryResponse{
				NumPossibleLogtypes:   len(sq.PossibleLogtypes),
				NumVarConstraints:     len(sq.VarConstraints),
				WildcardMatchRequired: sq.WildcardMatchRequired,
				SegmentIDs:            []string{},
			}
			for _, e := range sq.PossibleLogtypes {
				sr.LogtypeIDs = append(sr.LogtypeIDs, e.ID)
			}
			for seg := range sq.SegmentIDs {
				sr.SegmentIDs = append(sr.SegmentIDs, seg)
			}
			qr.Subqueries = append(qr.Subqueries, sr)
		}
		resp.Queries = append(resp.Queries, qr)
	}
	c.JSON(http.StatusOK, resp)
}
