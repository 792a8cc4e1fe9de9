// Package httpapi exposes the entity bank over HTTP.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/counterpartyd/internal/entitybank"
)

// Server provides the HTTP endpoints the report stage and local tooling
// consume.
type Server struct {
	echo    *echo.Echo
	service *entitybank.Service
	logger  *zap.Logger
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server around an entity bank service.
func NewServer(service *entitybank.Service, logger *zap.Logger, cfg *Config) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "127.0.0.1",
			Port: 9091,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())

	s := &Server{
		echo:    e,
		service: service,
		logger:  logger,
		config:  cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/entities", s.handleList)
	v1.GET("/entities/lookup", s.handleLookup)
	v1.GET("/entities/flagged-names", s.handleFlaggedNames)
	v1.POST("/entities/flag", s.handleFlag)
	v1.POST("/entities/unflag", s.handleUnflag)
	v1.POST("/entities/alias", s.handleAlias)
	v1.POST("/entities/observations", s.handleObservations)
	v1.DELETE("/entities/:name", s.handleDelete)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status         string `json:"status"`
	ProjectRecords int    `json:"project_records"`
	GlobalRecords  int    `json:"global_records"`
	GlobalEnabled  bool   `json:"global_enabled"`
}

// ListResponse is the response body for GET /api/v1/entities.
type ListResponse struct {
	Entities []entitybank.Entry `json:"entities"`
	Count    int                `json:"count"`
}

// LookupResponse is the response body for GET /api/v1/entities/lookup.
// A miss is a result, not an error: Found false with the other fields
// empty.
type LookupResponse struct {
	Found  bool                  `json:"found"`
	Record *entitybank.Record    `json:"record,omitempty"`
	Tier   entitybank.Tier       `json:"tier,omitempty"`
	Stage  entitybank.MatchStage `json:"stage,omitempty"`
}

// FlagBody is the request body for POST /api/v1/entities/flag. Flagged
// defaults to true when omitted.
type FlagBody struct {
	Name            string `json:"name"`
	EntityType      string `json:"entity_type"`
	Notes           string `json:"notes"`
	Flagged         *bool  `json:"flagged"`
	PropagateGlobal bool   `json:"propagate_global"`
}

// RecordResponse wraps a single record. Record is null when the input
// was absorbed without touching the store.
type RecordResponse struct {
	Record *entitybank.Record `json:"record"`
}

// NameBody is the request body for POST /api/v1/entities/unflag.
type NameBody struct {
	Name string `json:"name"`
}

// AliasBody is the request body for POST /api/v1/entities/alias.
type AliasBody struct {
	Name  string `json:"name"`
	Alias string `json:"alias"`
}

// ObservationsBody is the request body for POST
// /api/v1/entities/observations.
type ObservationsBody struct {
	Observations []entitybank.Observation `json:"observations"`
}

// AppliedResponse reports how many batch entries were applied.
type AppliedResponse struct {
	Applied int `json:"applied"`
}

// DeleteResponse is the response body for DELETE /api/v1/entities/:name.
type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

// NamesResponse is the response body for GET
// /api/v1/entities/flagged-names.
type NamesResponse struct {
	Names []string `json:"names"`
}

func (s *Server) handleHealth(c echo.Context) error {
	stats, err := s.service.Stats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service closed")
	}
	return c.JSON(http.StatusOK, HealthResponse{
		Status:         "ok",
		ProjectRecords: stats.ProjectRecords,
		GlobalRecords:  stats.GlobalRecords,
		GlobalEnabled:  stats.GlobalEnabled,
	})
}

func (s *Server) handleList(c echo.Context) error {
	filter := entitybank.ListFilter{
		FlaggedOnly: c.QueryParam("flagged_only") == "true",
		EntityType:  c.QueryParam("entity_type"),
	}

	entries, err := s.service.List(c.Request().Context(), filter)
	if err != nil {
		return internalError(err)
	}
	return c.JSON(http.StatusOK, ListResponse{Entities: entries, Count: len(entries)})
}

func (s *Server) handleLookup(c echo.Context) error {
	match, err := s.service.Lookup(c.Request().Context(), c.QueryParam("name"))
	if err != nil {
		return internalError(err)
	}
	if match == nil {
		return c.JSON(http.StatusOK, LookupResponse{Found: false})
	}
	return c.JSON(http.StatusOK, LookupResponse{
		Found:  true,
		Record: match.Record,
		Tier:   match.Tier,
		Stage:  match.Stage,
	})
}

func (s *Server) handleFlag(c echo.Context) error {
	var body FlagBody
	if err := c.Bind(&body); err != nil {
		s.logger.Warn("invalid flag request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	flagged := true
	if body.Flagged != nil {
		flagged = *body.Flagged
	}

	rec, err := s.service.Flag(c.Request().Context(), entitybank.FlagRequest{
		Name:            body.Name,
		EntityType:      body.EntityType,
		Notes:           body.Notes,
		Flagged:         flagged,
		PropagateGlobal: body.PropagateGlobal,
	})
	if err != nil {
		return internalError(err)
	}
	return c.JSON(http.StatusOK, RecordResponse{Record: rec})
}

func (s *Server) handleUnflag(c echo.Context) error {
	var body NameBody
	if err := c.Bind(&body); err != nil {
		s.logger.Warn("invalid unflag request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	rec, err := s.service.Unflag(c.Request().Context(), body.Name)
	if err != nil {
		return internalError(err)
	}
	return c.JSON(http.StatusOK, RecordResponse{Record: rec})
}

func (s *Server) handleAlias(c echo.Context) error {
	var body AliasBody
	if err := c.Bind(&body); err != nil {
		s.logger.Warn("invalid alias request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	rec, err := s.service.AddAlias(c.Request().Context(), body.Name, body.Alias)
	if err != nil {
		return internalError(err)
	}
	return c.JSON(http.StatusOK, RecordResponse{Record: rec})
}

func (s *Server) handleObservations(c echo.Context) error {
	var body ObservationsBody
	if err := c.Bind(&body); err != nil {
		s.logger.Warn("invalid observations request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	applied, err := s.service.LearnFromObservations(c.Request().Context(), body.Observations)
	if err != nil {
		return internalError(err)
	}
	return c.JSON(http.StatusOK, AppliedResponse{Applied: applied})
}

func (s *Server) handleDelete(c echo.Context) error {
	name := c.Param("name")
	// Echo leaves path params percent-encoded.
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}

	deleted, err := s.service.Delete(c.Request().Context(), name)
	if err != nil {
		return internalError(err)
	}
	return c.JSON(http.StatusOK, DeleteResponse{Deleted: deleted})
}

func (s *Server) handleFlaggedNames(c echo.Context) error {
	set, err := s.service.FlaggedNames(c.Request().Context())
	if err != nil {
		return internalError(err)
	}

	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)

	return c.JSON(http.StatusOK, NamesResponse{Names: names})
}

func internalError(err error) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
