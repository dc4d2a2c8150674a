package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/berfenger/e3dc2mqtt/internal/entity"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"
)

const (
	requestTimeout = 10 * time.Second
	commandTimeout = 30 * time.Second
)

type errorResponse struct {
	Error string `json:"error"`
}

type serviceResponse struct {
	Service string `json:"service"`
	Command string `json:"command"`
	Status  string `json:"status"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/api/snapshot", s.SnapshotHandler)
	e.GET("/api/diagnostics", s.DiagnosticsHandler)
	e.POST("/api/services/:name", s.ServiceHandler)
	if s.gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, requestTimeout).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) SnapshotHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetSnapshotRequest{}, requestTimeout).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	}
	response, ok := res.(domain.GetSnapshotResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "unexpected response"})
	}
	return c.JSON(http.StatusOK, response.Snapshot)
}

func (s *Server) DiagnosticsHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.DiagnosticsRequest{}, commandTimeout).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	}
	response, ok := res.(domain.DiagnosticsResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "unexpected response"})
	}
	if response.HasResponseError() {
		return c.JSON(statusFor(response.GetResponseError()), errorResponse{Error: response.GetResponseError().Error()})
	}

	report := make(map[string]any, len(response.Report)+1)
	for k, v := range response.Report {
		report[k] = v
	}
	report["report_id"] = uuid.NewString()

	if c.QueryParam("format") == "yaml" {
		out, err := yaml.Marshal(report)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		return c.Blob(http.StatusOK, "application/yaml", out)
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) ServiceHandler(c echo.Context) error {
	name := c.Param("name")
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	cmd, err := entity.ParseService(name, body)
	if err != nil {
		return c.JSON(statusFor(err), errorResponse{Error: err.Error()})
	}

	res, err := s.rootContext.RequestFuture(s.masterActor, domain.CommandRequest{Command: cmd}, commandTimeout).Result()
	if err != nil {
		return c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
	}
	response, ok := res.(domain.CommandResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "unexpected response"})
	}
	if response.HasResponseError() {
		return c.JSON(statusFor(response.GetResponseError()), errorResponse{Error: response.GetResponseError().Error()})
	}
	return c.JSON(http.StatusOK, serviceResponse{Service: name, Command: cmd.CommandKind(), Status: "ok"})
}

// statusFor maps a command error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotConnected), domain.IsAuthFailure(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
