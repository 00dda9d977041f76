package irc

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AdminServer exposes registry statistics and Prometheus metrics over HTTP
type AdminServer struct {
	server *Server
	echo   *echo.Echo
	addr   string
}

// NewAdminServer creates the admin HTTP server for s
func NewAdminServer(s *Server, addr string) *AdminServer {
	a := &AdminServer{
		server: s,
		echo:   echo.New(),
		addr:   addr,
	}
	a.echo.HideBanner = true
	a.echo.HidePort = true
	a.echo.Use(a.instrument)
	a.route(a.echo)
	return a
}

func (a *AdminServer) route(e *echo.Echo) {
	e.GET("/stats", a.handleStats)
	e.GET("/channels", a.handleChannels)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(
		a.server.metrics.Registry,
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	)))
}

// instrument records request counts and latency per route. Routes are
// labelled by their registered path so unknown URLs share one series.
func (a *AdminServer) instrument(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}

		path := c.Path()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request().Method
		m := a.server.metrics
		m.AdminLatency.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		m.AdminRequests.WithLabelValues(method, path, strconv.Itoa(c.Response().Status)).Inc()
		return nil
	}
}

// Start serves in the background
func (a *AdminServer) Start() {
	go func() {
		log.Printf("Admin server started on %s", a.addr)
		if err := a.echo.Start(a.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Admin server error: %v", err)
		}
	}()
}

// Stop shuts the HTTP server down
func (a *AdminServer) Stop(ctx context.Context) error {
	return a.echo.Shutdown(ctx)
}

func (a *AdminServer) handleStats(c echo.Context) error {
	clients, channels := a.server.registry.Counts()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"clients":  clients,
		"channels": channels,
		"uptime":   a.server.Uptime().String(),
	})
}

func (a *AdminServer) handleChannels(c echo.Context) error {
	return c.JSON(http.StatusOK, a.server.registry.Snapshot())
}
