// Package echohealth exposes subscription health and metrics over echo.
package echohealth

import (
	"net/http"

	"github.com/ivorscott/saas-core/msgstore"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var _ Checker = (*msgstore.Subscription)(nil)

// Checker reports the state of a running subscription
type Checker interface {
	ID() string
	State() msgstore.State
	Position() int64
	Err() error
}

// Status is a single subscription health entry
type Status struct {
	ID       string `json:"id"`
	State    string `json:"state"`
	Position int64  `json:"position"`
	Error    string `json:"error,omitempty"`
}

// Report is the health response body
type Report struct {
	Healthy       bool     `json:"healthy"`
	Subscriptions []Status `json:"subscriptions"`
	Stopped       []string `json:"stopped,omitempty"`
}

// Health returns a handler reporting 200 when every subscription is polling
// or idle and 503 with the stopped subscriber ids otherwise
func Health(checkers ...Checker) echo.HandlerFunc {
	return func(c echo.Context) error {
		r := Report{
			Healthy:       true,
			Subscriptions: make([]Status, 0, len(checkers)),
		}

		for _, ch := range checkers {
			st := Status{
				ID:       ch.ID(),
				State:    ch.State().String(),
				Position: ch.Position(),
			}

			if err := ch.Err(); err != nil {
				st.Error = err.Error()
			}

			if ch.State() == msgstore.StateStopped {
				r.Healthy = false
				r.Stopped = append(r.Stopped, ch.ID())
			}

			r.Subscriptions = append(r.Subscriptions, st)
		}

		if !r.Healthy {
			return c.JSON(http.StatusServiceUnavailable, r)
		}

		return c.JSON(http.StatusOK, r)
	}
}

// Metrics returns a handler serving the metrics gathered by g
func Metrics(g prometheus.Gatherer) echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}

// Register mounts GET /health and GET /metrics on e
func Register(e *echo.Echo, g prometheus.Gatherer, checkers ...Checker) {
	e.GET("/health", Health(checkers...))
	e.GET("/metrics", Metrics(g))
}

// New returns an echo server with health and metrics routes and no banner
func New(g prometheus.Gatherer, checkers ...Checker) *echo.Echo {
	e := echo.New()

	e.HideBanner = true
	e.HidePort = true

	Register(e, g, checkers...)

	return e
}
