// Package metrics exposes Prometheus counters for account events and
// request latency.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the service layer reports to
type Recorder interface {
	AuthEvent(event, outcome string)
	MailSent(kind string, err error)
}

type Nop struct{}

func (Nop) AuthEvent(string, string) {}
func (Nop) MailSent(string, error)   {}

type Collector struct {
	reg          *prometheus.Registry
	authEvents   *prometheus.CounterVec
	mailSent     *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func NewCollector() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accounts_auth_events_total",
			Help: "Account events by kind and outcome",
		}, []string{"event", "outcome"}),
		mailSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accounts_mail_sent_total",
			Help: "Outgoing e-mails by kind and result",
		}, []string{"kind", "result"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "accounts_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	c.reg.MustRegister(
		c.authEvents,
		c.mailSent,
		c.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

func (c *Collector) AuthEvent(event, outcome string) {
	c.authEvents.WithLabelValues(event, outcome).Inc()
}

func (c *Collector) MailSent(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}

	c.mailSent.WithLabelValues(kind, result).Inc()
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Middleware observes request duration labelled by the matched route, so
// path parameters don't blow up cardinality.
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}

		c.httpDuration.
			WithLabelValues(ctx.Request.Method, route, strconv.Itoa(ctx.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
