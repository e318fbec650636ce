// Package metrics exports session events as Prometheus metrics.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/synqronlabs/courier"
)

// Collector implements courier.Observer.
type Collector struct {
	ConnectsTotal   prometheus.Counter
	ConnectFailures prometheus.Counter
	SessionsClosed  prometheus.Counter

	AuthAttempts *prometheus.CounterVec
	AuthFailures *prometheus.CounterVec

	MessagesSent    prometheus.Counter
	MessagesFailed  *prometheus.CounterVec
	MessageSize     prometheus.Histogram
	DeliveryLatency prometheus.Histogram
}

var _ courier.Observer = (*Collector)(nil)

// New creates a Collector and registers its metrics with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Collector{
		ConnectsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "courier_connects_total",
			Help: "Total number of connection attempts",
		}),
		ConnectFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "courier_connect_failures_total",
			Help: "Total number of failed connection attempts",
		}),
		SessionsClosed: f.NewCounter(prometheus.CounterOpts{
			Name: "courier_sessions_closed_total",
			Help: "Total number of sessions torn down",
		}),
		AuthAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_auth_attempts_total",
			Help: "Total number of AUTH exchanges by mechanism",
		}, []string{"mechanism"}),
		AuthFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_auth_failures_total",
			Help: "Total number of failed AUTH exchanges by mechanism",
		}, []string{"mechanism"}),
		MessagesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "courier_messages_sent_total",
			Help: "Total number of messages accepted by the server",
		}),
		MessagesFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_messages_failed_total",
			Help: "Total number of messages that failed, by reason",
		}, []string{"reason"}),
		MessageSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "courier_message_size_bytes",
			Help:    "Size of transmitted message data",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		DeliveryLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "courier_delivery_duration_seconds",
			Help:    "Duration of MAIL through end-of-data transactions",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (c *Collector) ConnectAttempted(err error) {
	c.ConnectsTotal.Inc()
	if err != nil {
		c.ConnectFailures.Inc()
	}
}

func (c *Collector) AuthAttempted(mechanism courier.AuthMechanism, err error) {
	c.AuthAttempts.WithLabelValues(string(mechanism)).Inc()
	if err != nil {
		c.AuthFailures.WithLabelValues(string(mechanism)).Inc()
	}
}

func (c *Collector) MessageSent(duration time.Duration, size int) {
	c.MessagesSent.Inc()
	c.MessageSize.Observe(float64(size))
	c.DeliveryLatency.Observe(duration.Seconds())
}

func (c *Collector) MessageFailed(err error) {
	c.MessagesFailed.WithLabelValues(Reason(err)).Inc()
}

func (c *Collector) SessionClosed() {
	c.SessionsClosed.Inc()
}

// Reason maps a delivery error to a low-cardinality label value.
func Reason(err error) string {
	switch {
	case errors.Is(err, courier.ErrSessionClosed):
		return "session_closed"
	case errors.Is(err, courier.ErrTimeout):
		return "timeout"
	case errors.Is(err, courier.ErrMailFrom):
		return "mail_from"
	case errors.Is(err, courier.ErrInvalidRcpt):
		return "rcpt"
	case errors.Is(err, courier.ErrData):
		return "data"
	case errors.Is(err, courier.ErrMessageRejected):
		return "rejected"
	case errors.Is(err, courier.ErrEncode), errors.Is(err, courier.ErrInvalidAddress):
		return "encoding"
	default:
		return "other"
	}
}
