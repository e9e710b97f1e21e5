// Package metrics exposes server counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/casalena404/crypto-chess/internal/model"
	"github.com/casalena404/crypto-chess/internal/realtime"
	"github.com/casalena404/crypto-chess/internal/service"
)

// Collector records game, matchmaking and connection metrics. It satisfies
// both service.Recorder and realtime.Recorder.
type Collector struct {
	gamesCreated   *prometheus.CounterVec
	movesApplied   prometheus.Counter
	gamesEnded     *prometheus.CounterVec
	matchesMade    prometheus.Counter
	matchWait      prometheus.Histogram
	ticketsQueued  prometheus.Gauge
	ticketsEvicted prometheus.Counter
	connections    prometheus.Gauge
	events         *prometheus.CounterVec
}

var (
	_ service.Recorder  = (*Collector)(nil)
	_ realtime.Recorder = (*Collector)(nil)
)

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		gamesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chess_games_created_total",
			Help: "Games created, by how they were started.",
		}, []string{"source"}),
		movesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chess_moves_applied_total",
			Help: "Moves accepted and stored.",
		}),
		gamesEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chess_games_ended_total",
			Help: "Games that reached a result, by result.",
		}, []string{"result"}),
		matchesMade: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chess_matches_made_total",
			Help: "Ticket pairs turned into games.",
		}),
		matchWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chess_match_wait_seconds",
			Help:    "Time the older ticket of a pair spent queued.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		ticketsQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chess_tickets_queued",
			Help: "Tickets currently waiting for a match.",
		}),
		ticketsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chess_tickets_evicted_total",
			Help: "Tickets dropped for staleness.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chess_ws_connections",
			Help: "Open websocket connections.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chess_ws_events_total",
			Help: "Inbound websocket events, by event and outcome.",
		}, []string{"event", "outcome"}),
	}

	reg.MustRegister(
		c.gamesCreated,
		c.movesApplied,
		c.gamesEnded,
		c.matchesMade,
		c.matchWait,
		c.ticketsQueued,
		c.ticketsEvicted,
		c.connections,
		c.events,
	)
	return c
}

func (c *Collector) GameCreated(source string) {
	c.gamesCreated.WithLabelValues(source).Inc()
}

func (c *Collector) MoveApplied() {
	c.movesApplied.Inc()
}

func (c *Collector) GameEnded(result model.Result) {
	c.gamesEnded.WithLabelValues(string(result)).Inc()
}

func (c *Collector) MatchMade(wait time.Duration) {
	c.matchesMade.Inc()
	c.matchWait.Observe(wait.Seconds())
}

// TicketsQueued sets the queue depth gauge.
func (c *Collector) TicketsQueued(n int) {
	c.ticketsQueued.Set(float64(n))
}

func (c *Collector) TicketsEvicted(n int) {
	c.ticketsEvicted.Add(float64(n))
}

func (c *Collector) ConnectionOpened() {
	c.connections.Inc()
}

func (c *Collector) ConnectionClosed() {
	c.connections.Dec()
}

func (c *Collector) EventHandled(event, outcome string) {
	c.events.WithLabelValues(event, outcome).Inc()
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
