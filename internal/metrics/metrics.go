// Package metrics exposes Prometheus instruments for the matchmaking engine.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MatchesFound     prometheus.Counter
	SessionsStarted  prometheus.Counter
	MatchesCancelled *prometheus.CounterVec // reason=declined|timeout|lobby_gone|disconnect
	MovesPlayed      prometheus.Counter
	GamesFinished    *prometheus.CounterVec // result=X|O|draw|forfeit
	AvatarLookups    *prometheus.CounterVec // outcome=hit|miss|error

	// Gauges
	ActiveConnections prometheus.Gauge
	LobbiesGauge      prometheus.Gauge
	QueueDepthGauge   prometheus.Gauge
	PendingGauge      prometheus.Gauge
)

// Init registers metrics with the default registry (idempotent).
func Init() {
	once.Do(func() {
		MatchesFound = promauto.NewCounter(prometheus.CounterOpts{Name: "ttt_matches_found_total", Help: "Number of quick-match pairings"})
		SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "ttt_sessions_started_total", Help: "Number of matches confirmed by both players"})
		MatchesCancelled = promauto.NewCounterVec(prometheus.CounterOpts{Name: "ttt_matches_cancelled_total", Help: "Number of pending matches cancelled"}, []string{"reason"})
		MovesPlayed = promauto.NewCounter(prometheus.CounterOpts{Name: "ttt_moves_total", Help: "Number of accepted moves"})
		GamesFinished = promauto.NewCounterVec(prometheus.CounterOpts{Name: "ttt_games_finished_total", Help: "Number of finished games by result"}, []string{"result"})
		AvatarLookups = promauto.NewCounterVec(prometheus.CounterOpts{Name: "ttt_avatar_lookups_total", Help: "Avatar lookups by outcome"}, []string{"outcome"})
		ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{Name: "ttt_ws_connections", Help: "Current number of websocket connections"})
		LobbiesGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "ttt_lobbies", Help: "Current number of lobbies"})
		QueueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "ttt_queue_depth", Help: "Current number of lobbies waiting for a quick-match opponent"})
		PendingGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "ttt_pending_matches", Help: "Current number of matches awaiting confirmation"})
	})
}

// The helpers below are no-ops until Init is called, so packages can record
// unconditionally and tests need not register anything.

func MatchFound() {
	if MatchesFound != nil {
		MatchesFound.Inc()
	}
}

func SessionStarted() {
	if SessionsStarted != nil {
		SessionsStarted.Inc()
	}
}

// MatchCancelled counts a pending match that ended without a session.
func MatchCancelled(reason string) {
	if MatchesCancelled != nil {
		MatchesCancelled.WithLabelValues(reason).Inc()
	}
}

func MovePlayed() {
	if MovesPlayed != nil {
		MovesPlayed.Inc()
	}
}

// GameFinished counts a terminal result: a symbol, "draw" or "forfeit".
func GameFinished(result string) {
	if GamesFinished != nil {
		GamesFinished.WithLabelValues(result).Inc()
	}
}

func AvatarLookup(outcome string) {
	if AvatarLookups != nil {
		AvatarLookups.WithLabelValues(outcome).Inc()
	}
}

func ConnectionOpened() {
	if ActiveConnections != nil {
		ActiveConnections.Inc()
	}
}

func ConnectionClosed() {
	if ActiveConnections != nil {
		ActiveConnections.Dec()
	}
}

// SetState records the current sizes of the in-memory stores.
func SetState(lobbies, queued, pending int) {
	if LobbiesGauge != nil {
		LobbiesGauge.Set(float64(lobbies))
	}
	if QueueDepthGauge != nil {
		QueueDepthGauge.Set(float64(queued))
	}
	if PendingGauge != nil {
		PendingGauge.Set(float64(pending))
	}
}
