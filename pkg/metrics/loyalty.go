package metrics

import "github.com/prometheus/client_golang/prometheus"

// LoyaltyMetrics counts ledger activity across the service.
type LoyaltyMetrics struct {
	entriesAppended *prometheus.CounterVec
	redemptions     *prometheus.CounterVec
	pointsExpired   prometheus.Counter
	versionRetries  prometheus.Counter
}

// NewLoyaltyMetrics registers the loyalty counters on the provided registerer.
func NewLoyaltyMetrics(reg prometheus.Registerer) *LoyaltyMetrics {
	if reg == nil {
		return &LoyaltyMetrics{}
	}
	entries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_entries_appended_total",
		Help: "Ledger entries appended, by kind.",
	}, []string{"kind"})
	redemptions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_redemptions_total",
		Help: "Redemption attempts, by outcome.",
	}, []string{"outcome"})
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "loyalty_points_expired_total",
		Help: "Points removed by the expiration sweep.",
	})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "loyalty_version_conflict_retries_total",
		Help: "Append retries caused by optimistic concurrency conflicts.",
	})
	reg.MustRegister(entries, redemptions, expired, retries)
	return &LoyaltyMetrics{
		entriesAppended: entries,
		redemptions:     redemptions,
		pointsExpired:   expired,
		versionRetries:  retries,
	}
}

// IncEntryAppended counts one appended ledger entry of the given kind.
func (m *LoyaltyMetrics) IncEntryAppended(kind string) {
	if m == nil || m.entriesAppended == nil {
		return
	}
	m.entriesAppended.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncRedemption counts one redemption attempt with its outcome label.
func (m *LoyaltyMetrics) IncRedemption(outcome string) {
	if m == nil || m.redemptions == nil {
		return
	}
	m.redemptions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// AddPointsExpired accumulates points removed by the sweep.
func (m *LoyaltyMetrics) AddPointsExpired(points int64) {
	if m == nil || m.pointsExpired == nil || points <= 0 {
		return
	}
	m.pointsExpired.Add(float64(points))
}

// IncVersionRetry counts one optimistic-concurrency retry.
func (m *LoyaltyMetrics) IncVersionRetry() {
	if m == nil || m.versionRetries == nil {
		return
	}
	m.versionRetries.Inc()
}
