package service

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks auction operations
type Metrics struct {
	operations    *prometheus.CounterVec
	highestBid    prometheus.GaugeFunc
	settledAmount prometheus.Counter
	bidSource     atomic.Pointer[func() uint64]
}

// NewMetrics registers the auction collectors with reg. The highest bid
// gauge is read from the tracked auction at scrape time.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auction_operations_total",
			Help: "Auction operations by operation and outcome",
		}, []string{"op", "outcome"}),
		settledAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auction_settled_amount_total",
			Help: "Sum of amounts transferred to sellers",
		}),
	}
	m.highestBid = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "auction_highest_bid",
		Help: "Highest bid of the active listing (0 when idle)",
	}, m.currentHighestBid)
	reg.MustRegister(m.operations, m.highestBid, m.settledAmount)
	return m
}

func (m *Metrics) observe(op, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

// trackHighestBid makes the gauge report f
func (m *Metrics) trackHighestBid(f func() uint64) {
	if m == nil {
		return
	}
	m.bidSource.Store(&f)
}

func (m *Metrics) currentHighestBid() float64 {
	f := m.bidSource.Load()
	if f == nil {
		return 0
	}
	return float64((*f)())
}

func (m *Metrics) addSettled(v uint64) {
	if m == nil {
		return
	}
	m.settledAmount.Add(float64(v))
}
