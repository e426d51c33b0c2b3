// Package metrics exports wallet state as Prometheus metrics. It is attached
// to the wallet as an observer.
package metrics

import (
	"net/http"

	"github.com/Klingon-tech/klingnet-wallet/internal/events"
	"github.com/Klingon-tech/klingnet-wallet/internal/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Balance category label values.
const (
	CategoryActual          = "actual"
	CategoryPending         = "pending"
	CategoryUnlockedDeposit = "unlocked_deposit"
	CategoryLockedDeposit   = "locked_deposit"
)

// Observer records wallet notifications into its own registry.
type Observer struct {
	events.NopObserver

	registry *prometheus.Registry

	balance      *prometheus.GaugeVec
	syncHeight   prometheus.Gauge
	syncTip      prometheus.Gauge
	syncRuns     *prometheus.CounterVec
	transactions *prometheus.CounterVec
	sends        *prometheus.CounterVec
	deposits     prometheus.Counter
	saves        *prometheus.CounterVec
}

// New creates an observer with all metrics registered.
func New() *Observer {
	o := &Observer{registry: prometheus.NewRegistry()}

	o.balance = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wallet_balance",
		Help: "Wallet balance per category in atomic units.",
	}, []string{"category"})

	o.syncHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wallet_sync_processed_blocks",
		Help: "Number of blocks applied by the synchronization tracker.",
	})

	o.syncTip = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wallet_sync_known_blocks",
		Help: "Number of blocks known to the synchronization feed.",
	})

	o.syncRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_sync_completed_total",
		Help: "Completed synchronization runs by result.",
	}, []string{"result"})

	o.transactions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_transactions_total",
		Help: "Transaction notifications by kind.",
	}, []string{"kind"})

	o.sends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_send_completed_total",
		Help: "Commit attempts by result.",
	}, []string{"result"})

	o.deposits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wallet_deposit_updates_total",
		Help: "Deposit state changes.",
	})

	o.saves = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_saves_total",
		Help: "Save operations by result.",
	}, []string{"result"})

	o.registry.MustRegister(o.balance, o.syncHeight, o.syncTip, o.syncRuns,
		o.transactions, o.sends, o.deposits, o.saves)
	return o
}

// Registry returns the registry holding the wallet metrics.
func (o *Observer) Registry() *prometheus.Registry { return o.registry }

// Handler serves the metrics in the Prometheus exposition format.
func (o *Observer) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (o *Observer) SaveCompleted(err error) {
	o.saves.WithLabelValues(result(err)).Inc()
}

func (o *Observer) SynchronizationProgressUpdated(processed, total uint32) {
	o.syncHeight.Set(float64(processed))
	o.syncTip.Set(float64(total))
}

func (o *Observer) SynchronizationCompleted(err error) {
	o.syncRuns.WithLabelValues(result(err)).Inc()
}

func (o *Observer) ActualBalanceUpdated(balance uint64) {
	o.balance.WithLabelValues(CategoryActual).Set(float64(balance))
}

func (o *Observer) PendingBalanceUpdated(balance uint64) {
	o.balance.WithLabelValues(CategoryPending).Set(float64(balance))
}

func (o *Observer) ActualDepositBalanceUpdated(balance uint64) {
	o.balance.WithLabelValues(CategoryUnlockedDeposit).Set(float64(balance))
}

func (o *Observer) PendingDepositBalanceUpdated(balance uint64) {
	o.balance.WithLabelValues(CategoryLockedDeposit).Set(float64(balance))
}

func (o *Observer) ExternalTransactionCreated(ledger.TransactionID) {
	o.transactions.WithLabelValues("external").Inc()
}

func (o *Observer) SendTransactionCompleted(_ ledger.TransactionID, err error) {
	o.sends.WithLabelValues(result(err)).Inc()
}

func (o *Observer) TransactionUpdated(ledger.TransactionID) {
	o.transactions.WithLabelValues("updated").Inc()
}

func (o *Observer) DepositUpdated(ledger.DepositID) {
	o.deposits.Inc()
}

func (o *Observer) DepositsUpdated(ids []ledger.DepositID) {
	o.deposits.Add(float64(len(ids)))
}
