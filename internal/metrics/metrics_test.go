package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Klingon-tech/klingnet-wallet/internal/events"
	"github.com/Klingon-tech/klingnet-wallet/internal/ledger"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserver_Callbacks(t *testing.T) {
	o := New()

	o.ActualBalanceUpdated(1000)
	o.PendingBalanceUpdated(590)
	o.PendingDepositBalanceUpdated(500)
	o.SynchronizationProgressUpdated(10, 20)
	o.SynchronizationCompleted(nil)
	o.SynchronizationCompleted(errors.New("diverged"))
	o.SendTransactionCompleted(1, nil)
	o.ExternalTransactionCreated(2)
	o.DepositsUpdated([]ledger.DepositID{0, 1})
	o.DepositUpdated(0)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"actual", testutil.ToFloat64(o.balance.WithLabelValues(CategoryActual)), 1000},
		{"pending", testutil.ToFloat64(o.balance.WithLabelValues(CategoryPending)), 590},
		{"locked deposit", testutil.ToFloat64(o.balance.WithLabelValues(CategoryLockedDeposit)), 500},
		{"processed", testutil.ToFloat64(o.syncHeight), 10},
		{"known", testutil.ToFloat64(o.syncTip), 20},
		{"sync ok", testutil.ToFloat64(o.syncRuns.WithLabelValues("ok")), 1},
		{"sync error", testutil.ToFloat64(o.syncRuns.WithLabelValues("error")), 1},
		{"sends", testutil.ToFloat64(o.sends.WithLabelValues("ok")), 1},
		{"external", testutil.ToFloat64(o.transactions.WithLabelValues("external")), 1},
		{"deposits", testutil.ToFloat64(o.deposits), 3},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestObserver_AttachedToDispatcher(t *testing.T) {
	o := New()
	d := events.NewDispatcher()
	defer d.Stop()
	d.AttachObserver(o)

	d.Dispatch(events.Notification{Kind: events.KindActualBalanceUpdated, Balance: 42})

	deadline := time.Now().Add(5 * time.Second)
	for testutil.ToFloat64(o.balance.WithLabelValues(CategoryActual)) != 42 {
		if time.Now().After(deadline) {
			t.Fatal("balance metric not updated")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestObserver_Handler(t *testing.T) {
	o := New()
	o.ActualBalanceUpdated(7)

	rec := httptest.NewRecorder()
	o.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `wallet_balance{category="actual"} 7`) {
		t.Errorf("metrics output missing balance:\n%s", rec.Body.String())
	}
}
