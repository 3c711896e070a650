package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(mtxOrders.WithLabelValues("BUY", "filled"))
	IncOrder("BUY", "filled")
	IncOrder("BUY", "filled")

	if got := testutil.ToFloat64(mtxOrders.WithLabelValues("BUY", "filled")) - before; got != 2 {
		t.Errorf("orders delta = %v, want 2", got)
	}
}

func TestGauges(t *testing.T) {
	SetLastPrice(49000)
	SetRunning(true)
	SetPositionLong(false)

	if got := testutil.ToFloat64(mtxLastPrice); got != 49000 {
		t.Errorf("last price = %v, want 49000", got)
	}
	if got := testutil.ToFloat64(mtxRunning); got != 1 {
		t.Errorf("running = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mtxPositionLong); got != 0 {
		t.Errorf("position long = %v, want 0", got)
	}
}
