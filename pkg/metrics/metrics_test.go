package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveDBQuery(t *testing.T) {
	m := New("test")

	m.ObserveDBQuery(0.005)
	m.ObserveDBQuery(0.010)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DBQueriesTotal))
}

func TestSetPortfolioState(t *testing.T) {
	m := New("test")

	m.SetPortfolioState(5, 2)
	assert.Equal(t, 5.0, testutil.ToFloat64(m.LoansActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MarginCallsActive))

	// gauge 随下一次刷新整体覆盖
	m.SetPortfolioState(3, 0)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.LoansActive))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.MarginCallsActive))
}
