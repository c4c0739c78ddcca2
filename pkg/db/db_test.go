package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingObserver struct {
	calls   int
	seconds float64
}

func (o *countingObserver) ObserveDBQuery(seconds float64) {
	o.calls++
	o.seconds += seconds
}

func TestGormLoggerTraceReportsToObserver(t *testing.T) {
	gl := NewGormLogger(false, 200*time.Millisecond)
	obs := &countingObserver{}
	gl.observer = obs

	fc := func() (string, int64) { return "SELECT 1", 1 }
	begin := time.Now().Add(-10 * time.Millisecond)

	// 日志关闭时指标照常上报
	gl.Trace(context.Background(), begin, fc, nil)
	assert.Equal(t, 1, obs.calls)
	assert.Greater(t, obs.seconds, 0.0)

	gl.Trace(context.Background(), begin, fc, errors.New("connection reset"))
	assert.Equal(t, 2, obs.calls)
}

func TestGormLoggerTraceWithoutObserver(t *testing.T) {
	gl := NewGormLogger(false, time.Second)
	assert.NotPanics(t, func() {
		gl.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 1 }, nil)
	})
}

func TestInstrumentBindsObserver(t *testing.T) {
	gl := NewGormLogger(true, time.Second)
	d := &DB{gormLogger: gl}
	obs := &countingObserver{}
	d.Instrument(obs)

	gl.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 1 }, nil)
	assert.Equal(t, 1, obs.calls)
}
