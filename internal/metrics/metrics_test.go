package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveSweep_IncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(SweepsTotal.WithLabelValues("test"))
	ObserveSweep("test", time.Now())
	assert.Equal(t, before+1, testutil.ToFloat64(SweepsTotal.WithLabelValues("test")))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "success", Outcome(true))
	assert.Equal(t, "failure", Outcome(false))
}
