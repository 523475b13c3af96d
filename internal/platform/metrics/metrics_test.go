package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersAreLabelled(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementClaimsCreated("mock")
	m.IncrementClaimsCreated("mock")
	m.IncrementClaimsCreated("backend")
	m.IncrementSessionsResolved("verified")
	m.IncrementRegistryCheck("unknown")
	m.IncrementClaimsRevoked()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ClaimsCreated.WithLabelValues("mock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClaimsCreated.WithLabelValues("backend")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsResolved.WithLabelValues("verified")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RegistryChecks.WithLabelValues("unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClaimsRevoked))
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
