package observability

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ForeignCallStarted()
		m.ForeignCallFinished("MakePlugin", time.Millisecond, nil)
		m.RecordInstall("done", time.Second, nil)
		m.RecordArchiveSize(1024)
	})
}

func TestMetrics_ForeignCalls(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ForeignCallStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ForeignCallsInFlight))

	m.ForeignCallFinished("MakePlugin", time.Millisecond, nil)
	m.ForeignCallStarted()
	m.ForeignCallFinished("MakePlugin", time.Millisecond, errors.New("boom"))

	assert.Equal(t, 0.0, testutil.ToFloat64(m.ForeignCallsInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ForeignCallsTotal.WithLabelValues("MakePlugin", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ForeignCallsTotal.WithLabelValues("MakePlugin", OutcomeFailure)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ForeignCallDuration))
}

func TestMetrics_Installs(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordInstall("done", 2*time.Second, nil)
	m.RecordInstall("fetching", time.Second, errors.New("unreachable"))
	m.RecordArchiveSize(4096)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.InstallsTotal.WithLabelValues(OutcomeSuccess, "done")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InstallsTotal.WithLabelValues(OutcomeFailure, "fetching")))

	count, err := testutil.GatherAndCount(reg, "pluginstall_install_duration_seconds", "pluginstall_archive_size_bytes")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger("warn", &buf)
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())

	log.Info("hidden")
	log.WithField("stage", "fetching").Warn("shown")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.Contains(out, "stage=fetching"), out)

	assert.Equal(t, logrus.InfoLevel, NewLogger("nonsense", &buf).GetLevel())
}

func TestOrDefault(t *testing.T) {
	log := logrus.New()
	assert.Same(t, log, OrDefault(log))
	assert.NotNil(t, OrDefault(nil))
}
