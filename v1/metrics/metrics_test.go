package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounters(t *testing.T) {
	m := NewMetrics(Config{ServiceName: "schema-registry"})

	m.ObserveRegistration("AVRO", "create", "success")
	m.ObserveRegistration("AVRO", "create", "success")
	m.ObserveLookup("canonical", "success")
	m.ObserveRuleViolation("COMPATIBILITY")
	m.ObserveLimitRejection("maxVersionsPerArtifact")
	m.RecordOperationDuration(time.Now(), "lookup")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.registrations.WithLabelValues("AVRO", "create", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lookups.WithLabelValues("canonical", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ruleViolations.WithLabelValues("COMPATIBILITY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.limitRejections.WithLabelValues("maxVersionsPerArtifact")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.operationDuration))
}

func TestHandlerExposesServiceLabel(t *testing.T) {
	m := NewMetrics(Config{ServiceName: "schema-registry", Namespace: "sr"})
	m.ObserveRuleViolation("VALIDITY")

	rec := httptest.NewRecorder()
	m.Server.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `sr_registry_rule_violations_total{rule="VALIDITY",service="schema-registry"} 1`), string(body))
	assert.Equal(t, DefaultMetricsAddress, m.Server.Addr)
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = Noop{}
	r.ObserveRegistration("JSON", "update", "error")
	r.RecordOperationDuration(time.Now(), "x")
}
