package observe

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestParseMetricsLabels(t *testing.T) {
	labels, err := ParseMetricsLabels("service=planner-service,env=prod")
	require.NoError(t, err)
	require.Equal(t, prometheus.Labels{"service": "planner-service", "env": "prod"}, labels)
}

func TestParseMetricsLabelsEmpty(t *testing.T) {
	labels, err := ParseMetricsLabels("")
	require.NoError(t, err)
	require.Nil(t, labels)
}

func TestParseMetricsLabelsExpandsEnv(t *testing.T) {
	t.Setenv("PLANNER_TEST_ENV_NAME", "staging")
	labels, err := ParseMetricsLabels("env=${PLANNER_TEST_ENV_NAME}")
	require.NoError(t, err)
	require.Equal(t, "staging", labels["env"])
}

func TestParseMetricsLabelsRejectsBadInput(t *testing.T) {
	_, err := ParseMetricsLabels("no-equals-sign")
	require.Error(t, err)

	_, err = ParseMetricsLabels("bad key=value")
	require.Error(t, err)
}
