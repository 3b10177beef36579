package observe_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/aponysus/bamboo/classify"
	"github.com/aponysus/bamboo/observe"
	"github.com/aponysus/bamboo/policy"
)

func TestMetricsObserver_CountsCallsAndAttempts(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := observe.NewMetricsObserver(reg)
	require.NoError(t, err)

	ctx := context.Background()
	key := policy.ParseKey("dataset.delete")
	start := time.Now()

	obs.OnAttempt(ctx, key, observe.AttemptRecord{Outcome: classify.Outcome{Kind: classify.OutcomeNotReady}})
	obs.OnAttempt(ctx, key, observe.AttemptRecord{Outcome: classify.Outcome{Kind: classify.OutcomeSuccess}})
	obs.OnSuccess(ctx, key, observe.Timeline{Key: key, Start: start, End: start.Add(time.Second)})

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 3)

	calls, err := testutil.GatherAndCount(reg, "bamboo_calls_total")
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	attempts, err := testutil.GatherAndCount(reg, "bamboo_attempts_total")
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
}

func TestMetricsObserver_SharesCollectorsOnOneRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := observe.NewMetricsObserver(reg)
	require.NoError(t, err)
	second, err := observe.NewMetricsObserver(reg)
	require.NoError(t, err)

	ctx := context.Background()
	key := policy.ParseKey("dataset.delete")
	now := time.Now()
	first.OnSuccess(ctx, key, observe.Timeline{Key: key, Start: now, End: now})
	second.OnSuccess(ctx, key, observe.Timeline{Key: key, Start: now, End: now})

	n, err := testutil.GatherAndCount(reg, "bamboo_calls_total")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == "bamboo_calls_total" {
			require.Equal(t, 2.0, mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
}

func TestMetricsObserver_ConflictingCollectorFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bamboo_calls_total",
		Help: "Something else.",
	}, []string{"other"}))

	_, err := observe.NewMetricsObserver(reg)
	require.Error(t, err)
}
