package application

import (
	"context"
	"testing"

	"github.com/astrozzc/manageiq-automation-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectSums(t *testing.T, reader *sdkmetric.ManualReader, name string) map[attribute.Distinct]metricdata.DataPoint[int64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	points := map[attribute.Distinct]metricdata.DataPoint[int64]{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, name)
			for _, dp := range sum.DataPoints {
				points[dp.Attributes.Equivalent()] = dp
			}
		}
	}
	return points
}

func sumValue(points map[attribute.Distinct]metricdata.DataPoint[int64], kv ...attribute.KeyValue) int64 {
	set := attribute.NewSet(kv...)
	return points[set.Equivalent()].Value
}

func TestImportRecordsMetrics(t *testing.T) {
	ctx := context.Background()
	repo := openStore(t)
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	svc := newTestService(repo, Config{Meter: mp.Meter("test")})
	tree := singleTree("Customer", customerDomain("Customer", nil, resolvableOptions()))

	_, err := svc.Import(ctx, tree, "Customer", ImportOptions{Trusted: true})
	require.NoError(t, err)
	_, err = svc.Import(ctx, tree, "Customer", ImportOptions{Trusted: true, Preview: true})
	require.NoError(t, err)
	_, err = svc.Import(ctx, tree, "Missing", ImportOptions{Trusted: true})
	require.Error(t, err)

	runs := collectSums(t, reader, "automate.import.runs")
	assert.Equal(t, int64(1), sumValue(runs, attribute.String("outcome", "ok")))
	assert.Equal(t, int64(1), sumValue(runs, attribute.String("outcome", "preview")))
	assert.Equal(t, int64(1), sumValue(runs, attribute.String("outcome", string(domain.KindInvalidInput))))

	objects := collectSums(t, reader, "automate.import.objects")
	assert.Equal(t, int64(2), sumValue(objects, attribute.String("level", "instance"), attribute.String("outcome", "added")))
	assert.Equal(t, int64(2), sumValue(objects, attribute.String("level", "instance"), attribute.String("outcome", "updated")))
	assert.Equal(t, int64(1), sumValue(objects, attribute.String("level", "domain"), attribute.String("outcome", "added")))
}
