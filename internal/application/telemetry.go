package application

import (
	"context"
	"time"

	"github.com/astrozzc/manageiq-automation-engine/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// instruments are the import metrics. A nil *instruments records nothing.
type instruments struct {
	runs     metric.Int64Counter
	objects  metric.Int64Counter
	duration metric.Float64Histogram
}

func newInstruments(meter metric.Meter) (*instruments, error) {
	var (
		in  instruments
		err error
	)
	in.runs, err = meter.Int64Counter("automate.import.runs",
		metric.WithDescription("Import runs by outcome"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}
	in.objects, err = meter.Int64Counter("automate.import.objects",
		metric.WithDescription("Objects visited by level and outcome"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}
	in.duration, err = meter.Float64Histogram("automate.import.duration",
		metric.WithDescription("Import run duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func (in *instruments) record(ctx context.Context, stats ImportStats, preview bool, err error, elapsed time.Duration) {
	if in == nil {
		return
	}
	outcome := "ok"
	switch {
	case err != nil:
		outcome = string(domain.KindOf(err))
		if outcome == "" {
			outcome = string(domain.KindStorage)
		}
	case preview:
		outcome = "preview"
	}
	runAttrs := metric.WithAttributes(attribute.String("outcome", outcome))
	in.runs.Add(ctx, 1, runAttrs)
	in.duration.Record(ctx, elapsed.Seconds(), runAttrs)

	for _, c := range []struct {
		level Level
		c     Counter
	}{
		{LevelDomain, stats.Domain},
		{LevelNamespace, stats.Namespace},
		{LevelClass, stats.Class},
		{LevelInstance, stats.Instance},
		{LevelMethod, stats.Method},
	} {
		if c.c.Added > 0 {
			in.objects.Add(ctx, int64(c.c.Added), metric.WithAttributes(
				attribute.String("level", string(c.level)), attribute.String("outcome", "added")))
		}
		if c.c.Updated > 0 {
			in.objects.Add(ctx, int64(c.c.Updated), metric.WithAttributes(
				attribute.String("level", string(c.level)), attribute.String("outcome", "updated")))
		}
	}
}
