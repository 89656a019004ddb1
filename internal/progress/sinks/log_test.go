package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/entigraph/entigraph/internal/progress"
)

func TestLogSinkConsume(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))

	batch := []progress.Event{
		{CycleID: "c1", TS: time.Now(), Stage: progress.StageCycleStart},
		{CycleID: "c1", TS: time.Now(), Stage: progress.StageFetchDone, Site: "example.com", StatusClass: progress.Status2xx, Bytes: 512},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.Equal(t, 2, logs.Len())

	entry := logs.All()[1]
	fields := entry.ContextMap()
	require.Equal(t, "example.com", fields["site"])
	require.Equal(t, int64(512), fields["bytes"])
}

func TestLogSinkNilLogger(t *testing.T) {
	t.Parallel()

	sink := NewLogSink(nil)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{{CycleID: "c1"}}))
	require.NoError(t, sink.Close(context.Background()))
}
