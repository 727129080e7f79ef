package poller_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/evoronina/konspekt/internal/poller"
	"github.com/evoronina/konspekt/internal/storage"
	"github.com/evoronina/konspekt/internal/stt"
	"github.com/evoronina/konspekt/internal/tasks"
	"github.com/evoronina/konspekt/internal/testtools"
	ec "github.com/evoronina/konspekt/pkgs/errors"
)

type fakeOperations struct {
	results map[string]stt.OperationResult
	errs    map[string]error
	polled  []string
}

func (f *fakeOperations) Poll(ctx context.Context, operationID string) (stt.OperationResult, error) {
	f.polled = append(f.polled, operationID)
	if err, ok := f.errs[operationID]; ok {
		return stt.OperationResult{}, err
	}
	return f.results[operationID], nil
}

type fakeForwarder struct {
	published []tasks.SummarizePayload
	err       error
}

func (f *fakeForwarder) Publish(ctx context.Context, subject string, payload any,
	attrs ...attribute.KeyValue) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, payload.(tasks.SummarizePayload))
	return nil
}

type fakeStatuses struct {
	updates map[uuid.UUID]tasks.Status
}

func (f *fakeStatuses) UpdateStatus(ctx context.Context, taskID uuid.UUID,
	status tasks.Status, description *string) error {
	if f.updates == nil {
		f.updates = map[uuid.UUID]tasks.Status{}
	}
	f.updates[taskID] = status
	return nil
}

type fixture struct {
	s3      *testtools.FakeS3
	st      storage.Storage
	ops     *fakeOperations
	forward *fakeForwarder
	status  *fakeStatuses
	poller  *poller.Poller
}

func newFixture(opts ...poller.Option) *fixture {
	f := &fixture{
		s3:      testtools.NewFakeS3(),
		ops:     &fakeOperations{results: map[string]stt.OperationResult{}, errs: map[string]error{}},
		forward: &fakeForwarder{},
		status:  &fakeStatuses{},
	}
	f.st = storage.New(nil, f.s3, "bucket")
	f.poller = poller.New(&f.st, f.ops, f.status, f.forward,
		zerolog.Nop(), noop.NewTracerProvider().Tracer("test"), opts...)
	return f
}

func (f *fixture) addMarker(t *testing.T, taskID uuid.UUID, opID string) {
	t.Helper()
	require.NoError(t, f.st.Markers().Put(context.Background(), tasks.PendingOperation{
		TaskID:            taskID,
		OperationID:       opID,
		SourceArtifactKey: storage.VideoKey(taskID),
		SubmittedAt:       time.Now().UTC(),
	}))
}

func TestTick(t *testing.T) {
	t.Run("zero markers is a no-op", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.poller.Tick(context.Background()))
		require.Empty(t, f.ops.polled)
		require.Empty(t, f.forward.published)
	})

	t.Run("pending operation keeps the marker", func(t *testing.T) {
		f := newFixture()
		taskID := uuid.New()
		f.addMarker(t, taskID, "op-1")
		f.ops.results["op-1"] = stt.OperationResult{State: stt.OperationPending}

		require.NoError(t, f.poller.Tick(context.Background()))
		require.Empty(t, f.forward.published)

		_, err := f.st.Markers().Get(context.Background(), taskID)
		require.NoError(t, err)
	})

	t.Run("done operation publishes transcript and hands off", func(t *testing.T) {
		f := newFixture()
		taskID := uuid.New()
		f.addMarker(t, taskID, "op-1")
		payload := []byte(`{"topic":"Графы"}`)
		f.ops.results["op-1"] = stt.OperationResult{State: stt.OperationDone, Payload: payload}

		require.NoError(t, f.poller.Tick(context.Background()))

		transcript, err := f.st.Artifacts().Get(context.Background(), storage.TranscriptKey(taskID))
		require.NoError(t, err)
		require.JSONEq(t, string(payload), string(transcript))

		require.Len(t, f.forward.published, 1)
		require.Equal(t, taskID, f.forward.published[0].TaskID)
		require.Equal(t, storage.TranscriptKey(taskID), f.forward.published[0].ArtifactKey)

		_, err = f.st.Markers().Get(context.Background(), taskID)
		require.ErrorIs(t, err, ec.ErrObjectNotFound)
	})

	t.Run("existing transcript from a crashed cycle is not rewritten", func(t *testing.T) {
		f := newFixture()
		taskID := uuid.New()
		f.addMarker(t, taskID, "op-1")
		f.ops.results["op-1"] = stt.OperationResult{
			State:   stt.OperationDone,
			Payload: []byte(`{"topic":"новая версия"}`),
		}

		// A previous cycle wrote the transcript and crashed before deleting
		// the marker.
		previous := []byte(`{"topic":"прежняя версия"}`)
		f.s3.Seed(storage.TranscriptKey(taskID), previous, time.Now())

		require.NoError(t, f.poller.Tick(context.Background()))

		transcript, err := f.st.Artifacts().Get(context.Background(), storage.TranscriptKey(taskID))
		require.NoError(t, err)
		require.JSONEq(t, string(previous), string(transcript))

		// The hand-off still happens and the marker is still removed.
		require.Len(t, f.forward.published, 1)
		_, err = f.st.Markers().Get(context.Background(), taskID)
		require.ErrorIs(t, err, ec.ErrObjectNotFound)
	})

	t.Run("failed operation closes the task and removes the marker", func(t *testing.T) {
		f := newFixture()
		taskID := uuid.New()
		f.addMarker(t, taskID, "op-1")
		f.ops.results["op-1"] = stt.OperationResult{
			State:         stt.OperationFailed,
			FailureReason: "audio is corrupted",
		}

		require.NoError(t, f.poller.Tick(context.Background()))
		require.Equal(t, tasks.StatusError, f.status.updates[taskID])
		require.Empty(t, f.forward.published)

		_, err := f.st.Markers().Get(context.Background(), taskID)
		require.ErrorIs(t, err, ec.ErrObjectNotFound)
	})

	t.Run("one broken marker does not block the rest", func(t *testing.T) {
		f := newFixture()
		badID, goodID := uuid.New(), uuid.New()
		f.addMarker(t, badID, "op-bad")
		f.addMarker(t, goodID, "op-good")
		f.ops.errs["op-bad"] = errors.New("query exploded")
		f.ops.results["op-good"] = stt.OperationResult{
			State:   stt.OperationDone,
			Payload: []byte(`{"topic":"ок"}`),
		}

		err := f.poller.Tick(context.Background())
		require.Error(t, err)

		// The healthy marker resolved despite the broken one.
		require.Len(t, f.forward.published, 1)
		require.Equal(t, goodID, f.forward.published[0].TaskID)

		// The broken one survives for the next cycle.
		_, err = f.st.Markers().Get(context.Background(), badID)
		require.NoError(t, err)
	})

	t.Run("paginates past a single page of markers", func(t *testing.T) {
		f := newFixture(poller.WithPageSize(2))
		for i := 0; i < 5; i++ {
			taskID := uuid.New()
			f.addMarker(t, taskID, "op-pending")
		}
		f.ops.results["op-pending"] = stt.OperationResult{State: stt.OperationPending}

		require.NoError(t, f.poller.Tick(context.Background()))
		require.Len(t, f.ops.polled, 5)
	})
}

func TestMarkerRoundTrip(t *testing.T) {
	s3 := testtools.NewFakeS3()
	st := storage.New(nil, s3, "bucket")
	taskID := uuid.New()

	op := tasks.PendingOperation{
		TaskID:            taskID,
		OperationID:       "op-7",
		SourceArtifactKey: storage.VideoKey(taskID),
		SubmittedAt:       time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, st.Markers().Put(context.Background(), op))

	raw, err := st.Artifacts().Get(context.Background(), storage.MarkerKey(taskID))
	require.NoError(t, err)

	var onDisk map[string]any
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	require.Equal(t, "op-7", onDisk["operation_id"])
	require.Equal(t, storage.VideoKey(taskID), onDisk["object_name"])

	got, err := st.Markers().Get(context.Background(), taskID)
	require.NoError(t, err)
	require.Equal(t, op, got)
}
