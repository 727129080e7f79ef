package tasks_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/evoronina/konspekt/internal/tasks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tcs := []struct {
		Name      string
		In        string
		Want      tasks.Status
		TestError func(t *testing.T, e error)
	}{
		{Name: "queued", In: "queued", Want: tasks.StatusQueued},
		{Name: "processing", In: "processing", Want: tasks.StatusProcessing},
		{Name: "done", In: "done", Want: tasks.StatusDone},
		{Name: "error", In: "error", Want: tasks.StatusError},
		{
			Name: "unknown value rejected",
			In:   "downloading",
			TestError: func(t *testing.T, e error) {
				require.ErrorIs(t, e, tasks.ErrInvalidStatus)
			},
		},
		{
			Name: "display string rejected",
			In:   "В очереди",
			TestError: func(t *testing.T, e error) {
				require.ErrorIs(t, e, tasks.ErrInvalidStatus)
			},
		},
		{
			Name: "empty rejected",
			In:   "",
			TestError: func(t *testing.T, e error) {
				require.ErrorIs(t, e, tasks.ErrInvalidStatus)
			},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			got, err := tasks.ParseStatus(tc.In)
			if tc.TestError != nil {
				tc.TestError(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.Want, got)
		})
	}
}

func TestStatusTransitions(t *testing.T) {
	type step struct {
		From, To tasks.Status
		OK       bool
	}

	steps := []step{
		{tasks.StatusQueued, tasks.StatusProcessing, true},
		{tasks.StatusQueued, tasks.StatusError, true},
		{tasks.StatusQueued, tasks.StatusDone, false}, // must pass through processing
		{tasks.StatusProcessing, tasks.StatusDone, true},
		{tasks.StatusProcessing, tasks.StatusError, true},
		{tasks.StatusProcessing, tasks.StatusQueued, false},
		{tasks.StatusDone, tasks.StatusProcessing, false},
		{tasks.StatusDone, tasks.StatusError, false},
		{tasks.StatusDone, tasks.StatusDone, true}, // idempotent terminal rewrite
		{tasks.StatusError, tasks.StatusError, true},
		{tasks.StatusError, tasks.StatusDone, false},
		{tasks.Status("bogus"), tasks.StatusDone, false},
	}

	for _, s := range steps {
		require.Equal(t, s.OK, s.From.CanTransition(s.To),
			"%s -> %s should be %v", s.From, s.To, s.OK)
	}
}

func TestStatusTerminal(t *testing.T) {
	require.False(t, tasks.StatusQueued.Terminal())
	require.False(t, tasks.StatusProcessing.Terminal())
	require.True(t, tasks.StatusDone.Terminal())
	require.True(t, tasks.StatusError.Terminal())
}

func TestTaskJSONRoundTrip(t *testing.T) {
	desc := "pdf/xyz/lecture.pdf"
	task := tasks.Task{
		TaskID:       uuid.New(),
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
		LectureTitle: "Введение в Go",
		VideoURL:     "https://disk.yandex.ru/d/abc",
		Status:       tasks.StatusDone,
		Description:  &desc,
	}

	data, err := json.Marshal(task)
	require.NoError(t, err)

	var got tasks.Task
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, task, got)
}

func TestStatusUnmarshalRejectsUnknown(t *testing.T) {
	var s tasks.Status
	err := json.Unmarshal([]byte(`"pending"`), &s)
	require.ErrorIs(t, err, tasks.ErrInvalidStatus)
}
