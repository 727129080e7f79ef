package router_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/evoronina/konspekt/internal/router"
	"github.com/evoronina/konspekt/internal/storage"
	"github.com/evoronina/konspekt/internal/tasks"
	"github.com/evoronina/konspekt/internal/testtools"
)

type fakePublisher struct {
	published []tasks.DownloadPayload
	err       error
}

func (f *fakePublisher) Publish(ctx context.Context, subject string, payload any,
	attrs ...attribute.KeyValue) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, payload.(tasks.DownloadPayload))
	return nil
}

type env struct {
	db  *testtools.FakeDB
	pub *fakePublisher
	mux *http.ServeMux
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		db:  testtools.NewFakeDB(),
		pub: &fakePublisher{},
	}
	repo := router.NewRepo(
		storage.New(e.db, testtools.NewFakeS3(), "bucket"),
		e.pub,
		zerolog.Nop(),
		noop.NewTracerProvider().Tracer("test"),
		validator.New(),
	)
	e.mux = router.New(repo, t.TempDir())
	return e
}

func (e *env) submit(form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/tasks",
		strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func TestCreateTask(t *testing.T) {
	validForm := func() url.Values {
		return url.Values{
			"lecture":   {"Теория графов, лекция 1"},
			"video_url": {"https://disk.yandex.ru/i/abcdef123"},
		}
	}

	t.Run("accepts and redirects to the listing", func(t *testing.T) {
		e := newEnv(t)
		rec := e.submit(validForm())
		require.Equal(t, http.StatusFound, rec.Code)
		require.Equal(t, "/tasks.html", rec.Header().Get("Location"))

		require.Len(t, e.pub.published, 1)
		msg := e.pub.published[0]
		require.Equal(t, "https://disk.yandex.ru/i/abcdef123", msg.VideoURL)

		row, ok := e.db.TaskRow(msg.TaskID)
		require.True(t, ok)
		require.Equal(t, tasks.StatusQueued, row.Status)
		require.Equal(t, "Теория графов, лекция 1", row.LectureTitle)
	})

	t.Run("two submissions create two tasks", func(t *testing.T) {
		e := newEnv(t)
		require.Equal(t, http.StatusFound, e.submit(validForm()).Code)
		require.Equal(t, http.StatusFound, e.submit(validForm()).Code)
		require.Len(t, e.pub.published, 2)
		require.NotEqual(t, e.pub.published[0].TaskID, e.pub.published[1].TaskID)
	})

	t.Run("publish failure leaves no row behind", func(t *testing.T) {
		e := newEnv(t)
		e.pub.err = errors.New("queue is down")

		rec := e.submit(validForm())
		require.GreaterOrEqual(t, rec.Code, 500)
		require.Empty(t, e.pub.published)
		// The insert transaction rolled back with the publish.
		require.Zero(t, e.db.Len())
	})

	tcs := []struct {
		Name string
		Form url.Values
	}{
		{
			Name: "missing title",
			Form: url.Values{"video_url": {"https://disk.yandex.ru/i/abc"}},
		},
		{
			Name: "blank title",
			Form: url.Values{
				"lecture":   {"   "},
				"video_url": {"https://disk.yandex.ru/i/abc"},
			},
		},
		{
			Name: "missing url",
			Form: url.Values{"lecture": {"Лекция"}},
		},
		{
			Name: "not a url",
			Form: url.Values{
				"lecture":   {"Лекция"},
				"video_url": {"not a url"},
			},
		},
		{
			Name: "http is rejected",
			Form: url.Values{
				"lecture":   {"Лекция"},
				"video_url": {"http://disk.yandex.ru/i/abc"},
			},
		},
	}
	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			e := newEnv(t)
			rec := e.submit(tc.Form)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Empty(t, e.pub.published)
		})
	}
}

func TestListTasks(t *testing.T) {
	random := testtools.Random{}

	t.Run("returns tasks newest first with display labels", func(t *testing.T) {
		e := newEnv(t)
		older := random.Task(tasks.StatusDone)
		older.CreatedAt = time.Now().Add(-time.Hour).UTC()
		newer := random.Task(tasks.StatusQueued)
		newer.CreatedAt = time.Now().UTC()
		e.db.SeedTask(older)
		e.db.SeedTask(newer)

		req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
		rec := httptest.NewRecorder()
		e.mux.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var views []struct {
			TaskID        string `json:"task_id"`
			Status        string `json:"status"`
			StatusDisplay string `json:"status_display"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
		require.Len(t, views, 2)
		require.Equal(t, newer.TaskID.String(), views[0].TaskID)
		require.Equal(t, "queued", views[0].Status)
		require.Equal(t, "В очереди", views[0].StatusDisplay)
		require.Equal(t, "Успешно завершено", views[1].StatusDisplay)
	})

	t.Run("rejects a silly limit", func(t *testing.T) {
		e := newEnv(t)
		req := httptest.NewRequest(http.MethodGet, "/api/tasks?limit=99999", nil)
		rec := httptest.NewRecorder()
		e.mux.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
