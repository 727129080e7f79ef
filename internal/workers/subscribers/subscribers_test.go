package subscribers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/evoronina/konspekt/internal/disk"
	"github.com/evoronina/konspekt/internal/llm"
	"github.com/evoronina/konspekt/internal/storage"
	"github.com/evoronina/konspekt/internal/stt"
	"github.com/evoronina/konspekt/internal/tasks"
	"github.com/evoronina/konspekt/internal/testtools"
	"github.com/evoronina/konspekt/internal/workers"
	ec "github.com/evoronina/konspekt/pkgs/errors"
)

func newBase() workers.BaseWorker {
	return workers.BaseWorker{
		Logger: zerolog.Nop(),
		Tracer: noop.NewTracerProvider().Tracer("test"),
	}
}

func newSTTClient(t *testing.T, baseURL string) *stt.Client {
	t.Helper()
	cli, err := stt.New(
		stt.WithAPIKey("key"),
		stt.WithFolderID("folder"),
		stt.WithBaseURL(baseURL),
	)
	require.NoError(t, err)
	return cli
}

func recognizeMsg(t *testing.T, taskID uuid.UUID) *nats.Msg {
	t.Helper()
	return &nats.Msg{
		Subject: tasks.Recognize,
		Data: []byte(`{"task_id":"` + taskID.String() +
			`","object_name":"video/` + taskID.String() + `"}`),
	}
}

func TestRecognizeHandle(t *testing.T) {
	t.Run("submits once and records the marker", func(t *testing.T) {
		submissions := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			submissions++
			w.Write([]byte(`{"id": "op-42"}`))
		}))
		defer srv.Close()

		fake := testtools.NewFakeS3()
		st := storage.New(nil, fake, "bucket")
		w := &RecognizeWorker{
			BaseWorker: newBase(),
			storage:    &st,
			stt:        newSTTClient(t, srv.URL),
			publicURL:  func(key string) string { return "https://bucket.example/" + key },
		}

		taskID := uuid.New()
		res, err := w.Handle(context.Background(), recognizeMsg(t, taskID))
		require.NoError(t, err)
		require.Equal(t, workers.KindDone, res.Kind)
		require.Equal(t, 1, submissions)

		op, err := st.Markers().Get(context.Background(), taskID)
		require.NoError(t, err)
		require.Equal(t, "op-42", op.OperationID)
		require.Equal(t, storage.VideoKey(taskID), op.SourceArtifactKey)

		// Redelivery finds the marker and must not start a second operation.
		res, err = w.Handle(context.Background(), recognizeMsg(t, taskID))
		require.NoError(t, err)
		require.Equal(t, workers.KindDone, res.Kind)
		require.Equal(t, 1, submissions)
	})

	t.Run("rejected submission terminates the task", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad audio uri", http.StatusBadRequest)
		}))
		defer srv.Close()

		st := storage.New(nil, testtools.NewFakeS3(), "bucket")
		w := &RecognizeWorker{
			BaseWorker: newBase(),
			storage:    &st,
			stt:        newSTTClient(t, srv.URL),
			publicURL:  func(key string) string { return "https://bucket.example/" + key },
		}

		taskID := uuid.New()
		res, err := w.Handle(context.Background(), recognizeMsg(t, taskID))
		require.NoError(t, err)
		require.Equal(t, workers.KindTerminate, res.Kind)
		require.Equal(t, taskID, res.TaskID)
		require.Equal(t, tasks.StatusError, res.Status)
		require.Equal(t, RecognitionFailedDescription, res.Description)
	})

	t.Run("transient submission failure is retried", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		st := storage.New(nil, testtools.NewFakeS3(), "bucket")
		w := &RecognizeWorker{
			BaseWorker: newBase(),
			storage:    &st,
			stt:        newSTTClient(t, srv.URL),
			publicURL:  func(key string) string { return "https://bucket.example/" + key },
		}

		_, err := w.Handle(context.Background(), recognizeMsg(t, uuid.New()))
		require.Error(t, err)
		require.True(t, ec.IsTransient(err))
	})

	t.Run("malformed payload is dropped", func(t *testing.T) {
		st := storage.New(nil, testtools.NewFakeS3(), "bucket")
		w := &RecognizeWorker{BaseWorker: newBase(), storage: &st}

		_, err := w.Handle(context.Background(), &nats.Msg{Data: []byte("not json")})
		require.Error(t, err)
		require.ErrorIs(t, err, workers.ErrMalformedMessage)
	})
}

func TestDownloadHandle(t *testing.T) {
	t.Run("stores the video and advances to recognition", func(t *testing.T) {
		video := []byte("mp4-bytes")
		var srv *httptest.Server
		mux := http.NewServeMux()
		mux.HandleFunc("/v1/disk/public/resources", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"type":"file","mime_type":"video/mp4"}`))
		})
		mux.HandleFunc("/v1/disk/public/resources/download", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"href": srv.URL + "/file.mp4"})
		})
		mux.HandleFunc("/file.mp4", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "video/mp4")
			w.Write(video)
		})
		srv = httptest.NewServer(mux)
		defer srv.Close()

		task := testtools.Random{}.Task(tasks.StatusQueued)
		db := testtools.NewFakeDB()
		db.SeedTask(task)
		st := storage.New(db, testtools.NewFakeS3(), "bucket")
		w := &DownloadWorker{
			BaseWorker: newBase(),
			storage:    &st,
			disk:       disk.NewClient(srv.URL, 5*time.Second),
			httpCli:    srv.Client(),
		}

		msg := &nats.Msg{
			Subject: tasks.Download,
			Data: []byte(`{"task_id":"` + task.TaskID.String() +
				`","video_url":"` + task.VideoURL + `"}`),
		}
		res, err := w.Handle(context.Background(), msg)
		require.NoError(t, err)
		require.Equal(t, workers.KindAdvance, res.Kind)
		require.Equal(t, tasks.Recognize, res.NextSubject)

		row, ok := db.TaskRow(task.TaskID)
		require.True(t, ok)
		require.Equal(t, tasks.StatusProcessing, row.Status)

		stored, err := st.Artifacts().Get(context.Background(), storage.VideoKey(task.TaskID))
		require.NoError(t, err)
		require.Equal(t, video, stored)
	})

	t.Run("non-public link terminates with the fixed description", func(t *testing.T) {
		// Resolver answers, but the resource is an album rather than a file.
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"type": "dir"}`))
		}))
		defer srv.Close()

		st := storage.New(nil, testtools.NewFakeS3(), "bucket")
		w := &DownloadWorker{
			BaseWorker: newBase(),
			storage:    &st,
			disk:       disk.NewClient(srv.URL, 5*time.Second),
			httpCli:    srv.Client(),
		}

		taskID := uuid.New()
		msg := &nats.Msg{
			Subject: tasks.Download,
			Data: []byte(`{"task_id":"` + taskID.String() +
				`","video_url":"https://disk.yandex.ru/i/abcdef"}`),
		}
		res, err := w.Handle(context.Background(), msg)
		require.NoError(t, err)
		require.Equal(t, workers.KindTerminate, res.Kind)
		require.Equal(t, tasks.StatusError, res.Status)
		require.Equal(t, RejectedLinkDescription, res.Description)
	})

	t.Run("metadata api outage is retried, not terminal", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		st := storage.New(nil, testtools.NewFakeS3(), "bucket")
		w := &DownloadWorker{
			BaseWorker: newBase(),
			storage:    &st,
			disk:       disk.NewClient(srv.URL, 5*time.Second),
			httpCli:    srv.Client(),
		}

		msg := &nats.Msg{
			Subject: tasks.Download,
			Data: []byte(`{"task_id":"` + uuid.NewString() +
				`","video_url":"https://disk.yandex.ru/i/abcdef"}`),
		}
		res, err := w.Handle(context.Background(), msg)
		require.Error(t, err)
		require.True(t, ec.IsTransient(err))
		require.Equal(t, workers.Result{}, res)
	})

	t.Run("malformed payload is dropped", func(t *testing.T) {
		st := storage.New(nil, testtools.NewFakeS3(), "bucket")
		w := &DownloadWorker{BaseWorker: newBase(), storage: &st}

		_, err := w.Handle(context.Background(), &nats.Msg{Data: []byte(`{"task_id": 7}`)})
		require.Error(t, err)
		require.ErrorIs(t, err, workers.ErrMalformedMessage)
	})
}

type fakeCompleter struct {
	html  string
	err   error
	calls int
}

func (c *fakeCompleter) Complete(ctx context.Context, req llm.Request) (string, error) {
	c.calls++
	return c.html, c.err
}

type fakeRenderer struct{}

func (fakeRenderer) RenderPDF(ctx context.Context, html string) ([]byte, error) {
	return []byte("%PDF-1.4 " + html), nil
}

func summarizeMsg(t *testing.T, taskID uuid.UUID) *nats.Msg {
	t.Helper()
	return &nats.Msg{
		Subject: tasks.Summarize,
		Data: []byte(`{"task_id":"` + taskID.String() +
			`","object_name":"speech/` + taskID.String() + `"}`),
	}
}

func TestSummarizeHandle(t *testing.T) {
	newWorker := func(db *testtools.FakeDB, s3 *testtools.FakeS3,
		completer *fakeCompleter) *SummarizeWorker {
		st := storage.New(db, s3, "bucket")
		return &SummarizeWorker{
			BaseWorker: newBase(),
			storage:    &st,
			completer:  completer,
			renderer:   fakeRenderer{},
		}
	}

	t.Run("renders the document and closes the task", func(t *testing.T) {
		task := testtools.Random{}.Task(tasks.StatusProcessing)
		db := testtools.NewFakeDB()
		db.SeedTask(task)
		s3 := testtools.NewFakeS3()
		s3.Seed(storage.TranscriptKey(task.TaskID), []byte(`{"topic":"x"}`), time.Now())

		completer := &fakeCompleter{html: "<html><body><h1>t</h1></body></html>"}
		w := newWorker(db, s3, completer)

		res, err := w.Handle(context.Background(), summarizeMsg(t, task.TaskID))
		require.NoError(t, err)
		require.Equal(t, workers.KindTerminate, res.Kind)
		require.Equal(t, task.TaskID, res.TaskID)
		require.Equal(t, tasks.StatusDone, res.Status)
		require.Equal(t, storage.PDFKey(task.TaskID, task.LectureTitle), res.Description)
	})

	t.Run("redelivery yields the same outcome and a single document", func(t *testing.T) {
		task := testtools.Random{}.Task(tasks.StatusProcessing)
		db := testtools.NewFakeDB()
		db.SeedTask(task)
		s3 := testtools.NewFakeS3()
		s3.Seed(storage.TranscriptKey(task.TaskID), []byte(`{"topic":"x"}`), time.Now())

		completer := &fakeCompleter{html: "<html><body><h1>t</h1></body></html>"}
		w := newWorker(db, s3, completer)

		first, err := w.Handle(context.Background(), summarizeMsg(t, task.TaskID))
		require.NoError(t, err)
		second, err := w.Handle(context.Background(), summarizeMsg(t, task.TaskID))
		require.NoError(t, err)
		require.Equal(t, first, second)

		var pdfs int
		for _, key := range s3.Keys() {
			if strings.HasPrefix(key, storage.PDFPrefix) {
				pdfs++
			}
		}
		require.Equal(t, 1, pdfs)
		require.Equal(t, 2, completer.calls)
	})

	t.Run("permanent completion failure terminates the task", func(t *testing.T) {
		task := testtools.Random{}.Task(tasks.StatusProcessing)
		db := testtools.NewFakeDB()
		db.SeedTask(task)
		s3 := testtools.NewFakeS3()
		s3.Seed(storage.TranscriptKey(task.TaskID), []byte(`{"topic":"x"}`), time.Now())

		completer := &fakeCompleter{err: ec.ErrPermanentExternal.Clone().
			WithDetails("content filtered")}
		w := newWorker(db, s3, completer)

		res, err := w.Handle(context.Background(), summarizeMsg(t, task.TaskID))
		require.NoError(t, err)
		require.Equal(t, workers.KindTerminate, res.Kind)
		require.Equal(t, tasks.StatusError, res.Status)
		require.Equal(t, RenderFailedDescription, res.Description)
	})

	t.Run("lost transcript terminates the task", func(t *testing.T) {
		task := testtools.Random{}.Task(tasks.StatusProcessing)
		db := testtools.NewFakeDB()
		db.SeedTask(task)

		w := newWorker(db, testtools.NewFakeS3(), &fakeCompleter{html: "<html></html>"})

		res, err := w.Handle(context.Background(), summarizeMsg(t, task.TaskID))
		require.NoError(t, err)
		require.Equal(t, workers.KindTerminate, res.Kind)
		require.Equal(t, tasks.StatusError, res.Status)
		require.Equal(t, RenderFailedDescription, res.Description)
	})

	t.Run("unknown task is dropped", func(t *testing.T) {
		w := newWorker(testtools.NewFakeDB(), testtools.NewFakeS3(),
			&fakeCompleter{html: "<html></html>"})

		_, err := w.Handle(context.Background(), summarizeMsg(t, uuid.New()))
		require.Error(t, err)
		require.ErrorIs(t, err, workers.ErrMalformedMessage)
	})
}
