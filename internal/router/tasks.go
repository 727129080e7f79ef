package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/evoronina/konspekt/internal/tasks"
	ec "github.com/evoronina/konspekt/pkgs/errors"
)

const (
	// MaxLectureTitleLength keeps titles printable and the derived object
	// keys reasonable.
	MaxLectureTitleLength = 200

	DefaultListLimit = 50
	MaxListLimit     = 500
)

// CreateTask accepts the submission form, persists a Queued task, and
// publishes the download message inside the same transaction. On success the
// browser is sent back to the listing page.
func (repo *Repo) CreateTask(w http.ResponseWriter, r *http.Request) {
	ctx, span := repo.Tracer.Start(r.Context(), "router.CreateTask")
	defer span.End()

	if err := r.ParseForm(); err != nil {
		fireErrResp(w, r, repo.Logger, "failed to parse form data",
			ec.ErrBadRequest.Clone().WithDetails("failed to parse form data").Warp(err))
		return
	}

	title := strings.TrimSpace(r.FormValue("lecture"))
	videoURL := strings.TrimSpace(r.FormValue("video_url"))

	if title == "" || len([]rune(title)) > MaxLectureTitleLength {
		fireErrResp(w, r, repo.Logger, "invalid lecture title",
			ec.ErrValidationFailed.Clone().
				WithDetails("lecture title must be 1-200 characters"))
		return
	}

	vCtx, vCancel := context.WithTimeout(ctx, time.Second)
	defer vCancel()
	if err := repo.Validate.VarCtx(vCtx, videoURL, "required,url"); err != nil {
		fireErrResp(w, r, repo.Logger, "invalid video url",
			ec.ErrValidationFailed.Clone().
				WithDetails("video_url must be a valid URL").
				Warp(err))
		return
	}
	if u, err := url.Parse(videoURL); err != nil || u.Scheme != "https" {
		fireErrResp(w, r, repo.Logger, "invalid video url",
			ec.ErrValidationFailed.Clone().
				WithDetails("video_url must use https"))
		return
	}

	task := tasks.Task{
		TaskID:       uuid.New(),
		CreatedAt:    time.Now().UTC(),
		LectureTitle: title,
		VideoURL:     videoURL,
		Status:       tasks.StatusQueued,
	}

	iCtx, iCancel := context.WithTimeout(ctx, 5*time.Second)
	defer iCancel()
	// The publish runs inside the insert transaction: the row only commits
	// if the download message went out.
	err := repo.Storage.Task().Insert(iCtx, task,
		func(ctx context.Context, taskID uuid.UUID) error {
			return repo.Publisher.Publish(ctx, tasks.Download, tasks.DownloadPayload{
				TaskID:   taskID,
				VideoURL: videoURL,
			})
		})
	if err != nil {
		fireErrResp(w, r, repo.Logger, "failed to create task", err)
		return
	}

	repo.Logger.Info().
		Stringer("task_id", task.TaskID).
		Str("lecture_title", title).
		Msg("task accepted")
	http.Redirect(w, r, "/tasks.html", http.StatusFound)
}

// taskView is the listing representation. Status carries the stored value,
// StatusDisplay the human-readable Russian label the pages show.
type taskView struct {
	TaskID        uuid.UUID `json:"task_id"`
	CreatedAt     time.Time `json:"created_at"`
	LectureTitle  string    `json:"lecture_title"`
	Status        string    `json:"status"`
	StatusDisplay string    `json:"status_display"`
	Description   string    `json:"description,omitempty"`
}

// ListTasks returns recent tasks, newest first.
func (repo *Repo) ListTasks(w http.ResponseWriter, r *http.Request) {
	ctx, span := repo.Tracer.Start(r.Context(), "router.ListTasks")
	defer span.End()

	limit := int32(DefaultListLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxListLimit {
			fireErrResp(w, r, repo.Logger, "invalid limit",
				ec.ErrValidationFailed.Clone().
					WithDetails("limit must be between 1 and 500"))
			return
		}
		limit = int32(n)
	}

	rows, err := repo.Storage.Task().List(ctx, limit)
	if err != nil {
		fireErrResp(w, r, repo.Logger, "failed to list tasks", err)
		return
	}

	views := make([]taskView, len(rows))
	for i, task := range rows {
		views[i] = taskView{
			TaskID:        task.TaskID,
			CreatedAt:     task.CreatedAt,
			LectureTitle:  task.LectureTitle,
			Status:        task.Status.String(),
			StatusDisplay: task.Status.Display(),
		}
		if task.Description != nil {
			views[i].Description = *task.Description
		}
	}

	data, err := json.Marshal(views)
	if err != nil {
		fireErrResp(w, r, repo.Logger, "failed to marshal tasks",
			ec.New(ec.ECMarshalFailed, "failed to marshal tasks").Warp(err))
		return
	}
	fireOkResp(w, r, repo.Logger, data)
}
