package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/evoronina/konspekt/internal/tasks"
	ec "github.com/evoronina/konspekt/pkgs/errors"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

// Markers stores pending-operation markers as small JSON objects under the
// speech-tasks/ prefix. Markers are written by the recognize stage and
// consumed exclusively by the poller; no other component touches them.
type Markers struct {
	Storage
}

func (s Storage) Markers() Markers {
	return Markers{s}
}

// Put writes the marker for a task, overwriting any previous one.
func (m Markers) Put(ctx context.Context, op tasks.PendingOperation) error {
	body, err := json.Marshal(op)
	if err != nil {
		return ec.New(ec.ECMarshalFailed, "failed to marshal marker").Warp(err)
	}

	if _, err := m.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(MarkerKey(op.TaskID)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return ec.ErrObjectStorage.Clone().
			WithDetails("failed to put marker for task " + op.TaskID.String()).
			Warp(err)
	}
	return nil
}

// Get returns the marker for a task, or ErrObjectNotFound when none exists.
func (m Markers) Get(ctx context.Context, taskID uuid.UUID) (tasks.PendingOperation, error) {
	out, err := m.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(MarkerKey(taskID)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return tasks.PendingOperation{}, ec.ErrObjectNotFound.Clone().Warp(err)
		}
		return tasks.PendingOperation{}, ec.ErrObjectStorage.Clone().Warp(err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return tasks.PendingOperation{}, ec.ErrObjectStorage.Clone().Warp(err)
	}

	var op tasks.PendingOperation
	if err := json.Unmarshal(data, &op); err != nil {
		return tasks.PendingOperation{}, ec.New(ec.ECUnmarshalFailed,
			"failed to unmarshal marker").Warp(err)
	}
	return op, nil
}

// Delete removes the marker. Deleting an absent marker is not an error,
// which keeps crash-recovery replays idempotent.
func (m Markers) Delete(ctx context.Context, taskID uuid.UUID) error {
	if _, err := m.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(MarkerKey(taskID)),
	}); err != nil {
		return ec.ErrObjectStorage.Clone().
			WithDetails("failed to delete marker for task " + taskID.String()).
			Warp(err)
	}
	return nil
}

// ListPage returns one page of marker task ids plus the continuation token
// for the next page; an empty token means the enumeration is complete. The
// marker count is unbounded, so callers must page through.
func (m Markers) ListPage(ctx context.Context, token string, pageSize int32) ([]uuid.UUID, string, error) {
	in := &s3.ListObjectsV2Input{
		Bucket:  aws.String(m.bucket),
		Prefix:  aws.String(MarkerPrefix),
		MaxKeys: aws.Int32(pageSize),
	}
	if token != "" {
		in.ContinuationToken = aws.String(token)
	}

	out, err := m.s3.ListObjectsV2(ctx, in)
	if err != nil {
		return nil, "", ec.ErrObjectStorage.Clone().
			WithDetails("failed to list markers").
			Warp(err)
	}

	ids := make([]uuid.UUID, 0, len(out.Contents))
	for _, obj := range out.Contents {
		raw := strings.TrimPrefix(aws.ToString(obj.Key), MarkerPrefix)
		id, err := uuid.Parse(raw)
		if err != nil {
			// Foreign object under the marker prefix; skip it rather
			// than stall the whole cycle.
			continue
		}
		ids = append(ids, id)
	}

	next := ""
	if aws.ToBool(out.IsTruncated) {
		next = aws.ToString(out.NextContinuationToken)
	}
	return ids, next, nil
}
