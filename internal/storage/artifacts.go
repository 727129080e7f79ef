package storage

import (
	"context"
	"errors"
	"io"
	"time"

	ec "github.com/evoronina/konspekt/pkgs/errors"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Artifacts stores stage outputs (video, transcript, final pdf) in the
// bucket. All keys come from keys.go, so a write with the same inputs
// always lands on the same object.
type Artifacts struct {
	Storage
}

func (s Storage) Artifacts() Artifacts {
	return Artifacts{s}
}

// ObjectInfo describes one stored object for enumeration.
type ObjectInfo struct {
	Key          string
	LastModified time.Time
}

// Put streams an artifact into the bucket, overwriting any previous object
// under the key. Callers with in-memory payloads wrap them in a bytes.Reader.
func (a Artifacts) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	if _, err := a.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}); err != nil {
		return ec.ErrObjectStorage.Clone().
			WithDetails("failed to put artifact " + key).
			Warp(err)
	}
	return nil
}

// Get reads a whole artifact into memory.
func (a Artifacts) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := a.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ec.ErrObjectNotFound.Clone().
				WithDetails(key).
				Warp(err)
		}
		return nil, ec.ErrObjectStorage.Clone().Warp(err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, ec.ErrObjectStorage.Clone().Warp(err)
	}
	return data, nil
}

// Exists reports whether the artifact is already stored. Used to skip
// rewrites when a crashed cycle is replayed.
func (a Artifacts) Exists(ctx context.Context, key string) (bool, error) {
	_, err := a.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}

	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, ec.ErrObjectStorage.Clone().Warp(err)
}

// Delete removes an artifact. Absent objects are not an error.
func (a Artifacts) Delete(ctx context.Context, key string) error {
	if _, err := a.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return ec.ErrObjectStorage.Clone().
			WithDetails("failed to delete artifact " + key).
			Warp(err)
	}
	return nil
}

// ListPage enumerates objects under a prefix one page at a time; an empty
// returned token means the enumeration is complete.
func (a Artifacts) ListPage(ctx context.Context, prefix, token string, pageSize int32) ([]ObjectInfo, string, error) {
	in := &s3.ListObjectsV2Input{
		Bucket:  aws.String(a.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(pageSize),
	}
	if token != "" {
		in.ContinuationToken = aws.String(token)
	}

	out, err := a.s3.ListObjectsV2(ctx, in)
	if err != nil {
		return nil, "", ec.ErrObjectStorage.Clone().
			WithDetails("failed to list " + prefix).
			Warp(err)
	}

	infos := make([]ObjectInfo, 0, len(out.Contents))
	for _, obj := range out.Contents {
		infos = append(infos, ObjectInfo{
			Key:          aws.ToString(obj.Key),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}

	next := ""
	if aws.ToBool(out.IsTruncated) {
		next = aws.ToString(out.NextContinuationToken)
	}
	return infos, next, nil
}
