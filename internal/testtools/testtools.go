// Package testtools provides fixtures shared by package tests: random task
// rows and an in-memory object store.
package testtools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/evoronina/konspekt/internal/tasks"
)

type Random struct{}

var lectureTitles = []string{
	"Введение в теорию графов",
	"Линейная алгебра, лекция 3",
	"Операционные системы: планировщик",
	"Распределённые системы",
	"История философии",
}

func (r Random) LectureTitle() string {
	return lectureTitles[rand.IntN(len(lectureTitles))]
}

func (r Random) VideoURL() string {
	return fmt.Sprintf("https://disk.yandex.ru/i/%08x", rand.Uint32())
}

// Task builds a plausible task row in the given status.
func (r Random) Task(status tasks.Status) tasks.Task {
	t := tasks.Task{
		TaskID:       uuid.New(),
		CreatedAt:    time.Now().Add(-time.Duration(rand.IntN(72)) * time.Hour).UTC(),
		LectureTitle: r.LectureTitle(),
		VideoURL:     r.VideoURL(),
		Status:       status,
	}
	if status == tasks.StatusError {
		desc := "link does not lead to a public video"
		t.Description = &desc
	}
	return t
}

// FakeObject is one stored object inside FakeS3.
type FakeObject struct {
	Data         []byte
	ContentType  string
	LastModified time.Time
}

// FakeS3 is an in-memory storage.S3API with enough ListObjectsV2 pagination
// semantics for the marker and artifact stores.
type FakeS3 struct {
	mu      sync.Mutex
	objects map[string]FakeObject

	// Err, when set, is returned by every call. Lets tests simulate an
	// unreachable store.
	Err error
}

func NewFakeS3() *FakeS3 {
	return &FakeS3{objects: map[string]FakeObject{}}
}

func (f *FakeS3) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

func (f *FakeS3) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Seed stores an object directly, bypassing the S3 call surface.
func (f *FakeS3) Seed(key string, data []byte, modified time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = FakeObject{Data: data, ContentType: "application/octet-stream", LastModified: modified}
}

func (f *FakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(params.Key)] = FakeObject{
		Data:         data,
		ContentType:  aws.ToString(params.ContentType),
		LastModified: time.Now().UTC(),
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *FakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	obj, ok := f.objects[aws.ToString(params.Key)]
	f.mu.Unlock()
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.Data)),
		ContentType:   aws.String(obj.ContentType),
		ContentLength: aws.Int64(int64(len(obj.Data))),
		LastModified:  aws.Time(obj.LastModified),
	}, nil
}

func (f *FakeS3) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	obj, ok := f.objects[aws.ToString(params.Key)]
	f.mu.Unlock()
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.Data))),
		LastModified:  aws.Time(obj.LastModified),
	}, nil
}

func (f *FakeS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *FakeS3) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := aws.ToString(params.Prefix)
	after := aws.ToString(params.ContinuationToken)

	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) && (after == "" || k > after) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	max := int(aws.ToInt32(params.MaxKeys))
	if max <= 0 {
		max = 1000
	}
	truncated := len(keys) > max
	if truncated {
		keys = keys[:max]
	}

	out := &s3.ListObjectsV2Output{
		IsTruncated: aws.Bool(truncated),
		KeyCount:    aws.Int32(int32(len(keys))),
	}
	for _, k := range keys {
		obj := f.objects[k]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(obj.Data))),
			LastModified: aws.Time(obj.LastModified),
		})
	}
	if truncated {
		out.NextContinuationToken = aws.String(keys[len(keys)-1])
	}
	return out, nil
}
