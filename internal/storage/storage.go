// Package storage persists tasks, pending-operation markers, and artifacts.
package storage

import (
	"context"
	"errors"

	ec "github.com/evoronina/konspekt/pkgs/errors"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5"
)

// S3API is the slice of the S3 client used by the marker and artifact
// stores. *s3.Client satisfies it.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// DB is the slice of pgxpool.Pool the task store uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Storage struct {
	db     DB
	s3     S3API
	bucket string
}

func New(db DB, s3cli S3API, bucket string) Storage {
	return Storage{
		db:     db,
		s3:     s3cli,
		bucket: bucket,
	}
}

func handlePgxErr(err error) *ec.Error {
	if pgerr, ok := ec.NewPGErr(err); ok {
		if ec.IsIntegrityViolation(err) {
			return ec.ErrDBIntegrityConstrainViolation.Clone().
				WithDetails(pgerr.Details).
				Warp(err)
		}
		return ec.ErrDBError.Clone().
			WithMessage(pgerr.Message).
			WithDetails(pgerr.Details).
			Warp(err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return ec.ErrNotFound.Clone().
			Warp(err)
	}

	return ec.ErrDBError.Clone().
		WithDetails(err.Error()).
		Warp(err)
}
