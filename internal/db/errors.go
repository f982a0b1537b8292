package db

import "errors"

var (
	ErrBucketNotFound = errors.New("bucket not found")
	ErrNilDB          = errors.New("database connection is nil")
	ErrInvalidInput   = errors.New("invalid input parameters")
	ErrRunNotFound    = errors.New("run not found")
	ErrConflict       = errors.New("id already exists")
)
