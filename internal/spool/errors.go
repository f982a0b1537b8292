package spool

import "errors"

var (
	ErrSpoolClosed    = errors.New("spool is closed")
	ErrInvalidPath    = errors.New("invalid spool path")
	ErrAlreadyStarted = errors.New("spool is already started")
)
