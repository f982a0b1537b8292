package spool

import (
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	DefaultDebounceDuration = 500 * time.Millisecond

	ProcessedDir = "processed"
	FailedDir    = "failed"

	uploadExt = ".json"
)

var (
	// События, за которыми мы следим. Файл, перемещённый в каталог, приходит как Create.
	WatchedEvents = fsnotify.Create | fsnotify.Write

	// Файловые паттерны, которые нужно игнорировать
	IgnoredPatterns = []string{
		":Zone.Identifier",
		".tmp",
		".part",
		"~",
	}
)
