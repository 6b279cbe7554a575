package util

import (
	"io"
	"sync"

	"github.com/go-i2p/logger"
)

var (
	closeOnExit []io.Closer
	closeMutex  sync.Mutex
)

// RegisterCloser queues c to be closed by CloseAll.
func RegisterCloser(c io.Closer) {
	if c == nil {
		return
	}
	closeMutex.Lock()
	defer closeMutex.Unlock()
	closeOnExit = append(closeOnExit, c)
}

// CloseAll closes registered closers in reverse order of registration and
// forgets them. The first error is returned; the rest are logged.
func CloseAll() error {
	closeMutex.Lock()
	pending := closeOnExit
	closeOnExit = nil
	closeMutex.Unlock()

	var first error
	for i := len(pending) - 1; i >= 0; i-- {
		if err := pending[i].Close(); err != nil {
			if first == nil {
				first = err
			}
			log.WithFields(logger.Fields{"at": "util.CloseAll", "index": i}).
				WithError(err).Warn("closer_failed")
		}
	}
	return first
}
