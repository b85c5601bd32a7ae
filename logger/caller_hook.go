package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// callerHook rewrites the caller logrus reports so the log line points at
// the call site in application code instead of this package's wrappers.
type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// internalFrame reports whether a function belongs to the logging machinery
// and should be skipped when attributing a log line.
func internalFrame(fn string) bool {
	return strings.Contains(fn, "sirupsen/logrus") ||
		strings.Contains(fn, "ssmdquery/logger")
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	// Skip runtime.Callers, this method, and the logrus fire path before
	// scanning for the first application frame.
	pcs := make([]uintptr, 16)
	depth := runtime.Callers(6, pcs)
	frames := runtime.CallersFrames(pcs[:depth])
	for more := true; more; {
		var frame runtime.Frame
		frame, more = frames.Next()
		if internalFrame(frame.Function) {
			continue
		}
		entry.Caller = &frame
		break
	}
	return nil
}
