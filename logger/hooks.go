package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// wrapperPackages are skipped when looking for the real call site.
var wrapperPackages = []string{"sirupsen/logrus", "exchangeflow/logger."}

// callerHook points entry.Caller at the first frame outside logrus and the
// wrappers in this package.
type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(6, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !isWrapper(frame.Function) {
			entry.Caller = &frame
			return nil
		}
		if !more {
			return nil
		}
	}
}

func isWrapper(fn string) bool {
	for _, pkg := range wrapperPackages {
		if strings.Contains(fn, pkg) {
			return true
		}
	}
	return false
}

// fieldsHook stamps the configured static fields (service, region, ...) on
// every entry without overriding fields set at the call site.
type fieldsHook struct {
	fields Fields
}

// NewFieldsHook returns a hook adding fields to every entry.
func NewFieldsHook(fields map[string]interface{}) logrus.Hook {
	copied := make(Fields, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return &fieldsHook{fields: copied}
}

func (h *fieldsHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *fieldsHook) Fire(entry *logrus.Entry) error {
	for k, v := range h.fields {
		if _, ok := entry.Data[k]; !ok {
			entry.Data[k] = v
		}
	}
	return nil
}
