package definition

import (
	"os"

	"github.com/jabolina/go-taskgraph/pkg/taskgraph/types"
	"github.com/sirupsen/logrus"
)

// DefaultLogger is the Logger implementation used when a caller does not
// inject its own. It wraps logrus instead of the stdlib log package so
// structured fields (peer/key/jobid/function) travel with every entry.
type DefaultLogger struct {
	entry *logrus.Entry
}

// NewDefaultLogger builds a DefaultLogger writing to stderr with a
// text formatter.
func NewDefaultLogger() *DefaultLogger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	return &DefaultLogger{entry: logrus.NewEntry(l)}
}

func (d *DefaultLogger) Info(v ...interface{})                 { d.entry.Info(v...) }
func (d *DefaultLogger) Infof(format string, v ...interface{}) { d.entry.Infof(format, v...) }
func (d *DefaultLogger) Warn(v ...interface{})                 { d.entry.Warn(v...) }
func (d *DefaultLogger) Warnf(format string, v ...interface{}) { d.entry.Warnf(format, v...) }
func (d *DefaultLogger) Error(v ...interface{})                { d.entry.Error(v...) }
func (d *DefaultLogger) Errorf(format string, v ...interface{}) {
	d.entry.Errorf(format, v...)
}
func (d *DefaultLogger) Debug(v ...interface{})                 { d.entry.Debug(v...) }
func (d *DefaultLogger) Debugf(format string, v ...interface{}) { d.entry.Debugf(format, v...) }
func (d *DefaultLogger) Fatal(v ...interface{})                 { d.entry.Fatal(v...) }
func (d *DefaultLogger) Fatalf(format string, v ...interface{}) { d.entry.Fatalf(format, v...) }

func (d *DefaultLogger) ToggleDebug(value bool) bool {
	prev := d.entry.Logger.GetLevel() == logrus.DebugLevel
	if value {
		d.entry.Logger.SetLevel(logrus.DebugLevel)
	} else {
		d.entry.Logger.SetLevel(logrus.InfoLevel)
	}
	return prev
}

func (d *DefaultLogger) WithFields(fields map[string]interface{}) types.Logger {
	return &DefaultLogger{entry: d.entry.WithFields(fields)}
}
