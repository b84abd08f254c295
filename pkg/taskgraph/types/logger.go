package types

// Logger is the logging sink injected into every component that needs to
// report something. No component reaches for a package-level log sink;
// everything that can log holds one of these.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Fatal(v ...interface{})
	Fatalf(format string, v ...interface{})

	// ToggleDebug turns debug-level logging on or off, returning the
	// previous state.
	ToggleDebug(value bool) bool

	// WithFields returns a Logger that prefixes every subsequent entry
	// with the given structured fields, without mutating the receiver.
	WithFields(fields map[string]interface{}) Logger
}
