package common

// Logger is the logging capability handed to long-lived components;
// *logger.Logger satisfies it
type Logger interface {
	Debug(msg string)
	Debugf(msg string, v ...interface{})
	Tracef(msg string, v ...interface{})
	Warning(msg string)
	Warningf(msg string, v ...interface{})
}

// LoggerOrDefault returns l, or the package logger when l is nil
func LoggerOrDefault(l Logger) Logger {
	if l == nil {
		return Log
	}
	return l
}
