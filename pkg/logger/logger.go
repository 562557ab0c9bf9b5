package logger

// Printf-style helpers for startup and background code paths.

// Info logs at info level
func Info(format string, args ...interface{}) {
	zlog.Info().Msgf(format, args...)
}

// Warn logs at warn level
func Warn(format string, args ...interface{}) {
	zlog.Warn().Msgf(format, args...)
}

// Error logs at error level
func Error(format string, args ...interface{}) {
	zlog.Error().Msgf(format, args...)
}

// Debug logs at debug level
func Debug(format string, args ...interface{}) {
	zlog.Debug().Msgf(format, args...)
}
