package repair

// Output receives progress and messages of a running repair step.
type Output interface {
	Info(message string)
	Warning(message string)
	StartProgress(max int)
	AdvanceProgress(step int, description string)
	FinishProgress()
}

// Logger is the logging a repair run needs; *log.Logger satisfies it.
type Logger interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}
