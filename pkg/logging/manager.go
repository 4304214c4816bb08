package logging

import "sync"

// The process owns exactly one service logger, initialized once in main and
// reached through GetServiceLogger everywhere else.
var (
	serviceLogger Logger
	initOnce      sync.Once
)

// InitServiceLogger builds the process-wide logger. Only the first call has
// any effect; later calls return the first call's error, which is nil once
// initialization succeeded.
func InitServiceLogger(config LoggerConfig) error {
	var err error
	initOnce.Do(func() {
		serviceLogger, err = NewZapLogger(config)
	})
	return err
}

// GetServiceLogger panics when called before InitServiceLogger; that is a
// wiring bug, not a runtime condition to handle.
func GetServiceLogger() Logger {
	if serviceLogger == nil {
		panic("logging: service logger not initialized")
	}
	return serviceLogger
}

// Shutdown flushes buffered entries. Sync errors are dropped; syncing stdout
// fails on some platforms and there is nothing useful to do about it.
func Shutdown() {
	if zl, ok := serviceLogger.(*ZapLogger); ok && zl != nil {
		_ = zl.logger.Sync()
	}
}
