package session

import "github.com/mailtls/mailtls/internal/model"

// prefixLogger prepends a prefix to every message.
type prefixLogger struct {
	model.Logger
	prefix string
}

var _ model.Logger = &prefixLogger{}

// Debug implements model.Logger.
func (pl *prefixLogger) Debug(message string) {
	pl.Logger.Debug(pl.prefix + message)
}

// Debugf implements model.Logger.
func (pl *prefixLogger) Debugf(format string, v ...interface{}) {
	pl.Logger.Debugf(pl.prefix+format, v...)
}

// Info implements model.Logger.
func (pl *prefixLogger) Info(message string) {
	pl.Logger.Info(pl.prefix + message)
}

// Infof implements model.Logger.
func (pl *prefixLogger) Infof(format string, v ...interface{}) {
	pl.Logger.Infof(pl.prefix+format, v...)
}

// Warn implements model.Logger.
func (pl *prefixLogger) Warn(message string) {
	pl.Logger.Warn(pl.prefix + message)
}

// Warnf implements model.Logger.
func (pl *prefixLogger) Warnf(format string, v ...interface{}) {
	pl.Logger.Warnf(pl.prefix+format, v...)
}
