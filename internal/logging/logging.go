// Package logging constructs the process-wide *logrus.Logger, replacing
// the teacher's bare log.Printf calls throughout server.go/routes.go.
// Grounded on other_examples' jason-s-yu-cambia-service, which threads a
// *logrus.Logger explicitly into its websocket handlers rather than
// relying on the global logrus instance.
package logging

import "github.com/sirupsen/logrus"

// New builds a *logrus.Logger at the given level ("debug", "info",
// "warn", "error"; an unrecognized level falls back to info).
func New(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}
