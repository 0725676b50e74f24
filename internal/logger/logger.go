package logger

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// New builds the service logger: JSON output, RFC3339 timestamps with
// nanoseconds, level taken from LOG_LEVEL (info when unset or unparsable).
func New() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyMsg: "message",
		},
	})

	level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	return log
}
