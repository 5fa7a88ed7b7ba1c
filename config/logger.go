package config

import (
	"os"

	"github.com/sirupsen/logrus"
)

// InitLogger builds the process-wide structured logger; components receive
// it through their constructors. Unknown levels fall back to info rather
// than failing startup.
func InitLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	return log
}
