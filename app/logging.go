package app

import (
	"github.com/sirupsen/logrus"
)

type LoggingConfig struct {
	Level string `env:"LOG_LEVEL"`
}

func (logConf *LoggingConfig) Setup() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	if logConf.Level == "" {
		logrus.SetLevel(logrus.InfoLevel)
		return
	}
	level, err := logrus.ParseLevel(logConf.Level)
	if err != nil {
		logrus.WithField("level", logConf.Level).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}
