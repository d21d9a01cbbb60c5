package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	RotateMaxSizeMB  = 20
	RotateMaxAgeDays = 90
	RotateMaxBackups = 5
)

// Init points the global logger at a rotating log file and, optionally, the console.
func Init(level zerolog.Level, file string, console bool) {
	var writers []io.Writer
	if file != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    RotateMaxSizeMB,
			MaxAge:     RotateMaxAgeDays,
			MaxBackups: RotateMaxBackups,
			LocalTime:  true,
			Compress:   true,
		})
	}
	if console || file == "" {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"})
	}

	multi := zerolog.MultiLevelWriter(writers...)

	logger := zerolog.New(multi).Level(level).With().Timestamp().Logger()
	log.Logger = logger

	if level == zerolog.DebugLevel {
		log.Debug().Msg("Log level set to DEBUG")
	}
}
