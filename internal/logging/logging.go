// Package logging builds the process-wide zap logger.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	// File enables a rotating JSON log file alongside the console output.
	File       string
	Production bool
	Level      zapcore.Level
	// NoConsole drops console output, for programs that own the terminal.
	NoConsole bool
}

func New(opts Options) *zap.Logger {
	return zap.New(newCore(opts, zapcore.Lock(os.Stderr)), zap.AddCaller())
}

func newCore(opts Options, console zapcore.WriteSyncer) zapcore.Core {
	jsonConfig := zap.NewProductionEncoderConfig()
	jsonConfig.TimeKey = "timestamp"
	jsonConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	jsonConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	jsonEncoder := zapcore.NewJSONEncoder(jsonConfig)

	var consoleEncoder zapcore.Encoder
	if opts.Production {
		consoleEncoder = jsonEncoder
	} else {
		consoleEncoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}

	var cores []zapcore.Core
	if !opts.NoConsole {
		cores = append(cores, zapcore.NewCore(consoleEncoder, console, opts.Level))
	}
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		fileLevel := zapcore.InfoLevel
		if opts.Level < fileLevel {
			fileLevel = opts.Level
		}
		cores = append(cores, zapcore.NewCore(jsonEncoder, zapcore.AddSync(rotator), fileLevel))
	}

	return zapcore.NewTee(cores...)
}
