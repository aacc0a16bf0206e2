/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package logger is the leveled logger shared by the arbiter and its clients.
package logger

import (
	"io"
	"os"
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	LevelTrace = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelNoPrint
)

// traceLevel sits below zap's debug level so trace output can be filtered separately.
const traceLevel = zapcore.DebugLevel - 1

var (
	level = zap.NewAtomicLevelAt(zapcore.WarnLevel)

	// Default writes to stdout and is used when a component has no logger of its own.
	Default = New("", os.Stdout)
)

// EnvLogLevel names the environment variable read at startup.
const EnvLogLevel = "SHMARB_LOG_LEVEL"

func init() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			SetLogLevel(n)
		}
	}
}

// SetLogLevel changes the level of every logger. The default level is Warn.
// The process env `SHMARB_LOG_LEVEL` also could set log level.
func SetLogLevel(l int) {
	if l < LevelTrace || l > LevelNoPrint {
		return
	}
	level.SetLevel(toZapLevel(l))
}

// LogLevel returns the current level as one of the Level constants.
func LogLevel() int {
	switch l := level.Level(); {
	case l <= traceLevel:
		return LevelTrace
	case l == zapcore.DebugLevel:
		return LevelDebug
	case l == zapcore.InfoLevel:
		return LevelInfo
	case l == zapcore.WarnLevel:
		return LevelWarn
	case l == zapcore.ErrorLevel:
		return LevelError
	default:
		return LevelNoPrint
	}
}

func toZapLevel(l int) zapcore.Level {
	switch l {
	case LevelTrace:
		return traceLevel
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.FatalLevel + 1
	}
}

// Logger prefixes every line with its name and the caller location.
type Logger struct {
	name  string
	sugar *zap.SugaredLogger
}

// New returns a Logger writing to out. A nil out means stdout.
func New(name string, out io.Writer) *Logger {
	if out == nil {
		out = os.Stdout
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = encodeLevel
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.999999")
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(out), level)
	l := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	if name != "" {
		l = l.Named(name)
	}
	return &Logger{name: name, sugar: l.Sugar()}
}

// Named returns a child logger sharing the same output.
func (l *Logger) Named(name string) *Logger {
	full := name
	if l.name != "" {
		full = l.name + "." + name
	}
	return &Logger{name: full, sugar: l.sugar.Named(name)}
}

func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l == traceLevel {
		enc.AppendString("\x1b[95mTRACE\x1b[0m")
		return
	}
	zapcore.CapitalColorLevelEncoder(l, enc)
}

func (l *Logger) Errorf(format string, a ...interface{}) {
	l.sugar.Errorf(format, a...)
}

func (l *Logger) Warnf(format string, a ...interface{}) {
	l.sugar.Warnf(format, a...)
}

func (l *Logger) Infof(format string, a ...interface{}) {
	l.sugar.Infof(format, a...)
}

func (l *Logger) Debugf(format string, a ...interface{}) {
	l.sugar.Debugf(format, a...)
}

func (l *Logger) Tracef(format string, a ...interface{}) {
	l.sugar.Logf(traceLevel, format, a...)
}

// Sync flushes buffered output.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}
