// Copyright 2019 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"context"
	"path/filepath"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var _globalL, _globalS, _globalP atomic.Value

func init() {
	l, p, _ := InitLogger(&Config{Level: defaultLogLevel, Stdout: true})
	ReplaceGlobals(l, p)
}

// InitLogger initializes a zap logger from the given Config.
func InitLogger(cfg *Config, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	cfg.initialize()

	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, errors.Wrapf(err, "unrecognized log level %q", cfg.Level)
	}

	var syncers []zapcore.WriteSyncer
	if cfg.Stdout {
		stdout, _, err := zap.Open("stdout")
		if err != nil {
			return nil, nil, err
		}
		syncers = append(syncers, stdout)
	}
	if cfg.File.Filename != "" {
		lg, err := initFileLog(&cfg.File)
		if err != nil {
			return nil, nil, err
		}
		syncers = append(syncers, zapcore.AddSync(lg))
	}
	if len(syncers) == 0 {
		syncers = append(syncers, zapcore.AddSync(nopWriter{}))
	}

	syncer := zapcore.NewMultiWriteSyncer(syncers...)
	core := zapcore.NewCore(cfg.buildEncoder(), syncer, level)
	opts = append(cfg.buildOptions(), opts...)
	logger := zap.New(core, opts...)

	props := &ZapProperties{
		Core:   core,
		Syncer: syncer,
		Level:  level,
	}
	return logger, props, nil
}

func initFileLog(cfg *FileLogConfig) (*lumberjack.Logger, error) {
	filename := cfg.Filename
	if cfg.RootPath != "" {
		filename = filepath.Join(cfg.RootPath, filename)
	}
	return &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxDays,
		MaxBackups: cfg.MaxBackups,
		LocalTime:  true,
	}, nil
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// ReplaceGlobals replaces the global Logger and SugaredLogger.
// It's safe for concurrent use.
func ReplaceGlobals(logger *zap.Logger, props *ZapProperties) {
	_globalL.Store(logger)
	_globalS.Store(logger.Sugar())
	_globalP.Store(props)
}

// L returns the global Logger, which can be reconfigured with ReplaceGlobals.
// It's safe for concurrent use.
func L() *zap.Logger {
	return _globalL.Load().(*zap.Logger)
}

// S returns the global SugaredLogger, which can be reconfigured with
// ReplaceGlobals. It's safe for concurrent use.
func S() *zap.SugaredLogger {
	return _globalS.Load().(*zap.SugaredLogger)
}

// SetLevel alters the logging level of the global logger.
func SetLevel(l zapcore.Level) {
	_globalP.Load().(*ZapProperties).Level.SetLevel(l)
}

// GetLevel gets the logging level of the global logger.
func GetLevel() zapcore.Level {
	return _globalP.Load().(*ZapProperties).Level.Level()
}

// Debug logs a message at DebugLevel through the global logger.
func Debug(msg string, fields ...zap.Field) {
	L().WithOptions(zap.AddCallerSkip(1)).Debug(msg, fields...)
}

// Info logs a message at InfoLevel through the global logger.
func Info(msg string, fields ...zap.Field) {
	L().WithOptions(zap.AddCallerSkip(1)).Info(msg, fields...)
}

// Warn logs a message at WarnLevel through the global logger.
func Warn(msg string, fields ...zap.Field) {
	L().WithOptions(zap.AddCallerSkip(1)).Warn(msg, fields...)
}

// Error logs a message at ErrorLevel through the global logger.
func Error(msg string, fields ...zap.Field) {
	L().WithOptions(zap.AddCallerSkip(1)).Error(msg, fields...)
}

// Fatal logs a message at FatalLevel through the global logger,
// then calls os.Exit(1).
func Fatal(msg string, fields ...zap.Field) {
	L().WithOptions(zap.AddCallerSkip(1)).Fatal(msg, fields...)
}

// With creates a child MLogger of the global logger and adds structured
// context to it.
func With(fields ...zap.Field) *MLogger {
	return &MLogger{
		Logger: L().WithOptions(zap.AddCallerSkip(-1)).With(fields...),
	}
}

type ctxLogKeyType struct{}

// CtxLogKey is the context key a logger may be attached under.
var CtxLogKey = ctxLogKeyType{}

// Ctx returns the MLogger attached to the context, or an MLogger wrapping
// the global logger when none is attached.
func Ctx(ctx context.Context) *MLogger {
	if ctx == nil {
		return &MLogger{Logger: L()}
	}
	if l, ok := ctx.Value(CtxLogKey).(*MLogger); ok && l != nil {
		return l
	}
	return &MLogger{Logger: L()}
}

// WithFields returns a new context whose attached logger carries the given
// extra fields.
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	return context.WithValue(ctx, CtxLogKey, Ctx(ctx).With(fields...))
}

// WithModule returns a new context whose attached logger is tagged with the
// given module name.
func WithModule(ctx context.Context, module string) context.Context {
	return WithFields(ctx, zap.String("module", module))
}
