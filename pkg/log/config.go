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
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	defaultLogMaxSize = 300 // MB
	defaultLogFormat  = "text"
	defaultLogLevel   = "info"
)

// FileLogConfig serializes file log related config in yaml/json.
type FileLogConfig struct {
	// RootPath is the root path of log files.
	RootPath string `yaml:"rootpath" mapstructure:"rootpath"`
	// Filename is the log file name; empty disables file output.
	Filename string `yaml:"filename" mapstructure:"filename"`
	// MaxSize is the max size of a single file in MB.
	MaxSize int `yaml:"max-size" mapstructure:"max-size"`
	// MaxDays is the max retention in days.
	MaxDays int `yaml:"max-days" mapstructure:"max-days"`
	// MaxBackups is the max number of rotated files to keep.
	MaxBackups int `yaml:"max-backups" mapstructure:"max-backups"`
}

// Config serializes log related config in yaml/json.
type Config struct {
	// Level is the minimum enabled logging level.
	Level string `yaml:"level" mapstructure:"level"`
	// Format is the log format, one of "text" or "json".
	Format string `yaml:"format" mapstructure:"format"`
	// Stdout enables logging to stdout in addition to file output.
	Stdout bool `yaml:"stdout" mapstructure:"stdout"`
	// DisableTimestamp removes the timestamp from output.
	DisableTimestamp bool `yaml:"disable-timestamp" mapstructure:"disable-timestamp"`
	// DisableCaller removes the caller annotation.
	DisableCaller bool `yaml:"disable-caller" mapstructure:"disable-caller"`
	// DisableStacktrace removes automatic stacktrace capturing.
	DisableStacktrace bool `yaml:"disable-stacktrace" mapstructure:"disable-stacktrace"`
	// File holds the file output config.
	File FileLogConfig `yaml:"file" mapstructure:"file"`
}

// ZapProperties records some information useful to keep after InitLogger.
type ZapProperties struct {
	Core   zapcore.Core
	Syncer zapcore.WriteSyncer
	Level  zap.AtomicLevel
}

func (cfg *Config) initialize() {
	if cfg.Level == "" {
		cfg.Level = defaultLogLevel
	}
	if cfg.Format == "" {
		cfg.Format = defaultLogFormat
	}
	if cfg.File.MaxSize == 0 {
		cfg.File.MaxSize = defaultLogMaxSize
	}
}

func (cfg *Config) buildEncoder() zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.EncodeDuration = zapcore.StringDurationEncoder
	if cfg.DisableTimestamp {
		encCfg.TimeKey = zapcore.OmitKey
	}
	if cfg.Format == "json" {
		return zapcore.NewJSONEncoder(encCfg)
	}
	return zapcore.NewConsoleEncoder(encCfg)
}

func (cfg *Config) buildOptions() []zap.Option {
	opts := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
	if cfg.DisableCaller {
		opts = append(opts, zap.WithCaller(false))
	} else {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.DisableStacktrace {
		opts = append(opts, zap.AddStacktrace(zap.FatalLevel+1))
	}
	return opts
}
