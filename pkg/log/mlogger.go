// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"sync"

	"github.com/uber/jaeger-client-go/utils"
	"go.uber.org/zap"
)

// RateLimiter is the minimal interface used by rated logging helpers.
type RateLimiter interface {
	CheckCredit(delta float64) bool
}

var (
	_namedRateLimiters sync.Map // map[string]RateLimiter
)

// MLogger is a wrapper type of zap.Logger with optional rate limiting.
type MLogger struct {
	*zap.Logger
	rateGroup string
}

// With creates a child logger and adds structured context to it.
// Fields added to the child don't affect the parent, and vice versa.
func (l *MLogger) With(fields ...zap.Field) *MLogger {
	return &MLogger{
		Logger:    l.Logger.With(fields...),
		rateGroup: l.rateGroup,
	}
}

// WithRateGroup binds the logger to a named token-bucket rate limiter,
// shared among all loggers using the same group name.
func (l *MLogger) WithRateGroup(groupName string, creditPerSecond, maxBalance float64) *MLogger {
	if _, ok := _namedRateLimiters.Load(groupName); !ok {
		rl := utils.NewRateLimiter(creditPerSecond, maxBalance)
		_namedRateLimiters.Store(groupName, rl)
	}
	return &MLogger{
		Logger:    l.Logger,
		rateGroup: groupName,
	}
}

func (l *MLogger) r() RateLimiter {
	if l.rateGroup == "" {
		return nil
	}
	if v, ok := _namedRateLimiters.Load(l.rateGroup); ok {
		return v.(RateLimiter)
	}
	return nil
}

// RatedDebug logs at DebugLevel if the rate group still has credit.
// Returns whether the message was written.
func (l *MLogger) RatedDebug(cost float64, msg string, fields ...zap.Field) bool {
	rl := l.r()
	if rl == nil || rl.CheckCredit(cost) {
		l.WithOptions(zap.AddCallerSkip(1)).Debug(msg, fields...)
		return true
	}
	return false
}

// RatedInfo logs at InfoLevel if the rate group still has credit.
func (l *MLogger) RatedInfo(cost float64, msg string, fields ...zap.Field) bool {
	rl := l.r()
	if rl == nil || rl.CheckCredit(cost) {
		l.WithOptions(zap.AddCallerSkip(1)).Info(msg, fields...)
		return true
	}
	return false
}

// RatedWarn logs at WarnLevel if the rate group still has credit.
func (l *MLogger) RatedWarn(cost float64, msg string, fields ...zap.Field) bool {
	rl := l.r()
	if rl == nil || rl.CheckCredit(cost) {
		l.WithOptions(zap.AddCallerSkip(1)).Warn(msg, fields...)
		return true
	}
	return false
}
