// Copyright (C) 2019-2020 Zilliz. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License
// is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express
// or implied. See the License for the specific language governing permissions and limitations under the License.

package retry

import "time"

type config struct {
	attempts     uint
	sleep        time.Duration
	maxSleepTime time.Duration
	isRetryErr   func(err error) bool
}

func newDefaultConfig() *config {
	return &config{
		attempts:     10,
		sleep:        200 * time.Millisecond,
		maxSleepTime: 3 * time.Second,
	}
}

// Option is used to config the retry function.
type Option func(*config)

// Attempts sets the max retry times. 0 means retrying forever.
func Attempts(attempts uint) Option {
	return func(c *config) {
		c.attempts = attempts
	}
}

// Sleep sets the initial sleep time before the next attempt.
func Sleep(sleep time.Duration) Option {
	return func(c *config) {
		c.sleep = sleep
		// ensure max sleep is never less than the initial sleep
		if c.sleep > c.maxSleepTime {
			c.maxSleepTime = c.sleep
		}
	}
}

// MaxSleepTime caps the exponential growth of the sleep time.
func MaxSleepTime(maxSleepTime time.Duration) Option {
	return func(c *config) {
		if maxSleepTime < c.sleep {
			c.maxSleepTime = c.sleep
		} else {
			c.maxSleepTime = maxSleepTime
		}
	}
}

// FixedSleep keeps a constant interval between attempts, no backoff growth.
func FixedSleep(sleep time.Duration) Option {
	return func(c *config) {
		c.sleep = sleep
		c.maxSleepTime = sleep
	}
}

// RetryErr restricts retrying to the errors accepted by the given predicate.
func RetryErr(isRetryErr func(err error) bool) Option {
	return func(c *config) {
		c.isRetryErr = isRetryErr
	}
}
