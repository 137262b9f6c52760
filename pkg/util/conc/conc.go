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

package conc

import (
	"sync"

	ants "github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/discord-rose/lavalink-wrapper/pkg/log"
)

var (
	initOnce   sync.Once
	globalPool *ants.Pool
)

// 全局协程池的容量上限。
const globalPoolSize = 4096

func pool() *ants.Pool {
	initOnce.Do(func() {
		var err error
		globalPool, err = ants.NewPool(globalPoolSize, antsOptions()...)
		if err != nil {
			// ants 仅在参数非法时返回错误，此处参数为常量。
			panic(err)
		}
	})
	return globalPool
}

func antsOptions() []ants.Option {
	return []ants.Option{
		ants.WithNonblocking(false),
		// ants 默认会 recover panic，
		// 但不会将错误返回给调用方。
		ants.WithPanicHandler(func(v any) {
			log.Error("conc pool panicked", zap.Any("panic", v))
			panic(v)
		}),
	}
}

// Go 将任务提交到全局协程池执行，避免直接使用原生 go 关键字。
//
// 说明：
//   - 提交失败（协程池已释放等）时返回错误，由调用方决定如何降级；
//   - 任务内部的 panic 由 ants 统一处理并重新抛出。
func Go(task func()) error {
	return pool().Submit(task)
}
