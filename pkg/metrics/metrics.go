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

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// lavalinkNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	lavalinkNamespace = "lavalink"

	// 以下为当前使用的通用标签名。
	nodeIDLabelName = "node_id"
)

var (
	NodePlayers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: lavalinkNamespace,
			Name:      "node_players",
			Help:      "number of players reported by the node",
		}, []string{nodeIDLabelName})

	NodePlayingPlayers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: lavalinkNamespace,
			Name:      "node_playing_players",
			Help:      "number of actively playing players reported by the node",
		}, []string{nodeIDLabelName})

	NodeSystemLoad = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: lavalinkNamespace,
			Name:      "node_cpu_system_load",
			Help:      "system cpu load reported by the node",
		}, []string{nodeIDLabelName})

	NodeLavalinkLoad = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: lavalinkNamespace,
			Name:      "node_cpu_lavalink_load",
			Help:      "process cpu load reported by the node",
		}, []string{nodeIDLabelName})

	NodeMemoryUsed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: lavalinkNamespace,
			Name:      "node_memory_used_bytes",
			Help:      "used memory reported by the node",
		}, []string{nodeIDLabelName})

	NodeFramesSent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: lavalinkNamespace,
			Name:      "node_frames_sent",
			Help:      "audio frames sent per minute reported by the node",
		}, []string{nodeIDLabelName})

	NodeFramesDeficit = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: lavalinkNamespace,
			Name:      "node_frames_deficit",
			Help:      "audio frame deficit per minute reported by the node",
		}, []string{nodeIDLabelName})
)

var registerOnce sync.Once

// Register 将本包的所有指标注册到给定的 Registry。
// 多次调用仅首次生效。
func Register(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(NodePlayers)
		r.MustRegister(NodePlayingPlayers)
		r.MustRegister(NodeSystemLoad)
		r.MustRegister(NodeLavalinkLoad)
		r.MustRegister(NodeMemoryUsed)
		r.MustRegister(NodeFramesSent)
		r.MustRegister(NodeFramesDeficit)
	})
}
