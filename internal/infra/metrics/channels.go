// File: internal/infra/metrics/channels.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(channelReconnectsTotal, channelsOpen, presenceUpdatesTotal) }

var channelReconnectsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "channel_reconnects_total",
		Help: "Reconnect attempts by channel kind (room/user).",
	},
	[]string{"kind"},
)

var channelsOpen = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "channels_open",
		Help: "Currently open server-side websocket connections by kind.",
	},
	[]string{"kind"},
)

var presenceUpdatesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "presence_updates_total",
		Help: "Presence publishes accepted by the server.",
	},
)

func IncChannelReconnect(kind string) { channelReconnectsTotal.WithLabelValues(norm(kind)).Inc() }
func IncChannelsOpen(kind string)     { channelsOpen.WithLabelValues(norm(kind)).Inc() }
func DecChannelsOpen(kind string)     { channelsOpen.WithLabelValues(norm(kind)).Dec() }
func IncPresenceUpdate()              { presenceUpdatesTotal.Inc() }
