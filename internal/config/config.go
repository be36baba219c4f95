package config

import (
	"time"

	"github.com/spf13/viper"
)

var DefaultStunServers = []string{
	"stun.l.google.com:19302",
	"stun1.l.google.com:19302",
}

type Config struct {
	App  AppConfig
	Peer PeerConfig
	RTC  RTCConfig
}

type AppConfig struct {
	DatabaseURL     string
	RedisAddr       string
	NatsAddr        string
	AuthServiceAddr string

	// HeartbeatInterval is how often clients announce presence,
	// HeartbeatWindow is how long the roster keeps a silent participant.
	HeartbeatInterval time.Duration
	HeartbeatWindow   time.Duration
}

type RTCConfig struct {
	ICEPortRangeStart uint32
	ICEPortRangeEnd   uint32
	StunServers       []string
}

type CodecSpec struct {
	Mime     string
	FmtpLine string
}

type PeerConfig struct {
	EnabledCodecs []CodecSpec
	// NegotiationDebounce collapses rapid track changes into one offer exchange
	NegotiationDebounce time.Duration
	// MaxICERestarts bounds recovery attempts before a link is marked lost
	MaxICERestarts int
}

func NewConfig() *Config {
	viper.SetDefault("app.redis_addr", "localhost:6379")
	viper.SetDefault("app.nats_addr", "nats://localhost:4222")
	viper.SetDefault("app.heartbeat_interval", "5s")
	viper.SetDefault("app.heartbeat_window", "15s")

	conf := &Config{
		App: AppConfig{
			DatabaseURL:       viper.GetString("app.database_url"),
			RedisAddr:         viper.GetString("app.redis_addr"),
			NatsAddr:          viper.GetString("app.nats_addr"),
			AuthServiceAddr:   viper.GetString("app.auth_service_addr"),
			HeartbeatInterval: viper.GetDuration("app.heartbeat_interval"),
			HeartbeatWindow:   viper.GetDuration("app.heartbeat_window"),
		},
		RTC: RTCConfig{
			ICEPortRangeStart: 50000,
			ICEPortRangeEnd:   60000,
			StunServers:       DefaultStunServers,
		},
		Peer: PeerConfig{
			EnabledCodecs: []CodecSpec{
				{Mime: "audio/opus"},
				{Mime: "video/VP8"},
			},
			NegotiationDebounce: 250 * time.Millisecond,
			MaxICERestarts:      1,
		},
	}

	return conf
}
