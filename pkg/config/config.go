package config

import "time"

// Chat definition chat_service YAML structure
type Chat struct {
	Port       string         `mapstructure:"port"`
	JWTSecret  string         `mapstructure:"jwt_secret"`
	MongoSQL   DatabaseConfig `mapstructure:"mongo"`
	PostgreSQL DatabaseConfig `mapstructure:"pg"`
	Redis      RedisConfig    `mapstructure:"redis"`
	Kafka      KafkaConfig    `mapstructure:"kafka"`
	Policy     Policy         `mapstructure:"policy"`
	Pprof      bool           `mapstructure:"pprof"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	RedisDB int `mapstructure:"redis_db"`
	// Addr standalone address, empty means sentinel from .env
	Addr string `mapstructure:"addr"`
}

// KafkaConfig definition outbound event stream
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	RetryInterval int      `mapstructure:"retry_interval"`
	RetryCount    int      `mapstructure:"retry_count"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// RoomOrder how listRooms sorts
type RoomOrder string

const (
	// RoomOrderCreated newest created room first
	RoomOrderCreated RoomOrder = "created"
	// RoomOrderActivity latest message first, falls back to created_at
	RoomOrderActivity RoomOrder = "activity"
)

// Policy definition messaging and presence limits
type Policy struct {
	MaxContentLength  int           `mapstructure:"max_content_length"`
	SendInterval      time.Duration `mapstructure:"send_interval"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	OnlineWindow      time.Duration `mapstructure:"online_window"`
	PageSize          int           `mapstructure:"page_size"`
	MaxPageSize       int           `mapstructure:"max_page_size"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	ReorderWindow     time.Duration `mapstructure:"reorder_window"`
	RoomOrder         RoomOrder     `mapstructure:"room_order"`
}

// DefaultPolicy the limits used when the YAML leaves them out
func DefaultPolicy() Policy {
	return Policy{
		MaxContentLength:  500,
		SendInterval:      800 * time.Millisecond,
		HeartbeatInterval: 60 * time.Second,
		OnlineWindow:      5 * time.Minute,
		PageSize:          20,
		MaxPageSize:       100,
		RequestTimeout:    5 * time.Second,
		ReorderWindow:     2 * time.Second,
		RoomOrder:         RoomOrderCreated,
	}
}

// WithDefaults fill zero fields from DefaultPolicy
func (p Policy) WithDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxContentLength <= 0 {
		p.MaxContentLength = d.MaxContentLength
	}
	if p.SendInterval <= 0 {
		p.SendInterval = d.SendInterval
	}
	if p.HeartbeatInterval <= 0 {
		p.HeartbeatInterval = d.HeartbeatInterval
	}
	if p.OnlineWindow <= 0 {
		p.OnlineWindow = d.OnlineWindow
	}
	if p.PageSize <= 0 {
		p.PageSize = d.PageSize
	}
	if p.MaxPageSize < p.PageSize {
		p.MaxPageSize = d.MaxPageSize
		if p.MaxPageSize < p.PageSize {
			p.MaxPageSize = p.PageSize
		}
	}
	if p.RequestTimeout <= 0 {
		p.RequestTimeout = d.RequestTimeout
	}
	if p.ReorderWindow <= 0 {
		p.ReorderWindow = d.ReorderWindow
	}
	if p.RoomOrder != RoomOrderActivity {
		p.RoomOrder = RoomOrderCreated
	}
	return p
}
