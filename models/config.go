package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config 構造体はサーバー全体の設定情報を保持します。
type Config struct {
	DBHost     string `json:"db_host"`
	DBUser     string `json:"db_user"`
	DBPassword string `json:"db_password"`
	DBName     string `json:"db_name"`
	DBSSLMode  string `json:"db_sslmode"`

	Server ServerConfig `json:"server"`
	Redis  RedisConfig  `json:"redis"`
	Game   GameConfig   `json:"game"`
	Cron   CronConfig   `json:"cron"`
}

type ServerConfig struct {
	Addr           string   `json:"addr"`
	AllowedOrigins []string `json:"allowed_origins"`
	JWTSecret      string   `json:"jwt_secret"`
	TokenTTL       Duration `json:"token_ttl"`
	PingPeriod     Duration `json:"ping_period"`
	ReadDeadline   Duration `json:"read_deadline"`
	MessagesPerSec float64  `json:"messages_per_sec"`
	MessageBurst   int      `json:"message_burst"`
}

// Redis の Addr が空の場合はインメモリストアで動作します。
type RedisConfig struct {
	Addr      string   `json:"addr"`
	Password  string   `json:"password"`
	DB        int      `json:"db"`
	KeyPrefix string   `json:"key_prefix"`
	KeyTTL    Duration `json:"key_ttl"`
}

type GameConfig struct {
	RoundSeconds      int      `json:"round_seconds"`
	TickInterval      Duration `json:"tick_interval"`
	GraceDelay        Duration `json:"grace_delay"`
	HeartbeatInterval Duration `json:"heartbeat_interval"`
	PresenceTimeout   Duration `json:"presence_timeout"`
	SweepInterval     Duration `json:"sweep_interval"`
	ReapAfter         Duration `json:"reap_after"`
	RoundsPerPlayer   int      `json:"rounds_per_player"`
	MaxRounds         int      `json:"max_rounds"` // 0 -> players * rounds_per_player
	MinPlayers        int      `json:"min_players"`
	MaxNameLength     int      `json:"max_name_length"`
	MaxChatLength     int      `json:"max_chat_length"`
	MaxChatLog        int      `json:"max_chat_log"`
	MaxStrokes        int      `json:"max_strokes"`
	GuesserPoints     int      `json:"guesser_points"`
	DrawerPoints      int      `json:"drawer_points"`
	Words             []string `json:"words"`
}

type CronConfig struct {
	ReapSpec         string   `json:"reap_spec"`
	PruneResultsSpec string   `json:"prune_results_spec"`
	ResultRetention  Duration `json:"result_retention"`
}

// DefaultConfig returns the values used when config.json leaves a field out.
func DefaultConfig() Config {
	return Config{
		DBSSLMode: "disable",
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
			TokenTTL:       Duration(24 * time.Hour),
			PingPeriod:     Duration(10 * time.Second),
			ReadDeadline:   Duration(60 * time.Second),
			MessagesPerSec: 60,
			MessageBurst:   120,
		},
		Redis: RedisConfig{
			KeyPrefix: "pictionary",
			KeyTTL:    Duration(6 * time.Hour),
		},
		Game: DefaultGameConfig(),
		Cron: CronConfig{
			ReapSpec:         "@every 1m",
			PruneResultsSpec: "@daily",
			ResultRetention:  Duration(30 * 24 * time.Hour),
		},
	}
}

func DefaultGameConfig() GameConfig {
	return GameConfig{
		RoundSeconds:      60,
		TickInterval:      Duration(time.Second),
		GraceDelay:        Duration(5 * time.Second),
		HeartbeatInterval: Duration(2 * time.Second),
		PresenceTimeout:   Duration(15 * time.Second),
		SweepInterval:     Duration(5 * time.Second),
		ReapAfter:         Duration(time.Minute),
		RoundsPerPlayer:   1,
		MinPlayers:        2,
		MaxNameLength:     20,
		MaxChatLength:     200,
		MaxChatLog:        100,
		MaxStrokes:        10000,
		GuesserPoints:     10,
		DrawerPoints:      5,
	}
}

// Duration は "5s" のような文字列で設定できる time.Duration です。
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value) * time.Second)
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}
