package main

import (
	"fmt"
	"time"
)

type Config struct {
	LogLevel       string   `env:"LOG_LEVEL,required=true"`
	Host           string   `env:"HOST,default=localhost"`
	Port           int      `env:"PORT,default=8080"`
	AdminPort      int      `env:"ADMIN_PORT,default=8081"`
	BadgerFilepath string   `env:"BADGER_FILEPATH,required=true"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS"`

	LaneBufferSize  int           `env:"LANE_BUFFER_SIZE,default=256"`
	RetryBufferSize int           `env:"RETRY_BUFFER_SIZE,default=128"`
	MessageTTL      time.Duration `env:"MESSAGE_TTL,default=30s"`
	MaxRetries      int           `env:"MAX_RETRIES,default=3"`
	BackoffBase     time.Duration `env:"BACKOFF_BASE,default=1s"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=200ms"`

	RateCapLow     int           `env:"RATE_CAP_LOW,default=10"`
	RateCapNormal  int           `env:"RATE_CAP_NORMAL,default=30"`
	RateCapHigh    int           `env:"RATE_CAP_HIGH,default=60"`
	RateCapUrgent  int           `env:"RATE_CAP_URGENT,default=100"`
	RateWindow     time.Duration `env:"RATE_WINDOW,default=60s"`
	IdleCleanupAge time.Duration `env:"IDLE_CLEANUP_AGE,default=5m"`

	SpeakingThreshold float64       `env:"SPEAKING_THRESHOLD,default=0.12"`
	AnalysisStepDelay time.Duration `env:"ANALYSIS_STEP_DELAY,default=500ms"`
	HealthInterval    time.Duration `env:"HEALTH_INTERVAL,default=5s"`
	WSReadLimit       int64         `env:"WS_READ_LIMIT,default=8192"`

	ModerationCharReplacement string `env:"MODERATION_CHARACTER_REPLACEMENT,default=*"`
}

// CharacterRune narrows the replacement setting down to exactly one rune.
// The variable stays a string because the env layer only parses runes as
// numeric code points.
func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"MODERATION_CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
