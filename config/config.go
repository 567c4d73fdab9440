package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port string
	}
	Database struct {
		DSN string
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	JWT struct {
		Secret string
	}
	Match struct {
		LivenessWindow    time.Duration
		LivenessGrace     int // multiple of LivenessWindow before abandonment
		ReadyWindow       time.Duration
		SessionTTL        time.Duration
		SweepPeriod       time.Duration
		TerminalRetention time.Duration
		BaseTolerance     int
		ToleranceStep     int
		ToleranceInterval time.Duration
	}
}

var C Config

func Load() {
	viper.SetConfigFile("config/config.yaml")

	viper.SetDefault("match.livenesswindow", 30*time.Second)
	viper.SetDefault("match.livenessgrace", 2)
	viper.SetDefault("match.readywindow", 8*time.Second)
	viper.SetDefault("match.sessionttl", 5*time.Minute)
	viper.SetDefault("match.sweepperiod", 15*time.Second)
	viper.SetDefault("match.terminalretention", 10*time.Minute)
	viper.SetDefault("match.basetolerance", 1)
	viper.SetDefault("match.tolerancestep", 1)
	viper.SetDefault("match.toleranceinterval", 10*time.Second)

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("Failed to read config: %v", err)
	}
	if err := viper.Unmarshal(&C); err != nil {
		log.Fatalf("Failed to parse config: %v", err)
	}
}
