package config

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var once sync.Once
var logger *zap.SugaredLogger
var loggerOnce sync.Once

const (
	defaultWeatherAPIURL = "http://api.weatherapi.com/v1/forecast.json"
	defaultWeatherQuery  = "auto:ip"
	defaultMountID       = "weather"
)

// isTestRun returns true if the current process is a Go test binary.
func isTestRun() bool {
	return flag.Lookup("test.v") != nil || filepath.Ext(os.Args[0]) == ".test"
}

func initConfig() {
	once.Do(func() {
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		viper.AutomaticEnv()

		root, err := getProjectRoot()
		if err != nil {
			GetLogger().Errorw("Error finding project root", "error", err)
			return
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
		viper.AddConfigPath(root)
		if err = viper.ReadInConfig(); err != nil {
			GetLogger().Errorw("Error reading config file", "error", err)
		}

		if isTestRun() {
			viper.SetConfigName("config_test")
			if err = viper.MergeInConfig(); err != nil {
				GetLogger().Errorw("Error merging test config file", "error", err)
			}
		}
	})
}

func getProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

func GetWeatherAPIURL() string {
	initConfig()
	if url := viper.GetString("weatherapi.api_url"); url != "" {
		return url
	}
	return defaultWeatherAPIURL
}

// GetWeatherAPIKey reads the weatherapi.com key from the environment, loading .env first.
func GetWeatherAPIKey() string {
	_ = godotenv.Load()
	return os.Getenv("WEATHERAPI_API_KEY")
}

// GetWeatherQuery returns the location query sent upstream. "auto:ip" lets the
// provider resolve the caller's public IP.
func GetWeatherQuery() string {
	initConfig()
	if q := viper.GetString("weatherapi.query"); q != "" {
		return q
	}
	return defaultWeatherQuery
}

func GetWeatherAPITimeout() time.Duration {
	initConfig()
	return getDuration("weatherapi.timeout", 10*time.Second)
}

func GetMountID() string {
	initConfig()
	if id := viper.GetString("page.mount_id"); id != "" {
		return id
	}
	return defaultMountID
}

func GetPageTTL() time.Duration {
	initConfig()
	return getDuration("page.ttl", 30*time.Minute)
}

func GetRedisAddr() string {
	initConfig()
	return viper.GetString("redis.addr")
}

func GetServerPort() string {
	initConfig()
	serverPort := viper.GetString("server.port")
	if serverPort == "" {
		return "8080"
	}
	return serverPort
}

func GetServerTimeout(key string) string {
	initConfig()
	return viper.GetString("server." + key)
}

// GetServerTimeoutDuration parses server.<key>, falling back to def when unset or invalid.
func GetServerTimeoutDuration(key string, def time.Duration) time.Duration {
	initConfig()
	return getDuration("server."+key, def)
}

func getDuration(key string, def time.Duration) time.Duration {
	durStr := viper.GetString(key)
	if durStr == "" {
		return def
	}
	dur, err := time.ParseDuration(durStr)
	if err != nil {
		return def
	}
	return dur
}

// ReloadConfigForTest resets the config singleton and reloads Viper config. Use only in tests.
func ReloadConfigForTest() {
	once = sync.Once{}
	initConfig()
}

func GetLogger() *zap.SugaredLogger {
	loggerOnce.Do(func() {
		var (
			l   *zap.Logger
			err error
		)
		if os.Getenv("LOG_MODE") == "production" {
			l, err = zap.NewProduction()
		} else {
			l, err = zap.NewDevelopment()
		}
		if err != nil {
			panic(err)
		}
		logger = l.Sugar()
	})
	return logger
}

// GetRateLimiterCleanupTimeout returns the rate limiter cleanup timeout as a time.Duration.
// Defaults to 3m if not set or invalid.
func GetRateLimiterCleanupTimeout() time.Duration {
	initConfig()
	return getDuration("rate_limiter.cleanup_timeout", 3*time.Minute)
}

// GetGlobalRateLimiterConfig returns the per-minute rate and burst for the global rate limiter from config.
func GetGlobalRateLimiterConfig() (rate float64, burst int) {
	initConfig()
	rate = viper.GetFloat64("rate_limiter.global.rate")
	if rate == 0 {
		rate = 10
	}
	burst = viper.GetInt("rate_limiter.global.burst")
	if burst == 0 {
		burst = 10
	}
	return
}

// GetPathRateLimiterConfig returns the per-minute rate and burst for the per-path rate limiter from config.
func GetPathRateLimiterConfig() (rate float64, burst int) {
	initConfig()
	rate = viper.GetFloat64("rate_limiter.path.rate")
	if rate == 0 {
		rate = 2
	}
	burst = viper.GetInt("rate_limiter.path.burst")
	if burst == 0 {
		burst = 2
	}
	return
}
