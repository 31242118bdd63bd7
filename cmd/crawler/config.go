package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/996BC/btccrawler/db"
	"github.com/996BC/btccrawler/params"
	"github.com/996BC/btccrawler/utils"
)

// duration reads a Go duration string like "5s" from the config file
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration should be a string like \"5s\": %v", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

type config struct {
	Network string `json:"network"`

	Seeds       []string  `json:"seeds"`
	DNSSeeds    bool      `json:"dns_seeds"`
	Bitnodes    bool      `json:"bitnodes"`
	BitnodesURL string    `json:"bitnodes_url"`
	RPC         rpcConfig `json:"bitcoind_rpc"`
	// RetryFailed also seeds the failed records of previous crawls from the store
	RetryFailed bool `json:"retry_failed"`

	TargetCount    int      `json:"target_count"`
	Concurrency    int      `json:"concurrency"`
	MaxIterations  int      `json:"max_iterations"`
	BatchDelay     duration `json:"batch_delay"`
	ConnectTimeout duration `json:"connect_timeout"`
	ReadTimeout    duration `json:"read_timeout"`

	Store storeConfig `json:"store"`
	GeoIP string      `json:"geoip"`

	HTTPPort int    `json:"http_port"`
	Output   string `json:"output"`
	LogLevel int    `json:"log_level"`
	LogFile  string `json:"log_file"`
	LogJSON  bool   `json:"log_json"`
	Trace    bool   `json:"trace"`
}

type rpcConfig struct {
	URL      string `json:"url"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type storeConfig struct {
	Type          string `json:"type"`
	Path          string `json:"path"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
	AskRedisPass  bool   `json:"ask_redis_pass"`
}

func defaultConfig() *config {
	return &config{
		Network:        "testnet3",
		TargetCount:    100000,
		Concurrency:    500,
		MaxIterations:  100,
		BatchDelay:     duration{500 * time.Millisecond},
		ConnectTimeout: duration{5 * time.Second},
		ReadTimeout:    duration{5 * time.Second},
		Store:          storeConfig{Type: db.TypeMemory},
		LogLevel:       utils.LogInfoLevel,
	}
}

// parseConfig overlays the config file cf on the defaults, an empty cf keeps the defaults
func parseConfig(cf string) (*config, error) {
	conf := defaultConfig()
	if len(cf) == 0 {
		return conf, nil
	}

	if err := utils.AccessCheck(cf); err != nil {
		return nil, err
	}

	jsonContent, err := os.ReadFile(cf)
	if err != nil {
		return nil, fmt.Errorf("read config file failed:%v", err)
	}

	if err := json.Unmarshal(jsonContent, conf); err != nil {
		return nil, fmt.Errorf("config parse failed:%v", err)
	}

	return conf, nil
}

func verifyConfig(c *config) error {
	if _, err := params.NetworkByName(c.Network); err != nil {
		return err
	}

	if c.TargetCount <= 0 {
		return fmt.Errorf("invalid target count:%d", c.TargetCount)
	}

	if c.Concurrency <= 0 {
		return fmt.Errorf("invalid concurrency:%d", c.Concurrency)
	}

	if c.MaxIterations <= 0 {
		return fmt.Errorf("invalid max iterations:%d", c.MaxIterations)
	}

	if c.BatchDelay.Duration < 0 {
		return fmt.Errorf("invalid batch delay:%v", c.BatchDelay)
	}

	if c.ConnectTimeout.Duration <= 0 || c.ReadTimeout.Duration <= 0 {
		return fmt.Errorf("invalid timeouts: connect %v read %v", c.ConnectTimeout, c.ReadTimeout)
	}

	switch c.Store.Type {
	case db.TypeMemory:
	case db.TypeBadger:
		if len(c.Store.Path) == 0 {
			return fmt.Errorf("badger store needs a db path")
		}
	case db.TypeRedis:
		if len(c.Store.RedisAddr) == 0 {
			return fmt.Errorf("redis store needs a redis address")
		}
	default:
		return fmt.Errorf("invalid store type:%s", c.Store.Type)
	}

	if len(c.GeoIP) != 0 {
		if err := utils.AccessCheck(c.GeoIP); err != nil {
			return err
		}
	}

	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port:%d", c.HTTPPort)
	}

	if c.LogLevel < utils.LogErrorLevel || c.LogLevel > utils.LogDebugLevel {
		return fmt.Errorf("invalid log level:%d", c.LogLevel)
	}

	return nil
}
