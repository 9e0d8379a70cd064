package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Server   ServerConfig   `yaml:"server"`
	Scrape   ScrapeConfig   `yaml:"scrape"`
	Trends   TrendsConfig   `yaml:"trends"`
	LogLevel string         `yaml:"log_level"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RabbitMQConfig configures the optional completion-event publisher.
// An empty URL disables publishing entirely.
type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// MaxEventClients bounds concurrent event-stream subscribers.
	MaxEventClients int `yaml:"max_event_clients"`
}

type ScrapeConfig struct {
	RequestDelay time.Duration `yaml:"request_delay"`
	Reddit       RedditConfig  `yaml:"reddit"`
	News         NewsConfig    `yaml:"news"`
	Twitter      TwitterConfig `yaml:"twitter"`
}

type RedditConfig struct {
	Subreddits []string      `yaml:"subreddits"`
	Sort       string        `yaml:"sort"`
	Limit      int           `yaml:"limit"`
	Interval   time.Duration `yaml:"interval"`
}

type NewsConfig struct {
	Sites    []string      `yaml:"sites"`
	Interval time.Duration `yaml:"interval"`
}

type TwitterConfig struct {
	Queries   []string      `yaml:"queries"`
	Instances []string      `yaml:"instances"`
	Interval  time.Duration `yaml:"interval"`
}

type TrendsConfig struct {
	Window      time.Duration `yaml:"window"`
	MinMentions int           `yaml:"min_mentions"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "pulsefeed"
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = "cycles"
	}
	if c.RabbitMQ.QueueName == "" {
		c.RabbitMQ.QueueName = "dashboard_cycles"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8001"
	}
	if c.Server.MaxEventClients == 0 {
		c.Server.MaxEventClients = 64
	}
	if c.Scrape.RequestDelay == 0 {
		c.Scrape.RequestDelay = 2 * time.Second
	}
	if len(c.Scrape.Reddit.Subreddits) == 0 {
		c.Scrape.Reddit.Subreddits = []string{
			"technology", "worldnews", "science", "programming",
			"stocks", "wallstreetbets", "cryptocurrency", "economics",
		}
	}
	if c.Scrape.Reddit.Sort == "" {
		c.Scrape.Reddit.Sort = "hot"
	}
	if c.Scrape.Reddit.Limit == 0 {
		c.Scrape.Reddit.Limit = 25
	}
	if c.Scrape.Reddit.Interval == 0 {
		c.Scrape.Reddit.Interval = 10 * time.Minute
	}
	if len(c.Scrape.News.Sites) == 0 {
		c.Scrape.News.Sites = []string{"hackernews", "reuters", "ap_news"}
	}
	if c.Scrape.News.Interval == 0 {
		c.Scrape.News.Interval = 15 * time.Minute
	}
	if len(c.Scrape.Twitter.Queries) == 0 {
		c.Scrape.Twitter.Queries = []string{"breaking news", "AI", "technology", "crypto"}
	}
	if len(c.Scrape.Twitter.Instances) == 0 {
		c.Scrape.Twitter.Instances = []string{
			"https://nitter.privacydev.net",
			"https://nitter.poast.org",
		}
	}
	if c.Scrape.Twitter.Interval == 0 {
		c.Scrape.Twitter.Interval = 30 * time.Minute
	}
	if c.Trends.Window == 0 {
		c.Trends.Window = 24 * time.Hour
	}
	if c.Trends.MinMentions == 0 {
		c.Trends.MinMentions = 2
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
