package config

import (
	"flag"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	Address       string `env:"RUN_ADDRESS"     envDefault:"localhost:8080"`
	TCPAddress    string `env:"TCP_ADDRESS"     envDefault:"localhost:9090"`
	Database      string `env:"DATABASE_URI"    envDefault:""`
	LogLvl        string `env:"LOG_LVL"         envDefault:"info"`
	Workers       int    `env:"WORKERS"         envDefault:"4"`
	QueueCapacity int    `env:"QUEUE_CAPACITY"  envDefault:"1024"`
	SinkBuffer    int    `env:"SINK_BUFFER"     envDefault:"4096"`
	FraudWindow   int64  `env:"FRAUD_WINDOW"    envDefault:"3600"`
}

func New() *Config {
	cfg := &Config{}

	env.Parse(cfg)

	flag.StringVar(&cfg.Address, "a", cfg.Address, "address and port for the http api")
	flag.StringVar(&cfg.TCPAddress, "t", cfg.TCPAddress, "address and port for the framed tcp transport")
	flag.StringVar(&cfg.Database, "d", cfg.Database, "mirror database DSN (empty disables the mirror)")
	flag.StringVar(&cfg.LogLvl, "l", cfg.LogLvl, "log level")
	flag.IntVar(&cfg.Workers, "w", cfg.Workers, "transaction processor worker count")
	flag.IntVar(&cfg.QueueCapacity, "q", cfg.QueueCapacity, "per-worker intake capacity")
	flag.Parse()

	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	return cfg
}
