package cmd

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// processEnv holds the per-process options a launcher sets through the environment.
type processEnv struct {
	Rank         *int   `env:"QNET_RANK"`
	BrokerAddr   string `env:"QNET_BROKER_ADDR"`
	TraceDB      string `env:"QNET_TRACE_DB"`
	OtelEndpoint string `env:"QNET_OTEL_ENDPOINT"`
}

func loadProcessEnv() (processEnv, error) {
	var e processEnv
	if err := env.Parse(&e); err != nil {
		return e, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// apply fills opts from the environment for every option whose flag was not set
// on the command line.
func (e processEnv) apply(flagSet func(name string) bool, opts *runOptions) {
	if e.Rank != nil && !flagSet("rank") {
		opts.Rank = *e.Rank
	}
	if e.BrokerAddr != "" && !flagSet("broker") {
		opts.BrokerAddr = e.BrokerAddr
	}
	if e.TraceDB != "" && !flagSet("trace-db") {
		opts.TraceDB = e.TraceDB
	}
}
