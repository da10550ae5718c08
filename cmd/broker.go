package cmd

import (
	"context"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/qnet-sim/sim/parallel"
	"github.com/inference-sim/qnet-sim/sim/topology"
)

// serveBroker serves the broker of a parallel topology on addr until ctx is done.
// A positive stop overrides the topology's stop time, as it must on every rank.
// The bound address is sent on ready, when non-nil, once the listener is open.
func serveBroker(ctx context.Context, path, addr string, stop int64, ready chan<- net.Addr) error {
	cfg, err := topology.LoadConfig(path)
	if err != nil {
		return err
	}
	if stop > 0 {
		cfg.StopTime = stop
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !cfg.IsParallel {
		return fmt.Errorf("topology %s is sequential; it needs no broker", path)
	}
	digest, err := cfg.Digest()
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	hub := parallel.NewHub(cfg.ProcessNum, digest)
	srv := parallel.NewBrokerServer(hub)
	logrus.Infof("broker for %d processes, topology digest %.12s", cfg.ProcessNum, digest)
	if ready != nil {
		ready <- lis.Addr()
	}
	return srv.Serve(ctx, lis)
}
