package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/inference-sim/qnet-sim/sim/parallel"
	"github.com/inference-sim/qnet-sim/sim/topology"
	"github.com/inference-sim/qnet-sim/sim/trace"
)

// runOptions configures one invocation of the run command.
type runOptions struct {
	TopologyPath string
	Rank         int
	AllRanks     bool
	BrokerAddr   string
	StopTime     int64
	TraceDB      string
	TraceLevel   trace.TraceLevel
}

// runOutput is what a run reports: one result per simulated group.
type runOutput struct {
	RunID   string
	Results []topology.Result
	Summary *trace.TraceSummary
}

// runSimulation loads the topology and simulates the groups selected by opts.
// A sequential topology runs in-process; a parallel one runs either every group
// over an in-process hub or one group against a remote broker.
func runSimulation(ctx context.Context, opts runOptions) (*runOutput, error) {
	cfg, err := topology.LoadConfig(opts.TopologyPath)
	if err != nil {
		return nil, err
	}
	if opts.StopTime > 0 {
		cfg.StopTime = opts.StopTime
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var sims []*topology.Simulation
	switch {
	case !cfg.IsParallel:
		sims, err = runSequential(ctx, cfg, opts)
	case opts.AllRanks:
		sims, err = runAllRanks(ctx, cfg, opts)
	default:
		sims, err = runRemote(ctx, cfg, opts)
	}
	if err != nil {
		return nil, err
	}

	out := &runOutput{RunID: sims[0].RunID()}
	if out.RunID == "" {
		out.RunID = uuid.NewString()
	}
	traces := make([]*trace.SimulationTrace, 0, len(sims))
	for _, s := range sims {
		out.Results = append(out.Results, s.Result())
		traces = append(traces, s.Trace())
	}
	out.Summary = trace.Summarize(traces...)

	if opts.TraceDB != "" {
		if err := saveTraces(ctx, opts.TraceDB, out.RunID, traces); err != nil {
			return nil, err
		}
		logrus.Infof("trace of run %s saved to %s", out.RunID, opts.TraceDB)
	}
	return out, nil
}

func runSequential(ctx context.Context, cfg *topology.Config, opts runOptions) ([]*topology.Simulation, error) {
	s, err := topology.Build(cfg, topology.Options{TraceLevel: opts.TraceLevel})
	if err != nil {
		return nil, err
	}
	return []*topology.Simulation{s}, s.Run(ctx)
}

func runAllRanks(ctx context.Context, cfg *topology.Config, opts runOptions) ([]*topology.Simulation, error) {
	digest, err := cfg.Digest()
	if err != nil {
		return nil, err
	}
	hub := parallel.NewHub(cfg.ProcessNum, digest)
	sims := make([]*topology.Simulation, cfg.ProcessNum)
	for r := range sims {
		s, err := topology.Build(cfg, topology.Options{Rank: r, Broker: hub, TraceLevel: opts.TraceLevel})
		if err != nil {
			return nil, err
		}
		sims[r] = s
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range sims {
		g.Go(func() error { return s.Run(gctx) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sims, nil
}

func runRemote(ctx context.Context, cfg *topology.Config, opts runOptions) ([]*topology.Simulation, error) {
	if opts.BrokerAddr == "" {
		return nil, errors.New("parallel topology needs --broker or --all-ranks")
	}
	broker, err := parallel.DialBroker(ctx, opts.BrokerAddr)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := broker.Close(); err != nil {
			logrus.Warnf("closing broker connection: %v", err)
		}
	}()
	s, err := topology.Build(cfg, topology.Options{Rank: opts.Rank, Broker: broker, TraceLevel: opts.TraceLevel})
	if err != nil {
		return nil, err
	}
	return []*topology.Simulation{s}, s.Run(ctx)
}

func saveTraces(ctx context.Context, path, runID string, traces []*trace.SimulationTrace) error {
	store, err := trace.OpenStore(path)
	if err != nil {
		return err
	}
	defer store.Close()
	for _, st := range traces {
		if err := store.SaveTrace(ctx, runID, st); err != nil {
			return fmt.Errorf("save trace of group %d: %w", st.Config.Group, err)
		}
	}
	return nil
}

// Print writes the run summary.
func (o *runOutput) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Simulation Summary ===")
	fmt.Fprintf(w, "Run ID               : %s\n", o.RunID)
	for _, r := range o.Results {
		fmt.Fprintf(w, "Group %d              : %d events, %d windows, ended at %d ps\n", r.Rank, r.Executed, r.Rounds, r.Now)
		for _, n := range r.Nodes {
			switch {
			case n.Measurements > 0:
				fmt.Fprintf(w, "  %-18s : %d measurements\n", n.Name, n.Measurements)
			case n.Links.Attempts > 0 || n.Entangled > 0:
				fmt.Fprintf(w, "  %-18s : %d entangled, %d attempts, %d successes, %d expired\n",
					n.Name, n.Entangled, n.Links.Attempts, n.Links.Successes, n.Links.Expired)
			}
		}
	}
	s := o.Summary
	fmt.Fprintf(w, "Requests             : %d\n", s.Requests)
	fmt.Fprintf(w, "Approved / Rejected  : %d / %d\n", s.Approved, s.Rejected)
	if s.Approved+s.Rejected > 0 {
		fmt.Fprintf(w, "Approval Rate        : %.2f\n", s.ApprovalRate())
	}
	fmt.Fprintf(w, "Windows              : %d\n", s.Windows)
}
