package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/qnet-sim/sim/trace"
)

var (
	topologyPath string // Topology YAML file
	logLevel     string // Log verbosity level
	rank         int    // Group this process simulates
	allRanks     bool   // Simulate every group in this process
	brokerAddr   string // Address of the synchronization broker
	stopTime     int64  // Overrides the topology's stop time when positive
	traceDB      string // SQLite file receiving the run's trace
	traceLevel   string // Trace verbosity: none, negotiation, full
	listenAddr   string // Broker listen address
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "qnet-sim",
	Short: "Parallel discrete-event simulator for quantum networks",
}

// runCmd simulates one group of a topology, or all of them
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a quantum network simulation",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		env, err := loadProcessEnv()
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		opts := runOptions{
			TopologyPath: topologyPath,
			Rank:         rank,
			AllRanks:     allRanks,
			BrokerAddr:   brokerAddr,
			StopTime:     stopTime,
			TraceDB:      traceDB,
			TraceLevel:   trace.TraceLevel(traceLevel),
		}
		env.apply(cmd.Flags().Changed, &opts)
		if opts.TopologyPath == "" {
			logrus.Fatalf("Topology not provided. Exiting simulation.")
		}
		if !trace.IsValidTraceLevel(string(opts.TraceLevel)) {
			logrus.Fatalf("Invalid trace level: %s", opts.TraceLevel)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		shutdown, err := setupTracing(ctx, env.OtelEndpoint)
		if err != nil {
			logrus.Fatalf("unable to set up tracing: %v", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logrus.Warnf("tracing shutdown: %v", err)
			}
		}()

		out, err := runSimulation(ctx, opts)
		if err != nil {
			logrus.Errorf("simulation failed: %v", err)
			cancel()
			os.Exit(1)
		}
		out.Print(os.Stdout)
		logrus.Info("Simulation complete.")
	},
}

// brokerCmd serves the synchronization broker for a parallel topology
var brokerCmd = &cobra.Command{
	Use:   "broker",
	Short: "Serve the synchronization broker of a parallel run",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		env, err := loadProcessEnv()
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if topologyPath == "" {
			logrus.Fatalf("Topology not provided.")
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		shutdown, err := setupTracing(ctx, env.OtelEndpoint)
		if err != nil {
			logrus.Fatalf("unable to set up tracing: %v", err)
		}
		defer func() { _ = shutdown(context.Background()) }()

		if err := serveBroker(ctx, topologyPath, listenAddr, stopTime, nil); err != nil {
			logrus.Fatalf("broker: %v", err)
		}
	},
}

func setLogLevel() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	for _, c := range []*cobra.Command{runCmd, brokerCmd} {
		c.Flags().StringVar(&topologyPath, "topology", "", "Topology YAML file")
		c.Flags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
		c.Flags().Int64Var(&stopTime, "stop-time", 0, "Stop time in picoseconds; overrides the topology when positive")
	}

	runCmd.Flags().IntVar(&rank, "rank", 0, "Group simulated by this process (env QNET_RANK)")
	runCmd.Flags().BoolVar(&allRanks, "all-ranks", false, "Simulate every group in this process over an in-process broker")
	runCmd.Flags().StringVar(&brokerAddr, "broker", "", "Broker address for parallel topologies (env QNET_BROKER_ADDR)")
	runCmd.Flags().StringVar(&traceDB, "trace-db", "", "SQLite file receiving the trace (env QNET_TRACE_DB)")
	runCmd.Flags().StringVar(&traceLevel, "trace-level", "negotiation", "Trace level (none, negotiation, full)")

	brokerCmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:7600", "Broker listen address")

	rootCmd.AddCommand(runCmd, brokerCmd)
}
