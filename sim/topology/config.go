package topology

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/inference-sim/qnet-sim/sim/network"
)

// Timeline types of a parallel group.
const (
	TimelineSync  = "sync"
	TimelineAsync = "async"
)

// MeetInTheMiddle is the only quantum connection type: a BSM node halfway between two routers.
const MeetInTheMiddle = "meet_in_the_middle"

var validNodeTypes = map[string]bool{
	string(network.KindQuantumRouter): true,
	string(network.KindBSMNode):       true,
}

var validTimelineTypes = map[string]bool{
	TimelineSync:  true,
	TimelineAsync: true,
}

var validConnectionTypes = map[string]bool{
	MeetInTheMiddle: true,
}

// Config is a network topology.
type Config struct {
	// StopTime is the inclusive stop time in picoseconds. Zero means no stop time.
	StopTime   int64 `yaml:"stop_time"`
	IsParallel bool  `yaml:"is_parallel"`
	ProcessNum int   `yaml:"process_num"`
	// Lookahead in picoseconds. Zero derives it from the shortest cross-group channel.
	Lookahead    int64              `yaml:"lookahead"`
	Groups       []GroupConfig      `yaml:"groups"`
	Nodes        []NodeConfig       `yaml:"nodes"`
	QChannels    []QChannelConfig   `yaml:"qchannels"`
	CChannels    []CChannelConfig   `yaml:"cchannels"`
	CConnections []ConnectionConfig `yaml:"cconnections"`
	QConnections []QConnection      `yaml:"qconnections"`
}

// GroupConfig selects the timeline type of one process.
type GroupConfig struct {
	Type string `yaml:"type"`
}

// NodeConfig is one node.
type NodeConfig struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Seed  int64  `yaml:"seed"`
	Group int    `yaml:"group"`
	// MemoSize is the number of memories of a QuantumRouter.
	MemoSize int `yaml:"memo_size"`
	// CoherenceTime in picoseconds; zero keeps entanglement forever.
	CoherenceTime int64 `yaml:"coherence_time"`
}

// QChannelConfig is a one-way quantum channel from a router to a BSM node.
type QChannelConfig struct {
	Src         string  `yaml:"src"`
	Dst         string  `yaml:"dst"`
	Distance    float64 `yaml:"distance"`    // meters
	Attenuation float64 `yaml:"attenuation"` // dB per meter
}

// CChannelConfig is a one-way classical channel. A zero Delay is derived from Distance.
type CChannelConfig struct {
	Src      string  `yaml:"src"`
	Dst      string  `yaml:"dst"`
	Distance float64 `yaml:"distance"`
	Delay    int64   `yaml:"delay"`
}

// ConnectionConfig is a pair of classical channels, one in each direction.
type ConnectionConfig struct {
	Node1    string  `yaml:"node1"`
	Node2    string  `yaml:"node2"`
	Distance float64 `yaml:"distance"`
	Delay    int64   `yaml:"delay"`
}

// QConnection links two routers through an automatically created BSM node.
type QConnection struct {
	Node1       string  `yaml:"node1"`
	Node2       string  `yaml:"node2"`
	Distance    float64 `yaml:"distance"`
	Attenuation float64 `yaml:"attenuation"`
	Type        string  `yaml:"type"`
}

// LoadConfig reads a topology file. Unknown fields are rejected.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading topology: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a topology. Unknown fields are rejected.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing topology: %w", err)
	}
	return &cfg, nil
}

// Digest identifies the topology. Processes of one run must agree on it.
func (c *Config) Digest() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("digest topology: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Processes returns the number of processes the topology runs on.
func (c *Config) Processes() int {
	if !c.IsParallel {
		return 1
	}
	return c.ProcessNum
}

// TimelineType returns the timeline type of the parallel groups, or "" for sequential runs.
func (c *Config) TimelineType() string {
	if !c.IsParallel || len(c.Groups) == 0 {
		return ""
	}
	return c.Groups[0].Type
}

func (c *Config) node(name string) (NodeConfig, bool) {
	for _, n := range c.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return NodeConfig{}, false
}
