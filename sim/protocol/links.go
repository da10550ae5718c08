package protocol

import (
	"fmt"
	"sort"

	"github.com/inference-sim/qnet-sim/sim/network"
	"github.com/inference-sim/qnet-sim/sim/resource"
)

// LinkSlice reserves memories [First, First+Count) of a router for the link to Peer.
type LinkSlice struct {
	Peer  string
	First int
	Count int
}

// Contains reports whether slot belongs to the slice.
func (s LinkSlice) Contains(slot int) bool {
	return slot >= s.First && slot < s.First+s.Count
}

// PlanLinks splits each router's memories among its neighbors. A router gives
// every neighbor an equal share; a link uses the smaller of the two shares on
// both ends, so each REQUEST has a waiting protocol to pair with.
// neighbors must be symmetric. Slices are listed in neighbor name order.
func PlanLinks(memories map[string]int, neighbors map[string][]string) map[string][]LinkSlice {
	share := func(router string) int {
		if n := len(neighbors[router]); n > 0 {
			return memories[router] / n
		}
		return 0
	}
	plan := make(map[string][]LinkSlice, len(neighbors))
	for router, peers := range neighbors {
		sorted := append([]string(nil), peers...)
		sort.Strings(sorted)
		first := 0
		for _, peer := range sorted {
			count := min(share(router), share(peer))
			plan[router] = append(plan[router], LinkSlice{Peer: peer, First: first, Count: count})
			first += count
		}
	}
	return plan
}

// LinkStats counts generation outcomes on one router.
type LinkStats struct {
	Attempts  int
	Successes int
	Failures  int
	Expired   int
}

// Links is the rule set of one router: generation over each link slice,
// expiry of entangled memories and reset of expired ones.
type Links struct {
	node   *network.Node
	rm     *resource.ResourceManager
	array  *MemoryArray
	slices []LinkSlice
	bsm    map[string]string // peer -> BSM node
	seq    int
	stats  LinkStats
}

// Install prepares the link rules for node. The rules are loaded when the node
// is initialized, so the first REQUESTs leave at time zero.
func Install(node *network.Node, slices []LinkSlice) (*Links, error) {
	rm := node.ResourceManager()
	if rm == nil {
		return nil, fmt.Errorf("install links on %s: %w", node.Name(), ErrNoResourceManager)
	}
	array, err := network.ComponentAs[*MemoryArray](node, MemoryArrayName)
	if err != nil {
		return nil, fmt.Errorf("install links on %s: %w", node.Name(), err)
	}
	l := &Links{
		node:   node,
		rm:     rm,
		array:  array,
		slices: append([]LinkSlice(nil), slices...),
		bsm:    make(map[string]string, len(slices)),
	}
	for _, s := range slices {
		if s.First < 0 || s.First+s.Count > array.Size() {
			return nil, fmt.Errorf("install links on %s: link to %s: %w: [%d, %d) of %d",
				node.Name(), s.Peer, ErrSlotOutOfRange, s.First, s.First+s.Count, array.Size())
		}
		bsm, ok := node.BSMNodeFor(s.Peer)
		if !ok {
			return nil, fmt.Errorf("install links on %s: %w: %s", node.Name(), ErrNoBSMNode, s.Peer)
		}
		l.bsm[s.Peer] = bsm
	}
	node.OnInit(l.load)
	return l, nil
}

// Stats returns the generation counters.
func (l *Links) Stats() LinkStats { return l.stats }

// Slices returns the link slices.
func (l *Links) Slices() []LinkSlice { return append([]LinkSlice(nil), l.slices...) }

func (l *Links) load() error {
	rules := []resource.Rule{
		resource.NewRule("generation", l.matchGeneration, l.startGeneration),
	}
	if l.array.CoherenceTime() > 0 {
		rules = append(rules, resource.NewRule("expiry", matchState(resource.MemoryEntangled), func(claim []resource.MemoryInfo) (resource.Protocol, error) {
			return newExpiry(l.nextName("EX"), l, claim[0].Index, l.array.CoherenceTime()), nil
		}))
	}
	rules = append(rules, resource.NewRule("reset", matchState(resource.MemoryExpired), func(claim []resource.MemoryInfo) (resource.Protocol, error) {
		return newReset(l.nextName("RS"), l, claim[0].Index), nil
	}))
	for _, r := range rules {
		if err := l.rm.Load(r); err != nil {
			return err
		}
	}
	return nil
}

func (l *Links) nextName(prefix string) string {
	l.seq++
	return fmt.Sprintf("%s.%d", prefix, l.seq)
}

func (l *Links) sliceOf(slot int) (LinkSlice, bool) {
	for _, s := range l.slices {
		if s.Contains(slot) {
			return s, true
		}
	}
	return LinkSlice{}, false
}

func (l *Links) matchGeneration(candidate resource.MemoryInfo, _ resource.MemoryView) []resource.MemoryInfo {
	if candidate.State != resource.MemoryRaw {
		return nil
	}
	if _, ok := l.sliceOf(candidate.Index); !ok {
		return nil
	}
	return []resource.MemoryInfo{candidate}
}

// startGeneration creates the protocol for a claimed memory. The router whose
// name sorts first initiates; the other waits for its REQUEST.
func (l *Links) startGeneration(claim []resource.MemoryInfo) (resource.Protocol, error) {
	slot := claim[0].Index
	s, _ := l.sliceOf(slot)
	p := &EntanglementGeneration{
		name:  l.nextName("EG." + s.Peer),
		links: l,
		slot:  slot,
		peer:  s.Peer,
		bsm:   l.bsm[s.Peer],
	}
	if l.node.Name() < s.Peer {
		p.status = StatusPending
		cond := resource.Condition{
			Kind:   resource.ConditionPairing,
			Params: map[string]string{"kind": KindGeneration, "status": StatusWaiting},
		}
		return p, l.rm.SendRequest(p, s.Peer, &cond)
	}
	p.status = StatusWaiting
	return p, l.rm.SendRequest(p, "", nil)
}

func matchState(state resource.MemoryState) func(resource.MemoryInfo, resource.MemoryView) []resource.MemoryInfo {
	return func(candidate resource.MemoryInfo, _ resource.MemoryView) []resource.MemoryInfo {
		if candidate.State != state {
			return nil
		}
		return []resource.MemoryInfo{candidate}
	}
}
