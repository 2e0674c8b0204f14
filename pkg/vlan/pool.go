package vlan

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ovsnet/ovsvlan/pkg/logger"
	"github.com/ovsnet/ovsvlan/pkg/metric"
)

var log = logger.WithSubSys("vlan")

const (
	// DefaultStart is the lowest vlan tag handed out by default, 1 is left to
	// the default vlan of the bridge.
	DefaultStart = 2
	// DefaultEnd is the exclusive upper bound. 4094 is left out by default.
	DefaultEnd = 4094

	// 0 and 4095 are reserved by 802.1Q and never enter a pool.
	minStart = 1
	maxEnd   = 4095
)

// Free is what Lookup reports for a slot no network holds.
const Free = ""

var (
	ErrOutOfRange       = errors.New("vlan id out of range")
	ErrPoolExhausted    = errors.New("no free vlan id")
	ErrInvalidRange     = errors.New("invalid vlan range")
	ErrDuplicateBinding = errors.New("duplicate vlan binding")
)

// Binding is one vlan tag held by a network.
type Binding struct {
	VlanID    int
	NetworkID string
}

// Stats is a point in time view of pool usage.
type Stats struct {
	Start    int
	End      int
	Capacity int
	InUse    int
}

// Pool hands out vlan tags from [start, end) to networks. Every tag in range
// always has a slot, holding either the owning network id or Free.
// Metrics are labelled by range only, pools sharing a range share series.
type Pool struct {
	lock  sync.Mutex
	start int
	end   int
	slots []string
	inUse int

	label string
}

// NewPool returns a pool with every tag in [start, end) free.
func NewPool(start, end int) (*Pool, error) {
	if start < minStart || end > maxEnd || start >= end {
		return nil, fmt.Errorf("%w: [%d, %d)", ErrInvalidRange, start, end)
	}
	p := &Pool{
		start: start,
		end:   end,
		label: fmt.Sprintf("%d-%d", start, end),
	}
	p.Reset()
	metric.VlanPoolCapacity.WithLabelValues(p.label).Set(float64(end - start))
	return p, nil
}

// Reset marks every tag free, dropping all bindings.
func (p *Pool) Reset() {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.slots = make([]string, p.end-p.start)
	p.inUse = 0
	p.updateMetric()
}

// Range returns the managed range as [start, end).
func (p *Pool) Range() (int, int) {
	return p.start, p.end
}

// Set binds id to networkID whatever the slot held before.
func (p *Pool) Set(id int, networkID string) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if !p.inRange(id) {
		return fmt.Errorf("%w: %d not in [%d, %d)", ErrOutOfRange, id, p.start, p.end)
	}
	p.put(id, networkID)
	return nil
}

// Acquire binds the lowest free tag to networkID and returns it.
func (p *Pool) Acquire(networkID string) (int, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	for i, owner := range p.slots {
		if owner != Free {
			continue
		}
		id := p.start + i
		p.put(id, networkID)
		log.Debugf("acquire vlan %d for network %s", id, networkID)
		return id, nil
	}
	metric.VlanPoolExhausted.WithLabelValues(p.label).Inc()
	return 0, fmt.Errorf("%w in [%d, %d) for network %s", ErrPoolExhausted, p.start, p.end, networkID)
}

// Release frees the tag held by networkID. It reports the freed tag, or
// false when the network holds none, which is logged and otherwise ignored.
func (p *Pool) Release(networkID string) (int, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if networkID != Free {
		for i, owner := range p.slots {
			if owner != networkID {
				continue
			}
			id := p.start + i
			p.put(id, Free)
			log.Debugf("release vlan %d of network %s", id, networkID)
			return id, true
		}
	}
	log.Warnf("no vlan found with network %q", networkID)
	return 0, false
}

// Lookup returns the network holding id, or Free.
func (p *Pool) Lookup(id int) (string, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if !p.inRange(id) {
		return Free, fmt.Errorf("%w: %d not in [%d, %d)", ErrOutOfRange, id, p.start, p.end)
	}
	return p.slots[id-p.start], nil
}

// Bindings returns the held tags in ascending order.
func (p *Pool) Bindings() []Binding {
	p.lock.Lock()
	defer p.lock.Unlock()

	result := make([]Binding, 0, p.inUse)
	for i, owner := range p.slots {
		if owner == Free {
			continue
		}
		result = append(result, Binding{VlanID: p.start + i, NetworkID: owner})
	}
	return result
}

func (p *Pool) Stats() Stats {
	p.lock.Lock()
	defer p.lock.Unlock()

	return Stats{
		Start:    p.start,
		End:      p.end,
		Capacity: len(p.slots),
		InUse:    p.inUse,
	}
}

func (p *Pool) inRange(id int) bool {
	return id >= p.start && id < p.end
}

// put must be called with the lock held and id in range.
func (p *Pool) put(id int, networkID string) {
	idx := id - p.start
	switch {
	case p.slots[idx] == Free && networkID != Free:
		p.inUse++
	case p.slots[idx] != Free && networkID == Free:
		p.inUse--
	}
	p.slots[idx] = networkID
	p.updateMetric()
}

func (p *Pool) updateMetric() {
	metric.VlanPoolInUse.WithLabelValues(p.label).Set(float64(p.inUse))
}
