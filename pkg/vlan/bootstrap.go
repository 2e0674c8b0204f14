package vlan

import (
	"fmt"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/ovsnet/ovsvlan/pkg/metric"
)

// BindingLister is the read side of the binding store used on startup.
type BindingLister interface {
	ListVlanBindings() ([]Binding, error)
}

// Bootstrap replaces the pool content with the persisted bindings.
// Rows are validated before the pool is touched: a tag bound twice, a network
// bound twice or a tag outside the pool range fails the whole bootstrap and
// leaves the pool unchanged.
func Bootstrap(pool *Pool, lister BindingLister) error {
	bindings, err := lister.ListVlanBindings()
	if err != nil {
		return errors.Wrap(err, "error list vlan bindings")
	}

	start, end := pool.Range()
	seenVlan := sets.New[int]()
	seenNetwork := sets.New[string]()
	for _, b := range bindings {
		if b.VlanID < start || b.VlanID >= end {
			return errors.Wrapf(ErrOutOfRange, "persisted vlan %d of network %s not in [%d, %d)", b.VlanID, b.NetworkID, start, end)
		}
		if b.NetworkID == Free {
			return fmt.Errorf("persisted binding for vlan %d has no network", b.VlanID)
		}
		if seenVlan.Has(b.VlanID) {
			return fmt.Errorf("%w: vlan %d bound more than once", ErrDuplicateBinding, b.VlanID)
		}
		if seenNetwork.Has(b.NetworkID) {
			return fmt.Errorf("%w: network %s holds more than one vlan", ErrDuplicateBinding, b.NetworkID)
		}
		seenVlan.Insert(b.VlanID)
		seenNetwork.Insert(b.NetworkID)
	}

	pool.Reset()
	for _, b := range bindings {
		if err = pool.Set(b.VlanID, b.NetworkID); err != nil {
			return err
		}
		log.Debugf("restore vlan %d -> %s", b.VlanID, b.NetworkID)
	}

	metric.VlanBootstrapBindings.WithLabelValues(pool.label).Set(float64(len(bindings)))
	log.Infof("restored %d vlan bindings into pool [%d, %d)", len(bindings), start, end)
	return nil
}
