package plugin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/ovsnet/ovsvlan/pkg/config"
	"github.com/ovsnet/ovsvlan/pkg/db"
	"github.com/ovsnet/ovsvlan/pkg/logger"
	"github.com/ovsnet/ovsvlan/pkg/metric"
	"github.com/ovsnet/ovsvlan/pkg/vlan"
	"github.com/ovsnet/ovsvlan/types"
)

var log = logger.WithSubSys("plugin")

// Store is the record store the plugin persists networks and vlan bindings to.
type Store interface {
	CreateNetwork(tenantID, name string) (*db.Network, error)
	GetNetwork(networkID string) (*db.Network, error)
	ListNetworks(tenantID string) ([]db.Network, error)
	DeleteNetwork(networkID string) (*db.Network, error)

	ListVlanBindings() ([]vlan.Binding, error)
	AddVlanBinding(vlanID int, networkID string) (*db.VlanBinding, error)
	RemoveVlanBinding(networkID string) (*db.VlanBinding, error)
	UpdateVlanBinding(networkID string, vlanID int) (*db.VlanBinding, error)

	Close() error
}

// NetworkInfo is what the plugin reports for a network.
type NetworkInfo struct {
	ID       string `json:"net-id"`
	TenantID string `json:"tenant-id"`
	Name     string `json:"net-name"`
	// VlanID is 0 when the network holds no vlan.
	VlanID int `json:"vlan-id,omitempty"`
}

// Plugin turns network create/delete calls into persisted rows and keeps the
// vlan pool in step with the vlan binding table.
type Plugin struct {
	// serializes lifecycle calls so a network is never observed half created
	sync.RWMutex

	store Store
	pool  *vlan.Pool
}

// New opens the store configured in cfg and restores the vlan pool from it.
func New(cfg *config.Config) (*Plugin, error) {
	pool, err := vlan.NewPool(cfg.VlanStart, cfg.VlanEnd)
	if err != nil {
		return nil, err
	}
	store, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, errors.Wrapf(err, "error open db %s", cfg.DBPath)
	}
	p, err := NewWithStore(store, pool)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return p, nil
}

// NewWithStore bootstraps pool from store.
func NewWithStore(store Store, pool *vlan.Pool) (*Plugin, error) {
	if err := vlan.Bootstrap(pool, store); err != nil {
		return nil, errors.Wrap(err, "error bootstrap vlan pool")
	}
	return &Plugin{
		store: store,
		pool:  pool,
	}, nil
}

func (p *Plugin) Pool() *vlan.Pool {
	return p.pool
}

func (p *Plugin) Close() error {
	return p.store.Close()
}

// CreateNetwork persists a network and binds the lowest free vlan to it. A
// network is never left behind without a vlan: if no vlan can be acquired or
// persisted the network record is removed again.
func (p *Plugin) CreateNetwork(ctx context.Context, tenantID, name string) (info *NetworkInfo, err error) {
	p.Lock()
	defer p.Unlock()
	start := time.Now()
	defer func() {
		metric.PluginOpLatency.WithLabelValues("CreateNetwork", fmt.Sprint(err != nil)).Observe(metric.MsSince(start))
	}()

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	network, err := p.store.CreateNetwork(tenantID, name)
	if err != nil {
		return nil, errors.Wrapf(err, "error create network %s for tenant %s", name, tenantID)
	}
	l := log.WithField("network", network.ID)
	l.Debugf("created network %s", name)

	acquired := false
	defer func() {
		if err == nil {
			return
		}
		// roll back
		if acquired {
			p.pool.Release(network.ID)
		}
		if _, innerErr := p.store.DeleteNetwork(network.ID); innerErr != nil {
			l.Errorf("error roll back network record, %v", innerErr)
		}
	}()

	vlanID, err := p.pool.Acquire(network.ID)
	if err != nil {
		return nil, types.NewError(types.ErrVlanExhausted, err, "error allocate vlan for network %s", network.ID)
	}
	acquired = true

	_, err = p.store.AddVlanBinding(vlanID, network.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "error persist vlan %d for network %s", vlanID, network.ID)
	}

	l.Infof("bound vlan %d", vlanID)
	return toInfo(network, vlanID), nil
}

// DeleteNetwork removes the network, its vlan binding, and returns the vlan
// to the pool.
func (p *Plugin) DeleteNetwork(ctx context.Context, tenantID, networkID string) (info *NetworkInfo, err error) {
	p.Lock()
	defer p.Unlock()
	start := time.Now()
	defer func() {
		metric.PluginOpLatency.WithLabelValues("DeleteNetwork", fmt.Sprint(err != nil)).Observe(metric.MsSince(start))
	}()

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	network, err := p.getTenantNetwork(tenantID, networkID)
	if err != nil {
		return nil, err
	}
	l := log.WithField("network", networkID)

	binding, err := p.store.RemoveVlanBinding(networkID)
	switch {
	case err == nil:
		l.Debugf("removed vlan binding %d", binding.VlanID)
	case types.IsCode(err, types.ErrBindingNotFound):
		l.Warnf("network has no persisted vlan binding")
	default:
		return nil, errors.Wrapf(err, "error remove vlan binding of network %s", networkID)
	}

	if _, err = p.store.DeleteNetwork(networkID); err != nil {
		return nil, errors.Wrapf(err, "error delete network %s", networkID)
	}

	vlanID, _ := p.pool.Release(networkID)
	l.Infof("deleted network, released vlan %d", vlanID)
	return toInfo(network, vlanID), nil
}

// MoveNetworkVlan rebinds the network to vlanID, which must be free. The
// binding row is moved first, the pool follows once it is persisted.
func (p *Plugin) MoveNetworkVlan(ctx context.Context, tenantID, networkID string, vlanID int) (info *NetworkInfo, err error) {
	p.Lock()
	defer p.Unlock()
	start := time.Now()
	defer func() {
		metric.PluginOpLatency.WithLabelValues("MoveNetworkVlan", fmt.Sprint(err != nil)).Observe(metric.MsSince(start))
	}()

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	network, err := p.getTenantNetwork(tenantID, networkID)
	if err != nil {
		return nil, err
	}
	owner, err := p.pool.Lookup(vlanID)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidArgsErrCode, err, "error move network %s", networkID)
	}
	if owner == networkID {
		return toInfo(network, vlanID), nil
	}
	if owner != vlan.Free {
		return nil, types.NewError(types.ErrBindingExists, nil, "vlan with id %d already bound to network %s", vlanID, owner)
	}

	if _, err = p.store.UpdateVlanBinding(networkID, vlanID); err != nil {
		return nil, errors.Wrapf(err, "error move vlan binding of network %s", networkID)
	}

	old, _ := p.pool.Release(networkID)
	if err = p.pool.Set(vlanID, networkID); err != nil {
		return nil, err
	}
	log.WithField("network", networkID).Infof("moved from vlan %d to vlan %d", old, vlanID)
	return toInfo(network, vlanID), nil
}

// GetNetwork returns the network with the vlan it currently holds.
func (p *Plugin) GetNetwork(ctx context.Context, tenantID, networkID string) (*NetworkInfo, error) {
	p.RLock()
	defer p.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	network, err := p.getTenantNetwork(tenantID, networkID)
	if err != nil {
		return nil, err
	}
	return toInfo(network, p.vlanOf(networkID)), nil
}

// ListNetworks returns all networks of the tenant.
func (p *Plugin) ListNetworks(ctx context.Context, tenantID string) ([]*NetworkInfo, error) {
	p.RLock()
	defer p.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	networks, err := p.store.ListNetworks(tenantID)
	if err != nil {
		return nil, errors.Wrapf(err, "error list networks of tenant %s", tenantID)
	}
	held := lo.SliceToMap(p.pool.Bindings(), func(b vlan.Binding) (string, int) {
		return b.NetworkID, b.VlanID
	})
	return lo.Map(networks, func(n db.Network, _ int) *NetworkInfo {
		return toInfo(&n, held[n.ID])
	}), nil
}

// ListVlanBindings returns the persisted bindings, for diagnostics.
func (p *Plugin) ListVlanBindings() ([]vlan.Binding, error) {
	return p.store.ListVlanBindings()
}

func (p *Plugin) getTenantNetwork(tenantID, networkID string) (*db.Network, error) {
	network, err := p.store.GetNetwork(networkID)
	if err != nil {
		return nil, err
	}
	if network.TenantID != tenantID {
		return nil, types.NewError(types.ErrNetworkNotFound, nil, "no network found with id %s for tenant %s", networkID, tenantID)
	}
	return network, nil
}

func (p *Plugin) vlanOf(networkID string) int {
	b, ok := lo.Find(p.pool.Bindings(), func(b vlan.Binding) bool {
		return b.NetworkID == networkID
	})
	if !ok {
		return 0
	}
	return b.VlanID
}

func toInfo(n *db.Network, vlanID int) *NetworkInfo {
	return &NetworkInfo{
		ID:       n.ID,
		TenantID: n.TenantID,
		Name:     n.Name,
		VlanID:   vlanID,
	}
}
