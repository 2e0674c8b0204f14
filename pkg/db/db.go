package db

import (
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/boltdb/bolt"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/ovsnet/ovsvlan/pkg/logger"
	"github.com/ovsnet/ovsvlan/pkg/storage"
	"github.com/ovsnet/ovsvlan/pkg/vlan"
	"github.com/ovsnet/ovsvlan/types"
)

var log = logger.WithSubSys("db")

const (
	networkBucket     = "networks"
	vlanBindingBucket = "vlan_bindings"
)

// Network is a tenant virtual network record.
type Network struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// VlanBinding associates one vlan tag with the network owning it.
type VlanBinding struct {
	VlanID    int    `json:"vlan_id"`
	NetworkID string `json:"network_id"`
}

// DB holds the network and vlan binding tables in one bolt file.
type DB struct {
	lock sync.Mutex

	bolt     *bolt.DB
	networks *storage.DiskStorage[Network]
	bindings *storage.DiskStorage[VlanBinding]
}

// Open opens or creates the database file at path.
func Open(path string) (*DB, error) {
	b, err := storage.Open(path)
	if err != nil {
		return nil, err
	}
	d, err := New(b)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	log.Infof("opened db %s", path)
	return d, nil
}

// New builds the tables on an opened bolt db.
func New(b *bolt.DB) (*DB, error) {
	networks, err := storage.NewDiskStorage(b, networkBucket, storage.JSONSerializer[Network](), storage.JSONDeserializer[Network]())
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, err, "error load %s", networkBucket)
	}
	bindings, err := storage.NewDiskStorage(b, vlanBindingBucket, storage.JSONSerializer[VlanBinding](), storage.JSONDeserializer[VlanBinding]())
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, err, "error load %s", vlanBindingBucket)
	}
	return &DB{
		bolt:     b,
		networks: networks,
		bindings: bindings,
	}, nil
}

func (d *DB) Close() error {
	return d.bolt.Close()
}

func vlanKey(vlanID int) string {
	return strconv.Itoa(vlanID)
}

// CreateNetwork persists a new network with a generated id.
func (d *DB) CreateNetwork(tenantID, name string) (*Network, error) {
	if tenantID == "" {
		return nil, types.NewError(types.ErrInvalidArgsErrCode, nil, "tenant id is required")
	}
	n := Network{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := d.networks.Put(n.ID, n); err != nil {
		return nil, types.NewError(types.ErrInternalError, err, "error save network %s", n.ID)
	}
	return &n, nil
}

func (d *DB) GetNetwork(networkID string) (*Network, error) {
	n, err := d.networks.Get(networkID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, types.NewError(types.ErrNetworkNotFound, err, "no network found with id %s", networkID)
		}
		return nil, types.NewError(types.ErrInternalError, err, "error get network %s", networkID)
	}
	return &n, nil
}

// ListNetworks returns the networks of tenantID, oldest first.
func (d *DB) ListNetworks(tenantID string) ([]Network, error) {
	all, err := d.networks.List()
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, err, "error list networks")
	}
	result := lo.Filter(all, func(n Network, _ int) bool {
		return n.TenantID == tenantID
	})
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// DeleteNetwork removes the network and any vlan binding referencing it in
// one transaction.
func (d *DB) DeleteNetwork(networkID string) (*Network, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	n, err := d.GetNetwork(networkID)
	if err != nil {
		return nil, err
	}

	bindings, err := d.bindings.List()
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, err, "error list vlan bindings")
	}
	ops := []storage.Op{d.networks.DeleteOp(networkID)}
	for _, b := range bindings {
		if b.NetworkID == networkID {
			log.Infof("cascade delete vlan binding %d of network %s", b.VlanID, networkID)
			ops = append(ops, d.bindings.DeleteOp(vlanKey(b.VlanID)))
		}
	}
	if err = storage.Batch(d.bolt, ops...); err != nil {
		return nil, types.NewError(types.ErrInternalError, err, "error delete network %s", networkID)
	}
	return n, nil
}

// ListVlanBindings returns every persisted binding ordered by vlan id.
func (d *DB) ListVlanBindings() ([]vlan.Binding, error) {
	all, err := d.bindings.List()
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, err, "error list vlan bindings")
	}
	result := lo.Map(all, func(b VlanBinding, _ int) vlan.Binding {
		return vlan.Binding{VlanID: b.VlanID, NetworkID: b.NetworkID}
	})
	sort.Slice(result, func(i, j int) bool {
		return result[i].VlanID < result[j].VlanID
	})
	return result, nil
}

// AddVlanBinding records vlanID as held by networkID. The network must exist
// and the vlan must not be bound yet.
func (d *DB) AddVlanBinding(vlanID int, networkID string) (*VlanBinding, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if _, err := d.GetNetwork(networkID); err != nil {
		return nil, err
	}
	if existing, err := d.bindings.Get(vlanKey(vlanID)); err == nil {
		return nil, types.NewError(types.ErrBindingExists, nil, "vlan with id %d already bound to network %s", vlanID, existing.NetworkID)
	}

	b := VlanBinding{VlanID: vlanID, NetworkID: networkID}
	if err := d.bindings.Put(vlanKey(vlanID), b); err != nil {
		return nil, types.NewError(types.ErrInternalError, err, "error save vlan binding %d", vlanID)
	}
	return &b, nil
}

// GetVlanBinding returns the binding held by networkID.
func (d *DB) GetVlanBinding(networkID string) (*VlanBinding, error) {
	all, err := d.bindings.List()
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, err, "error list vlan bindings")
	}
	b, ok := lo.Find(all, func(b VlanBinding) bool {
		return b.NetworkID == networkID
	})
	if !ok {
		return nil, types.NewError(types.ErrBindingNotFound, nil, "no vlan binding found with network id %s", networkID)
	}
	return &b, nil
}

// RemoveVlanBinding deletes the binding held by networkID.
func (d *DB) RemoveVlanBinding(networkID string) (*VlanBinding, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	b, err := d.GetVlanBinding(networkID)
	if err != nil {
		return nil, err
	}
	if err = d.bindings.Delete(vlanKey(b.VlanID)); err != nil {
		return nil, types.NewError(types.ErrInternalError, err, "error delete vlan binding %d", b.VlanID)
	}
	return b, nil
}

// UpdateVlanBinding moves the binding of networkID to vlanID.
func (d *DB) UpdateVlanBinding(networkID string, vlanID int) (*VlanBinding, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	old, err := d.GetVlanBinding(networkID)
	if err != nil {
		return nil, err
	}
	if old.VlanID == vlanID {
		return old, nil
	}
	if existing, err := d.bindings.Get(vlanKey(vlanID)); err == nil {
		return nil, types.NewError(types.ErrBindingExists, nil, "vlan with id %d already bound to network %s", vlanID, existing.NetworkID)
	}

	b := VlanBinding{VlanID: vlanID, NetworkID: networkID}
	err = storage.Batch(d.bolt, d.bindings.DeleteOp(vlanKey(old.VlanID)), d.bindings.PutOp(vlanKey(vlanID), b))
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, err, "error move vlan binding of network %s", networkID)
	}
	return &b, nil
}
