package plugin

import (
	"context"
	"errors"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ovsnet/ovsvlan/pkg/config"
	"github.com/ovsnet/ovsvlan/pkg/db"
	"github.com/ovsnet/ovsvlan/pkg/vlan"
	"github.com/ovsnet/ovsvlan/types"
)

// flakyStore fails vlan binding writes on demand.
type flakyStore struct {
	*db.DB
	failAddBinding bool
}

func (f *flakyStore) AddVlanBinding(vlanID int, networkID string) (*db.VlanBinding, error) {
	if f.failAddBinding {
		return nil, errors.New("disk full")
	}
	return f.DB.AddVlanBinding(vlanID, networkID)
}

func newConfig(dir string, start, end int) *config.Config {
	cfg := &config.Config{
		VlanStart: start,
		VlanEnd:   end,
		DBPath:    filepath.Join(dir, "ovsvlan.db"),
	}
	Expect(cfg.Complete(context.Background())).To(Succeed())
	return cfg
}

var _ = Describe("Plugin", func() {
	var (
		ctx context.Context
		dir string
		p   *Plugin
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
	})

	AfterEach(func() {
		if p != nil {
			_ = p.Close()
			p = nil
		}
	})

	Context("with a three slot range", func() {
		BeforeEach(func() {
			var err error
			p, err = New(newConfig(dir, 2, 5))
			Expect(err).NotTo(HaveOccurred())
		})

		It("binds the lowest free vlan and fails creation once exhausted", func() {
			ids := map[string]string{}
			for i, name := range []string{"A", "B", "C"} {
				info, err := p.CreateNetwork(ctx, "tenant", name)
				Expect(err).NotTo(HaveOccurred())
				Expect(info.VlanID).To(Equal(2 + i))
				ids[name] = info.ID
			}

			_, err := p.CreateNetwork(ctx, "tenant", "D")
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, vlan.ErrPoolExhausted)).To(BeTrue())
			Expect(types.IsCode(err, types.ErrVlanExhausted)).To(BeTrue())

			By("not leaving the failed network behind")
			networks, err := p.ListNetworks(ctx, "tenant")
			Expect(err).NotTo(HaveOccurred())
			Expect(networks).To(HaveLen(3))

			By("reusing the slot freed by a delete")
			deleted, err := p.DeleteNetwork(ctx, "tenant", ids["B"])
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted.VlanID).To(Equal(3))

			info, err := p.CreateNetwork(ctx, "tenant", "D")
			Expect(err).NotTo(HaveOccurred())
			Expect(info.VlanID).To(Equal(3))

			owner, err := p.Pool().Lookup(2)
			Expect(err).NotTo(HaveOccurred())
			Expect(owner).To(Equal(ids["A"]))
			owner, err = p.Pool().Lookup(4)
			Expect(err).NotTo(HaveOccurred())
			Expect(owner).To(Equal(ids["C"]))
		})

		It("keeps the binding table and the pool in step", func() {
			a, err := p.CreateNetwork(ctx, "tenant", "A")
			Expect(err).NotTo(HaveOccurred())
			b, err := p.CreateNetwork(ctx, "tenant", "B")
			Expect(err).NotTo(HaveOccurred())

			persisted, err := p.ListVlanBindings()
			Expect(err).NotTo(HaveOccurred())
			Expect(persisted).To(Equal(p.Pool().Bindings()))

			_, err = p.DeleteNetwork(ctx, "tenant", a.ID)
			Expect(err).NotTo(HaveOccurred())

			persisted, err = p.ListVlanBindings()
			Expect(err).NotTo(HaveOccurred())
			Expect(persisted).To(Equal([]vlan.Binding{{VlanID: b.VlanID, NetworkID: b.ID}}))
			Expect(p.Pool().Bindings()).To(Equal(persisted))
		})

		It("reports the vlan of a network", func() {
			a, err := p.CreateNetwork(ctx, "tenant", "A")
			Expect(err).NotTo(HaveOccurred())

			got, err := p.GetNetwork(ctx, "tenant", a.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(a))

			_, err = p.GetNetwork(ctx, "other-tenant", a.ID)
			Expect(types.IsCode(err, types.ErrNetworkNotFound)).To(BeTrue())
		})

		It("rejects deleting unknown or foreign networks", func() {
			a, err := p.CreateNetwork(ctx, "tenant", "A")
			Expect(err).NotTo(HaveOccurred())

			_, err = p.DeleteNetwork(ctx, "tenant", "missing")
			Expect(types.IsCode(err, types.ErrNetworkNotFound)).To(BeTrue())

			_, err = p.DeleteNetwork(ctx, "other-tenant", a.ID)
			Expect(types.IsCode(err, types.ErrNetworkNotFound)).To(BeTrue())
			Expect(p.Pool().Stats().InUse).To(Equal(1))
		})

		It("moves a network to a free vlan", func() {
			a, err := p.CreateNetwork(ctx, "tenant", "A")
			Expect(err).NotTo(HaveOccurred())
			b, err := p.CreateNetwork(ctx, "tenant", "B")
			Expect(err).NotTo(HaveOccurred())

			moved, err := p.MoveNetworkVlan(ctx, "tenant", a.ID, 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(moved.VlanID).To(Equal(4))

			owner, err := p.Pool().Lookup(2)
			Expect(err).NotTo(HaveOccurred())
			Expect(owner).To(Equal(vlan.Free))
			persisted, err := p.ListVlanBindings()
			Expect(err).NotTo(HaveOccurred())
			Expect(persisted).To(Equal(p.Pool().Bindings()))

			By("refusing a vlan held by another network")
			_, err = p.MoveNetworkVlan(ctx, "tenant", a.ID, b.VlanID)
			Expect(types.IsCode(err, types.ErrBindingExists)).To(BeTrue())

			By("refusing a vlan outside the pool")
			_, err = p.MoveNetworkVlan(ctx, "tenant", a.ID, 5)
			Expect(errors.Is(err, vlan.ErrOutOfRange)).To(BeTrue())

			By("treating its own vlan as a no-op")
			moved, err = p.MoveNetworkVlan(ctx, "tenant", a.ID, 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(moved.VlanID).To(Equal(4))
			Expect(p.Pool().Stats().InUse).To(Equal(2))

			_, err = p.MoveNetworkVlan(ctx, "other-tenant", a.ID, 2)
			Expect(types.IsCode(err, types.ErrNetworkNotFound)).To(BeTrue())
		})

		It("honours a cancelled context", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			_, err := p.CreateNetwork(cancelled, "tenant", "A")
			Expect(err).To(MatchError(context.Canceled))
			Expect(p.Pool().Stats().InUse).To(BeZero())
		})
	})

	Context("across restarts", func() {
		It("restores the pool from persisted bindings", func() {
			cfg := newConfig(dir, vlan.DefaultStart, vlan.DefaultEnd)

			var err error
			p, err = New(cfg)
			Expect(err).NotTo(HaveOccurred())
			a, err := p.CreateNetwork(ctx, "tenant", "A")
			Expect(err).NotTo(HaveOccurred())
			b, err := p.CreateNetwork(ctx, "tenant", "B")
			Expect(err).NotTo(HaveOccurred())
			_, err = p.DeleteNetwork(ctx, "tenant", a.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Close()).To(Succeed())

			p, err = New(cfg)
			Expect(err).NotTo(HaveOccurred())

			owner, err := p.Pool().Lookup(b.VlanID)
			Expect(err).NotTo(HaveOccurred())
			Expect(owner).To(Equal(b.ID))
			Expect(p.Pool().Stats().InUse).To(Equal(1))

			networks, err := p.ListNetworks(ctx, "tenant")
			Expect(err).NotTo(HaveOccurred())
			Expect(networks).To(ConsistOf(b))

			c, err := p.CreateNetwork(ctx, "tenant", "C")
			Expect(err).NotTo(HaveOccurred())
			Expect(c.VlanID).To(Equal(vlan.DefaultStart))
		})

		It("refuses to start when persisted bindings fall outside the range", func() {
			var err error
			p, err = New(newConfig(dir, 2, 10))
			Expect(err).NotTo(HaveOccurred())
			for i := 0; i < 5; i++ {
				_, err = p.CreateNetwork(ctx, "tenant", "n")
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(p.Close()).To(Succeed())
			p = nil

			_, err = New(newConfig(dir, 2, 5))
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, vlan.ErrOutOfRange)).To(BeTrue())
		})
	})

	Context("when the binding write fails", func() {
		It("rolls back the vlan and the network record", func() {
			d, err := db.Open(filepath.Join(dir, "ovsvlan.db"))
			Expect(err).NotTo(HaveOccurred())
			store := &flakyStore{DB: d}
			pool, err := vlan.NewPool(2, 5)
			Expect(err).NotTo(HaveOccurred())
			p, err = NewWithStore(store, pool)
			Expect(err).NotTo(HaveOccurred())

			store.failAddBinding = true
			_, err = p.CreateNetwork(ctx, "tenant", "A")
			Expect(err).To(MatchError(ContainSubstring("disk full")))
			Expect(pool.Stats().InUse).To(BeZero())

			networks, err := p.ListNetworks(ctx, "tenant")
			Expect(err).NotTo(HaveOccurred())
			Expect(networks).To(BeEmpty())

			store.failAddBinding = false
			info, err := p.CreateNetwork(ctx, "tenant", "A")
			Expect(err).NotTo(HaveOccurred())
			Expect(info.VlanID).To(Equal(2))
		})
	})

	Context("when a network lost its binding row", func() {
		It("still deletes the network and frees the vlan", func() {
			d, err := db.Open(filepath.Join(dir, "ovsvlan.db"))
			Expect(err).NotTo(HaveOccurred())
			pool, err := vlan.NewPool(2, 5)
			Expect(err).NotTo(HaveOccurred())
			p, err = NewWithStore(d, pool)
			Expect(err).NotTo(HaveOccurred())

			a, err := p.CreateNetwork(ctx, "tenant", "A")
			Expect(err).NotTo(HaveOccurred())
			_, err = d.RemoveVlanBinding(a.ID)
			Expect(err).NotTo(HaveOccurred())

			deleted, err := p.DeleteNetwork(ctx, "tenant", a.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted.VlanID).To(Equal(2))
			Expect(pool.Stats().InUse).To(BeZero())
		})
	})
})
