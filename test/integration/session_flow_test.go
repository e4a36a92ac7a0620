//go:build integration

package integration

import (
	"context"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuslock/internal/broadcast"
	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
	"github.com/eliteGoblin/focusd/focuslock/internal/filter"
	"github.com/eliteGoblin/focusd/focuslock/internal/infra"
	"github.com/eliteGoblin/focusd/focuslock/internal/usecase"
	"github.com/eliteGoblin/focusd/focuslock/test/fixtures"
)

// pipeDevice hands queued packets to the filter and collects what it forwards.
type pipeDevice struct {
	in        chan []byte
	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newPipeDevice() *pipeDevice {
	return &pipeDevice{
		in:   make(chan []byte, 8),
		out:  make(chan []byte, 8),
		done: make(chan struct{}),
	}
}

func (d *pipeDevice) Read(buf []byte) (int, error) {
	select {
	case pkt := <-d.in:
		return copy(buf, pkt), nil
	case <-d.done:
		return 0, os.ErrClosed
	}
}

func (d *pipeDevice) Write(pkt []byte) (int, error) {
	select {
	case d.out <- append([]byte(nil), pkt...):
		return len(pkt), nil
	case <-d.done:
		return 0, os.ErrClosed
	}
}

func (d *pipeDevice) Close() error {
	d.closeOnce.Do(func() { close(d.done) })
	return nil
}

func (d *pipeDevice) closed() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

var _ = Describe("Session flow", func() {
	const deskTag = "04A1B2C3"

	var (
		ctx      context.Context
		cancel   context.CancelFunc
		dataDir  string
		store    *infra.EncryptedStore
		hub      *broadcast.Hub
		engine   *usecase.SessionEngine
		profiles *usecase.ProfileService

		devMu   sync.Mutex
		devices []*pipeDevice
	)

	openDevice := func() (filter.Device, error) {
		devMu.Lock()
		defer devMu.Unlock()
		d := newPipeDevice()
		devices = append(devices, d)
		return d, nil
	}
	lastDevice := func() *pipeDevice {
		devMu.Lock()
		defer devMu.Unlock()
		if len(devices) == 0 {
			return nil
		}
		return devices[len(devices)-1]
	}

	newEngine := func(s *infra.EncryptedStore, h *broadcast.Hub) *usecase.SessionEngine {
		return usecase.NewSessionEngine(s, s, h, infra.SystemClock{}, infra.NewZapNotifier(zap.NewNop()), zap.NewNop())
	}

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		dataDir = GinkgoT().TempDir()
		devices = nil

		var err error
		store, err = infra.OpenStore(dataDir)
		Expect(err).NotTo(HaveOccurred())

		hub = broadcast.NewHub(zap.NewNop())
		engine = newEngine(store, hub)
		profiles = usecase.NewProfileService(store, infra.SystemClock{}, zap.NewNop())

		controller := filter.NewController(openDevice, nil, store, infra.SystemClock{}, zap.NewNop())
		go controller.Run(ctx, hub.Subscribe(ctx))
	})

	AfterEach(func() {
		cancel()
		Expect(store.Close()).To(Succeed())
	})

	createProfile := func() *domain.Profile {
		p, err := profiles.Create(ctx, &domain.Profile{
			Name:               "Deep Work",
			BlockedApps:        []string{"steam"},
			BlockedDomains:     []string{"youtube.com"},
			StrategyID:         domain.StrategyNFC,
			WebBlockingEnabled: true,
			Tokens:             []domain.PhysicalToken{{TokenID: deskTag, Mode: domain.TokenUnlock, Label: "Desk Tag"}},
			Emergency:          domain.EmergencySettings{Enabled: true, MaxAttempts: 1},
			RemoteLockEnabled:  true,
		})
		Expect(err).NotTo(HaveOccurred())
		return p
	}

	Context("when an NFC session is started by scanning the desk tag", func() {
		It("should filter traffic until the same tag ends the session", func() {
			createProfile()

			out, err := engine.StartFromScan(ctx, deskTag, domain.SourceNFC)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Action).To(Equal(usecase.ActionStarted))

			Eventually(lastDevice).ShouldNot(BeNil())
			dev := lastDevice()

			allowed := fixtures.DNSQuery("example.org")
			dev.in <- allowed
			Eventually(dev.out).Should(Receive(Equal(allowed)))

			dev.in <- fixtures.DNSQuery("www.youtube.com")
			Consistently(dev.out, 100*time.Millisecond).ShouldNot(Receive())

			Eventually(func() map[string]int {
				counts, err := store.CountBlocks(ctx, time.Now().Add(-time.Hour))
				Expect(err).NotTo(HaveOccurred())
				return counts
			}).Should(HaveKeyWithValue("youtube.com", 1))

			By("refusing a manual stop under remote lock")
			Expect(engine.ActivateRemoteLock(ctx, "integration")).To(Succeed())
			Expect(engine.StopSession(ctx)).To(MatchError(domain.ErrRemoteLockActive))

			By("ending the session with the tag")
			out, err = engine.ResolveToken(ctx, deskTag, domain.SourceNFC)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Action).To(Equal(usecase.ActionEnded))
			Eventually(dev.closed).Should(BeTrue())
		})
	})

	Context("when the session is changed by another process", func() {
		It("should be picked up on resync", func() {
			p := createProfile()

			// A second store handle stands in for the CLI.
			cliStore, err := infra.OpenStore(dataDir)
			Expect(err).NotTo(HaveOccurred())
			defer cliStore.Close()
			cli := newEngine(cliStore, broadcast.NewHub(zap.NewNop()))

			_, err = cli.StartSession(ctx, p.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(lastDevice()).To(BeNil())

			changed, err := engine.Resync(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(changed).To(BeTrue())
			Expect(hub.Current().BlockedDomains).To(ConsistOf("youtube.com"))
			Eventually(lastDevice).ShouldNot(BeNil())

			By("using the single emergency unlock from the CLI")
			Expect(cli.UseEmergencyUnlock(ctx)).To(Succeed())
			changed, err = engine.Resync(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(changed).To(BeTrue())
			Expect(hub.Current().IsEmpty()).To(BeTrue())
			Eventually(lastDevice().closed).Should(BeTrue())

			sessions, err := store.ListSessions(ctx, time.Time{})
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(HaveLen(1))
			Expect(sessions[0].EndReason).To(Equal(domain.EndEmergency))
			Expect(sessions[0].EmergencyAttemptsUsed).To(Equal(1))
		})
	})
})
