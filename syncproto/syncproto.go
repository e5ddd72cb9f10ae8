// Package syncproto implements the locator/inventory sync protocol named
// in §4.5: a per-chain skip-list handshake that lets two brokers agree on
// what each other is missing, without caring how the bytes actually get
// from one process to the other. Grounded on
// protocol/flowcontext/ibd.go's StartIBDIfRequired/FinishIBD/
// selectPeerForIBD state machine and on netadapter/router.Route's
// mailbox shape, generalized from "one DAG, many peers" to "G² chains,
// one peer session."
package syncproto

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Jantoko/alephium/blockflow"
	"github.com/Jantoko/alephium/chainindex"
	"github.com/Jantoko/alephium/logger"
	"github.com/Jantoko/alephium/logs"
	"github.com/Jantoko/alephium/primitives"
	"github.com/pkg/errors"
)

// Message is anything a PeerSession can send or receive. Kind identifies
// the concrete type for logging and dispatch without a type switch at
// every call site.
type Message interface {
	Kind() string
}

// Handshake carries one chain tip per chain, in chainindex.All order, the
// way a kaspad peer advertises its selected tip on connect.
type Handshake struct {
	Tips []primitives.Hash
}

// Kind implements Message.
func (Handshake) Kind() string { return "handshake" }

// Locator is one chain's skip-list: its current tip, then hashes at
// exponentially receding heights down to genesis (§4.2).
type Locator []primitives.Hash

// Inventory is one chain's list of hashes a peer is missing, ordered
// oldest-first from just past the peer's locator up to the local tip.
type Inventory []primitives.Hash

// SyncRequest asks the peer for inventories matching locators, one per
// chain in chainindex.All order.
type SyncRequest struct {
	Locators []Locator
}

// Kind implements Message.
func (SyncRequest) Kind() string { return "sync_request" }

// SyncResponse answers a SyncRequest with one inventory per chain.
type SyncResponse struct {
	Inventories []Inventory
}

// Kind implements Message.
func (SyncResponse) Kind() string { return "sync_response" }

// PeerSession is the transport-agnostic boundary a Synchronizer drives.
// Implementations own the actual wire (gRPC stream, socket, in-memory
// pipe for tests) and typically buffer inbound messages in something
// shaped like netadapter/router.Route.
type PeerSession interface {
	Send(msg Message) error
	Recv(ctx context.Context) (Message, error)
	Close() error
}

// State is one stage of the Handshaking -> Exchanging -> {Syncing,
// Synced} state machine (§4.5, §8).
type State int32

const (
	// StateHandshaking is the initial state: tips haven't been exchanged.
	StateHandshaking State = iota
	// StateExchanging means tips were exchanged and locators are being
	// sent or answered.
	StateExchanging
	// StateSyncing means a SyncResponse named hashes this session doesn't
	// have yet.
	StateSyncing
	// StateSynced means the last exchange found nothing new.
	StateSynced
)

// String names a State for logging.
func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateExchanging:
		return "exchanging"
	case StateSyncing:
		return "syncing"
	case StateSynced:
		return "synced"
	default:
		return "unknown"
	}
}

// Synchronizer drives one PeerSession through the handshake/exchange
// cycle against a local BlockFlow, grounded on FlowContext's
// StartIBDIfRequired/FinishIBD pair: StartIfRequired decides whether this
// peer has anything we lack, and FinishSync settles the state once an
// exchange completes: Synced when no inventories came back, Syncing
// otherwise, in which case the run loop starts the next round.
type Synchronizer struct {
	flow    *blockflow.BlockFlow
	session PeerSession
	log     logs.Logger

	mu         sync.Mutex
	state      State
	remoteTips []primitives.Hash

	// lastInventories is set by ExchangeOnce for a caller to fetch and
	// submit the named blocks through the handler mesh; actual block
	// transport is out of scope here (§1).
	lastInventories []Inventory

	stop    chan struct{}
	wg      sync.WaitGroup
	running int32
}

// New builds a Synchronizer for one peer session.
func New(flow *blockflow.BlockFlow, session PeerSession) *Synchronizer {
	return &Synchronizer{
		flow:    flow,
		session: session,
		log:     logger.Subsystem("SYNC"),
		state:   StateHandshaking,
		stop:    make(chan struct{}),
	}
}

// State returns the synchronizer's current stage.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Synchronizer) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// PendingInventories returns the inventories from the most recent
// exchange, for a caller to resolve into actual blocks.
func (s *Synchronizer) PendingInventories() []Inventory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastInventories
}

// Start launches the synchronizer's goroutine: handshake once, then loop
// StartIfRequired/FinishSync until Stop is called.
func (s *Synchronizer) Start() {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run()
	}()
}

// Stop closes the session and waits for the goroutine to exit.
func (s *Synchronizer) Stop() {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return
	}
	close(s.stop)
	s.session.Close()
	s.wg.Wait()
	s.stop = make(chan struct{})
}

func (s *Synchronizer) run() {
	if err := s.Handshake(context.Background()); err != nil {
		s.log.Errorf("handshake: %v", err)
		return
	}
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		if err := s.StartIfRequired(context.Background()); err != nil {
			if errors.Is(err, errSessionClosed) {
				return
			}
			s.log.Errorf("sync round: %v", err)
			return
		}
	}
}

var errSessionClosed = errors.New("syncproto: session closed")

// Handshake exchanges tip sets with the peer, the way a kaspad peer
// advertises SelectedTipHash on connect.
func (s *Synchronizer) Handshake(ctx context.Context) error {
	s.setState(StateHandshaking)
	ourTips, err := s.ourTips()
	if err != nil {
		return errors.Wrap(err, "syncproto: gathering local tips")
	}
	if err := s.session.Send(Handshake{Tips: ourTips}); err != nil {
		return errors.Wrap(err, "syncproto: sending handshake")
	}
	msg, err := s.session.Recv(ctx)
	if err != nil {
		return errors.Wrap(err, "syncproto: receiving handshake")
	}
	hs, ok := msg.(Handshake)
	if !ok {
		return errors.Errorf("syncproto: expected handshake, got %s", msg.Kind())
	}
	s.mu.Lock()
	s.remoteTips = hs.Tips
	s.mu.Unlock()
	s.setState(StateExchanging)
	return nil
}

func (s *Synchronizer) ourTips() ([]primitives.Hash, error) {
	indices := chainindex.All(s.flow.GroupCount())
	tips := make([]primitives.Hash, len(indices))
	for i, ci := range indices {
		tip, err := s.flow.BestTip(ci)
		if err != nil {
			return nil, err
		}
		tips[i] = tip
	}
	return tips, nil
}

// needsSync reports whether the peer's last-known tips include a hash
// this BlockFlow doesn't have, mirroring selectPeerForIBD's
// !dag.IsInDAG(peerSelectedTipHash) check.
func (s *Synchronizer) needsSync() (bool, error) {
	s.mu.Lock()
	remote := append([]primitives.Hash{}, s.remoteTips...)
	s.mu.Unlock()
	indices := chainindex.All(s.flow.GroupCount())
	for i, ci := range indices {
		if i >= len(remote) {
			break
		}
		if remote[i] == primitives.ZeroHash {
			continue
		}
		known, err := s.flow.Has(ci, remote[i])
		if err != nil {
			return false, err
		}
		if !known {
			return true, nil
		}
	}
	return false, nil
}

// StartIfRequired checks needsSync and, if so, runs one ExchangeOnce
// round; otherwise it marks the session Synced. Grounded on
// StartIBDIfRequired's peer-selection-then-IBD-start shape, simplified
// to a single already-selected peer.
func (s *Synchronizer) StartIfRequired(ctx context.Context) error {
	need, err := s.needsSync()
	if err != nil {
		return err
	}
	if !need {
		s.setState(StateSynced)
		return nil
	}
	s.setState(StateSyncing)
	return s.ExchangeOnce(ctx)
}

// ExchangeOnce sends our locators, waits for the peer's SyncResponse, and
// records the inventories for a caller to fetch and submit. It then
// calls FinishSync, which sets Synced when every inventory is empty and
// Syncing otherwise, and returns — the FinishIBD pattern.
func (s *Synchronizer) ExchangeOnce(ctx context.Context) error {
	raw := s.flow.GetSyncLocators()
	locators := make([]Locator, len(raw))
	for i, l := range raw {
		locators[i] = Locator(l)
	}
	if err := s.session.Send(SyncRequest{Locators: locators}); err != nil {
		return errors.Wrap(err, "syncproto: sending sync request")
	}
	msg, err := s.session.Recv(ctx)
	if err != nil {
		return errors.Wrap(err, "syncproto: receiving sync response")
	}
	resp, ok := msg.(SyncResponse)
	if !ok {
		return errors.Errorf("syncproto: expected sync response, got %s", msg.Kind())
	}
	s.mu.Lock()
	s.lastInventories = resp.Inventories
	s.mu.Unlock()
	return s.FinishSync(ctx)
}

// FinishSync settles the state after an exchange: synced if nothing
// remains outstanding with the peer's advertised tips, otherwise another
// round is required. Grounded on FlowContext.FinishIBD's
// clear-flag-then-StartIBDIfRequired loop.
func (s *Synchronizer) FinishSync(ctx context.Context) error {
	anyNew := false
	s.mu.Lock()
	for _, inv := range s.lastInventories {
		if len(inv) > 0 {
			anyNew = true
			break
		}
	}
	s.mu.Unlock()
	if !anyNew {
		s.setState(StateSynced)
		return nil
	}
	s.setState(StateSyncing)
	return nil
}

// RespondToRequest answers a received SyncRequest with local inventories,
// the server-side half of an exchange; callers that implement a
// PeerSession's receive loop for inbound requests call this directly
// rather than driving it through run().
func (s *Synchronizer) RespondToRequest(req SyncRequest) (SyncResponse, error) {
	raw := make([][]primitives.Hash, len(req.Locators))
	for i, l := range req.Locators {
		raw[i] = []primitives.Hash(l)
	}
	invRaw := s.flow.GetSyncInventories(raw)
	inv := make([]Inventory, len(invRaw))
	for i, r := range invRaw {
		inv[i] = Inventory(r)
	}
	return SyncResponse{Inventories: inv}, nil
}
