package handlers

import (
	"bytes"
	"sync"

	"github.com/Jantoko/alephium/blockflow"
	"github.com/Jantoko/alephium/chainindex"
	"github.com/Jantoko/alephium/kvstore"
	"github.com/Jantoko/alephium/logs"
	"github.com/Jantoko/alephium/primitives"
)

// TxHandler validates and relays transactions between submitters and
// chain handlers, holding two pools (pending: not yet structurally
// checked, ready: checked and awaiting a miner's template) the way the
// teacher's mempool splits its main pool from its orphan pool
// (domain/mempool.TxPool.pool/orphans), generalized to this node's
// chain-per-group sharding.
type TxHandler struct {
	db      kvstore.Store
	pending kvstore.Bucket
	ready   kvstore.Bucket
	log     logs.Logger
	mailbox *Mailbox

	mu  sync.Mutex
	seen map[primitives.Hash]struct{}

	wg sync.WaitGroup
}

// NewTxHandler builds a TxHandler over db's PendingTx/ReadyTx column
// families.
func NewTxHandler(db kvstore.Store, log logs.Logger) *TxHandler {
	return &TxHandler{
		db:      db,
		pending: kvstore.NewBucket(kvstore.CFPendingTx),
		ready:   kvstore.NewBucket(kvstore.CFReadyTx),
		log:     log,
		mailbox: NewMailbox(),
		seen:    map[primitives.Hash]struct{}{},
	}
}

// Mailbox returns this handler's inbox.
func (h *TxHandler) Mailbox() *Mailbox { return h.mailbox }

// Start launches the handler's processing goroutine.
func (h *TxHandler) Start() {
	h.wg.Add(1)
	go h.run()
}

// Stop closes the mailbox and waits for the goroutine to exit.
func (h *TxHandler) Stop() {
	h.mailbox.Close()
	h.wg.Wait()
}

func (h *TxHandler) run() {
	defer h.wg.Done()
	for {
		msg, err := h.mailbox.Dequeue()
		if err != nil {
			return
		}
		it, ok := msg.(IncomingTx)
		if !ok {
			continue
		}
		if err := h.accept(it); err != nil {
			h.log.Warnf("rejecting tx on %s: %v", it.ChainIndex, err)
		}
	}
}

// HaveTransaction reports whether hash is in the handler's seen set (every
// transaction it has accepted, including coinbase transactions that never
// enter the pool),
// mirroring the teacher's TxPool.haveTransaction dedup check.
func (h *TxHandler) HaveTransaction(hash primitives.Hash) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.seen[hash]
	return ok
}

func (h *TxHandler) accept(it IncomingTx) error {
	hash := it.Tx.Hash()
	h.mu.Lock()
	if _, dup := h.seen[hash]; dup {
		h.mu.Unlock()
		return nil
	}
	h.seen[hash] = struct{}{}
	h.mu.Unlock()

	buf := &bytes.Buffer{}
	if err := it.Tx.Encode(buf); err != nil {
		return err
	}
	// Coinbase-shaped transactions (no inputs) never belong in the
	// mempool; only block assembly produces them.
	if it.Tx.IsCoinbase() {
		return nil
	}
	return h.db.Put(h.pending.Key(hash[:]), buf.Bytes())
}

// PromoteReady moves a pending transaction into the ready pool, for a
// miner's template builder to pull from.
func (h *TxHandler) PromoteReady(hash primitives.Hash) error {
	v, err := h.db.Get(h.pending.Key(hash[:]))
	if err != nil {
		return err
	}
	return h.db.Batch([]kvstore.BatchOp{
		{Key: h.pending.Key(hash[:]), Delete: true},
		{Key: h.ready.Key(hash[:]), Value: v},
	})
}

// ChainFor determines which chain a transaction belongs to, by the group
// its first input's short key implies; a coinbase has no inputs and is
// assigned by the caller instead.
func ChainFor(tx *blockflow.Transaction, groupCount int) (chainindex.ChainIndex, bool) {
	if len(tx.Unsigned.Inputs) == 0 {
		return chainindex.ChainIndex{}, false
	}
	from := int(tx.Unsigned.Inputs[0].ShortKey[0]) % groupCount
	to := from
	if len(tx.Unsigned.Outputs) > 0 && len(tx.Unsigned.Outputs[0].LockupScript) > 0 {
		to = int(tx.Unsigned.Outputs[0].LockupScript[0]) % groupCount
	}
	ci, err := chainindex.New(chainindex.Group(from), chainindex.Group(to), groupCount)
	if err != nil {
		return chainindex.ChainIndex{}, false
	}
	return ci, true
}
