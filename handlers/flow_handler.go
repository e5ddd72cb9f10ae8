package handlers

import (
	"sync"
	"sync/atomic"

	"github.com/Jantoko/alephium/blockflow"
	"github.com/Jantoko/alephium/chainindex"
	"github.com/Jantoko/alephium/clock"
	"github.com/Jantoko/alephium/config"
	"github.com/Jantoko/alephium/eventbus"
	"github.com/Jantoko/alephium/logs"
	"github.com/Jantoko/alephium/primitives"
	"github.com/Jantoko/alephium/store"
)

// FlowHandler is the mesh's single global DAG serializer: every insertion
// into the BlockFlow core is funneled through its mailbox and applied by
// its own dedicated goroutine, so BlockFlow.Add is never called
// concurrently (§9, grounded on protocol/flowcontext.FlowContext being the
// one place DAG-wide state is mutated).
type FlowHandler struct {
	cfg     config.NodeConfig
	flow    *blockflow.BlockFlow
	chains  *store.ChainStore
	bus     *eventbus.Bus
	log     logs.Logger
	clk     clock.Clock
	mailbox *Mailbox

	blocksSinceprune uint64
	wg               sync.WaitGroup
	stopped          int32
}

// NewFlowHandler builds a FlowHandler over an already-constructed
// BlockFlow and persistence layer. clk supplies "now" for tip-set pruning's
// age check.
func NewFlowHandler(cfg config.NodeConfig, flow *blockflow.BlockFlow, chains *store.ChainStore, bus *eventbus.Bus, log logs.Logger, clk clock.Clock) *FlowHandler {
	return &FlowHandler{
		cfg:     cfg,
		flow:    flow,
		chains:  chains,
		bus:     bus,
		log:     log,
		clk:     clk,
		mailbox: NewMailbox(),
	}
}

// Start launches the serializer goroutine.
func (h *FlowHandler) Start() {
	h.wg.Add(1)
	go h.run()
}

// Stop closes the mailbox and waits for the goroutine to drain.
func (h *FlowHandler) Stop() {
	atomic.StoreInt32(&h.stopped, 1)
	h.mailbox.Close()
	h.wg.Wait()
}

func (h *FlowHandler) run() {
	defer h.wg.Done()
	for {
		msg, err := h.mailbox.Dequeue()
		if err != nil {
			return
		}
		switch m := msg.(type) {
		case addBlockToFlow:
			h.handleAddBlock(m)
		case addHeaderToFlow:
			h.handleAddHeader(m)
		}
	}
}

func (h *FlowHandler) handleAddBlock(m addBlockToFlow) {
	result, err := h.flow.Add(m.ChainIndex, m.Block)
	if err == nil && result == blockflow.AddResultAccepted && h.chains != nil {
		height, _ := h.flow.Height(m.ChainIndex, m.Block.Hash())
		if persistErr := h.chains.PutBlock(m.ChainIndex, height, m.Block); persistErr != nil {
			h.log.Errorf("persisting block %s on %s: %v", m.Block.Hash(), m.ChainIndex, persistErr)
		}
		h.publishTxConfirmations(m.ChainIndex, m.Block)
	}
	h.maybePrune()
	if m.reply != nil {
		m.reply <- addResult{result: result, err: err}
	}
}

func (h *FlowHandler) handleAddHeader(m addHeaderToFlow) {
	block := &blockflow.Block{Header: *m.Header}
	result, err := h.flow.Add(m.ChainIndex, block)
	if err == nil && result == blockflow.AddResultAccepted && h.chains != nil {
		height, _ := h.flow.Height(m.ChainIndex, block.Hash())
		if persistErr := h.chains.PutHeader(m.ChainIndex, height, m.Header); persistErr != nil {
			h.log.Errorf("persisting header %s on %s: %v", block.Hash(), m.ChainIndex, persistErr)
		}
	}
	h.maybePrune()
	if m.reply != nil {
		m.reply <- addResult{result: result, err: err}
	}
}

func (h *FlowHandler) publishTxConfirmations(ci chainindex.ChainIndex, block *blockflow.Block) {
	if h.bus == nil {
		return
	}
	for _, tx := range block.Transactions {
		h.bus.Publish(TxConfirmed{ChainIndex: ci, TxHash: tx.Hash(), BlockHash: block.Hash()})
	}
}

// maybePrune runs tip-set pruning every TipsPruneInterval handled block or
// header adds, whether or not each add was accepted,
// modeled on the teacher's periodic FinalityInterval bookkeeping: tips
// dominated by a heavier sibling and older than TipsPruneDuration() are
// discarded from their chain's tip set (§4.1).
func (h *FlowHandler) maybePrune() {
	h.blocksSinceprune++
	if h.cfg.TipsPruneInterval == 0 || h.blocksSinceprune < h.cfg.TipsPruneInterval {
		return
	}
	h.blocksSinceprune = 0
	pruned := h.flow.PruneTips(h.clk.NowMillis())
	if pruned > 0 {
		h.log.Debugf("pruned %d dominated tip(s) older than %s", pruned, h.cfg.TipsPruneDuration())
	}
}

// AddBlock submits block for insertion and blocks until the FlowHandler
// has processed it.
func (h *FlowHandler) AddBlock(ci chainindex.ChainIndex, block *blockflow.Block) (blockflow.AddResult, error) {
	reply := make(chan addResult, 1)
	if err := h.mailbox.Enqueue(addBlockToFlow{ChainIndex: ci, Block: block, reply: reply}); err != nil {
		return 0, err
	}
	r := <-reply
	return r.result, r.err
}

// AddHeader submits header for insertion and blocks until processed.
func (h *FlowHandler) AddHeader(ci chainindex.ChainIndex, header *blockflow.BlockHeader) (blockflow.AddResult, error) {
	reply := make(chan addResult, 1)
	if err := h.mailbox.Enqueue(addHeaderToFlow{ChainIndex: ci, Header: header, reply: reply}); err != nil {
		return 0, err
	}
	r := <-reply
	return r.result, r.err
}

// GetBestDeps is a read-only passthrough to the underlying BlockFlow,
// safe to call from any goroutine (miners building a template, peers
// building a locator) without going through the mailbox.
func (h *FlowHandler) GetBestDeps(ci chainindex.ChainIndex) (blockflow.BlockDeps, error) {
	return h.flow.GetBestDeps(ci)
}

// NextTarget is a read-only passthrough for the retargeter.
func (h *FlowHandler) NextTarget(ci chainindex.ChainIndex) (primitives.Hash, error) {
	return h.flow.NextTarget(ci)
}
