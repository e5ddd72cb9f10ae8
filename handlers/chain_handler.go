package handlers

import (
	"sync"

	"github.com/Jantoko/alephium/chainindex"
	"github.com/Jantoko/alephium/logs"
	"github.com/pkg/errors"
)

// ChainHandler owns the mailbox for one full (body-retaining) chain: it
// does stateless structural checks on incoming blocks, then forwards
// accepted candidates to the FlowHandler, the mesh's sole DAG mutator
// (§9). Modeled on the teacher's per-flow validation pipeline
// (protocol/flowcontext) generalized from one actor per peer to one
// goroutine per chain.
type ChainHandler struct {
	chainIndex chainindex.ChainIndex
	flow       *FlowHandler
	log        logs.Logger
	mailbox    *Mailbox

	wg sync.WaitGroup
}

// NewChainHandler builds a ChainHandler for ci, forwarding accepted
// blocks into flow.
func NewChainHandler(ci chainindex.ChainIndex, flow *FlowHandler, log logs.Logger) *ChainHandler {
	return &ChainHandler{chainIndex: ci, flow: flow, log: log, mailbox: NewMailbox()}
}

// Mailbox returns this handler's inbox, for AllHandlers' dispatcher.
func (h *ChainHandler) Mailbox() *Mailbox { return h.mailbox }

// Start launches the handler's processing goroutine.
func (h *ChainHandler) Start() {
	h.wg.Add(1)
	go h.run()
}

// Stop closes the mailbox and waits for the goroutine to exit.
func (h *ChainHandler) Stop() {
	h.mailbox.Close()
	h.wg.Wait()
}

func (h *ChainHandler) run() {
	defer h.wg.Done()
	for {
		msg, err := h.mailbox.Dequeue()
		if err != nil {
			return
		}
		ib, ok := msg.(IncomingBlock)
		if !ok {
			continue
		}
		if err := validateIncomingBlock(h.chainIndex, ib); err != nil {
			h.log.Warnf("rejecting block on %s: %v", h.chainIndex, err)
			continue
		}
		result, err := h.flow.AddBlock(h.chainIndex, ib.Block)
		if err != nil {
			h.log.Errorf("adding block on %s: %v", h.chainIndex, err)
			continue
		}
		h.log.Debugf("block %s on %s: %v", ib.Block.Hash(), h.chainIndex, result)
	}
}

// validateIncomingBlock performs the structural checks a ChainHandler can
// do without touching shared DAG state: the message is for the chain this
// handler owns, and the block carries at least one dependency.
func validateIncomingBlock(ci chainindex.ChainIndex, ib IncomingBlock) error {
	if ib.ChainIndex != ci {
		return errors.Errorf("block routed to chain %s, handler owns %s", ib.ChainIndex, ci)
	}
	if ib.Block == nil {
		return errors.New("nil block")
	}
	if len(ib.Block.Header.BlockDeps) == 0 {
		return errors.New("block has no dependencies")
	}
	return nil
}
