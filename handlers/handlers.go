package handlers

import (
	"github.com/Jantoko/alephium/blockflow"
	"github.com/Jantoko/alephium/chainindex"
	"github.com/Jantoko/alephium/clock"
	"github.com/Jantoko/alephium/config"
	"github.com/Jantoko/alephium/eventbus"
	"github.com/Jantoko/alephium/kvstore"
	"github.com/Jantoko/alephium/logger"
	"github.com/Jantoko/alephium/store"
	"github.com/pkg/errors"
)

// AllHandlers is the composition root owning every handler's mailbox,
// matching protocol/manager.go's Manager composing one handler per peer
// flow (§9).
type AllHandlers struct {
	cfg config.NodeConfig

	flow    *FlowHandler
	chains  map[chainindex.ChainIndex]*ChainHandler
	headers map[chainindex.ChainIndex]*HeaderHandler
	tx      *TxHandler
}

// New wires a FlowHandler, one ChainHandler or HeaderHandler per chain
// (per cfg.Broker.RelatesTo), and a TxHandler over the given collaborators.
// clk supplies "now" for the flow handler's tip-set pruning cadence.
func New(cfg config.NodeConfig, flowCore *blockflow.BlockFlow, chainStore *store.ChainStore, db kvstore.Store, bus *eventbus.Bus, clk clock.Clock) (*AllHandlers, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "handlers: invalid config")
	}
	flow := NewFlowHandler(cfg, flowCore, chainStore, bus, logger.Subsystem(logger.SubsystemTags.HNDL), clk)

	chains := map[chainindex.ChainIndex]*ChainHandler{}
	headers := map[chainindex.ChainIndex]*HeaderHandler{}
	for _, ci := range chainindex.All(cfg.GroupCount) {
		if cfg.Broker.RelatesTo(ci) {
			chains[ci] = NewChainHandler(ci, flow, logger.Subsystem(logger.SubsystemTags.HNDL))
		} else {
			headers[ci] = NewHeaderHandler(ci, flow, logger.Subsystem(logger.SubsystemTags.HNDL))
		}
	}

	return &AllHandlers{
		cfg:     cfg,
		flow:    flow,
		chains:  chains,
		headers: headers,
		tx:      NewTxHandler(db, logger.Subsystem(logger.SubsystemTags.HNDL)),
	}, nil
}

// Start launches every handler's goroutine.
func (a *AllHandlers) Start() {
	a.flow.Start()
	for _, h := range a.chains {
		h.Start()
	}
	for _, h := range a.headers {
		h.Start()
	}
	a.tx.Start()
}

// Stop tears down every handler in reverse dependency order: leaf
// handlers first, then the serializer they all forward into.
func (a *AllHandlers) Stop() {
	a.tx.Stop()
	for _, h := range a.headers {
		h.Stop()
	}
	for _, h := range a.chains {
		h.Stop()
	}
	a.flow.Stop()
}

// Flow returns the mesh's FlowHandler, for read-only passthroughs (best
// deps, next target) that don't need full mailbox routing.
func (a *AllHandlers) Flow() *FlowHandler { return a.flow }

// Tx returns the mesh's TxHandler.
func (a *AllHandlers) Tx() *TxHandler { return a.tx }

// Dispatch routes a Message to the handler that owns its chain: an
// IncomingBlock goes to that chain's ChainHandler (or is rejected if this
// broker only tracks it as headers), an IncomingHeader to its
// HeaderHandler, an IncomingTx to the shared TxHandler.
func (a *AllHandlers) Dispatch(msg Message) error {
	switch m := msg.(type) {
	case IncomingBlock:
		h, ok := a.chains[m.ChainIndex]
		if !ok {
			return errors.Errorf("handlers: chain %s is headers-only on this broker", m.ChainIndex)
		}
		return h.mailbox.Enqueue(m)
	case IncomingHeader:
		h, ok := a.headers[m.ChainIndex]
		if !ok {
			return errors.Errorf("handlers: chain %s is full-body on this broker", m.ChainIndex)
		}
		return h.mailbox.Enqueue(m)
	case IncomingTx:
		return a.tx.mailbox.Enqueue(m)
	default:
		return errors.Errorf("handlers: unroutable message kind %s", msg.Kind())
	}
}
