package handlers

import (
	"sync"

	"github.com/Jantoko/alephium/chainindex"
	"github.com/Jantoko/alephium/logs"
	"github.com/pkg/errors"
)

// HeaderHandler is ChainHandler's counterpart for chains this broker does
// not relate to (§3 RelatesTo): it only ever sees and forwards headers,
// never full bodies, since the local node has no reason to store them.
type HeaderHandler struct {
	chainIndex chainindex.ChainIndex
	flow       *FlowHandler
	log        logs.Logger
	mailbox    *Mailbox

	wg sync.WaitGroup
}

// NewHeaderHandler builds a HeaderHandler for ci.
func NewHeaderHandler(ci chainindex.ChainIndex, flow *FlowHandler, log logs.Logger) *HeaderHandler {
	return &HeaderHandler{chainIndex: ci, flow: flow, log: log, mailbox: NewMailbox()}
}

// Mailbox returns this handler's inbox.
func (h *HeaderHandler) Mailbox() *Mailbox { return h.mailbox }

// Start launches the handler's processing goroutine.
func (h *HeaderHandler) Start() {
	h.wg.Add(1)
	go h.run()
}

// Stop closes the mailbox and waits for the goroutine to exit.
func (h *HeaderHandler) Stop() {
	h.mailbox.Close()
	h.wg.Wait()
}

func (h *HeaderHandler) run() {
	defer h.wg.Done()
	for {
		msg, err := h.mailbox.Dequeue()
		if err != nil {
			return
		}
		ih, ok := msg.(IncomingHeader)
		if !ok {
			continue
		}
		if err := validateIncomingHeader(h.chainIndex, ih); err != nil {
			h.log.Warnf("rejecting header on %s: %v", h.chainIndex, err)
			continue
		}
		result, err := h.flow.AddHeader(h.chainIndex, ih.Header)
		if err != nil {
			h.log.Errorf("adding header on %s: %v", h.chainIndex, err)
			continue
		}
		h.log.Debugf("header %s on %s: %v", ih.Header.Hash(), h.chainIndex, result)
	}
}

func validateIncomingHeader(ci chainindex.ChainIndex, ih IncomingHeader) error {
	if ih.ChainIndex != ci {
		return errors.Errorf("header routed to chain %s, handler owns %s", ih.ChainIndex, ci)
	}
	if ih.Header == nil {
		return errors.New("nil header")
	}
	if len(ih.Header.BlockDeps) == 0 {
		return errors.New("header has no dependencies")
	}
	return nil
}
