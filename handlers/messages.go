package handlers

import (
	"github.com/Jantoko/alephium/blockflow"
	"github.com/Jantoko/alephium/chainindex"
	"github.com/Jantoko/alephium/primitives"
)

// IncomingBlock asks a ChainHandler to validate and relay a full block.
type IncomingBlock struct {
	ChainIndex chainindex.ChainIndex
	Block      *blockflow.Block
}

// Kind implements Message.
func (IncomingBlock) Kind() string { return "IncomingBlock" }

// IncomingHeader asks a HeaderHandler to validate and relay a header-only
// announcement, for chains this broker does not relate to (§3 RelatesTo).
type IncomingHeader struct {
	ChainIndex chainindex.ChainIndex
	Header     *blockflow.BlockHeader
}

// Kind implements Message.
func (IncomingHeader) Kind() string { return "IncomingHeader" }

// addBlockToFlow is the internal message a ChainHandler forwards to the
// FlowHandler once it has done its own stateless checks; the FlowHandler
// is the only goroutine that ever calls BlockFlow.Add (§9 "single global
// serializer").
type addBlockToFlow struct {
	ChainIndex chainindex.ChainIndex
	Block      *blockflow.Block
	reply      chan addResult
}

func (addBlockToFlow) Kind() string { return "addBlockToFlow" }

type addHeaderToFlow struct {
	ChainIndex chainindex.ChainIndex
	Header     *blockflow.BlockHeader
	reply      chan addResult
}

func (addHeaderToFlow) Kind() string { return "addHeaderToFlow" }

type addResult struct {
	result blockflow.AddResult
	err    error
}

// IncomingTx asks the TxHandler to validate and relay a transaction.
type IncomingTx struct {
	ChainIndex chainindex.ChainIndex
	Tx         *blockflow.Transaction
}

// Kind implements Message.
func (IncomingTx) Kind() string { return "IncomingTx" }

// TxConfirmed is published on the event bus when a FlowHandler accepts a
// block, for every transaction the block contains (§6).
type TxConfirmed struct {
	ChainIndex chainindex.ChainIndex
	TxHash     primitives.Hash
	BlockHash  primitives.Hash
}

// EventName implements eventbus.Event.
func (TxConfirmed) EventName() string { return "handlers.TxConfirmed" }
