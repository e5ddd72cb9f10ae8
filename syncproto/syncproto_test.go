package syncproto

import (
	"context"
	"testing"
	"time"

	"github.com/Jantoko/alephium/blockflow"
	"github.com/Jantoko/alephium/chainindex"
	"github.com/Jantoko/alephium/config"
	"github.com/Jantoko/alephium/primitives"
)

func testConfig(groupCount int) config.NodeConfig {
	return config.NodeConfig{
		GroupCount:            groupCount,
		Broker:                config.BrokerConfig{From: 0, Until: chainindex.Group(groupCount)},
		MainGroup:             0,
		BlockTargetTime:       time.Second,
		MaxMiningTarget:       allOnes(),
		NumZerosAtLeastInHash: 0,
		RetargetWindowSize:    4,
		NonceStep:             1,
		MaxOrphanBlocks:       16,
		TipsPruneInterval:     100,
		CallGas:               1,
	}
}

func allOnes() primitives.Hash {
	var h primitives.Hash
	for i := range h {
		h[i] = 0xff
	}
	return h
}

func genesisHeaders(groupCount int) []*blockflow.BlockHeader {
	indices := chainindex.All(groupCount)
	out := make([]*blockflow.BlockHeader, len(indices))
	for i, ci := range indices {
		out[i] = &blockflow.BlockHeader{
			TxMerkleRoot: primitives.Keccak256([]byte("genesis"), []byte{byte(ci.From)}, []byte{byte(ci.To)}),
			Target:       allOnes(),
		}
	}
	return out
}

// serveOnce answers exactly one inbound message on session: a Handshake
// with our own tips, or a SyncRequest with local inventories.
func serveOnce(t *testing.T, sync *Synchronizer, session PeerSession) {
	t.Helper()
	msg, err := session.Recv(context.Background())
	if err != nil {
		t.Fatalf("server Recv: %v", err)
	}
	switch m := msg.(type) {
	case Handshake:
		tips, err := sync.ourTips()
		if err != nil {
			t.Fatalf("ourTips: %v", err)
		}
		if err := session.Send(Handshake{Tips: tips}); err != nil {
			t.Fatalf("server Send handshake: %v", err)
		}
	case SyncRequest:
		resp, err := sync.RespondToRequest(m)
		if err != nil {
			t.Fatalf("RespondToRequest: %v", err)
		}
		if err := session.Send(resp); err != nil {
			t.Fatalf("server Send response: %v", err)
		}
	default:
		t.Fatalf("unexpected message kind %s", msg.Kind())
	}
}

func TestHandshakeExchangesTips(t *testing.T) {
	cfg := testConfig(1)
	clientFlow, err := blockflow.New(cfg, genesisHeaders(1), nil)
	if err != nil {
		t.Fatalf("blockflow.New: %v", err)
	}
	serverFlow, err := blockflow.New(cfg, genesisHeaders(1), nil)
	if err != nil {
		t.Fatalf("blockflow.New: %v", err)
	}
	clientSession, serverSession := NewPipe(4)
	client := New(clientFlow, clientSession)
	server := New(serverFlow, serverSession)

	done := make(chan struct{})
	go func() {
		serveOnce(t, server, serverSession)
		close(done)
	}()

	if err := client.Handshake(context.Background()); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	<-done

	if client.State() != StateExchanging {
		t.Fatalf("expected state exchanging, got %s", client.State())
	}
	if len(client.remoteTips) != 1 {
		t.Fatalf("expected 1 remote tip, got %d", len(client.remoteTips))
	}
}

func TestStartIfRequiredSettlesSyncedWhenTipsMatch(t *testing.T) {
	cfg := testConfig(1)
	clientFlow, err := blockflow.New(cfg, genesisHeaders(1), nil)
	if err != nil {
		t.Fatalf("blockflow.New: %v", err)
	}
	serverFlow, err := blockflow.New(cfg, genesisHeaders(1), nil)
	if err != nil {
		t.Fatalf("blockflow.New: %v", err)
	}
	clientSession, serverSession := NewPipe(4)
	client := New(clientFlow, clientSession)
	server := New(serverFlow, serverSession)

	done := make(chan struct{})
	go func() {
		serveOnce(t, server, serverSession)
		close(done)
	}()
	if err := client.Handshake(context.Background()); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	<-done

	// Both flows only have genesis, so the peer's tips are already known
	// locally: no exchange round should be required.
	if err := client.StartIfRequired(context.Background()); err != nil {
		t.Fatalf("StartIfRequired: %v", err)
	}
	if client.State() != StateSynced {
		t.Fatalf("expected state synced, got %s", client.State())
	}
}

func TestExchangeOnceReturnsPeerAheadInventory(t *testing.T) {
	cfg := testConfig(1)
	clientFlow, err := blockflow.New(cfg, genesisHeaders(1), nil)
	if err != nil {
		t.Fatalf("blockflow.New: %v", err)
	}
	serverFlow, err := blockflow.New(cfg, genesisHeaders(1), nil)
	if err != nil {
		t.Fatalf("blockflow.New: %v", err)
	}

	// Mine one extra block on the server's chain (0,0) so it's ahead.
	ci := chainindex.ChainIndex{From: 0, To: 0}
	deps, err := serverFlow.GetBestDeps(ci)
	if err != nil {
		t.Fatalf("GetBestDeps: %v", err)
	}
	block := &blockflow.Block{Header: blockflow.BlockHeader{
		BlockDeps:    deps,
		TxMerkleRoot: primitives.Keccak256([]byte("extra")),
		Timestamp:    blockflow.Timestamp{Seconds: 1},
		Target:       allOnes(),
	}}
	if _, err := serverFlow.Add(ci, block); err != nil {
		t.Fatalf("Add: %v", err)
	}

	clientSession, serverSession := NewPipe(4)
	client := New(clientFlow, clientSession)
	server := New(serverFlow, serverSession)

	done := make(chan struct{})
	go func() {
		serveOnce(t, server, serverSession)
		close(done)
	}()
	if err := client.Handshake(context.Background()); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	<-done

	need, err := client.needsSync()
	if err != nil {
		t.Fatalf("needsSync: %v", err)
	}
	if !need {
		t.Fatalf("expected client to need sync against an ahead peer")
	}

	done2 := make(chan struct{})
	go func() {
		serveOnce(t, server, serverSession)
		close(done2)
	}()
	if err := client.ExchangeOnce(context.Background()); err != nil {
		t.Fatalf("ExchangeOnce: %v", err)
	}
	<-done2

	inv := client.PendingInventories()
	if len(inv) != 1 || len(inv[0]) == 0 {
		t.Fatalf("expected a non-empty inventory for chain (0,0), got %v", inv)
	}
	if inv[0][len(inv[0])-1] != block.Hash() {
		t.Fatalf("expected inventory to end at the server's extra block")
	}
}
