package config

import (
	"testing"
	"time"

	"github.com/Jantoko/alephium/chainindex"
)

func validConfig() NodeConfig {
	return NodeConfig{
		GroupCount:         2,
		Broker:             BrokerConfig{From: 0, Until: 2},
		MainGroup:          0,
		BlockTargetTime:    time.Second,
		NonceStep:          1,
		RetargetWindowSize: 4,
	}
}

func TestValidateAcceptsAWellFormedConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsBadGroupCount(t *testing.T) {
	c := validConfig()
	c.GroupCount = 0
	if err := c.Validate(); err == nil {
		t.Fatalf("expected an error for a non-positive GroupCount")
	}
}

func TestValidateRejectsMainGroupOutOfRange(t *testing.T) {
	c := validConfig()
	c.MainGroup = 5
	if err := c.Validate(); err == nil {
		t.Fatalf("expected an error for a MainGroup outside [0,GroupCount)")
	}
}

func TestValidateRejectsInvertedBrokerRange(t *testing.T) {
	c := validConfig()
	c.Broker = BrokerConfig{From: 1, Until: 1}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected an error for an empty/inverted broker range")
	}
}

func TestBrokerConfigRelatesTo(t *testing.T) {
	b := BrokerConfig{From: 0, Until: 1}
	owned := chainindex.ChainIndex{From: 0, To: 1}
	notOwned := chainindex.ChainIndex{From: 1, To: 1}
	if !b.RelatesTo(owned) {
		t.Fatalf("expected broker to relate to a chain with From in its range")
	}
	if b.RelatesTo(notOwned) {
		t.Fatalf("expected broker to not relate to a chain entirely outside its range")
	}
}

func TestNumDepsPerBlockIsGroupCountSquared(t *testing.T) {
	c := validConfig()
	c.GroupCount = 3
	if got := c.NumDepsPerBlock(); got != 9 {
		t.Fatalf("NumDepsPerBlock() = %d, want 9", got)
	}
}
