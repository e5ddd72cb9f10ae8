package chainindex

import "testing"

func TestNewRejectsOutOfRangeGroups(t *testing.T) {
	if _, err := New(0, 2, 2); err == nil {
		t.Fatalf("expected an error for a group outside [0,2)")
	}
	ci, err := New(0, 1, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if ci.From != 0 || ci.To != 1 {
		t.Fatalf("unexpected ChainIndex: %+v", ci)
	}
}

func TestFlattenAndFromFlatRoundTrip(t *testing.T) {
	const groupCount = 4
	for _, ci := range All(groupCount) {
		flat := ci.Flatten(groupCount)
		if got := FromFlat(flat, groupCount); got != ci {
			t.Fatalf("FromFlat(Flatten(%v)) = %v, want %v", ci, got, ci)
		}
	}
}

func TestAllProducesGroupCountSquaredChainsInRowMajorOrder(t *testing.T) {
	const groupCount = 3
	all := All(groupCount)
	if len(all) != groupCount*groupCount {
		t.Fatalf("All(%d) returned %d chains, want %d", groupCount, len(all), groupCount*groupCount)
	}
	for i, ci := range all {
		if ci.Flatten(groupCount) != i {
			t.Fatalf("chain at index %d is %v, whose flattened index is %d, not %d", i, ci, ci.Flatten(groupCount), i)
		}
	}
}

func TestIsIntraGroup(t *testing.T) {
	if !(ChainIndex{From: 1, To: 1}).IsIntraGroup() {
		t.Fatalf("expected (1,1) to be intra-group")
	}
	if (ChainIndex{From: 0, To: 1}).IsIntraGroup() {
		t.Fatalf("expected (0,1) to not be intra-group")
	}
}
