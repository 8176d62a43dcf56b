package catalog

import "testing"

func TestIsKnown(t *testing.T) {
	if !IsKnown(ApproveListings) {
		t.Fatalf("expected APPROVE_LISTINGS to be known")
	}
	if IsKnown(Permission("DELETE_EVERYTHING")) {
		t.Fatalf("expected DELETE_EVERYTHING to be unknown")
	}
	// Tags are case-sensitive.
	if IsKnown(Permission("approve_listings")) {
		t.Fatalf("expected lowercase tag to be unknown")
	}
}

func TestAllCoversEveryTagOnce(t *testing.T) {
	tags := All()
	if len(tags) != Size() {
		t.Fatalf("expected %d tags, got %d", Size(), len(tags))
	}
	seen := make(map[Permission]bool, len(tags))
	for _, p := range tags {
		if seen[p] {
			t.Fatalf("duplicate tag %s", p)
		}
		seen[p] = true
		if !IsKnown(p) {
			t.Fatalf("tag %s listed but not indexed", p)
		}
	}
}

func TestAllReturnsCopy(t *testing.T) {
	tags := All()
	tags[0] = Permission("MUTATED")
	if All()[0] == Permission("MUTATED") {
		t.Fatalf("All must not expose the internal slice")
	}
}
