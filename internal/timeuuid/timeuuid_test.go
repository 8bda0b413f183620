package timeuuid

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestWriteReadRoundTrip(t *testing.T) {
	u, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	stored, err := Write(u)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Read(stored)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.String() != u.String() {
		t.Fatalf("round trip mismatch: got %s, want %s", got, u)
	}
}

func TestWriteRejectsNonV1(t *testing.T) {
	// a v4 UUID's version nibble isn't '1'; Write must reject it rather than
	// silently mis-rewrite the bytes.
	if _, err := Write(uuid.New()); err == nil {
		t.Fatal("expected error writing a non-v1 UUID")
	}
}

func TestChronologicalOrderCorrespondence(t *testing.T) {
	// successive mints, each strictly later in time, must produce storage
	// forms that sort in the same order as minting (spec.md §4.1).
	var stored []string
	for i := 0; i < 5; i++ {
		u, err := New()
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		s, err := Write(u)
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		stored = append(stored, s)
		time.Sleep(time.Millisecond)
	}
	for i := 1; i < len(stored); i++ {
		if !Less(stored[i-1], stored[i]) && stored[i-1] != stored[i] {
			t.Fatalf("stored forms not chronologically ordered: %q then %q", stored[i-1], stored[i])
		}
	}
}

func TestMintReturnsConsistentTime(t *testing.T) {
	stored, millis, err := Mint()
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	parsed, err := Read(stored)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	sec, nsec := parsed.Time().UnixTime()
	want := sec*1000 + nsec/1_000_000
	if millis != want {
		t.Fatalf("Mint millis = %d, want %d", millis, want)
	}
	now := time.Now().UnixMilli()
	if millis > now+1000 || millis < now-60_000 {
		t.Fatalf("Mint millis %d far from wall clock %d", millis, now)
	}
}

func TestMintUUIDReturnsCanonicalForm(t *testing.T) {
	u, millis, err := MintUUID()
	if err != nil {
		t.Fatalf("MintUUID: %v", err)
	}
	if u.Version() != 1 {
		t.Fatalf("MintUUID version = %d, want 1", u.Version())
	}
	if _, err := uuid.Parse(u.String()); err != nil {
		t.Fatalf("MintUUID did not return a parseable canonical string: %v", err)
	}
	if stored, err := Write(u); err != nil || stored == u.String() {
		t.Fatalf("expected Write(u) to differ from the canonical form, got %q, err %v", stored, err)
	}
	if millis <= 0 {
		t.Fatalf("MintUUID millis = %d, want positive", millis)
	}
}

func TestReadRejectsMalformed(t *testing.T) {
	if _, err := Read("not-a-valid-stored-form"); err == nil {
		t.Fatal("expected error for malformed stored form")
	}
}
