package cidutil

import (
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

func TestCommit_MatchesCIDv1RawSHA256(t *testing.T) {
	got, err := Commit("ipfs://x")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if got.String() != CIDv1RawSHA256([]byte("ipfs://x")) {
		t.Fatalf("commitment mismatch: %s", got)
	}
	if got.Version() != 1 || got.Type() != cid.Raw {
		t.Fatalf("unexpected cid encoding: v%d codec %x", got.Version(), got.Type())
	}
}

func TestCommit_Deterministic(t *testing.T) {
	a, err := Commit("same")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	b, err := Commit("same")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if !a.Equals(b) {
		t.Fatalf("expected identical commitments")
	}
	c, err := Commit("other")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if a.Equals(c) {
		t.Fatalf("expected different payloads to commit differently")
	}
}

func TestParseCommitment(t *testing.T) {
	want, err := Commit("ar://payload")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	got, err := ParseCommitment(want.String())
	if err != nil {
		t.Fatalf("ParseCommitment: %v", err)
	}
	if !got.Equals(want) {
		t.Fatalf("round trip mismatch")
	}

	sum, err := multihash.Sum([]byte("x"), multihash.SHA2_256, -1)
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	v0 := cid.NewCidV0(sum)
	if _, err := ParseCommitment(v0.String()); err == nil {
		t.Fatalf("expected CIDv0 to be rejected")
	}
	if _, err := ParseCommitment("not-a-cid"); err == nil {
		t.Fatalf("expected garbage to be rejected")
	}
}

func TestMatches(t *testing.T) {
	id, err := Commit("ipfs://x")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if !Matches(id, "ipfs://x") {
		t.Fatalf("expected match")
	}
	if Matches(id, "ipfs://y") {
		t.Fatalf("expected mismatch")
	}
	if Matches(cid.Undef, "ipfs://x") {
		t.Fatalf("undefined commitment must never match")
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("ipfs://x")
	if a == "" {
		t.Fatalf("empty fingerprint")
	}
	if a != Fingerprint("ipfs://x") {
		t.Fatalf("fingerprint not deterministic")
	}
	if a == Fingerprint("ipfs://y") {
		t.Fatalf("expected distinct fingerprints")
	}
	mh, err := multihash.FromHexString(a)
	if err != nil {
		t.Fatalf("FromHexString: %v", err)
	}
	dec, err := multihash.Decode(mh)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if dec.Code != multihash.SHA3_256 {
		t.Fatalf("expected sha3-256, got %x", dec.Code)
	}
}
