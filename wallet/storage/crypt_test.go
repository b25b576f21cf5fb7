package storage

import (
	"path/filepath"
	"testing"

	"github.com/nutcase-wallet/corewallet/cashu"
	"github.com/nutcase-wallet/corewallet/cashu/nuts/nut04"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wallet.db")
	sidecar := filepath.Join(dir, "wallet.db.pass")

	key, err := DeriveKey("correct horse battery staple", sidecar)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}

	snapshot := &Snapshot{
		MintURL: "https://mint.example.com",
		Unit:    "sat",
		Proofs: cashu.Proofs{
			{Amount: 4, Id: "00456a94ab4e1c46", Secret: "abc", C: "02" + "11"},
		},
		MintQuotes: []MintQuote{
			{QuoteId: "q1", Amount: 4, Unit: "sat", State: nut04.Unpaid},
		},
	}

	if err := Save(snapshot, path, key); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path, key)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.MintURL != snapshot.MintURL {
		t.Errorf("MintURL: got %q want %q", loaded.MintURL, snapshot.MintURL)
	}
	if len(loaded.Proofs) != 1 || loaded.Proofs[0].Secret != "abc" {
		t.Errorf("proofs did not round-trip: got %+v", loaded.Proofs)
	}
	if len(loaded.MintQuotes) != 1 || loaded.MintQuotes[0].QuoteId != "q1" {
		t.Errorf("mint quotes did not round-trip: got %+v", loaded.MintQuotes)
	}
}

func TestDeriveKeyRejectsWrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	sidecar := filepath.Join(dir, "wallet.db.pass")

	if _, err := DeriveKey("correct horse battery staple", sidecar); err != nil {
		t.Fatalf("DeriveKey (create): %v", err)
	}

	if _, err := DeriveKey("wrong passphrase", sidecar); err == nil {
		t.Fatal("expected error for wrong passphrase, got nil")
	}
}

func TestLoadRejectsWrongKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wallet.db")
	sidecarA := filepath.Join(dir, "a.pass")
	sidecarB := filepath.Join(dir, "b.pass")

	keyA, err := DeriveKey("passphrase-a", sidecarA)
	if err != nil {
		t.Fatalf("DeriveKey a: %v", err)
	}
	keyB, err := DeriveKey("passphrase-b", sidecarB)
	if err != nil {
		t.Fatalf("DeriveKey b: %v", err)
	}

	if err := Save(&Snapshot{MintURL: "https://mint.example.com"}, path, keyA); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := Load(path, keyB); err == nil {
		t.Fatal("expected decryption failure with wrong key, got nil")
	}
}
