package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// argon2Params are deliberately conservative for a client-side wallet
// unlock: it runs once per wallet open, not per request.
type argon2Params struct {
	time    uint32
	memory  uint32
	threads uint8
}

var defaultArgon2Params = argon2Params{time: 3, memory: 64 * 1024, threads: 4}

const saltSize = 16

// DeriveKey turns a passphrase into the wallet's 32-byte encryption key,
// verifying it against (or creating) a PHC-format sidecar file at
// sidecarPath so a wrong passphrase is rejected before an expensive or
// corrupt-file decrypt is attempted.
func DeriveKey(passphrase, sidecarPath string) ([32]byte, error) {
	var key [32]byte

	existing, err := os.ReadFile(sidecarPath)
	if errors.Is(err, os.ErrNotExist) {
		return createSidecar(passphrase, sidecarPath)
	}
	if err != nil {
		return key, fmt.Errorf("reading passphrase sidecar: %w", err)
	}

	params, salt, wantVerifier, err := parsePHC(strings.TrimSpace(string(existing)))
	if err != nil {
		return key, fmt.Errorf("parsing passphrase sidecar: %w", err)
	}

	out := argon2.IDKey([]byte(passphrase), salt, params.time, params.memory, params.threads, 64)
	gotVerifier := sha256.Sum256(out[32:])
	if subtle.ConstantTimeCompare(gotVerifier[:], wantVerifier) != 1 {
		return key, errors.New("incorrect passphrase")
	}

	copy(key[:], out[:32])
	return key, nil
}

func createSidecar(passphrase, sidecarPath string) ([32]byte, error) {
	var key [32]byte

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return key, err
	}

	params := defaultArgon2Params
	out := argon2.IDKey([]byte(passphrase), salt, params.time, params.memory, params.threads, 64)
	verifier := sha256.Sum256(out[32:])

	phc := fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		params.memory, params.time, params.threads,
		hex.EncodeToString(salt), hex.EncodeToString(verifier[:]))

	if err := writeFileAtomic(sidecarPath, []byte(phc)); err != nil {
		return key, fmt.Errorf("writing passphrase sidecar: %w", err)
	}

	copy(key[:], out[:32])
	return key, nil
}

func parsePHC(phc string) (argon2Params, []byte, []byte, error) {
	var params argon2Params

	fields := strings.Split(phc, "$")
	// fields[0] is empty (leading '$'), [1]=argon2id [2]=v=19 [3]=m=..,t=..,p=.. [4]=salt [5]=verifier
	if len(fields) != 6 || fields[1] != "argon2id" {
		return params, nil, nil, errors.New("unrecognized PHC format")
	}

	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); err != nil {
		return params, nil, nil, fmt.Errorf("invalid argon2 params: %w", err)
	}

	salt, err := hex.DecodeString(fields[4])
	if err != nil {
		return params, nil, nil, fmt.Errorf("invalid salt: %w", err)
	}

	verifier, err := hex.DecodeString(fields[5])
	if err != nil {
		return params, nil, nil, fmt.Errorf("invalid verifier: %w", err)
	}

	return params, salt, verifier, nil
}

// Save CBOR-encodes the snapshot, seals it with chacha20poly1305 under key,
// and writes it atomically (temp file + rename) so a crash mid-write never
// leaves a half-written wallet file.
func Save(snapshot *Snapshot, path string, key [32]byte) error {
	plaintext, err := cbor.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return writeFileAtomic(path, sealed)
}

// Load decrypts and CBOR-decodes the snapshot at path under key.
func Load(path string, key [32]byte) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading wallet file: %w", err)
	}

	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}

	if len(raw) < aead.NonceSize() {
		return nil, errors.New("wallet file is truncated")
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.New("failed to decrypt wallet file: wrong passphrase or corrupt file")
	}

	var snapshot Snapshot
	if err := cbor.Unmarshal(plaintext, &snapshot); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &snapshot, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, path)
}
