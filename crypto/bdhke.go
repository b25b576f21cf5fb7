// Package crypto implements the Blind Diffie-Hellman Key Exchange (BDHKE)
// primitives Cashu uses to issue and redeem ecash: hash-to-curve, blinding,
// signing, unblinding, and the DLEQ proof used to verify a signature was
// produced honestly. See NUT-00 and NUT-12.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// ErrNoValidPoint is returned by HashToCurve when no valid curve point was
// found within the counter range NUT-00 allows.
var ErrNoValidPoint = errors.New("crypto: hash_to_curve exhausted counter without finding a valid point")

const (
	domainSeparator = "Secp256k1_HashToCurve_Cashu_"
	maxCounter      = 1 << 16
)

// HashToCurve implements the NUT-00 hash_to_curve algorithm: it maps an
// arbitrary secret to a secp256k1 point with an unknown discrete log, so
// that neither the wallet nor the mint can forge Y = hash_to_curve(secret)
// from a chosen point.
func HashToCurve(secret []byte) (*secp256k1.PublicKey, error) {
	domainHash := sha256.Sum256(append([]byte(domainSeparator), secret...))

	var counter [4]byte
	for i := uint32(0); i < maxCounter; i++ {
		binary.LittleEndian.PutUint32(counter[:], i)

		msg := make([]byte, 0, len(domainHash)+4)
		msg = append(msg, domainHash[:]...)
		msg = append(msg, counter[:]...)
		candidate := sha256.Sum256(msg)

		// treat the hash as an x-only coordinate with even parity
		compressed := append([]byte{0x02}, candidate[:]...)
		point, err := secp256k1.ParsePubKey(compressed)
		if err != nil {
			continue
		}
		return point, nil
	}

	return nil, ErrNoValidPoint
}

// GenerateSecret draws 32 fresh random bytes for use as a proof secret.
// Per spec, secrets are never seed-derived: every output gets its own.
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// BlindMessage computes B_ = Y + rG for a fresh random blinding factor r,
// where Y = hash_to_curve(secret). It returns the blinded point to send to
// the mint and the scalar r the wallet must retain to unblind the response.
func BlindMessage(secret string) (B_ *secp256k1.PublicKey, r *secp256k1.PrivateKey, err error) {
	r, err = secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, nil, err
	}
	B_, err = BlindMessageWithFactor([]byte(secret), r)
	return B_, r, err
}

// BlindMessageWithFactor computes B_ = Y + rG for a caller-supplied blinding
// factor r. Exposed separately so DLEQ verification (NUT-12) can recompute
// B_ from a disclosed r without drawing a new one.
func BlindMessageWithFactor(secret []byte, r *secp256k1.PrivateKey) (*secp256k1.PublicKey, error) {
	Y, err := HashToCurve(secret)
	if err != nil {
		return nil, err
	}

	var yPoint, rPoint, sumPoint secp256k1.JacobianPoint
	Y.AsJacobian(&yPoint)
	r.PubKey().AsJacobian(&rPoint)
	secp256k1.AddNonConst(&yPoint, &rPoint, &sumPoint)
	sumPoint.ToAffine()

	return secp256k1.NewPublicKey(&sumPoint.X, &sumPoint.Y), nil
}

// SignBlindedMessage computes C_ = k*B_, the mint's signature over a blinded
// message under its amount-specific private key k.
func SignBlindedMessage(B_ *secp256k1.PublicKey, k *secp256k1.PrivateKey) *secp256k1.PublicKey {
	var bPoint, result secp256k1.JacobianPoint
	B_.AsJacobian(&bPoint)
	secp256k1.ScalarMultNonConst(&k.Key, &bPoint, &result)
	result.ToAffine()
	return secp256k1.NewPublicKey(&result.X, &result.Y)
}

// UnblindSignature computes C = C_ - rK, recovering the unblinded signature
// (the proof's C value) from the mint's blind signature, the wallet's own
// blinding factor r, and the mint's amount-specific public key K.
func UnblindSignature(C_ *secp256k1.PublicKey, r *secp256k1.PrivateKey, K *secp256k1.PublicKey) *secp256k1.PublicKey {
	var kPoint, rkPoint, cPoint, resultPoint secp256k1.JacobianPoint
	K.AsJacobian(&kPoint)

	var rNeg secp256k1.ModNScalar
	rNeg.NegateVal(&r.Key)
	secp256k1.ScalarMultNonConst(&rNeg, &kPoint, &rkPoint)

	C_.AsJacobian(&cPoint)
	secp256k1.AddNonConst(&cPoint, &rkPoint, &resultPoint)
	resultPoint.ToAffine()

	return secp256k1.NewPublicKey(&resultPoint.X, &resultPoint.Y)
}

// VerifyProof checks that C == k*hash_to_curve(secret), i.e. that the proof
// actually carries the mint's signature over its own secret.
func VerifyProof(secret string, k *secp256k1.PrivateKey, C *secp256k1.PublicKey) (bool, error) {
	Y, err := HashToCurve([]byte(secret))
	if err != nil {
		return false, err
	}

	var yPoint, result secp256k1.JacobianPoint
	Y.AsJacobian(&yPoint)
	secp256k1.ScalarMultNonConst(&k.Key, &yPoint, &result)
	result.ToAffine()
	expected := secp256k1.NewPublicKey(&result.X, &result.Y)

	return C.IsEqual(expected), nil
}

// uncompressed65 serializes a point as 65-byte uncompressed (0x04||X||Y) and
// hex-encodes it, matching the representation HashE concatenates.
func uncompressed65(pk *secp256k1.PublicKey) string {
	var point secp256k1.JacobianPoint
	pk.AsJacobian(&point)
	point.ToAffine()

	buf := make([]byte, 65)
	buf[0] = 0x04
	xBytes := point.X.Bytes()
	yBytes := point.Y.Bytes()
	copy(buf[1:33], xBytes[:])
	copy(buf[33:65], yBytes[:])
	return hex.EncodeToString(buf)
}

// HashE implements the NUT-12 DLEQ challenge hash: the four points are each
// serialized uncompressed, hex-encoded, concatenated as ASCII text (not
// concatenated as raw bytes), and SHA256'd. Interop depends on hashing the
// hex strings, not the underlying bytes.
func HashE(r1, r2, K, C_ *secp256k1.PublicKey) [32]byte {
	var sb []byte
	sb = append(sb, uncompressed65(r1)...)
	sb = append(sb, uncompressed65(r2)...)
	sb = append(sb, uncompressed65(K)...)
	sb = append(sb, uncompressed65(C_)...)
	return sha256.Sum256(sb)
}

// GenerateDLEQ produces the mint-side NUT-12 proof (e, s) over a blind
// signature, so a receiver can later verify the signature without trusting
// the mint's word for it.
func GenerateDLEQ(k *secp256k1.PrivateKey, K *secp256k1.PublicKey, B_, C_ *secp256k1.PublicKey) (e, s *secp256k1.PrivateKey, err error) {
	rnd, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, nil, err
	}

	var bPoint, r1Point, r2Point secp256k1.JacobianPoint
	B_.AsJacobian(&bPoint)
	secp256k1.ScalarMultNonConst(&rnd.Key, &bPoint, &r1Point)
	r1Point.ToAffine()
	r1 := secp256k1.NewPublicKey(&r1Point.X, &r1Point.Y)

	secp256k1.ScalarBaseMultNonConst(&rnd.Key, &r2Point)
	r2Point.ToAffine()
	r2 := secp256k1.NewPublicKey(&r2Point.X, &r2Point.Y)

	eHash := HashE(r2, r1, K, C_)
	e = secp256k1.PrivKeyFromBytes(eHash[:])

	// s = r + e*k
	var ek secp256k1.ModNScalar
	ek.Mul2(&e.Key, &k.Key)
	sScalar := rnd.Key
	sScalar.Add(&ek)
	s = secp256k1.NewPrivateKey(&sScalar)

	return e, s, nil
}

// VerifyDLEQ recomputes the DLEQ challenge from a disclosed (e, s) pair and
// checks it matches, proving C_ = k*B_ for the same k backing K without
// learning k: r1' = s*B_ - e*C_, r2' = s*G - e*K, and the challenge is
// hash_e(r2', r1', K, C_), with the G-based point first.
func VerifyDLEQ(e, s *secp256k1.PrivateKey, K, B_, C_ *secp256k1.PublicKey) bool {
	var negE secp256k1.ModNScalar
	negE.NegateVal(&e.Key)

	var sB, eC, r1Point secp256k1.JacobianPoint
	B_.AsJacobian(&sB)
	secp256k1.ScalarMultNonConst(&s.Key, &sB, &sB)
	C_.AsJacobian(&eC)
	secp256k1.ScalarMultNonConst(&negE, &eC, &eC)
	secp256k1.AddNonConst(&sB, &eC, &r1Point)
	r1Point.ToAffine()
	r1 := secp256k1.NewPublicKey(&r1Point.X, &r1Point.Y)

	var sG, eK, r2Point secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&s.Key, &sG)
	K.AsJacobian(&eK)
	secp256k1.ScalarMultNonConst(&negE, &eK, &eK)
	secp256k1.AddNonConst(&sG, &eK, &r2Point)
	r2Point.ToAffine()
	r2 := secp256k1.NewPublicKey(&r2Point.X, &r2Point.Y)

	expected := HashE(r2, r1, K, C_)
	return hex.EncodeToString(expected[:]) == hex.EncodeToString(e.Serialize())
}

// SignQuote produces the NUT-20 Schnorr signature over a mint quote
// redemption: sig = Schnorr(sk, SHA256(quote_id || B_1 || B_2 || ...)),
// with no separator between the concatenated fields.
func SignQuote(sk *secp256k1.PrivateKey, quoteId string, blindedMessageHexes []string) (*schnorr.Signature, error) {
	msg := quoteId
	for _, b := range blindedMessageHexes {
		msg += b
	}
	hash := sha256.Sum256([]byte(msg))
	return schnorr.Sign(sk, hash[:])
}

// VerifyQuoteSignature checks a NUT-20 signature against the same message
// construction SignQuote uses.
func VerifyQuoteSignature(sig *schnorr.Signature, quoteId string, blindedMessageHexes []string, pk *secp256k1.PublicKey) bool {
	msg := quoteId
	for _, b := range blindedMessageHexes {
		msg += b
	}
	hash := sha256.Sum256([]byte(msg))
	return sig.Verify(hash[:], pk)
}

// GenerateQuoteKeyPair draws a fresh secp256k1 keypair for NUT-20 mint
// quote locking.
func GenerateQuoteKeyPair() (*secp256k1.PrivateKey, *secp256k1.PublicKey, error) {
	sk, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, nil, err
	}
	return sk, sk.PubKey(), nil
}
