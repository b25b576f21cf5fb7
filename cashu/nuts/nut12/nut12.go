// Package nut12 implements the DLEQ proof verification defined in [NUT-12],
// letting a wallet confirm a mint's blind signature was produced honestly
// without trusting the mint's word for it.
//
// [NUT-12]: https://github.com/cashubtc/nuts/blob/main/12.md
package nut12

import (
	"encoding/hex"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/nutcase-wallet/corewallet/cashu"
	"github.com/nutcase-wallet/corewallet/crypto"
)

// VerifyProofsDLEQ verifies the DLEQ proof on each proof that carries one.
// Proofs without a DLEQ proof are skipped rather than rejected.
func VerifyProofsDLEQ(proofs cashu.Proofs, keyset crypto.WalletKeyset) bool {
	for _, proof := range proofs {
		if proof.DLEQ == nil {
			continue
		}

		pubkey, ok := keyset.PublicKeys[proof.Amount]
		if !ok {
			return false
		}

		if !VerifyProofDLEQ(proof, pubkey) {
			return false
		}
	}
	return true
}

// VerifyProofDLEQ verifies the DLEQ proof attached to a proof already
// unblinded by the wallet, using the disclosed blinding factor r to
// recompute B_ and C_ = C + r*A.
func VerifyProofDLEQ(proof cashu.Proof, A *secp256k1.PublicKey) bool {
	e, s, r, err := ParseDLEQ(*proof.DLEQ)
	if err != nil || r == nil {
		return false
	}

	B_, err := crypto.BlindMessageWithFactor([]byte(proof.Secret), r)
	if err != nil {
		return false
	}

	CBytes, err := hex.DecodeString(proof.C)
	if err != nil {
		return false
	}
	C, err := secp256k1.ParsePubKey(CBytes)
	if err != nil {
		return false
	}

	var cPoint, aPoint, c_Point, rAPoint secp256k1.JacobianPoint
	C.AsJacobian(&cPoint)
	A.AsJacobian(&aPoint)
	secp256k1.ScalarMultNonConst(&r.Key, &aPoint, &rAPoint)
	secp256k1.AddNonConst(&cPoint, &rAPoint, &c_Point)
	c_Point.ToAffine()
	C_ := secp256k1.NewPublicKey(&c_Point.X, &c_Point.Y)

	return crypto.VerifyDLEQ(e, s, A, B_, C_)
}

// VerifyBlindSignatureDLEQ verifies the DLEQ proof a mint attaches to a
// blind signature, before the wallet unblinds it.
func VerifyBlindSignatureDLEQ(dleq cashu.DLEQProof, A *secp256k1.PublicKey, B_str, C_str string) bool {
	e, s, _, err := ParseDLEQ(dleq)
	if err != nil {
		return false
	}

	B_bytes, err := hex.DecodeString(B_str)
	if err != nil {
		return false
	}
	B_, err := secp256k1.ParsePubKey(B_bytes)
	if err != nil {
		return false
	}

	C_bytes, err := hex.DecodeString(C_str)
	if err != nil {
		return false
	}
	C_, err := secp256k1.ParsePubKey(C_bytes)
	if err != nil {
		return false
	}

	return crypto.VerifyDLEQ(e, s, A, B_, C_)
}

func ParseDLEQ(dleq cashu.DLEQProof) (e, s, r *secp256k1.PrivateKey, err error) {
	ebytes, err := hex.DecodeString(dleq.E)
	if err != nil {
		return nil, nil, nil, err
	}
	e = secp256k1.PrivKeyFromBytes(ebytes)

	sbytes, err := hex.DecodeString(dleq.S)
	if err != nil {
		return nil, nil, nil, err
	}
	s = secp256k1.PrivKeyFromBytes(sbytes)

	if dleq.R == "" {
		return e, s, nil, nil
	}

	rbytes, err := hex.DecodeString(dleq.R)
	if err != nil {
		return nil, nil, nil, err
	}
	r = secp256k1.PrivKeyFromBytes(rbytes)

	return e, s, r, nil
}
