package crypto

import (
	"encoding/hex"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

func TestHashToCurve(t *testing.T) {
	tests := []struct {
		message  string
		expected string
	}{
		{
			message:  "0000000000000000000000000000000000000000000000000000000000000000",
			expected: "024cce997d3b518f739663b757deaec95bcd9473c30a14ac2fd04023a739d1a725",
		},
		{
			message:  "0000000000000000000000000000000000000000000000000000000000000001",
			expected: "022e7158e11c9506f1aa4248bf531298daa7febd6194f003edcd9b93ade6253acf",
		},
		{
			message:  "0000000000000000000000000000000000000000000000000000000000000002",
			expected: "026cdbe15362df59cd1dd3c9c11de8aedac2106eca69236ecd9fbe117af897be4f",
		},
	}

	for _, test := range tests {
		msg, err := hex.DecodeString(test.message)
		if err != nil {
			t.Fatalf("error decoding msg: %v", err)
		}

		point, err := HashToCurve(msg)
		if err != nil {
			t.Fatalf("HashToCurve: %v", err)
		}

		got := hex.EncodeToString(point.SerializeCompressed())
		if got != test.expected {
			t.Errorf("message %s: expected %s but got %s", test.message, test.expected, got)
		}
	}
}

func TestHashToCurveFindsPointForArbitrarySecret(t *testing.T) {
	// sanity: a normal message always finds a point quickly and never
	// returns ErrNoValidPoint.
	_, err := HashToCurve([]byte("some arbitrary secret"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBlindUnblindRoundTrip(t *testing.T) {
	secret := "0000000000000000000000000000000000000000000000000000000000000000"

	kHex := "7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f"
	kBytes, err := hex.DecodeString(kHex)
	if err != nil {
		t.Fatal(err)
	}
	k := secp256k1.PrivKeyFromBytes(kBytes)
	K := k.PubKey()

	B_, r, err := BlindMessage(secret)
	if err != nil {
		t.Fatalf("BlindMessage: %v", err)
	}

	C_ := SignBlindedMessage(B_, k)
	C := UnblindSignature(C_, r, K)

	ok, err := VerifyProof(secret, k, C)
	if err != nil {
		t.Fatalf("VerifyProof: %v", err)
	}
	if !ok {
		t.Error("expected proof to verify")
	}
}

func TestUnblindIndependentOfR(t *testing.T) {
	// C = C_ - rK must equal k*hash_to_curve(secret) regardless of which
	// blinding factor r was used, since C_ = k*(Y + rG) = kY + rkG = kY + rK.
	secret := "independent-of-r-test"

	kBytes, _ := hex.DecodeString("0101010101010101010101010101010101010101010101010101010101010101"[:64])
	k := secp256k1.PrivKeyFromBytes(kBytes)
	K := k.PubKey()

	for _, rHex := range []string{
		"0000000000000000000000000000000000000000000000000000000000000002",
		"3333333333333333333333333333333333333333333333333333333333333333"[:64],
	} {
		rBytes, err := hex.DecodeString(rHex)
		if err != nil {
			t.Fatal(err)
		}
		r := secp256k1.PrivKeyFromBytes(rBytes)

		B_, err := BlindMessageWithFactor([]byte(secret), r)
		if err != nil {
			t.Fatal(err)
		}
		C_ := SignBlindedMessage(B_, k)
		C := UnblindSignature(C_, r, K)

		ok, err := VerifyProof(secret, k, C)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Errorf("proof failed to verify for r=%s", rHex)
		}
	}
}

func TestHashE(t *testing.T) {
	// 33-byte compressed point: 0x02 || 32 zero bytes with the last set to 0x01.
	pointHex := "020000000000000000000000000000000000000000000000000000000000000001"
	pointBytes, err := hex.DecodeString(pointHex)
	if err != nil {
		t.Fatal(err)
	}
	point, err := secp256k1.ParsePubKey(pointBytes)
	if err != nil {
		t.Fatal(err)
	}

	cDstBytes, err := hex.DecodeString("02a9acc1e48c25eeeb9289b5031cc57da9fe72f3fe2861d264bdc074209b107ba2")
	if err != nil {
		t.Fatal(err)
	}
	C_, err := secp256k1.ParsePubKey(cDstBytes)
	if err != nil {
		t.Fatal(err)
	}

	got := HashE(point, point, point, C_)
	expected := "a4dc034b74338c28c6bc3ea49731f2a24440fc7c4affc08b31a93fc9fbe6401e"
	gotHex := hex.EncodeToString(got[:])
	if gotHex != expected {
		t.Errorf("expected hash_e %s but got %s", expected, gotHex)
	}
}

func TestGenerateDLEQRoundTrip(t *testing.T) {
	kBytes, err := hex.DecodeString("4d4e4f500000000000000000000000000000000000000000000000000000000000")
	if err != nil {
		t.Fatal(err)
	}
	k := secp256k1.PrivKeyFromBytes(kBytes[:32])
	K := k.PubKey()

	secret, err := GenerateSecret()
	if err != nil {
		t.Fatal(err)
	}
	B_, _, err := BlindMessage(secret)
	if err != nil {
		t.Fatal(err)
	}
	C_ := SignBlindedMessage(B_, k)

	e, s, err := GenerateDLEQ(k, K, B_, C_)
	if err != nil {
		t.Fatalf("GenerateDLEQ: %v", err)
	}

	if !VerifyDLEQ(e, s, K, B_, C_) {
		t.Error("expected DLEQ proof to verify")
	}
}

func TestGenerateSecretIsFreshEachCall(t *testing.T) {
	a, err := GenerateSecret()
	if err != nil {
		t.Fatal(err)
	}
	b, err := GenerateSecret()
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("expected two independently generated secrets to differ")
	}
	if len(a) != 64 {
		t.Errorf("expected 32-byte hex secret (64 chars), got %d", len(a))
	}
}
