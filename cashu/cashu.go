// Package cashu contains the core wire types and denomination math of the
// Cashu protocol: blinded messages and signatures, proofs, the V3 and V4
// token formats, and the amount-splitting algorithms a wallet uses to
// decide what denominations to request or spend.
package cashu

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/bits"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/fxamacker/cbor/v2"
)

type Unit int

const (
	Sat Unit = iota

	BOLT11_METHOD = "bolt11"
)

func (unit Unit) String() string {
	switch unit {
	case Sat:
		return "sat"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidTokenV3  = errors.New("invalid V3 token")
	ErrInvalidTokenV4  = errors.New("invalid V4 token")
	ErrInvalidUnit     = errors.New("invalid unit")
	ErrAmountOverflows = errors.New("amount overflows uint64")
)

// OverflowAddUint64 adds a and b, reporting whether the result overflowed
// uint64 rather than silently wrapping. A malicious mint response with
// implausibly large amounts must not be allowed to wrap a running total
// into a small, plausible-looking number. On overflow the result is
// math.MaxUint64.
func OverflowAddUint64(a, b uint64) (uint64, bool) {
	sum := a + b
	if sum < a {
		return ^uint64(0), true
	}
	return sum, false
}

// UnderflowSubUint64 subtracts b from a, reporting whether the result
// underflowed rather than wrapping to a huge uint64. On underflow the
// result is 0.
func UnderflowSubUint64(a, b uint64) (uint64, bool) {
	if b > a {
		return 0, true
	}
	return a - b, false
}

// BlindedMessage is the wallet's blinded output request sent to the mint.
// See NUT-00.
type BlindedMessage struct {
	Amount  uint64 `json:"amount"`
	B_      string `json:"B_"`
	Id      string `json:"id"`
	Witness string `json:"witness,omitempty"`
}

func NewBlindedMessage(id string, amount uint64, B_ *secp256k1.PublicKey) BlindedMessage {
	B_str := hex.EncodeToString(B_.SerializeCompressed())
	return BlindedMessage{Amount: amount, B_: B_str, Id: id}
}

type BlindedMessages []BlindedMessage

func (bm BlindedMessages) Amount() uint64 {
	var total uint64
	for _, msg := range bm {
		total += msg.Amount
	}
	return total
}

// AmountChecked sums the messages' amounts like Amount but reports
// ErrAmountOverflows instead of wrapping when the total exceeds uint64.
func (bm BlindedMessages) AmountChecked() (uint64, error) {
	var total uint64
	for _, msg := range bm {
		var overflow bool
		total, overflow = OverflowAddUint64(total, msg.Amount)
		if overflow {
			return 0, ErrAmountOverflows
		}
	}
	return total, nil
}

// BlindedSignature is the mint's response to a BlindedMessage. See NUT-00.
type BlindedSignature struct {
	Amount uint64 `json:"amount"`
	C_     string `json:"C_"`
	Id     string `json:"id"`
	// pointer so omitempty works; an empty struct would still marshal.
	DLEQ *DLEQProof `json:"dleq,omitempty"`
}

type BlindedSignatures []BlindedSignature

func (bs BlindedSignatures) Amount() uint64 {
	var total uint64
	for _, sig := range bs {
		total += sig.Amount
	}
	return total
}

// Proof is redeemable ecash: an unblinded signature over a secret. See NUT-00.
type Proof struct {
	Amount  uint64 `json:"amount"`
	Id      string `json:"id"`
	Secret  string `json:"secret"`
	C       string `json:"C"`
	Witness string `json:"witness,omitempty"`
	DLEQ    *DLEQProof `json:"dleq,omitempty"`
}

type Proofs []Proof

type DLEQProof struct {
	E string `json:"e"`
	S string `json:"s"`
	R string `json:"r,omitempty"`
}

// Amount returns the total amount across the proofs.
func (proofs Proofs) Amount() uint64 {
	var total uint64
	for _, proof := range proofs {
		total += proof.Amount
	}
	return total
}

func CheckDuplicateProofs(proofs Proofs) bool {
	seen := make(map[Proof]bool, len(proofs))
	for _, proof := range proofs {
		if seen[proof] {
			return true
		}
		seen[proof] = true
	}
	return false
}

// SplitAmount decomposes amount into its power-of-two denominations in
// descending order, e.g. SplitAmount(11) == [8, 2, 1]. This is the set of
// outputs a wallet requests when minting or swapping for that amount.
func SplitAmount(amount uint64) []uint64 {
	if amount == 0 {
		return nil
	}

	parts := make([]uint64, 0, bits.OnesCount64(amount))
	for pos := 63; pos >= 0; pos-- {
		bit := uint64(1) << uint(pos)
		if amount&bit != 0 {
			parts = append(parts, bit)
		}
	}
	return parts
}

// FindSubsetSum looks for a subset of amounts that sums exactly to target,
// returning the indices of that subset (in ascending index order) and true
// if one exists. Used when selecting proofs to send so that no swap with
// the mint is needed. Runs a dynamic-programming search over subset sums
// bounded by target, so it stays fast even with hundreds of proofs.
func FindSubsetSum(amounts []uint64, target uint64) ([]int, bool) {
	if target == 0 {
		return nil, true
	}

	n := len(amounts)
	// reachable[i][s] reports whether some subset of amounts[:i] sums to s.
	reachable := make([][]bool, n+1)
	// included[i][s] reports whether amounts[i-1] was the item used to move
	// from reachable[i-1][s-amounts[i-1]] into reachable[i][s].
	included := make([][]bool, n+1)
	for i := range reachable {
		reachable[i] = make([]bool, target+1)
		included[i] = make([]bool, target+1)
	}
	reachable[0][0] = true

	for i := 1; i <= n; i++ {
		amount := amounts[i-1]
		for s := uint64(0); s <= target; s++ {
			if reachable[i-1][s] {
				reachable[i][s] = true
			}
			if amount <= s && reachable[i-1][s-amount] && !reachable[i][s] {
				reachable[i][s] = true
				included[i][s] = true
			}
		}
	}

	if !reachable[n][target] {
		return nil, false
	}

	var indices []int
	s := target
	for i := n; i > 0; i-- {
		if included[i][s] {
			indices = append(indices, i-1)
			s -= amounts[i-1]
		}
	}

	for l, r := 0, len(indices)-1; l < r; l, r = l+1, r-1 {
		indices[l], indices[r] = indices[r], indices[l]
	}
	return indices, true
}

// BlankOutputCount returns how many blank outputs (NUT-08) a melt should
// include to receive change back from an overestimated fee reserve:
// 0 if feeReserve is 0, otherwise max(1, floor(log2(feeReserve))+1).
func BlankOutputCount(feeReserve uint64) int {
	if feeReserve == 0 {
		return 0
	}
	n := bits.Len64(feeReserve)
	if n < 1 {
		n = 1
	}
	return n
}

// Token is a portable bundle of proofs redeemable at a single mint. See
// NUT-00's token format (V3 JSON and V4 CBOR encodings).
type Token interface {
	Proofs() Proofs
	Mint() string
	Amount() uint64
	Serialize() (string, error)
}

func DecodeToken(tokenstr string) (Token, error) {
	token, err := DecodeTokenV4(tokenstr)
	if err != nil {
		tokenV3, err := DecodeTokenV3(tokenstr)
		if err != nil {
			return nil, fmt.Errorf("invalid token: %v", err)
		}
		return tokenV3, nil
	}
	return token, nil
}

type TokenV3 struct {
	Token []TokenV3Proof `json:"token"`
	Unit  string         `json:"unit"`
	Memo  string         `json:"memo,omitempty"`
}

type TokenV3Proof struct {
	Mint   string `json:"mint"`
	Proofs Proofs `json:"proofs"`
}

func NewTokenV3(proofs Proofs, mint string, unit Unit, includeDLEQ bool) (TokenV3, error) {
	if !includeDLEQ {
		for i := range proofs {
			proofs[i].DLEQ = nil
		}
	}

	if unit != Sat {
		return TokenV3{}, ErrInvalidUnit
	}

	return TokenV3{
		Token: []TokenV3Proof{{Mint: mint, Proofs: proofs}},
		Unit:  unit.String(),
	}, nil
}

func DecodeTokenV3(tokenstr string) (*TokenV3, error) {
	if len(tokenstr) < 6 {
		return nil, ErrInvalidTokenV3
	}
	prefixVersion := tokenstr[:6]
	base64Token := tokenstr[6:]

	if prefixVersion != "cashuA" {
		return nil, ErrInvalidTokenV3
	}

	tokenBytes, err := base64.URLEncoding.DecodeString(base64Token)
	if err != nil {
		tokenBytes, err = base64.RawURLEncoding.DecodeString(base64Token)
		if err != nil {
			return nil, fmt.Errorf("error decoding token: %v", err)
		}
	}

	var token TokenV3
	if err := json.Unmarshal(tokenBytes, &token); err != nil {
		return nil, fmt.Errorf("error unmarshaling token: %v", err)
	}

	return &token, nil
}

func (t TokenV3) Proofs() Proofs {
	proofs := make(Proofs, 0)
	for _, tokenProof := range t.Token {
		proofs = append(proofs, tokenProof.Proofs...)
	}
	return proofs
}

func (t TokenV3) Mint() string {
	return t.Token[0].Mint
}

func (t TokenV3) Amount() uint64 {
	return t.Proofs().Amount()
}

func (t TokenV3) Serialize() (string, error) {
	jsonBytes, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return "cashuA" + base64.URLEncoding.EncodeToString(jsonBytes), nil
}

// TokenV4 is the compact CBOR token format. Amounts and ids are kept as
// binary in memory; hex/string conversion happens only at the JSON-facing
// edges (MarshalJSON), so the CBOR encoding stays as compact as the wire
// format requires.
type TokenV4 struct {
	TokenProofs []TokenV4Proof `json:"t"`
	Memo        string         `json:"d,omitempty"`
	MintURL     string         `json:"m"`
	Unit        string         `json:"u"`
}

type TokenV4Proof struct {
	Id     []byte    `json:"i"`
	Proofs []ProofV4 `json:"p"`
}

func (tp *TokenV4Proof) MarshalJSON() ([]byte, error) {
	wire := struct {
		Id     string    `json:"i"`
		Proofs []ProofV4 `json:"p"`
	}{
		Id:     hex.EncodeToString(tp.Id),
		Proofs: tp.Proofs,
	}
	return json.Marshal(wire)
}

type ProofV4 struct {
	Amount  uint64  `json:"a"`
	Secret  string  `json:"s"`
	C       []byte  `json:"c"`
	Witness string  `json:"w,omitempty"`
	DLEQ    *DLEQV4 `json:"d,omitempty"`
}

func (p *ProofV4) MarshalJSON() ([]byte, error) {
	wire := struct {
		Amount  uint64  `json:"a"`
		Secret  string  `json:"s"`
		C       string  `json:"c"`
		Witness string  `json:"w,omitempty"`
		DLEQ    *DLEQV4 `json:"d,omitempty"`
	}{
		Amount:  p.Amount,
		Secret:  p.Secret,
		C:       hex.EncodeToString(p.C),
		Witness: p.Witness,
		DLEQ:    p.DLEQ,
	}
	return json.Marshal(wire)
}

type DLEQV4 struct {
	E []byte `json:"e"`
	S []byte `json:"s"`
	R []byte `json:"r"`
}

func (d *DLEQV4) MarshalJSON() ([]byte, error) {
	wire := DLEQProof{
		E: hex.EncodeToString(d.E),
		S: hex.EncodeToString(d.S),
		R: hex.EncodeToString(d.R),
	}
	return json.Marshal(wire)
}

func NewTokenV4(proofs Proofs, mint string, unit Unit, includeDLEQ bool) (TokenV4, error) {
	if unit != Sat {
		return TokenV4{}, ErrInvalidUnit
	}

	proofsByKeyset := make(map[string][]ProofV4)
	order := make([]string, 0)
	for _, proof := range proofs {
		C, err := hex.DecodeString(proof.C)
		if err != nil {
			return TokenV4{}, fmt.Errorf("invalid C: %v", err)
		}
		proofV4 := ProofV4{
			Amount:  proof.Amount,
			Secret:  proof.Secret,
			C:       C,
			Witness: proof.Witness,
		}

		if includeDLEQ && proof.DLEQ != nil {
			e, err := hex.DecodeString(proof.DLEQ.E)
			if err != nil {
				return TokenV4{}, fmt.Errorf("invalid e in DLEQ proof: %v", err)
			}
			s, err := hex.DecodeString(proof.DLEQ.S)
			if err != nil {
				return TokenV4{}, fmt.Errorf("invalid s in DLEQ proof: %v", err)
			}
			if proof.DLEQ.R == "" {
				return TokenV4{}, errors.New("r in DLEQ proof cannot be empty")
			}
			r, err := hex.DecodeString(proof.DLEQ.R)
			if err != nil {
				return TokenV4{}, fmt.Errorf("invalid r in DLEQ proof: %v", err)
			}
			proofV4.DLEQ = &DLEQV4{E: e, S: s, R: r}
		}

		if _, seen := proofsByKeyset[proof.Id]; !seen {
			order = append(order, proof.Id)
		}
		proofsByKeyset[proof.Id] = append(proofsByKeyset[proof.Id], proofV4)
	}

	proofsV4 := make([]TokenV4Proof, 0, len(order))
	for _, id := range order {
		idBytes, err := hex.DecodeString(id)
		if err != nil {
			return TokenV4{}, fmt.Errorf("invalid keyset id: %v", err)
		}
		proofsV4 = append(proofsV4, TokenV4Proof{Id: idBytes, Proofs: proofsByKeyset[id]})
	}

	return TokenV4{MintURL: mint, Unit: unit.String(), TokenProofs: proofsV4}, nil
}

func DecodeTokenV4(tokenstr string) (*TokenV4, error) {
	if len(tokenstr) < 6 {
		return nil, ErrInvalidTokenV4
	}
	prefixVersion := tokenstr[:6]
	base64Token := tokenstr[6:]
	if prefixVersion != "cashuB" {
		return nil, ErrInvalidTokenV4
	}

	tokenBytes, err := base64.URLEncoding.DecodeString(base64Token)
	if err != nil {
		tokenBytes, err = base64.RawURLEncoding.DecodeString(base64Token)
		if err != nil {
			return nil, fmt.Errorf("error decoding token: %v", err)
		}
	}

	var tokenV4 TokenV4
	if err := cbor.Unmarshal(tokenBytes, &tokenV4); err != nil {
		return nil, fmt.Errorf("cbor.Unmarshal: %v", err)
	}

	return &tokenV4, nil
}

func (t TokenV4) Proofs() Proofs {
	proofs := make(Proofs, 0)
	for _, tokenV4Proof := range t.TokenProofs {
		keysetId := hex.EncodeToString(tokenV4Proof.Id)
		for _, proofV4 := range tokenV4Proof.Proofs {
			proof := Proof{
				Amount:  proofV4.Amount,
				Id:      keysetId,
				Secret:  proofV4.Secret,
				C:       hex.EncodeToString(proofV4.C),
				Witness: proofV4.Witness,
			}
			if proofV4.DLEQ != nil {
				proof.DLEQ = &DLEQProof{
					E: hex.EncodeToString(proofV4.DLEQ.E),
					S: hex.EncodeToString(proofV4.DLEQ.S),
					R: hex.EncodeToString(proofV4.DLEQ.R),
				}
			}
			proofs = append(proofs, proof)
		}
	}
	return proofs
}

func (t TokenV4) Mint() string {
	return t.MintURL
}

func (t TokenV4) Amount() uint64 {
	return t.Proofs().Amount()
}

func (t TokenV4) Serialize() (string, error) {
	cborData, err := cbor.Marshal(t)
	if err != nil {
		return "", err
	}
	return "cashuB" + base64.RawURLEncoding.EncodeToString(cborData), nil
}

// CashuErrCode is the numeric error code a mint includes in its error
// responses. See NUT-00's error format.
type CashuErrCode int

// Error is the shape of a mint's JSON error body. The wallet's HTTP client
// decodes a 400 response body into it; other non-2xx responses are not
// decoded as an Error.
type Error struct {
	Detail string       `json:"detail"`
	Code   CashuErrCode `json:"code"`
}

func (e Error) Error() string {
	return e.Detail
}

// Error codes the wallet classifies a mint's error response against (see
// wallet.mintRpcErr) to turn a generic RPC failure into a specific
// wallet.ErrKind the caller can branch on.
const (
	MintQuoteRequestNotPaidErrCode CashuErrCode = 20001
	MintQuoteAlreadyIssuedErrCode  CashuErrCode = 20002
	MeltQuotePendingErrCode        CashuErrCode = 20005
	ProofAlreadyUsedErrCode        CashuErrCode = 11001
	InsufficientProofAmountErrCode CashuErrCode = 11002
	UnknownKeysetErrCode           CashuErrCode = 12001
	InactiveKeysetErrCode          CashuErrCode = 12002
)
