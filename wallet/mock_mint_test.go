package wallet

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/nutcase-wallet/corewallet/cashu"
	"github.com/nutcase-wallet/corewallet/cashu/nuts/nut01"
	"github.com/nutcase-wallet/corewallet/cashu/nuts/nut02"
	"github.com/nutcase-wallet/corewallet/cashu/nuts/nut03"
	"github.com/nutcase-wallet/corewallet/cashu/nuts/nut04"
	"github.com/nutcase-wallet/corewallet/cashu/nuts/nut05"
	"github.com/nutcase-wallet/corewallet/cashu/nuts/nut07"
	"github.com/nutcase-wallet/corewallet/crypto"
)

// mockMint is a minimal in-process stand-in for a real mint, enough to
// drive a wallet through mint/send/receive/melt without a Lightning node
// or an actual mint server.
type mockMint struct {
	mu sync.Mutex

	keysetId    string
	privKeys    map[uint64]*secp256k1.PrivateKey
	pubKeys     crypto.PublicKeys
	inputFeePpk uint64

	quoteSeq    int64
	mintQuotes  map[string]*nut04.PostMintQuoteBolt11Response
	meltQuotes  map[string]*nut05.PostMeltQuoteBolt11Response
	spentYs     map[string]bool
}

func newMockMint(inputFeePpk uint64) *mockMint {
	privKeys := make(map[uint64]*secp256k1.PrivateKey, crypto.MaxOrder)
	pubKeys := make(crypto.PublicKeys, crypto.MaxOrder)
	for i := 0; i < crypto.MaxOrder; i++ {
		amount := uint64(1) << uint(i)
		sk, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			panic(err)
		}
		privKeys[amount] = sk
		pubKeys[amount] = sk.PubKey()
	}

	return &mockMint{
		keysetId:    crypto.DeriveKeysetId(pubKeys),
		privKeys:    privKeys,
		pubKeys:     pubKeys,
		inputFeePpk: inputFeePpk,
		mintQuotes:  make(map[string]*nut04.PostMintQuoteBolt11Response),
		meltQuotes:  make(map[string]*nut05.PostMeltQuoteBolt11Response),
		spentYs:     make(map[string]bool),
	}
}

func (m *mockMint) server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/keys", m.handleKeys)
	mux.HandleFunc("/v1/keys/", m.handleKeys)
	mux.HandleFunc("/v1/keysets", m.handleKeysets)
	mux.HandleFunc("/v1/mint/quote/bolt11", m.handleMintQuote)
	mux.HandleFunc("/v1/mint/quote/bolt11/", m.handleMintQuoteState)
	mux.HandleFunc("/v1/mint/bolt11", m.handleMintBolt11)
	mux.HandleFunc("/v1/swap", m.handleSwap)
	mux.HandleFunc("/v1/checkstate", m.handleCheckState)
	mux.HandleFunc("/v1/melt/quote/bolt11", m.handleMeltQuote)
	mux.HandleFunc("/v1/melt/bolt11", m.handleMeltBolt11)
	return httptest.NewServer(mux)
}

func (m *mockMint) handleKeys(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, nut01.GetKeysResponse{
		Keysets: []nut01.Keyset{{Id: m.keysetId, Unit: "sat", Keys: m.pubKeys}},
	})
}

func (m *mockMint) handleKeysets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, nut02.GetKeysetsResponse{
		Keysets: []nut02.Keyset{{Id: m.keysetId, Unit: "sat", Active: true, InputFeePpk: m.inputFeePpk}},
	})
}

func (m *mockMint) handleMintQuote(w http.ResponseWriter, r *http.Request) {
	var req nut04.PostMintQuoteBolt11Request
	json.NewDecoder(r.Body).Decode(&req)

	m.mu.Lock()
	id := fmt.Sprintf("quote-%d", atomic.AddInt64(&m.quoteSeq, 1))
	res := &nut04.PostMintQuoteBolt11Response{
		Quote:   id,
		Request: "lnbcmock" + id,
		State:   nut04.Paid, // the mock settles invoices instantly
		Expiry:  4102444800,
		Pubkey:  req.Pubkey,
	}
	m.mintQuotes[id] = res
	m.mu.Unlock()

	writeJSON(w, res)
}

func (m *mockMint) handleMintQuoteState(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Path[len("/v1/mint/quote/bolt11/"):]
	m.mu.Lock()
	res, ok := m.mintQuotes[id]
	m.mu.Unlock()
	if !ok {
		http.Error(w, `{"detail":"quote not found","code":20001}`, http.StatusBadRequest)
		return
	}
	writeJSON(w, res)
}

func (m *mockMint) handleMintBolt11(w http.ResponseWriter, r *http.Request) {
	var req nut04.PostMintBolt11Request
	json.NewDecoder(r.Body).Decode(&req)

	m.mu.Lock()
	quote, ok := m.mintQuotes[req.Quote]
	m.mu.Unlock()
	if !ok || quote.State != nut04.Paid {
		http.Error(w, `{"detail":"quote not payable","code":20001}`, http.StatusBadRequest)
		return
	}

	sigs, err := m.sign(req.Outputs)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"detail":%q,"code":10000}`, err.Error()), http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	quote.State = nut04.Issued
	m.mu.Unlock()

	writeJSON(w, nut04.PostMintBolt11Response{Signatures: sigs})
}

func (m *mockMint) handleSwap(w http.ResponseWriter, r *http.Request) {
	var req nut03.PostSwapRequest
	json.NewDecoder(r.Body).Decode(&req)

	m.mu.Lock()
	for _, p := range req.Inputs {
		y, err := crypto.HashToCurve([]byte(p.Secret))
		if err == nil && m.spentYs[hex.EncodeToString(y.SerializeCompressed())] {
			m.mu.Unlock()
			http.Error(w, `{"detail":"proof already used","code":11001}`, http.StatusBadRequest)
			return
		}
	}
	for _, p := range req.Inputs {
		y, err := crypto.HashToCurve([]byte(p.Secret))
		if err == nil {
			m.spentYs[hex.EncodeToString(y.SerializeCompressed())] = true
		}
	}
	m.mu.Unlock()

	sigs, err := m.sign(req.Outputs)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"detail":%q,"code":10000}`, err.Error()), http.StatusBadRequest)
		return
	}
	writeJSON(w, nut03.PostSwapResponse{Signatures: sigs})
}

func (m *mockMint) handleCheckState(w http.ResponseWriter, r *http.Request) {
	var req nut07.PostCheckStateRequest
	json.NewDecoder(r.Body).Decode(&req)

	m.mu.Lock()
	defer m.mu.Unlock()
	states := make([]nut07.ProofState, len(req.Ys))
	for i, y := range req.Ys {
		state := nut07.Unspent
		if m.spentYs[y] {
			state = nut07.Spent
		}
		states[i] = nut07.ProofState{Y: y, State: state}
	}
	writeJSON(w, nut07.PostCheckStateResponse{States: states})
}

func (m *mockMint) handleMeltQuote(w http.ResponseWriter, r *http.Request) {
	var req nut05.PostMeltQuoteBolt11Request
	json.NewDecoder(r.Body).Decode(&req)

	var amount uint64
	fmt.Sscanf(req.Request, "mockinvoice:%d", &amount)

	m.mu.Lock()
	id := fmt.Sprintf("melt-%d", atomic.AddInt64(&m.quoteSeq, 1))
	res := &nut05.PostMeltQuoteBolt11Response{
		Quote:      id,
		Amount:     amount,
		FeeReserve: 2,
		State:      nut05.Unpaid,
		Expiry:     4102444800,
	}
	m.meltQuotes[id] = res
	m.mu.Unlock()

	writeJSON(w, res)
}

func (m *mockMint) handleMeltBolt11(w http.ResponseWriter, r *http.Request) {
	var req nut05.PostMeltBolt11Request
	json.NewDecoder(r.Body).Decode(&req)

	m.mu.Lock()
	quote, ok := m.meltQuotes[req.Quote]
	m.mu.Unlock()
	if !ok {
		http.Error(w, `{"detail":"quote not found","code":20009}`, http.StatusBadRequest)
		return
	}

	total := req.Inputs.Amount()
	inputFee := (uint64(len(req.Inputs))*m.inputFeePpk + 999) / 1000
	required := quote.Amount + inputFee
	if total < required {
		http.Error(w, `{"detail":"inputs do not cover amount plus fees","code":11002}`, http.StatusBadRequest)
		return
	}

	// a real mint only ever refunds unused fee_reserve, via the blank
	// outputs; nothing a wallet overshoots past that is refundable.
	actualFeeReserveUsed := uint64(1)
	maxChange := quote.FeeReserve - actualFeeReserveUsed
	changeAmount := total - required
	if changeAmount > maxChange {
		changeAmount = maxChange
	}

	m.mu.Lock()
	for _, p := range req.Inputs {
		y, err := crypto.HashToCurve([]byte(p.Secret))
		if err == nil {
			m.spentYs[hex.EncodeToString(y.SerializeCompressed())] = true
		}
	}
	quote.State = nut05.Paid
	quote.Preimage = "preimage-" + quote.Quote
	m.mu.Unlock()

	var change cashu.BlindedSignatures
	if changeAmount > 0 && len(req.Outputs) > 0 {
		changeSplit := cashu.SplitAmount(changeAmount)
		outputs := req.Outputs
		if len(changeSplit) < len(outputs) {
			outputs = outputs[:len(changeSplit)]
		}
		for i := range outputs {
			outputs[i].Amount = changeSplit[i]
		}
		sigs, err := m.sign(outputs)
		if err == nil {
			change = sigs
		}
	}

	writeJSON(w, nut05.PostMeltBolt11Response{
		State:    quote.State,
		Preimage: quote.Preimage,
		Change:   change,
	})
}

func (m *mockMint) sign(outputs cashu.BlindedMessages) (cashu.BlindedSignatures, error) {
	sigs := make(cashu.BlindedSignatures, len(outputs))
	for i, bm := range outputs {
		sk, ok := m.privKeys[bm.Amount]
		if !ok {
			return nil, fmt.Errorf("no key for amount %d", bm.Amount)
		}
		B_bytes, err := hex.DecodeString(bm.B_)
		if err != nil {
			return nil, err
		}
		B_, err := secp256k1.ParsePubKey(B_bytes)
		if err != nil {
			return nil, err
		}
		C_ := crypto.SignBlindedMessage(B_, sk)
		sigs[i] = cashu.BlindedSignature{Amount: bm.Amount, Id: m.keysetId, C_: hex.EncodeToString(C_.SerializeCompressed())}
	}
	return sigs, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
