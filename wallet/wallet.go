// Package wallet implements the client-side half of the Cashu protocol: a
// single-mint wallet that mints, swaps, sends, receives, and melts ecash
// over the BDHKE blind-signature scheme in the crypto package.
package wallet

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/nutcase-wallet/corewallet/cashu"
	"github.com/nutcase-wallet/corewallet/cashu/nuts/nut03"
	"github.com/nutcase-wallet/corewallet/cashu/nuts/nut04"
	"github.com/nutcase-wallet/corewallet/cashu/nuts/nut05"
	"github.com/nutcase-wallet/corewallet/cashu/nuts/nut06"
	"github.com/nutcase-wallet/corewallet/cashu/nuts/nut07"
	"github.com/nutcase-wallet/corewallet/cashu/nuts/nut12"
	"github.com/nutcase-wallet/corewallet/cashu/nuts/nut20"
	"github.com/nutcase-wallet/corewallet/crypto"
	"github.com/nutcase-wallet/corewallet/wallet/storage"
)

// Wallet is a single-mint Cashu wallet: it never juggles keysets across
// more than one mint URL. It is not safe for concurrent use — every
// operation mutates in-memory proof and keyset state and then persists a
// fresh encrypted snapshot before returning.
type Wallet struct {
	cfg    Config
	client *MintClient
	log    *slog.Logger
	key    [32]byte

	unit            string
	activeKeyset    crypto.WalletKeyset
	inactiveKeysets crypto.KeysetsMap
	proofs          *proofStore

	mintQuotes map[string]storage.MintQuote
	meltQuotes map[string]storage.MeltQuote
}

func (w *Wallet) dbPath() string      { return filepath.Join(w.cfg.WalletDir, "wallet.db") }
func (w *Wallet) sidecarPath() string { return filepath.Join(w.cfg.WalletDir, "wallet.db.pass") }

// LoadWallet opens (or creates) the wallet at cfg.WalletDir, unlocking its
// encrypted snapshot with passphrase. A fresh wallet directory bootstraps
// by fetching the mint's current keyset.
func LoadWallet(cfg Config, passphrase string) (*Wallet, error) {
	if err := os.MkdirAll(cfg.WalletDir, 0700); err != nil {
		return nil, newErr("LoadWallet", ErrPersistenceFailure, err)
	}

	w := &Wallet{
		cfg:        cfg,
		client:     NewMintClient(cfg.MintURL),
		log:        newLogger(),
		unit:       cfg.Unit,
		mintQuotes: make(map[string]storage.MintQuote),
		meltQuotes: make(map[string]storage.MeltQuote),
	}

	key, err := storage.DeriveKey(passphrase, w.sidecarPath())
	if err != nil {
		return nil, newErr("LoadWallet", ErrEncryptionFailure, err)
	}
	w.key = key

	if _, err := os.Stat(w.dbPath()); errors.Is(err, os.ErrNotExist) {
		if err := w.bootstrap(context.Background()); err != nil {
			return nil, err
		}
		w.log.Info("wallet created", "mint", w.cfg.MintURL, "keyset", w.activeKeyset.Id)
		return w, nil
	}

	snapshot, err := storage.Load(w.dbPath(), w.key)
	if err != nil {
		return nil, newErr("LoadWallet", ErrEncryptionFailure, err)
	}
	w.restore(snapshot)
	w.log.Info("wallet loaded", "mint", w.cfg.MintURL, "balance", w.proofs.balance())
	return w, nil
}

func (w *Wallet) bootstrap(ctx context.Context) error {
	active, err := fetchActiveKeyset(ctx, w.client, w.unit)
	if err != nil {
		return newErr("bootstrap", ErrNoActiveKeyset, err)
	}
	inactive, err := fetchInactiveKeysets(ctx, w.client, w.unit)
	if err != nil {
		return newErr("bootstrap", ErrNoActiveKeyset, err)
	}

	w.activeKeyset = *active
	w.inactiveKeysets = inactive
	w.proofs = newProofStore(nil)
	return w.persistLocked()
}

func (w *Wallet) restore(s *storage.Snapshot) {
	w.unit = s.Unit
	w.activeKeyset = s.ActiveKeyset
	w.inactiveKeysets = s.InactiveKeysets
	if w.inactiveKeysets == nil {
		w.inactiveKeysets = make(crypto.KeysetsMap)
	}
	w.proofs = newProofStore(s.Proofs)

	w.mintQuotes = make(map[string]storage.MintQuote, len(s.MintQuotes))
	for _, q := range s.MintQuotes {
		w.mintQuotes[q.QuoteId] = q
	}
	w.meltQuotes = make(map[string]storage.MeltQuote, len(s.MeltQuotes))
	for _, q := range s.MeltQuotes {
		w.meltQuotes[q.QuoteId] = q
	}
}

func (w *Wallet) persistLocked() error {
	mintQuotes := make([]storage.MintQuote, 0, len(w.mintQuotes))
	for _, q := range w.mintQuotes {
		mintQuotes = append(mintQuotes, q)
	}
	meltQuotes := make([]storage.MeltQuote, 0, len(w.meltQuotes))
	for _, q := range w.meltQuotes {
		meltQuotes = append(meltQuotes, q)
	}

	snapshot := &storage.Snapshot{
		MintURL:         w.cfg.MintURL,
		Unit:            w.unit,
		Proofs:          w.proofs.all(),
		ActiveKeyset:    w.activeKeyset,
		InactiveKeysets: w.inactiveKeysets,
		MintQuotes:      mintQuotes,
		MeltQuotes:      meltQuotes,
	}
	if err := storage.Save(snapshot, w.dbPath(), w.key); err != nil {
		return newErr("persist", ErrPersistenceFailure, err)
	}
	return nil
}

// Balance returns the wallet's total spendable amount.
func (w *Wallet) Balance() uint64 { return w.proofs.balance() }

// MintInfo returns the mint's NUT-06 info document, fetched once and cached
// by the underlying MintClient for the life of the wallet process.
func (w *Wallet) MintInfo(ctx context.Context) (*nut06.MintInfo, error) {
	info, err := w.client.GetMintInfo(ctx)
	if err != nil {
		return nil, mintRpcErr("MintInfo", err)
	}
	return info, nil
}

// RequestMint asks the mint for a bolt11 invoice to mint amount. If lock is
// true, the quote is NUT-20 locked to a fresh keypair the wallet keeps, so
// only this wallet can redeem it once paid.
func (w *Wallet) RequestMint(ctx context.Context, amount uint64, lock bool) (*nut04.PostMintQuoteBolt11Response, error) {
	req := nut04.PostMintQuoteBolt11Request{Amount: amount, Unit: w.unit}

	var sk *secp256k1.PrivateKey
	if lock {
		var err error
		sk, _, err = crypto.GenerateQuoteKeyPair()
		if err != nil {
			return nil, newErr("RequestMint", ErrMissingKey, err)
		}
		req.Pubkey = hex.EncodeToString(sk.PubKey().SerializeCompressed())
	}

	res, err := w.client.PostMintQuoteBolt11(ctx, req)
	if err != nil {
		return nil, mintRpcErr("RequestMint", err)
	}

	quote := storage.MintQuote{
		QuoteId:        res.Quote,
		PaymentRequest: res.Request,
		Amount:         amount,
		Unit:           w.unit,
		State:          res.State,
		Expiry:         res.Expiry,
	}
	if sk != nil {
		quote.PrivateKey = sk.Serialize()
	}
	w.mintQuotes[res.Quote] = quote

	if err := w.persistLocked(); err != nil {
		return nil, err
	}
	w.log.Info("mint quote requested", "quote", res.Quote, "amount", amount, "locked", lock)
	return res, nil
}

// MintTokens redeems a paid mint quote for proofs, adding them to the
// wallet's balance.
func (w *Wallet) MintTokens(ctx context.Context, quoteId string) (uint64, error) {
	quote, ok := w.mintQuotes[quoteId]
	if !ok {
		return 0, newErr("MintTokens", ErrMissingKey, fmt.Errorf("unknown mint quote %s", quoteId))
	}

	status, err := w.client.GetMintQuoteState(ctx, quoteId)
	if err != nil {
		return 0, mintRpcErr("MintTokens", err)
	}
	if status.State == nut04.Issued {
		return 0, newErr("MintTokens", ErrQuoteAlreadyIssued, nil)
	}
	if status.State != nut04.Paid {
		return 0, newErr("MintTokens", ErrQuoteNotPaid, nil)
	}

	messages, secrets, rs, err := w.createBlindedMessages(quote.Amount)
	if err != nil {
		return 0, newErr("MintTokens", ErrInvalidSecret, err)
	}

	req := nut04.PostMintBolt11Request{Quote: quoteId, Outputs: messages}
	if len(quote.PrivateKey) > 0 {
		sk := secp256k1.PrivKeyFromBytes(quote.PrivateKey)
		sig, err := nut20.SignMintQuote(sk, quoteId, messages)
		if err != nil {
			return 0, newErr("MintTokens", ErrMissingKey, err)
		}
		req.Signature = hex.EncodeToString(sig.Serialize())
	}

	res, err := w.client.PostMintBolt11(ctx, req)
	if err != nil {
		return 0, mintRpcErr("MintTokens", err)
	}

	proofs, err := w.constructProofs(res.Signatures, secrets, rs)
	if err != nil {
		return 0, newErr("MintTokens", ErrInvalidToken, err)
	}
	if !nut12.VerifyProofsDLEQ(proofs, w.activeKeyset) {
		return 0, newErr("MintTokens", ErrInvalidToken, errors.New("mint's DLEQ proof failed verification"))
	}

	w.proofs.append(proofs)
	quote.State = nut04.Issued
	w.mintQuotes[quoteId] = quote

	if err := w.persistLocked(); err != nil {
		return 0, err
	}
	w.log.Info("tokens minted", "quote", quoteId, "amount", proofs.Amount())
	return proofs.Amount(), nil
}

// Send selects proofs worth amount, swapping for exact change with the
// mint if no exact combination is already held, and returns a serialized
// V4 token.
func (w *Wallet) Send(ctx context.Context, amount uint64) (string, error) {
	if _, err := w.refreshActiveKeyset(ctx); err != nil {
		w.log.Warn("refreshActiveKeyset failed, spending against cached keyset", "error", err)
	}

	toSpend, swapped, err := w.prepareToSpend(ctx, amount)
	if err != nil {
		return "", err
	}

	selected, restore, err := w.proofs.extractWithAmounts(toSpend)
	if err != nil {
		return "", err
	}

	unit := cashu.Unit(-1)
	if w.unit == cashu.Sat.String() {
		unit = cashu.Sat
	}
	token, err := cashu.NewTokenV4(selected, w.cfg.MintURL, unit, true)
	if err != nil {
		restore()
		return "", newErr("Send", ErrInvalidToken, err)
	}
	if err := w.persistLocked(); err != nil {
		restore()
		return "", err
	}
	serialized, err := token.Serialize()
	if err != nil {
		return "", newErr("Send", ErrInvalidToken, err)
	}
	w.log.Info("sent", "amount", amount, "swap", swapped)
	return serialized, nil
}

// prepareToSpend implements prepare_amounts_for_swap_before_spend: it
// returns the exact list of denominations the store can hand out to cover
// amount. If the wallet's proofs already sum exactly to amount for some
// subset, that subset is returned untouched. Otherwise it identifies the
// single smallest proof whose addition would cross amount, swaps it alone
// for exact change (split_amount(change-fee)) plus the shortfall
// (split_amount(missing)), and returns the now-exact denomination list.
// The swap, if any, is committed to the store before this returns; the
// caller still owns extracting toSpend via proofStore.extractWithAmounts.
func (w *Wallet) prepareToSpend(ctx context.Context, amount uint64) (toSpend []uint64, swapped bool, err error) {
	if amount == 0 {
		return nil, false, nil
	}

	ordered := w.proofs.all()
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Amount < ordered[j].Amount })
	amounts := make([]uint64, len(ordered))
	for i, p := range ordered {
		amounts[i] = p.Amount
	}

	if idx, ok := cashu.FindSubsetSum(amounts, amount); ok {
		exact := make([]uint64, len(idx))
		for i, j := range idx {
			exact[i] = ordered[j].Amount
		}
		return exact, false, nil
	}

	var accumulated uint64
	var accumulatedAmounts []uint64
	crossIdx := -1
	for i, p := range ordered {
		if accumulated+p.Amount > amount {
			crossIdx = i
			break
		}
		accumulated += p.Amount
		accumulatedAmounts = append(accumulatedAmounts, p.Amount)
	}
	if crossIdx == -1 {
		return nil, false, newErr("prepareToSpend", ErrInsufficientFunds, nil)
	}

	last := ordered[crossIdx]
	missing := amount - accumulated
	fee := w.activeKeyset.InputFee(1)
	if last.Amount < missing+fee {
		return nil, false, newErr("prepareToSpend", ErrInsufficientFundsForFee, nil)
	}
	change := last.Amount - missing

	swapOutputs := append(cashu.SplitAmount(change-fee), cashu.SplitAmount(missing)...)

	swapIn, restore, err := w.proofs.extractWithAmounts([]uint64{last.Amount})
	if err != nil {
		return nil, false, err
	}
	newProofs, err := w.swap(ctx, swapIn, swapOutputs)
	if err != nil {
		restore()
		return nil, false, err
	}
	w.proofs.append(newProofs)

	toSpend = append(accumulatedAmounts, cashu.SplitAmount(missing)...)
	return toSpend, true, nil
}

// Receive verifies and redeems a token minted by this wallet's mint,
// adding its value (minus the mint's input fee) to the wallet's balance.
func (w *Wallet) Receive(ctx context.Context, tokenStr string) (uint64, error) {
	token, err := cashu.DecodeToken(tokenStr)
	if err != nil {
		return 0, newErr("Receive", ErrInvalidToken, err)
	}
	if token.Mint() != w.cfg.MintURL {
		return 0, newErr("Receive", ErrForeignMint, fmt.Errorf("token is from %s, wallet is bound to %s", token.Mint(), w.cfg.MintURL))
	}

	proofsIn := token.Proofs()
	if len(proofsIn) == 0 {
		return 0, newErr("Receive", ErrInvalidToken, errors.New("token has no proofs"))
	}
	if cashu.CheckDuplicateProofs(proofsIn) {
		return 0, newErr("Receive", ErrInvalidToken, errors.New("token contains duplicate proofs"))
	}

	if err := w.checkProofStates(ctx, proofsIn); err != nil {
		return 0, err
	}

	amount := token.Amount()
	fee := w.activeKeyset.InputFee(len(proofsIn))
	received, underflow := cashu.UnderflowSubUint64(amount, fee)
	if underflow {
		return 0, newErr("Receive", ErrInsufficientFundsForFee, nil)
	}

	outputAmounts := cashu.SplitAmount(received)
	newProofs, err := w.swap(ctx, proofsIn, outputAmounts)
	if err != nil {
		return 0, err
	}

	w.proofs.append(newProofs)
	if err := w.persistLocked(); err != nil {
		return 0, err
	}
	w.log.Info("received", "amount", received, "fee", fee)
	return received, nil
}

// checkProofStates asks the mint whether any of proofs are already spent,
// short-circuiting a Receive that would otherwise fail at the swap step.
func (w *Wallet) checkProofStates(ctx context.Context, proofs cashu.Proofs) error {
	ys := make([]string, len(proofs))
	for i, p := range proofs {
		y, err := crypto.HashToCurve([]byte(p.Secret))
		if err != nil {
			return newErr("checkProofStates", ErrInvalidSecret, err)
		}
		ys[i] = hex.EncodeToString(y.SerializeCompressed())
	}

	res, err := w.client.PostCheckProofState(ctx, nut07.PostCheckStateRequest{Ys: ys})
	if err != nil {
		return mintRpcErr("checkProofStates", err)
	}

	for _, state := range res.States {
		if state.State == nut07.Spent {
			return newErr("checkProofStates", ErrProofAlreadySpent, nil)
		}
	}
	return nil
}

// Melt pays a bolt11 invoice with ecash, returning the payment preimage.
//
// A mint only ever refunds change up to fee_reserve, via the pre-generated
// blank outputs below; anything submitted beyond the quote's exact
// total=amount+fee_reserve is permanently forfeited. So unlike Send, Melt
// never hands the mint an over-covering proof set: selectForMelt always
// resolves to an input set that sums to exactly total+inputs_fee before
// PostMeltBolt11 is ever called.
func (w *Wallet) Melt(ctx context.Context, invoice string) (string, error) {
	if _, err := w.refreshActiveKeyset(ctx); err != nil {
		w.log.Warn("refreshActiveKeyset failed, spending against cached keyset", "error", err)
	}

	quoteRes, err := w.client.PostMeltQuoteBolt11(ctx, nut05.PostMeltQuoteBolt11Request{Request: invoice, Unit: w.unit})
	if err != nil {
		return "", mintRpcErr("Melt", err)
	}

	total := quoteRes.Amount + quoteRes.FeeReserve
	selected, restore, err := w.selectForMelt(ctx, total)
	if err != nil {
		return "", err
	}

	blankCount := cashu.BlankOutputCount(quoteRes.FeeReserve)
	blankMessages, blankSecrets, blankRs, err := w.createBlankOutputs(blankCount)
	if err != nil {
		restore()
		return "", newErr("Melt", ErrInvalidSecret, err)
	}

	meltRes, err := w.client.PostMeltBolt11(ctx, nut05.PostMeltBolt11Request{
		Quote:   quoteRes.Quote,
		Inputs:  selected,
		Outputs: blankMessages,
	})
	if err != nil {
		restore()
		return "", mintRpcErr("Melt", err)
	}

	if meltRes.State == nut05.Pending {
		// bounded single retry: give the mint one chance to settle before
		// surfacing a pending result. The proofs are not restored here —
		// once submitted, the mint treats them as spent while pending.
		if polled, err := w.client.GetMeltQuoteState(ctx, quoteRes.Quote); err == nil {
			meltRes.State = polled.State
			meltRes.Preimage = polled.Preimage
		}
	}

	switch meltRes.State {
	case nut05.Paid:
		// fall through to change handling below
	case nut05.Pending:
		if err := w.persistLocked(); err != nil {
			return "", err
		}
		return "", newErr("Melt", ErrQuotePending, nil)
	default:
		restore()
		return "", newErr("Melt", ErrMintRpcFailure, errors.New("mint did not pay the invoice"))
	}

	if len(meltRes.Change) > 0 {
		changeProofs, err := w.constructProofs(meltRes.Change, blankSecrets[:len(meltRes.Change)], blankRs[:len(meltRes.Change)])
		if err != nil {
			w.log.Warn("failed to construct melt change, change forfeited", "error", err)
		} else {
			w.proofs.append(changeProofs)
		}
	}

	if err := w.persistLocked(); err != nil {
		return "", err
	}
	w.log.Info("melted", "amount", quoteRes.Amount, "fee_reserve", quoteRes.FeeReserve)
	return meltRes.Preimage, nil
}

// selectForMelt resolves an exact input set summing to total+inputs_fee,
// where inputs_fee is the NUT-02 fee owed on however many inputs end up
// selected. It first accumulates proofs smallest-first up to — but never
// past — total, then routes whatever is still missing (the gap to total,
// plus the fee so far) through prepareToSpend to swap for exact change.
// Adding those extra inputs can itself raise inputs_fee, so it allows
// exactly one further round to cover that increase before giving up. The
// returned restore puts every extracted proof back if the caller's
// subsequent mint round-trip fails.
func (w *Wallet) selectForMelt(ctx context.Context, total uint64) (cashu.Proofs, func(), error) {
	ordered := w.proofs.all()
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Amount < ordered[j].Amount })

	var accumulated uint64
	var accumulatedAmounts []uint64
	for _, p := range ordered {
		if accumulated+p.Amount > total {
			break
		}
		accumulated += p.Amount
		accumulatedAmounts = append(accumulatedAmounts, p.Amount)
	}

	inputsFee := w.activeKeyset.InputFee(len(accumulatedAmounts))
	if w.proofs.balance() < total+inputsFee {
		return nil, nil, newErr("selectForMelt", ErrInsufficientFunds, nil)
	}

	var restores []func()
	rollback := func() {
		for i := len(restores) - 1; i >= 0; i-- {
			restores[i]()
		}
	}

	selected, restore, err := w.proofs.extractWithAmounts(accumulatedAmounts)
	if err != nil {
		return nil, nil, err
	}
	restores = append(restores, restore)
	selectedTotal := accumulated

	if selectedTotal < total+inputsFee {
		shortfall := (total + inputsFee) - selectedTotal
		toSpend, _, err := w.prepareToSpend(ctx, shortfall)
		if err != nil {
			rollback()
			return nil, nil, err
		}
		extra, restoreExtra, err := w.proofs.extractWithAmounts(toSpend)
		if err != nil {
			rollback()
			return nil, nil, err
		}
		restores = append(restores, restoreExtra)
		selected = append(selected, extra...)
		selectedTotal += shortfall

		// one bounded extra round: the additional inputs may have raised
		// the fee past what the first round covered.
		if newFee := w.activeKeyset.InputFee(len(selected)); selectedTotal < total+newFee {
			extraShortfall := (total + newFee) - selectedTotal
			toSpendMore, _, err := w.prepareToSpend(ctx, extraShortfall)
			if err != nil {
				rollback()
				return nil, nil, err
			}
			more, restoreMore, err := w.proofs.extractWithAmounts(toSpendMore)
			if err != nil {
				rollback()
				return nil, nil, err
			}
			restores = append(restores, restoreMore)
			selected = append(selected, more...)
			selectedTotal += extraShortfall

			if finalFee := w.activeKeyset.InputFee(len(selected)); selectedTotal < total+finalFee {
				rollback()
				return nil, nil, newErr("selectForMelt", ErrInsufficientFundsForFee, nil)
			}
		}
	}

	return selected, rollback, nil
}

// swap exchanges inputs for fresh proofs denominated by outputAmounts,
// preserving order so callers can split the result back into logical
// groups (e.g. send vs change). It does not touch the wallet's proof
// store; callers own both ends of that bookkeeping.
func (w *Wallet) swap(ctx context.Context, inputs cashu.Proofs, outputAmounts []uint64) (cashu.Proofs, error) {
	messages := make(cashu.BlindedMessages, len(outputAmounts))
	secrets := make([]string, len(outputAmounts))
	rs := make([]*secp256k1.PrivateKey, len(outputAmounts))

	for i, amt := range outputAmounts {
		bm, secret, r, err := w.newBlindedMessage(amt)
		if err != nil {
			return nil, newErr("swap", ErrInvalidSecret, err)
		}
		messages[i], secrets[i], rs[i] = bm, secret, r
	}

	res, err := w.client.PostSwap(ctx, nut03.PostSwapRequest{Inputs: inputs, Outputs: messages})
	if err != nil {
		return nil, mintRpcErr("swap", err)
	}

	proofs, err := w.constructProofs(res.Signatures, secrets, rs)
	if err != nil {
		return nil, newErr("swap", ErrInvalidToken, err)
	}
	if !nut12.VerifyProofsDLEQ(proofs, w.activeKeyset) {
		return nil, newErr("swap", ErrInvalidToken, errors.New("mint's DLEQ proof failed verification"))
	}
	return proofs, nil
}

func (w *Wallet) createBlindedMessages(amount uint64) (cashu.BlindedMessages, []string, []*secp256k1.PrivateKey, error) {
	amounts := cashu.SplitAmount(amount)
	messages := make(cashu.BlindedMessages, len(amounts))
	secrets := make([]string, len(amounts))
	rs := make([]*secp256k1.PrivateKey, len(amounts))

	for i, amt := range amounts {
		bm, secret, r, err := w.newBlindedMessage(amt)
		if err != nil {
			return nil, nil, nil, err
		}
		messages[i], secrets[i], rs[i] = bm, secret, r
	}
	return messages, secrets, rs, nil
}

// createBlankOutputs builds n NUT-08 blank outputs: zero-amount blinded
// messages the mint may assign change to after an overestimated fee
// reserve.
func (w *Wallet) createBlankOutputs(n int) (cashu.BlindedMessages, []string, []*secp256k1.PrivateKey, error) {
	messages := make(cashu.BlindedMessages, n)
	secrets := make([]string, n)
	rs := make([]*secp256k1.PrivateKey, n)

	for i := 0; i < n; i++ {
		bm, secret, r, err := w.newBlindedMessage(0)
		if err != nil {
			return nil, nil, nil, err
		}
		messages[i], secrets[i], rs[i] = bm, secret, r
	}
	return messages, secrets, rs, nil
}

func (w *Wallet) newBlindedMessage(amount uint64) (cashu.BlindedMessage, string, *secp256k1.PrivateKey, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return cashu.BlindedMessage{}, "", nil, err
	}
	secret := hex.EncodeToString(secretBytes)

	B_, r, err := crypto.BlindMessage(secret)
	if err != nil {
		return cashu.BlindedMessage{}, "", nil, err
	}

	return cashu.NewBlindedMessage(w.activeKeyset.Id, amount, B_), secret, r, nil
}

func (w *Wallet) constructProofs(sigs cashu.BlindedSignatures, secrets []string, rs []*secp256k1.PrivateKey) (cashu.Proofs, error) {
	if len(sigs) != len(secrets) || len(sigs) != len(rs) {
		return nil, errors.New("mismatched signature, secret and blinding-factor counts")
	}

	proofs := make(cashu.Proofs, len(sigs))
	for i, sig := range sigs {
		K, err := w.keysetPublicKey(sig.Id, sig.Amount)
		if err != nil {
			return nil, err
		}

		C_bytes, err := hex.DecodeString(sig.C_)
		if err != nil {
			return nil, err
		}
		C_, err := secp256k1.ParsePubKey(C_bytes)
		if err != nil {
			return nil, err
		}

		C := crypto.UnblindSignature(C_, rs[i], K)
		proof := cashu.Proof{
			Amount: sig.Amount,
			Id:     sig.Id,
			Secret: secrets[i],
			C:      hex.EncodeToString(C.SerializeCompressed()),
		}
		if sig.DLEQ != nil {
			proof.DLEQ = &cashu.DLEQProof{
				E: sig.DLEQ.E,
				S: sig.DLEQ.S,
				R: hex.EncodeToString(rs[i].Serialize()),
			}
		}
		proofs[i] = proof
	}
	return proofs, nil
}

func (w *Wallet) keysetPublicKey(id string, amount uint64) (*secp256k1.PublicKey, error) {
	if id == w.activeKeyset.Id {
		if pk, ok := w.activeKeyset.PublicKeys[amount]; ok {
			return pk, nil
		}
	}
	if ks, ok := w.inactiveKeysets[id]; ok {
		if pk, ok := ks.PublicKeys[amount]; ok {
			return pk, nil
		}
	}
	return nil, newErr("keysetPublicKey", ErrUnknownKeyset, fmt.Errorf("no key for amount %d in keyset %s", amount, id))
}

func mintRpcErr(op string, err error) error {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		if kind, ok := classifyCashuErr(statusErr.err); ok {
			return &Error{Kind: kind, Op: op, Status: statusErr.status, Body: statusErr.body, Err: statusErr.err}
		}
		return newMintRpcErr(op, statusErr.status, statusErr.body, statusErr.err)
	}
	return newErr(op, ErrMintRpcFailure, err)
}

// classifyCashuErr turns one of the mint's known NUT error codes into the
// specific ErrKind a caller would want to branch on, instead of the generic
// ErrMintRpcFailure every other mint error collapses to.
func classifyCashuErr(err error) (ErrKind, bool) {
	var cashuErr cashu.Error
	if !errors.As(err, &cashuErr) {
		return 0, false
	}
	switch cashuErr.Code {
	case cashu.MintQuoteRequestNotPaidErrCode:
		return ErrQuoteNotPaid, true
	case cashu.MintQuoteAlreadyIssuedErrCode:
		return ErrQuoteAlreadyIssued, true
	case cashu.MeltQuotePendingErrCode:
		return ErrQuotePending, true
	case cashu.ProofAlreadyUsedErrCode:
		return ErrProofAlreadySpent, true
	case cashu.UnknownKeysetErrCode, cashu.InactiveKeysetErrCode:
		return ErrUnknownKeyset, true
	case cashu.InsufficientProofAmountErrCode:
		return ErrInsufficientFunds, true
	default:
		return 0, false
	}
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				a.Value = slog.StringValue(a.Value.Time().Format("15:04:05"))
			}
			if a.Key == slog.SourceKey {
				if src, ok := a.Value.Any().(*slog.Source); ok {
					src.File = filepath.Base(src.File)
				}
			}
			return a
		},
	}))
}
