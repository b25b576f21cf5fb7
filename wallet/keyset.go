package wallet

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/nutcase-wallet/corewallet/crypto"
)

// fetchActiveKeyset finds the mint's currently active keyset for the
// wallet's unit and fetches its public keys.
func fetchActiveKeyset(ctx context.Context, client *MintClient, unit string) (*crypto.WalletKeyset, error) {
	keysets, err := client.GetAllKeysets(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting keysets from mint: %v", err)
	}

	for _, ks := range keysets.Keysets {
		if !ks.Active || ks.Unit != unit {
			continue
		}
		if _, err := hex.DecodeString(ks.Id); err != nil {
			continue
		}
		keys, err := fetchKeysetKeys(ctx, client, ks.Id)
		if err != nil {
			return nil, err
		}
		return &crypto.WalletKeyset{
			Id:          ks.Id,
			MintURL:     client.mintURL,
			Unit:        ks.Unit,
			Active:      true,
			PublicKeys:  keys,
			InputFeePpk: ks.InputFeePpk,
		}, nil
	}

	return nil, errors.New("mint has no active keyset for this unit")
}

// fetchInactiveKeysets returns the mint's known-but-retired keysets for the
// wallet's unit, so proofs minted under them can still be looked up by id.
func fetchInactiveKeysets(ctx context.Context, client *MintClient, unit string) (crypto.KeysetsMap, error) {
	keysets, err := client.GetAllKeysets(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting keysets from mint: %v", err)
	}

	inactive := make(crypto.KeysetsMap)
	for _, ks := range keysets.Keysets {
		if ks.Active || ks.Unit != unit {
			continue
		}
		if _, err := hex.DecodeString(ks.Id); err != nil {
			continue
		}
		inactive[ks.Id] = crypto.WalletKeyset{
			Id:          ks.Id,
			MintURL:     client.mintURL,
			Unit:        ks.Unit,
			Active:      false,
			InputFeePpk: ks.InputFeePpk,
		}
	}
	return inactive, nil
}

func fetchKeysetKeys(ctx context.Context, client *MintClient, id string) (crypto.PublicKeys, error) {
	res, err := client.GetKeysetById(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting keyset %s from mint: %v", id, err)
	}
	if len(res.Keysets) == 0 {
		return nil, fmt.Errorf("mint returned no keys for keyset %s", id)
	}

	keys := res.Keysets[0].Keys

	derivedId := crypto.DeriveKeysetId(keys)
	if id != derivedId {
		return nil, fmt.Errorf("mint keyset %s does not match its own keys (derived id %s)", id, derivedId)
	}

	return keys, nil
}

// refreshActiveKeyset re-checks the mint's active keyset against the
// wallet's cache, bypassing MintClient's memoized GetAllKeysets (whose
// whole point is to avoid refetching) since this call exists specifically
// to notice when the mint has rotated. If the mint rotated to a new one,
// the old active keyset is demoted to inactive and the new one, found in the
// freshly fetched list, cached and persisted. Called at the start of Send
// and Melt; both log a failure here and go on with the cached keyset.
func (w *Wallet) refreshActiveKeyset(ctx context.Context) (*crypto.WalletKeyset, error) {
	keysets, err := w.client.fetchAllKeysets(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting keysets from mint: %v", err)
	}

	current := w.activeKeyset
	for _, ks := range keysets.Keysets {
		if ks.Active && ks.Id == current.Id {
			if ks.InputFeePpk != current.InputFeePpk {
				current.InputFeePpk = ks.InputFeePpk
				w.activeKeyset = current
				if err := w.persistLocked(); err != nil {
					return nil, err
				}
			}
			return &w.activeKeyset, nil
		}
	}

	// mint rotated: the cached active keyset is no longer active.
	current.Active = false
	w.inactiveKeysets[current.Id] = current

	var newActive *crypto.WalletKeyset
	for _, ks := range keysets.Keysets {
		if !ks.Active || ks.Unit != w.unit {
			continue
		}
		keys, err := fetchKeysetKeys(ctx, w.client, ks.Id)
		if err != nil {
			return nil, err
		}
		newActive = &crypto.WalletKeyset{Id: ks.Id, MintURL: w.client.mintURL, Unit: ks.Unit, Active: true, PublicKeys: keys, InputFeePpk: ks.InputFeePpk}
		break
	}
	if newActive == nil {
		return nil, errors.New("mint has no active keyset for this unit")
	}
	delete(w.inactiveKeysets, newActive.Id)
	w.activeKeyset = *newActive

	if err := w.persistLocked(); err != nil {
		return nil, err
	}
	return &w.activeKeyset, nil
}
