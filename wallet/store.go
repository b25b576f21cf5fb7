package wallet

import (
	"github.com/nutcase-wallet/corewallet/cashu"
)

// proofStore holds the wallet's unspent proofs in memory. It is not
// goroutine-safe, matching the Wallet it belongs to.
type proofStore struct {
	proofs cashu.Proofs
}

func newProofStore(proofs cashu.Proofs) *proofStore {
	return &proofStore{proofs: append(cashu.Proofs(nil), proofs...)}
}

func (s *proofStore) balance() uint64 {
	return s.proofs.Amount()
}

// all returns a defensive copy of every proof currently held.
func (s *proofStore) all() cashu.Proofs {
	return append(cashu.Proofs(nil), s.proofs...)
}

// append adds newly-received proofs to the store.
func (s *proofStore) append(proofs cashu.Proofs) {
	s.proofs = append(s.proofs, proofs...)
}

// extractWithAmounts removes exactly one proof per requested denomination
// in amounts (duplicates require multiple distinct proofs of that
// denomination). It either succeeds completely or leaves the store
// untouched and fails with ErrInsufficientMatchingProofs, never a partial
// removal. The returned restore closure puts the proofs back if a
// subsequent mint round-trip fails.
func (s *proofStore) extractWithAmounts(amounts []uint64) (selected cashu.Proofs, restore func(), err error) {
	remaining := s.all()
	used := make(map[int]bool, len(amounts))

	for _, want := range amounts {
		found := -1
		for i, p := range remaining {
			if !used[i] && p.Amount == want {
				found = i
				break
			}
		}
		if found == -1 {
			return nil, nil, newErr("extractWithAmounts", ErrInsufficientMatchingProofs, nil)
		}
		used[found] = true
		selected = append(selected, remaining[found])
	}

	kept := make(cashu.Proofs, 0, len(remaining)-len(selected))
	for i, p := range remaining {
		if !used[i] {
			kept = append(kept, p)
		}
	}
	s.proofs = kept

	restore = func() {
		s.proofs = append(s.proofs, selected...)
	}
	return selected, restore, nil
}
