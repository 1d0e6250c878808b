package state

import (
	"sort"
	"sync"

	"github.com/code-payments/chain-fuzzer/pkg/chain"
	"github.com/code-payments/chain-fuzzer/pkg/pointer"
)

// Utxo is an unspent asset output.
type Utxo struct {
	TxHash    chain.Hash
	Index     uint32
	Owner     chain.Address
	AssetType chain.AssetType
	Quantity  chain.Quantity
}

func (u *Utxo) OutPoint() chain.AssetOutPoint {
	return chain.AssetOutPoint{
		TxHash:    u.TxHash,
		Index:     u.Index,
		AssetType: u.AssetType,
		Owner:     u.Owner,
		Quantity:  u.Quantity,
	}
}

func (u *Utxo) Clone() *Utxo {
	cloned := *u
	return &cloned
}

// AssetScheme describes an asset type. Registrar is the only account allowed
// to change the scheme, and is nil for immutable schemes.
type AssetScheme struct {
	AssetType chain.AssetType
	Metadata  string
	Registrar *chain.Address
	Supply    chain.Quantity
}

func (s *AssetScheme) Clone() *AssetScheme {
	cloned := *s
	cloned.Registrar = pointer.Copy(s.Registrar)
	return &cloned
}

type outPointKey struct {
	txHash chain.Hash
	index  uint32
}

// State is the locally tracked projection of confirmed chain state used to
// generate transactions. It must only be mutated with the effects of confirmed
// transactions.
//
// Queries return copies sorted by a stable key, so that seeded random picks
// over them are reproducible.
type State struct {
	mu      sync.RWMutex
	utxos   map[chain.Address]map[outPointKey]*Utxo
	schemes map[chain.AssetType]*AssetScheme
}

func New() *State {
	return &State{
		utxos:   make(map[chain.Address]map[outPointKey]*Utxo),
		schemes: make(map[chain.AssetType]*AssetScheme),
	}
}

// GetUtxos returns the unspent outputs owned by an account. Unknown accounts
// have none.
func (s *State) GetUtxos(owner chain.Address) []*Utxo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owned := s.utxos[owner]
	res := make([]*Utxo, 0, len(owned))
	for _, utxo := range owned {
		res = append(res, utxo.Clone())
	}

	sort.Slice(res, func(i, j int) bool {
		if res[i].TxHash != res[j].TxHash {
			return res[i].TxHash.Less(res[j].TxHash)
		}
		return res[i].Index < res[j].Index
	})
	return res
}

// AllAssetSchemes returns every known asset scheme, ordered by asset type.
func (s *State) AllAssetSchemes() []*AssetScheme {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]*AssetScheme, 0, len(s.schemes))
	for _, scheme := range s.schemes {
		res = append(res, scheme.Clone())
	}

	sort.Slice(res, func(i, j int) bool {
		return res[i].AssetType < res[j].AssetType
	})
	return res
}

func (s *State) GetAssetScheme(assetType chain.AssetType) (*AssetScheme, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scheme, ok := s.schemes[assetType]
	if !ok {
		return nil, false
	}
	return scheme.Clone(), true
}

// HasUtxo reports whether the output is still unspent.
func (s *State) HasUtxo(owner chain.Address, txHash chain.Hash, index uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.utxos[owner][outPointKey{txHash, index}]
	return ok
}

func (s *State) UtxoCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	for _, owned := range s.utxos {
		count += len(owned)
	}
	return count
}

// Balance sums the quantity of an asset type owned by an account.
func (s *State) Balance(owner chain.Address, assetType chain.AssetType) chain.Quantity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total chain.Quantity
	for _, utxo := range s.utxos[owner] {
		if utxo.AssetType == assetType {
			total += utxo.Quantity
		}
	}
	return total
}

func (s *State) AddUtxo(utxo *Utxo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.addUtxo(utxo.Clone())
}

// RemoveUtxo removes an output, reporting whether it existed.
func (s *State) RemoveUtxo(owner chain.Address, txHash chain.Hash, index uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.removeUtxo(owner, outPointKey{txHash, index})
}

func (s *State) SetAssetScheme(scheme *AssetScheme) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.schemes[scheme.AssetType] = scheme.Clone()
}

// ApplyTransfer records a confirmed transfer: inputs are spent and outputs
// become new utxos of txHash, indexed in output order.
func (s *State) ApplyTransfer(txHash chain.Hash, inputs []chain.AssetOutPoint, outputs []chain.AssetOutput) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, input := range inputs {
		s.removeUtxo(input.Owner, outPointKey{input.TxHash, input.Index})
	}

	for i, output := range outputs {
		s.addUtxo(&Utxo{
			TxHash:    txHash,
			Index:     uint32(i),
			Owner:     output.Receiver,
			AssetType: output.AssetType,
			Quantity:  output.Quantity,
		})
	}
}

// ApplyChangeAssetScheme records a confirmed scheme mutation. Nil fields are
// left unchanged, and unknown asset types are ignored.
func (s *State) ApplyChangeAssetScheme(assetType chain.AssetType, registrar *chain.Address, metadata *string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scheme, ok := s.schemes[assetType]
	if !ok {
		return
	}

	if registrar != nil {
		scheme.Registrar = pointer.Copy(registrar)
	}
	if metadata != nil {
		scheme.Metadata = *metadata
	}
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cloned := New()
	for _, owned := range s.utxos {
		for _, utxo := range owned {
			cloned.addUtxo(utxo.Clone())
		}
	}
	for assetType, scheme := range s.schemes {
		cloned.schemes[assetType] = scheme.Clone()
	}
	return cloned
}

func (s *State) addUtxo(utxo *Utxo) {
	owned, ok := s.utxos[utxo.Owner]
	if !ok {
		owned = make(map[outPointKey]*Utxo)
		s.utxos[utxo.Owner] = owned
	}
	owned[outPointKey{utxo.TxHash, utxo.Index}] = utxo
}

func (s *State) removeUtxo(owner chain.Address, key outPointKey) bool {
	owned, ok := s.utxos[owner]
	if !ok {
		return false
	}

	if _, ok := owned[key]; !ok {
		return false
	}

	delete(owned, key)
	if len(owned) == 0 {
		delete(s.utxos, owner)
	}
	return true
}
