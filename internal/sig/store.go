package sig

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"sort"
)

// DefaultFileName is the signature file written when the caller gives no
// path. FileExt is appended to bare names without an extension.
const (
	DefaultFileName = "sigmatch.sig"
	FileExt         = ".sig"
)

// Store is the persisted signature set for one binary. Within each of the
// four keyed maps a key identifies exactly one function address: colliding
// entries are removed during generation, never merged.
type Store struct {
	Formal     map[uint32]uint64 // function-level exact-structure hash
	Fuzzy      map[uint32]uint64 // function-level loose-structure hash
	Strings    map[uint32]uint64 // unique long string hash -> owning function
	Immediates map[uint64]uint64 // unique large immediate -> owning function
	Functions  map[uint64]FunctionSignature
}

// NewStore returns an empty store with all maps allocated.
func NewStore() *Store {
	return &Store{
		Formal:     make(map[uint32]uint64),
		Fuzzy:      make(map[uint32]uint64),
		Strings:    make(map[uint32]uint64),
		Immediates: make(map[uint64]uint64),
		Functions:  make(map[uint64]FunctionSignature),
	}
}

// bucket is the generation-time state of one signature category: the
// surviving entries plus the set of keys poisoned by collisions. Poisoned
// keys are discarded once generation completes; they never persist.
type bucket[K comparable] struct {
	active   map[K]uint64
	poisoned map[K]struct{}
}

func newBucket[K comparable]() *bucket[K] {
	return &bucket[K]{
		active:   make(map[K]uint64),
		poisoned: make(map[K]struct{}),
	}
}

// add applies the dedup rule: a key seen a second time is removed and
// permanently poisoned for this generation pass, so a signature shared by
// two or more functions identifies none of them.
func (b *bucket[K]) add(key K, addr uint64) {
	if _, dup := b.active[key]; dup {
		delete(b.active, key)
		b.poisoned[key] = struct{}{}
		return
	}
	if _, bad := b.poisoned[key]; bad {
		return
	}
	b.active[key] = addr
}

// Wire form: maps flattened to key-sorted slices so that encoding the same
// store always produces identical bytes.

type hashEntry struct {
	Key  uint32
	Addr uint64
}

type immEntry struct {
	Key  uint64
	Addr uint64
}

type funcEntry struct {
	Addr uint64
	Sig  FunctionSignature
}

type storeWire struct {
	Formal     []hashEntry
	Fuzzy      []hashEntry
	Strings    []hashEntry
	Immediates []immEntry
	Functions  []funcEntry
}

func sortHashEntries(m map[uint32]uint64) []hashEntry {
	out := make([]hashEntry, 0, len(m))
	for k, a := range m {
		out = append(out, hashEntry{Key: k, Addr: a})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Save writes the store to w in its deterministic wire form.
func (s *Store) Save(w io.Writer) error {
	wire := storeWire{
		Formal:  sortHashEntries(s.Formal),
		Fuzzy:   sortHashEntries(s.Fuzzy),
		Strings: sortHashEntries(s.Strings),
	}
	for k, a := range s.Immediates {
		wire.Immediates = append(wire.Immediates, immEntry{Key: k, Addr: a})
	}
	sort.Slice(wire.Immediates, func(i, j int) bool { return wire.Immediates[i].Key < wire.Immediates[j].Key })
	for addr, fn := range s.Functions {
		wire.Functions = append(wire.Functions, funcEntry{Addr: addr, Sig: fn})
	}
	sort.Slice(wire.Functions, func(i, j int) bool { return wire.Functions[i].Addr < wire.Functions[j].Addr })

	if err := gob.NewEncoder(w).Encode(&wire); err != nil {
		return fmt.Errorf("encode signatures: %w", err)
	}
	return nil
}

// Load reads a store previously written by Save.
func Load(r io.Reader) (*Store, error) {
	var wire storeWire
	if err := gob.NewDecoder(r).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode signatures: %w", err)
	}

	s := NewStore()
	for _, e := range wire.Formal {
		s.Formal[e.Key] = e.Addr
	}
	for _, e := range wire.Fuzzy {
		s.Fuzzy[e.Key] = e.Addr
	}
	for _, e := range wire.Strings {
		s.Strings[e.Key] = e.Addr
	}
	for _, e := range wire.Immediates {
		s.Immediates[e.Key] = e.Addr
	}
	for _, e := range wire.Functions {
		s.Functions[e.Addr] = e.Sig
	}
	return s, nil
}

// SaveFile persists the store to path and returns the written size.
func (s *Store) SaveFile(path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create signature file: %w", err)
	}
	if err := s.Save(f); err != nil {
		f.Close()
		return 0, err
	}
	fi, statErr := f.Stat()
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close signature file: %w", err)
	}
	if statErr != nil {
		return 0, nil
	}
	return fi.Size(), nil
}

// LoadFile reads a store from path.
func LoadFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open signature file: %w", err)
	}
	defer f.Close()
	return Load(f)
}
