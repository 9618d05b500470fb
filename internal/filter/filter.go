package filter

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ID identifies a filter across the process and in stored pipelines.
type ID uint16

// Built-in filter identifiers.
const (
	IDDeflate    ID = 1
	IDShuffle    ID = 2
	IDFletcher32 ID = 3
	IDLZ4        ID = 32004
	IDZstd       ID = 32015
	IDBlake3     ID = 32768
)

// Filter is a reversible transform over a chunk payload.
type Filter interface {
	// Encode transforms a raw payload into its stored form.
	Encode(input []byte) ([]byte, error)

	// Decode reverses Encode.
	Decode(input []byte) ([]byte, error)
}

// Factory builds a filter from its stored parameters and the dataset
// element size.
type Factory func(params []uint32, elemSize int) (Filter, error)

// Capability flags which directions a registered filter supports.
type Capability uint8

const (
	CanEncode Capability = 1 << iota
	CanDecode

	CanBoth = CanEncode | CanDecode
)

// Info describes a registered filter.
type Info struct {
	Name  string
	Flags Capability
	New   Factory
}

// ErrIncompressible is returned by Encode when the output would not be
// smaller than the input. Optional filters that report it are skipped for
// the chunk and recorded in its filter mask.
var ErrIncompressible = errors.New("data is incompressible")

var registry = struct {
	sync.RWMutex
	m map[ID]Info
}{m: make(map[ID]Info)}

func init() {
	builtin := map[ID]Info{
		IDDeflate:    {Name: "deflate", Flags: CanBoth, New: newDeflate},
		IDShuffle:    {Name: "shuffle", Flags: CanBoth, New: newShuffle},
		IDFletcher32: {Name: "fletcher32", Flags: CanBoth, New: newFletcher32},
		IDLZ4:        {Name: "lz4", Flags: CanBoth, New: newLZ4},
		IDZstd:       {Name: "zstd", Flags: CanBoth, New: newZstd},
		IDBlake3:     {Name: "blake3", Flags: CanBoth, New: newBlake3},
	}
	for id, info := range builtin {
		registry.m[id] = info
	}
}

// Register adds or replaces a filter in the process-wide registry.
func Register(id ID, info Info) error {
	if info.New == nil {
		return fmt.Errorf("filter %d: nil factory", id)
	}
	if info.Flags&CanBoth == 0 {
		return fmt.Errorf("filter %d: no capability flags", id)
	}
	if info.Name == "" {
		info.Name = fmt.Sprintf("filter-%d", id)
	}
	registry.Lock()
	registry.m[id] = info
	registry.Unlock()
	return nil
}

// Unregister removes a filter from the registry.
func Unregister(id ID) {
	registry.Lock()
	delete(registry.m, id)
	registry.Unlock()
}

// Lookup returns the registry entry for id.
func Lookup(id ID) (Info, bool) {
	registry.RLock()
	defer registry.RUnlock()
	info, ok := registry.m[id]
	return info, ok
}

// Available reports whether id can encode and decode in this process.
func Available(id ID) (encode, decode bool) {
	info, ok := Lookup(id)
	if !ok {
		return false, false
	}
	return info.Flags&CanEncode != 0, info.Flags&CanDecode != 0
}

// Registered returns all registered ids in ascending order.
func Registered() []ID {
	registry.RLock()
	ids := make([]ID, 0, len(registry.m))
	for id := range registry.m {
		ids = append(ids, id)
	}
	registry.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Name returns the registered name of id, or a placeholder for unknown ids.
func Name(id ID) string {
	if info, ok := Lookup(id); ok {
		return info.Name
	}
	return fmt.Sprintf("filter-%d", id)
}

// Funcs adapts a pair of functions to Filter. A nil function makes that
// direction fail.
type Funcs struct {
	EncodeFn func([]byte) ([]byte, error)
	DecodeFn func([]byte) ([]byte, error)
}

func (f Funcs) Encode(input []byte) ([]byte, error) {
	if f.EncodeFn == nil {
		return nil, errors.New("encode not implemented")
	}
	return f.EncodeFn(input)
}

func (f Funcs) Decode(input []byte) ([]byte, error) {
	if f.DecodeFn == nil {
		return nil, errors.New("decode not implemented")
	}
	return f.DecodeFn(input)
}
