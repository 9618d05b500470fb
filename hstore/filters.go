package hstore

import (
	"github.com/robert-malhotra/go-hstore/internal/errs"
	"github.com/robert-malhotra/go-hstore/internal/filter"
)

// FilterID identifies a filter across the process and in stored pipelines.
type FilterID = filter.ID

// Built-in filters.
const (
	FilterDeflate    = filter.IDDeflate
	FilterShuffle    = filter.IDShuffle
	FilterFletcher32 = filter.IDFletcher32
	FilterLZ4        = filter.IDLZ4
	FilterZstd       = filter.IDZstd
	FilterBlake3     = filter.IDBlake3
)

// Filter is a reversible chunk transform.
type Filter = filter.Filter

// FilterFuncs adapts a pair of functions to Filter.
type FilterFuncs = filter.Funcs

// FilterCapability flags the directions a registered filter supports.
type FilterCapability = filter.Capability

const (
	CanEncode = filter.CanEncode
	CanDecode = filter.CanDecode
	CanBoth   = filter.CanBoth
)

// FilterInfo registers a filter.
type FilterInfo = filter.Info

// FilterSpec is one entry of a dataset's filter pipeline.
type FilterSpec = filter.Spec

// RegisterFilter adds or replaces a filter in the process-wide registry.
// Datasets created afterwards may name it with WithFilter.
func RegisterFilter(id FilterID, info FilterInfo) error {
	if err := filter.Register(id, info); err != nil {
		return &errs.Error{Kind: ErrFilterUnavailable, Op: "register filter", Err: err}
	}
	return nil
}

// UnregisterFilter removes a filter from the registry. Datasets that use it
// fail with ErrFilterUnavailable from then on.
func UnregisterFilter(id FilterID) {
	filter.Unregister(id)
}

// FilterAvailable reports whether id can encode and decode in this process.
func FilterAvailable(id FilterID) (encode, decode bool) {
	return filter.Available(id)
}

// RegisteredFilters lists registered filter ids in ascending order.
func RegisteredFilters() []FilterID {
	return filter.Registered()
}

// FilterName returns the registered name of id.
func FilterName(id FilterID) string {
	return filter.Name(id)
}
