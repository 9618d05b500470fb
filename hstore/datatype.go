package hstore

import "github.com/robert-malhotra/go-hstore/internal/errs"

// NamedType is a handle to a committed datatype. Datasets and attributes
// created with its Type share the stored definition instead of copying it.
type NamedType struct {
	handle
}

// Type returns the committed type. It is locked against changes; pass it
// to CreateDataset or CreateAttribute to share it.
func (t *NamedType) Type() (*Type, error) {
	unlock, err := t.enter()
	if err != nil {
		return nil, errs.Wrap(err, "type", t.path)
	}
	defer unlock()
	return t.n.dt, nil
}
