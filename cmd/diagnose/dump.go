package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/robert-malhotra/go-hstore/hstore"
)

// dump is the serialized form of one dataset's contents.
type dump struct {
	Path   string   `yaml:"path" cbor:"path"`
	Type   string   `yaml:"type" cbor:"type"`
	Dims   []uint64 `yaml:"dims" cbor:"dims"`
	Layout string   `yaml:"layout" cbor:"layout"`
	Values []any    `yaml:"values" cbor:"values"`
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("diagnose: CBOR encoder initialization failed: " + err.Error())
	}
}

func newDump(d *hstore.Dataset) (*dump, error) {
	typ, err := d.Type()
	if err != nil {
		return nil, err
	}
	dims, err := d.Dims()
	if err != nil {
		return nil, err
	}
	class, err := d.Layout()
	if err != nil {
		return nil, err
	}
	vals, err := d.ReadValues(nil)
	if err != nil {
		return nil, err
	}
	return &dump{Path: d.Path(), Type: typ.String(), Dims: dims, Layout: class.String(), Values: vals}, nil
}

func (r *dump) write(w io.Writer, format string) error {
	switch format {
	case "text":
		return r.text(w)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return errors.Wrap(err, "encode yaml")
		}
		return errors.Wrap(enc.Close(), "encode yaml")
	case "cbor":
		b, err := encMode.Marshal(r)
		if err != nil {
			return errors.Wrap(err, "encode cbor")
		}
		_, err = w.Write(b)
		return errors.Wrap(err, "write cbor")
	}
	return errors.Errorf("unknown format %q (want text, yaml or cbor)", format)
}

// text prints one line per row of the innermost dimension.
func (r *dump) text(w io.Writer) error {
	fmt.Fprintf(w, "%s %s %v %s\n", r.Path, r.Type, r.Dims, r.Layout)
	row := 1
	if len(r.Dims) > 0 {
		row = int(r.Dims[len(r.Dims)-1])
	}
	if row == 0 {
		return nil
	}
	for i := 0; i < len(r.Values); i += row {
		end := min(i+row, len(r.Values))
		parts := make([]string, 0, end-i)
		for _, v := range r.Values[i:end] {
			parts = append(parts, fmt.Sprint(v))
		}
		if _, err := fmt.Fprintf(w, "  [%d] %s\n", i/row, strings.Join(parts, " ")); err != nil {
			return errors.Wrap(err, "write")
		}
	}
	return nil
}
