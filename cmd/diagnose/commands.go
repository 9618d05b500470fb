package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/robert-malhotra/go-hstore/hstore"
)

func lsCommand() *cli.Command {
	return &cli.Command{
		Name:      "ls",
		Usage:     "List every object reachable from a group",
		ArgsUsage: "<container> [group]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "links", Usage: "Also list soft links"},
		},
		Action: func(c *cli.Context) error {
			ct, done, err := openContainer(c)
			if err != nil {
				return err
			}
			defer done()
			g, err := ct.OpenGroup(argOr(c, 1, "/"))
			if err != nil {
				return errors.Wrap(err, "ls")
			}
			defer g.Close()
			return list(c.App.Writer, ct, g, c.Bool("links"))
		},
	}
}

func list(w io.Writer, ct *hstore.Container, g *hstore.Group, soft bool) error {
	base := depth(g.Path())
	return hstore.Visit(g, func(path string, info hstore.ObjectInfo) error {
		indent := strings.Repeat("  ", depth(path)-base)
		switch info.Kind {
		case hstore.KindGroup:
			name := path
			if name != "/" {
				name += "/"
			}
			fmt.Fprintf(w, "%s%s (%d links, %d attrs)\n", indent, name, info.NumLinks, info.NumAttrs)
			if soft {
				return listSoft(w, ct, path, indent+"  ")
			}
		case hstore.KindDataset:
			d, err := ct.OpenDataset(path)
			if err != nil {
				return err
			}
			defer d.Close()
			dims, err := d.Dims()
			if err != nil {
				return err
			}
			typ, err := d.Type()
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s%s %s %v\n", indent, path, typ, dims)
		default:
			fmt.Fprintf(w, "%s%s (type)\n", indent, path)
		}
		return nil
	})
}

func listSoft(w io.Writer, ct *hstore.Container, path, indent string) error {
	g, err := ct.OpenGroup(path)
	if err != nil {
		return err
	}
	defer g.Close()
	for _, l := range g.Links(hstore.ByName, hstore.Increasing, 0) {
		if l.Type == hstore.SoftLink {
			fmt.Fprintf(w, "%s%s -> %s\n", indent, l.Name, l.Target)
		}
	}
	return nil
}

func depth(path string) int {
	return len(hstore.SplitPath(path))
}

func argOr(c *cli.Context, i int, def string) string {
	if c.NArg() > i {
		return c.Args().Get(i)
	}
	return def
}

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "Describe the container, or one object in it",
		ArgsUsage: "<container> [path]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "chunks", Usage: "List allocated chunks of a chunked dataset"},
		},
		Action: func(c *cli.Context) error {
			ct, done, err := openContainer(c)
			if err != nil {
				return err
			}
			defer done()
			w := c.App.Writer
			if c.NArg() < 2 {
				return containerInfo(w, ct)
			}
			obj, err := ct.OpenObject(c.Args().Get(1))
			if err != nil {
				return errors.Wrap(err, "info")
			}
			defer obj.Close()
			switch o := obj.(type) {
			case *hstore.Dataset:
				return datasetInfo(w, o, c.Bool("chunks"))
			case *hstore.Group:
				return groupInfo(w, o)
			case *hstore.NamedType:
				t, err := o.Type()
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "Committed type %s: %s\n", o.Path(), t)
			}
			return nil
		},
	}
}

func containerInfo(w io.Writer, ct *hstore.Container) error {
	st, err := ct.Stats()
	if err != nil {
		return errors.Wrap(err, "stats")
	}
	fmt.Fprintf(w, "Container %s\n", ct.Path())
	fmt.Fprintf(w, "  ID:          %s\n", ct.ID())
	fmt.Fprintf(w, "  File size:   %d\n", st.FileSize)
	fmt.Fprintf(w, "  Free space:  %d bytes in %d blocks\n", st.FreeBytes, st.FreeBlocks)
	fmt.Fprintf(w, "  Objects:     %d\n", st.Objects)
	return nil
}

func groupInfo(w io.Writer, g *hstore.Group) error {
	state, err := g.StorageState()
	if err != nil {
		return err
	}
	n, err := g.NumLinks()
	if err != nil {
		return err
	}
	info, err := g.Info()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Group %s\n", g.Path())
	fmt.Fprintf(w, "  Object:  %d (refs %d)\n", info.ID, info.RefCount)
	fmt.Fprintf(w, "  Storage: %s\n", state)
	fmt.Fprintf(w, "  Links:   %d\n", n)
	for _, l := range g.Links(hstore.ByCreation, hstore.Increasing, 0) {
		if l.Type == hstore.SoftLink {
			fmt.Fprintf(w, "    %-20s soft -> %s\n", l.Name, l.Target)
		} else {
			fmt.Fprintf(w, "    %-20s hard -> %d\n", l.Name, l.Object)
		}
	}
	return nil
}

func datasetInfo(w io.Writer, d *hstore.Dataset, chunks bool) error {
	sp, err := d.Space()
	if err != nil {
		return err
	}
	typ, err := d.Type()
	if err != nil {
		return err
	}
	class, err := d.Layout()
	if err != nil {
		return err
	}
	size, err := d.StorageSize()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Dataset %s\n", d.Path())
	fmt.Fprintf(w, "  Type:    %s\n", typ)
	fmt.Fprintf(w, "  Shape:   %v max %v\n", sp.Dims(), maxDims(sp))
	fmt.Fprintf(w, "  Layout:  %s\n", class)
	if shared, err := d.SharedType(); err == nil && shared != 0 {
		fmt.Fprintf(w, "  Shares committed type %d\n", shared)
	}
	if fill, err := d.FillValue(); err == nil && fill != nil {
		fmt.Fprintf(w, "  Fill:    % x\n", fill)
	}
	fmt.Fprintf(w, "  Stored:  %d bytes\n", size)
	if class != hstore.Chunked {
		return nil
	}

	dims, err := d.ChunkDims()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  Chunks:  %v\n", dims)
	specs, err := d.Filters()
	if err != nil {
		return err
	}
	for i, f := range specs {
		fmt.Fprintf(w, "  Filter %d: %s (id %d, optional %t, params %v)\n", i, f.Name, f.ID, f.Optional, f.Params)
	}
	if !chunks {
		return nil
	}
	infos, err := d.ChunkInfo()
	if err != nil {
		return err
	}
	for _, ci := range infos {
		fmt.Fprintf(w, "    %v addr %d size %d mask %#x\n", ci.Offset, ci.Addr, ci.Size, ci.FilterMask)
	}
	return nil
}

func maxDims(sp *hstore.Space) []string {
	var out []string
	for _, d := range sp.MaxDims() {
		if d == hstore.Unlimited {
			out = append(out, "unlimited")
		} else {
			out = append(out, fmt.Sprint(d))
		}
	}
	return out
}

func dumpCommand() *cli.Command {
	return &cli.Command{
		Name:      "dump",
		Usage:     "Print the values of a dataset",
		ArgsUsage: "<container> <dataset>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "text", Usage: "Output format (text, yaml, cbor)"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return errors.New("dataset path is required")
			}
			ct, done, err := openContainer(c)
			if err != nil {
				return err
			}
			defer done()
			d, err := ct.OpenDataset(c.Args().Get(1))
			if err != nil {
				return errors.Wrap(err, "dump")
			}
			defer d.Close()
			rep, err := newDump(d)
			if err != nil {
				return errors.Wrapf(err, "dump %s", d.Path())
			}
			return rep.write(c.App.Writer, c.String("format"))
		},
	}
}

func attrsCommand() *cli.Command {
	return &cli.Command{
		Name:      "attrs",
		Usage:     "List the attributes of an object",
		ArgsUsage: "<container> [path]",
		Action: func(c *cli.Context) error {
			ct, done, err := openContainer(c)
			if err != nil {
				return err
			}
			defer done()
			obj, err := ct.OpenObject(argOr(c, 1, "/"))
			if err != nil {
				return errors.Wrap(err, "attrs")
			}
			defer obj.Close()
			w := c.App.Writer
			return hstore.VisitAttributes(obj, func(_ string, a *hstore.Attribute) error {
				v, err := a.Value()
				if err != nil {
					return errors.Wrapf(err, "attribute %s", a.Name())
				}
				fmt.Fprintf(w, "%s: %s %v = %v\n", a.Name(), a.Type(), a.Space().Dims(), v)
				return nil
			})
		},
	}
}

func filtersCommand() *cli.Command {
	return &cli.Command{
		Name:  "filters",
		Usage: "List the filters registered in this build",
		Action: func(c *cli.Context) error {
			w := c.App.Writer
			for _, id := range hstore.RegisteredFilters() {
				enc, dec := hstore.FilterAvailable(id)
				fmt.Fprintf(w, "%-6d %-12s encode=%t decode=%t\n", id, hstore.FilterName(id), enc, dec)
			}
			return nil
		},
	}
}
