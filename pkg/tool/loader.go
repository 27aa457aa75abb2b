package tool

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadSpecFile reads and strictly decodes a *.tool.yaml spec.
func LoadSpecFile(path string) (*Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tool spec: %w", err)
	}
	defer f.Close()

	spec, err := LoadSpec(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return spec, nil
}

// LoadSpec reads a tool spec from a reader. Unknown fields are rejected.
func LoadSpec(r io.Reader) (*Spec, error) {
	var s Spec
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("structural decode: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadSpecDir loads every *.tool.yaml under dir, sorted by file name.
func LoadSpecDir(dir string) ([]*Spec, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read tool dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".tool.yaml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	specs := make([]*Spec, 0, len(names))
	for _, name := range names {
		s, err := LoadSpecFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		specs = append(specs, s)
	}
	return specs, nil
}

// LoadCatalog loads every tool spec under dir into a fresh catalog, wiring a
// stdio handler for each spec that declares a binary. Specs without a binary
// register handlerless and can only be validated against.
func LoadCatalog(dir string) (*Catalog, error) {
	specs, err := LoadSpecDir(dir)
	if err != nil {
		return nil, err
	}
	cat := NewCatalog()
	for _, spec := range specs {
		var h Handler
		if spec.Binary != "" {
			sh, err := NewStdioHandler(spec)
			if err != nil {
				return nil, err
			}
			h = sh
		}
		if err := cat.Register(spec, h); err != nil {
			return nil, err
		}
	}
	return cat, nil
}
