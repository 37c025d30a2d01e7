// Package catalog loads platform format definitions from YAML and seeds them
// into a store, so new formats ship as data.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/martin3r-me/platforms-brands-sub000/internal/schema"
	"github.com/martin3r-me/platforms-brands-sub000/internal/store"
)

type Catalog struct {
	Platforms []Platform `yaml:"platforms"`
}

type Platform struct {
	Key     string   `yaml:"key"`
	Name    string   `yaml:"name"`
	Formats []Format `yaml:"formats"`
}

type Format struct {
	Key          string         `yaml:"key"`
	Name         string         `yaml:"name"`
	MediaType    string         `yaml:"media_type"`
	Active       *bool          `yaml:"active"`
	OutputSchema schema.Schema  `yaml:"output_schema"`
	Rules        map[string]any `yaml:"rules"`
}

func (f Format) IsActive() bool {
	return f.Active == nil || *f.Active
}

// Parse decodes and normalizes a catalog. Keys are lowercased.
func Parse(data []byte) (Catalog, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Catalog{}, errors.New("catalog: document is empty")
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("catalog: decode: %w", err)
	}
	if err := c.normalize(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

func LoadFile(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return Catalog{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func (c *Catalog) normalize() error {
	var errs []error
	platforms := map[string]bool{}
	for i := range c.Platforms {
		p := &c.Platforms[i]
		p.Key = strings.ToLower(strings.TrimSpace(p.Key))
		if p.Key == "" {
			errs = append(errs, fmt.Errorf("catalog: platforms[%d].key is required", i))
			continue
		}
		if platforms[p.Key] {
			errs = append(errs, fmt.Errorf("catalog: platform %q is defined twice", p.Key))
		}
		platforms[p.Key] = true
		if p.Name == "" {
			p.Name = p.Key
		}
		formats := map[string]bool{}
		for j := range p.Formats {
			f := &p.Formats[j]
			f.Key = strings.ToLower(strings.TrimSpace(f.Key))
			if f.Key == "" {
				errs = append(errs, fmt.Errorf("catalog: %s.formats[%d].key is required", p.Key, j))
				continue
			}
			if formats[f.Key] {
				errs = append(errs, fmt.Errorf("catalog: format %s/%s is defined twice", p.Key, f.Key))
			}
			formats[f.Key] = true
			if f.Name == "" {
				f.Name = p.Name + " " + f.Key
			}
			for _, err := range schema.Check(f.OutputSchema) {
				errs = append(errs, fmt.Errorf("catalog: %s/%s: %w", p.Key, f.Key, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Lookup finds a format by platform and format key.
func (c Catalog) Lookup(platformKey, formatKey string) (Format, bool) {
	platformKey = strings.ToLower(platformKey)
	formatKey = strings.ToLower(formatKey)
	for _, p := range c.Platforms {
		if p.Key != platformKey {
			continue
		}
		for _, f := range p.Formats {
			if f.Key == formatKey {
				return f, true
			}
		}
	}
	return Format{}, false
}

// Seed upserts every platform and format. Existing rows keep their ids.
// It returns the number of formats written.
func Seed(ctx context.Context, st store.Store, c Catalog) (int, error) {
	n := 0
	for _, p := range c.Platforms {
		platform, err := st.UpsertPlatform(ctx, store.PlatformInput{ID: uuid.New(), Key: p.Key, Name: p.Name})
		if err != nil {
			return n, fmt.Errorf("seed platform %s: %w", p.Key, err)
		}
		for _, f := range p.Formats {
			if _, err := st.UpsertPlatformFormat(ctx, store.PlatformFormatInput{
				ID:           uuid.New(),
				PlatformID:   platform.ID,
				Name:         f.Name,
				Key:          f.Key,
				MediaType:    f.MediaType,
				OutputSchema: f.OutputSchema,
				Rules:        f.Rules,
				Active:       f.IsActive(),
			}); err != nil {
				return n, fmt.Errorf("seed format %s/%s: %w", p.Key, f.Key, err)
			}
			n++
		}
	}
	return n, nil
}
