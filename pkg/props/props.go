package props

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/magiconair/properties"
)

// Load reads a flat key=value property file. Keys keep file order.
// ${...} references are never expanded; tunnel values are stored verbatim.
func Load(path string) (*properties.Properties, error) {
	l := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := l.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ToMap copies a loaded property set into a plain map.
func ToMap(p *properties.Properties) map[string]string {
	out := make(map[string]string, p.Len())
	for _, k := range p.Keys() {
		v, _ := p.Get(k)
		out[k] = v
	}
	return out
}

// Store writes values to path in sorted key order. The file is written to a
// temporary sibling and renamed into place, creating the parent directory if
// needed.
func Store(path string, values map[string]string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p := properties.NewProperties()
	p.DisableExpansion = true
	for _, k := range keys {
		if _, _, err := p.Set(k, values[k]); err != nil {
			return fmt.Errorf("failed to set %s: %w", k, err)
		}
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# NOTE: This file may be overwritten by tunnelgroup\n# %s\n", time.Now().UTC().Format(time.RFC1123))
	if _, err := p.Write(&buf, properties.UTF8); err != nil {
		return fmt.Errorf("failed to encode properties: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
