// Package ledger records where every patch was cut from its parent volume
// so that processed patches can be put back later.
//
// A ledger is a single JSON object mapping patch identifier to CubeSpec:
//
//	{"1.3.6...860_0": {"start_index": [5, 5, 5], "extract_size": [10, 10, 10]}}
//
// Entries accumulate in memory during a batch and are written once by
// Flush. A batch that dies before Flush leaves no ledger at all, never a
// partial one.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"ctpatch/internal/models"
)

// FileName is the ledger's name inside a patch directory.
const FileName = "meta.json"

// ErrUnknownPatch is returned when an identifier has no ledger entry.
var ErrUnknownPatch = errors.New("patch not in ledger")

// Ledger maps patch identifiers to their placement in the parent volume.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]models.CubeSpec
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{entries: make(map[string]models.CubeSpec)}
}

// Record adds or replaces the entry for id.
func (l *Ledger) Record(id string, spec models.CubeSpec) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[id] = spec
}

// Lookup returns the entry for id.
func (l *Ledger) Lookup(id string) (models.CubeSpec, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	spec, ok := l.entries[id]
	if !ok {
		return spec, fmt.Errorf("%w: %s", ErrUnknownPatch, id)
	}
	return spec, nil
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Keys returns every identifier in sorted order.
func (l *Ledger) Keys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	keys := make([]string, 0, len(l.entries))
	for k := range l.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// KeySet returns the identifiers as a set, for exclusion filtering.
func (l *Ledger) KeySet() map[string]struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	set := make(map[string]struct{}, len(l.entries))
	for k := range l.entries {
		set[k] = struct{}{}
	}
	return set
}

// PatchesFor returns the identifiers belonging to series, ordered by
// ordinal so that reinsertion overwrites in extraction order.
func (l *Ledger) PatchesFor(series string) []string {
	l.mu.Lock()
	var ids []string
	for k := range l.entries {
		if SeriesOf(k) == series && k != series {
			ids = append(ids, k)
		}
	}
	l.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool {
		oi, oj := ordinalOf(ids[i]), ordinalOf(ids[j])
		if oi != oj {
			return oi < oj
		}
		return ids[i] < ids[j]
	})
	return ids
}

// Flush writes the whole ledger to path in one atomic replace.
func (l *Ledger) Flush(path string) error {
	l.mu.Lock()
	data, err := json.MarshalIndent(l.entries, "", "  ")
	l.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Load reads a ledger written by Flush.
func Load(path string) (*Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	l := New()
	if err := json.Unmarshal(data, &l.entries); err != nil {
		return nil, fmt.Errorf("failed to parse ledger %s: %w", path, err)
	}
	if l.entries == nil {
		l.entries = make(map[string]models.CubeSpec)
	}
	return l, nil
}

// PatchID names the ordinal-th patch of series.
func PatchID(series string, ordinal int) string {
	return series + "_" + strconv.Itoa(ordinal)
}

// KeyForFile derives the identifier of a volume file: the base name with
// a .mhd or .mha extension removed, compared case-insensitively. The same
// rule applies when naming patches, writing the ledger, reading it back
// and filtering projections.
func KeyForFile(name string) string {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	if strings.EqualFold(ext, ".mhd") || strings.EqualFold(ext, ".mha") {
		return base[:len(base)-len(ext)]
	}
	return base
}

// SeriesOf strips a trailing _<digits> ordinal from a patch identifier.
// Identifiers without an ordinal are returned unchanged.
func SeriesOf(id string) string {
	i := strings.LastIndexByte(id, '_')
	if i <= 0 || i == len(id)-1 {
		return id
	}
	for _, r := range id[i+1:] {
		if r < '0' || r > '9' {
			return id
		}
	}
	return id[:i]
}

func ordinalOf(id string) int {
	i := strings.LastIndexByte(id, '_')
	if i < 0 {
		return -1
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return -1
	}
	return n
}
