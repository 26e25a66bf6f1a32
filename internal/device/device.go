// Package device holds the records produced by discovery and the
// registry that deduplicates them by address for one scan window.
package device

import (
	"fmt"
	"sync"

	"btlink/util"
)

// BondState is the platform-level pairing relationship with a remote
// device.  It is independent of any active connection.
type BondState int

const (
	BondNone BondState = iota
	BondBonding // only from platforms that report an in-progress bond
	BondBonded
)

func (b BondState) String() string {
	switch b {
	case BondNone:
		return "none"
	case BondBonding:
		return "bonding"
	case BondBonded:
		return "bonded"
	default:
		return "unknown"
	}
}

// Record describes one discovered remote device.  Records are values
// and are never modified after creation.
type Record struct {
	Address string
	Name    string // optional human label
	Bond    BondState
}

// NewRecord builds a Record with a normalised address.
func NewRecord(addr, name string, bond BondState) Record {
	return Record{Address: util.NormalizeAddress(addr), Name: name, Bond: bond}
}

// Label returns "Name (Address)" or just the address when unnamed.
func (r Record) Label() string {
	if r.Name == "" {
		return r.Address
	}
	return fmt.Sprintf("%s (%s)", r.Name, r.Address)
}

// Registry tracks the devices seen during the current scan window.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	byKey map[string]int // address -> index into order
	order []Record
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]int)}
}

// Add records rec unless its address is already known.  It reports
// whether rec was new; the first record seen for an address wins.
func (r *Registry) Add(rec Record) bool {
	rec.Address = util.NormalizeAddress(rec.Address)
	if rec.Address == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[rec.Address]; ok {
		return false
	}
	r.byKey[rec.Address] = len(r.order)
	r.order = append(r.order, rec)
	return true
}

// Lookup returns the record for addr, if it was discovered.
func (r *Registry) Lookup(addr string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byKey[util.NormalizeAddress(addr)]
	if !ok {
		return Record{}, false
	}
	return r.order[i], true
}

// List returns a copy of all records in discovery order.
func (r *Registry) List() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of distinct devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Clear forgets every record.  Called when a new scan starts.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey = make(map[string]int)
	r.order = nil
}
