// Package id generates identifiers for vault records that are not numbered
// by the vault counters: recovery records, emitted events and batch runs.
// Subscriptions and plan templates keep their sequential numeric IDs.
//
// An ID is the text form of a TypeID ("rcv_01h2xcejqtf2nbrexx3vqjhp41"),
// so it sorts by creation time and stores as a plain string.
package id

import (
	"fmt"
	"strings"

	"go.jetify.com/typeid/v2"
)

// Prefix names the kind of record an ID belongs to.
type Prefix string

const (
	PrefixRecovery Prefix = "rcv"
	PrefixEvent    Prefix = "evt"
	PrefixBatch    Prefix = "bat"
)

// ID is a prefix-qualified, sortable identifier. The zero value is the
// empty string and means "no ID".
type ID string

type (
	// RecoveryID identifies a stranded-funds recovery record.
	RecoveryID = ID
	// EventID identifies an emitted event.
	EventID = ID
	// BatchID identifies a batch charge run.
	BatchID = ID
)

// New generates an ID with the given prefix. It panics on a prefix that
// TypeID rejects, which only a programming error can produce.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID(tid.String())
}

func NewRecoveryID() RecoveryID { return New(PrefixRecovery) }
func NewEventID() EventID       { return New(PrefixEvent) }
func NewBatchID() BatchID       { return New(PrefixBatch) }

// Parse validates s as a TypeID carrying the expected prefix.
func Parse(s string, expected Prefix) (ID, error) {
	if s == "" {
		return "", fmt.Errorf("id: parse: empty %s id", expected)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("id: parse %q: %w", s, err)
	}
	if got := Prefix(tid.Prefix()); got != expected {
		return "", fmt.Errorf("id: %q has prefix %q, want %q", s, got, expected)
	}
	return ID(tid.String()), nil
}

func ParseRecoveryID(s string) (RecoveryID, error) { return Parse(s, PrefixRecovery) }
func ParseEventID(s string) (EventID, error)       { return Parse(s, PrefixEvent) }
func ParseBatchID(s string) (BatchID, error)       { return Parse(s, PrefixBatch) }

// String returns the text form.
func (i ID) String() string { return string(i) }

// Prefix returns the part before the final underscore.
func (i ID) Prefix() Prefix {
	n := strings.LastIndexByte(string(i), '_')
	if n < 0 {
		return ""
	}
	return Prefix(i[:n])
}

// IsNil reports whether i is the zero value.
func (i ID) IsNil() bool { return i == "" }
