// Package transcript holds the text shown for the current recording.
package transcript

import (
	"fmt"
	"strings"
	"sync"
)

type Policy int

const (
	// Accumulate joins every fragment with a single space.
	Accumulate Policy = iota
	// Replace keeps only the latest fragment.
	Replace
)

func (p Policy) String() string {
	switch p {
	case Accumulate:
		return "accumulate"
	case Replace:
		return "replace"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accumulate", "":
		return Accumulate, nil
	case "replace":
		return Replace, nil
	}
	return 0, fmt.Errorf("unknown transcript policy %q", s)
}

type Buffer struct {
	policy Policy

	mu    sync.Mutex
	text  string
	count int
}

func NewBuffer(p Policy) *Buffer {
	return &Buffer{policy: p}
}

func (b *Buffer) Policy() Policy { return b.policy }

// Apply folds a fragment into the buffer and returns the resulting text.
// Empty fragments leave the text unchanged.
func (b *Buffer) Apply(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	b.mu.Lock()
	defer b.mu.Unlock()
	if fragment == "" {
		return b.text
	}
	b.count++
	switch b.policy {
	case Replace:
		b.text = fragment
	default:
		if b.text == "" {
			b.text = fragment
		} else {
			b.text += " " + fragment
		}
	}
	return b.text
}

func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

// Count is the number of fragments applied since the last Reset.
func (b *Buffer) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Begin prepares the buffer for a new recording. Accumulated text starts
// over; a replace buffer keeps showing the last fragment until a new one
// arrives.
func (b *Buffer) Begin() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count = 0
	if b.policy == Accumulate {
		b.text = ""
	}
}

func (b *Buffer) Reset() {
	b.mu.Lock()
	b.text = ""
	b.count = 0
	b.mu.Unlock()
}
