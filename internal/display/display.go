// Package display is the presentation surface: a fixed set of keyed text
// elements that the prediction loop writes and the HTTP layer reads.
package display

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// LabelKey is the element showing the current label.
const LabelKey = "label-display"

var ErrElementMissing = errors.New("display: element missing")

// Surface accepts text updates for keyed elements.
type Surface interface {
	SetText(key, text string) error
}

// Board is an in-memory Surface. Only keys registered at construction exist.
type Board struct {
	mu       sync.RWMutex
	elements map[string]string
}

func NewBoard(keys ...string) *Board {
	b := &Board{elements: make(map[string]string, len(keys))}
	for _, k := range keys {
		b.elements[k] = ""
	}
	return b
}

func (b *Board) SetText(key, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.elements[key]; !ok {
		return fmt.Errorf("%w: %q", ErrElementMissing, key)
	}
	b.elements[key] = text
	return nil
}

func (b *Board) Text(key string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	text, ok := b.elements[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrElementMissing, key)
	}
	return text, nil
}

// Element is one key/text pair.
type Element struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// Snapshot returns every element sorted by key.
func (b *Board) Snapshot() []Element {
	b.mu.RLock()
	out := make([]Element, 0, len(b.elements))
	for k, v := range b.elements {
		out = append(out, Element{Key: k, Text: v})
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
