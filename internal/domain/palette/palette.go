// Package palette assigns display colors to runners.
//
// Two interchangeable policies: a stable hash of an identifier (same color
// on every export run, no coordination needed) and a sequential assigner
// for when the full runner list is known upfront and simultaneous
// collisions must be avoided.
package palette

import (
	"crypto/md5" //nolint:gosec // non-cryptographic: stable bucket selection only
	"math/big"
)

// Color pairs a hex value with its human-readable name.
type Color struct {
	Hex  string
	Name string
}

// Palette is an immutable color list. More runners than entries wrap
// around via modulo; that collision is accepted.
type Palette []Color

// Default is the classic 8-color qualitative set used by the map UI.
func Default() Palette {
	return Palette{
		{Hex: "#e41a1c", Name: "red"},
		{Hex: "#377eb8", Name: "blue"},
		{Hex: "#4daf4a", Name: "green"},
		{Hex: "#ff7f00", Name: "orange"},
		{Hex: "#984ea3", Name: "purple"},
		{Hex: "#f781bf", Name: "pink"},
		{Hex: "#a65628", Name: "brown"},
		{Hex: "#999999", Name: "gray"},
	}
}

// Fallback is used when a runner resolved to no node at all.
func (p Palette) Fallback() Color {
	return p[len(p)-1]
}

// HashColor picks a color by md5 of the identifier, matching the
// historical map implementation so colors stay stable across runs.
func (p Palette) HashColor(id string) Color {
	sum := md5.Sum([]byte(id)) //nolint:gosec
	n := new(big.Int).SetBytes(sum[:])
	idx := new(big.Int).Mod(n, big.NewInt(int64(len(p)))).Int64()
	return p[idx]
}

// Sequencer hands out palette entries in visit order.
type Sequencer struct {
	palette Palette
	next    int
}

// Sequential returns an assigner that guarantees no two of the first
// len(palette) runners share a color.
func (p Palette) Sequential() *Sequencer {
	return &Sequencer{palette: p}
}

// Next returns the next color, wrapping via modulo.
func (s *Sequencer) Next() Color {
	c := s.palette[s.next%len(s.palette)]
	s.next++
	return c
}
