// Package view turns a telemetry frame into the presentation models of the
// wide dashboard and the compact mobile view. Renderers are pure functions
// of the frame and never fail; odd input degrades to fallback text.
package view

import (
	"sort"

	"codeberg.org/mutker/ecoguard/internal/telemetry"
)

// Binding renders a frame into one view's output.
type Binding interface {
	Name() string
	Render(f telemetry.Frame) any
}

// BindingFunc adapts a plain function to Binding.
type BindingFunc struct {
	ID string
	Fn func(telemetry.Frame) any
}

func (b BindingFunc) Name() string                 { return b.ID }
func (b BindingFunc) Render(f telemetry.Frame) any { return b.Fn(f) }

const (
	WideName    = "wide"
	CompactName = "compact"
)

var builtin = []Binding{
	BindingFunc{ID: WideName, Fn: func(f telemetry.Frame) any { return Wide(f) }},
	BindingFunc{ID: CompactName, Fn: func(f telemetry.Frame) any { return Compact(f) }},
}

// Lookup finds a built-in binding by name.
func Lookup(name string) (Binding, bool) {
	for _, b := range builtin {
		if b.Name() == name {
			return b, true
		}
	}

	return nil, false
}

// Names lists the built-in binding names in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for _, b := range builtin {
		names = append(names, b.Name())
	}
	sort.Strings(names)

	return names
}
