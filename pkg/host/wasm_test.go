package host

import (
	"context"
	"strings"
	"testing"

	"github.com/openfroyo/bmi/pkg/bmi"
)

func TestNewWASMKernel_Invalid(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		module  []byte
		wantErr string
	}{
		{"not wasm", []byte("not a wasm module"), "failed to instantiate WASM module"},
		// An empty module with a valid header exports nothing.
		{"no exports", []byte("\x00asm\x01\x00\x00\x00"), "does not export memory"},
		// One page of memory exported as "memory" and nothing else.
		{"memory only", []byte("\x00asm\x01\x00\x00\x00" +
			"\x05\x03\x01\x00\x01" +
			"\x07\x0a\x01\x06memory\x02\x00"), "does not export malloc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWASMKernel(ctx, tt.module, nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestWASMGrid(t *testing.T) {
	tests := []struct {
		name    string
		grid    wasmGrid
		want    bmi.GridType
		wantErr bool
	}{
		{"uniform", wasmGrid{Type: "uniform", Shape: []int{2, 3}, Spacing: []float64{1, 1}, Origin: []float64{0, 0}}, bmi.GridUniform, false},
		{"scalar", wasmGrid{Type: "uniform", Shape: []int{}, Spacing: []float64{}, Origin: []float64{}}, bmi.GridUniform, false},
		{"rectilinear", wasmGrid{Type: "rectilinear", Shape: []int{2}, X: []float64{0, 1}}, bmi.GridRectilinear, false},
		{"unstructured", wasmGrid{
			Type: "unstructured", X: []float64{0, 1, 0}, Y: []float64{0, 0, 1},
			Connectivity: []int{0, 1, 2}, Offset: []int{0, 3},
		}, bmi.GridUnstructured, false},
		{"unknown", wasmGrid{Type: "unknown", Shape: []int{4}}, bmi.GridUnknown, false},
		{"bad type", wasmGrid{Type: "hexagonal", Shape: []int{4}}, 0, true},
		{"spacing rank", wasmGrid{Type: "uniform", Shape: []int{2, 3}, Spacing: []float64{1}, Origin: []float64{0, 0}}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := tt.grid.toGrid()
			if tt.wantErr {
				if err == nil {
					t.Errorf("toGrid() = %v, want error", g)
				}
				return
			}
			if err != nil {
				t.Fatalf("toGrid() error: %v", err)
			}
			if g.Type() != tt.want {
				t.Errorf("Type() = %s, want %s", g.Type(), tt.want)
			}
		})
	}
}

func TestWASMErrorKinds(t *testing.T) {
	tests := []struct {
		kind string
		want bmi.ErrorKind
	}{
		{"configuration", bmi.KindConfiguration},
		{"unknown_variable", bmi.KindUnknownVariable},
		{"time_bounds", bmi.KindTimeBounds},
		{"", bmi.KindModelFailure},
		{"segfault", bmi.KindModelFailure},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			err := (&wasmError{Kind: tt.kind, Message: "boom"}).asModelError(exportAdvance)
			if err.Kind != tt.want {
				t.Errorf("Kind = %q, want %q", err.Kind, tt.want)
			}
			if err.Details["export"] != exportAdvance {
				t.Errorf("Details = %v", err.Details)
			}
		})
	}
}
