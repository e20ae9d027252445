package main

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Model identity.
const (
	Name          = "decay"
	ComponentName = "First-order decay along a row of cells"
	Author        = "OpenFroyo Authors"

	RateVar          = "rate"
	ConcentrationVar = "concentration"
)

// Attribute names.
const (
	AttrAuthor  = "author"
	AttrCells   = "cells"
	AttrInitial = "initial"
	AttrRate    = "rate"
)

const maxCells = 1 << 16

// Error kinds understood by the host.
const (
	kindConfiguration = "configuration"
	kindModelFailure  = "model_failure"
	kindStateLoad     = "state_load"
)

type guestError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *guestError) Error() string { return e.Kind + ": " + e.Message }

func errorf(kind, format string, args ...interface{}) *guestError {
	return &guestError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

type clock struct {
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	TimeStep  float64 `json:"time_step"`
	TimeUnits string  `json:"time_units"`
}

type attributeSpec struct {
	Name    string `json:"name"`
	Default string `json:"default"`
	Policy  string `json:"policy"`
}

type description struct {
	Component  string          `json:"component"`
	Clock      clock           `json:"clock"`
	Attributes []attributeSpec `json:"attributes"`
}

type configureRequest struct {
	Config struct {
		Model string `json:"model"`
	} `json:"config"`
	Clock      clock             `json:"clock"`
	Attributes map[string]string `json:"attributes"`
}

type declaration struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

type configureResponse struct {
	Variables []declaration `json:"variables"`
}

type allocateRequest struct {
	Clock      clock             `json:"clock"`
	Attributes map[string]string `json:"attributes"`
}

type grid struct {
	Type  string    `json:"type"`
	Shape []int     `json:"shape"`
	X     []float64 `json:"x"`
}

// binding is one allocated variable. The ABI layer fills Ptr from Values.
type binding struct {
	Name   string    `json:"name"`
	Type   string    `json:"type"`
	Units  string    `json:"units"`
	Role   string    `json:"role"`
	Grid   grid      `json:"grid"`
	Ptr    uint32    `json:"ptr"`
	Values []float64 `json:"-"`
}

type allocateResponse struct {
	Variables []binding `json:"variables"`
}

type advanceRequest struct {
	DT       float64 `json:"dt"`
	Fraction float64 `json:"fraction"`
}

type stateBlob struct {
	State []byte `json:"state"`
}

type savedState struct {
	Steps   int     `json:"steps"`
	Elapsed float64 `json:"elapsed"`
}

// model decays a tracer concentration in each cell at the rate given for
// that cell: c <- c * exp(-rate * dt).
type model struct {
	rate          []float64
	concentration []float64
	steps         int
	elapsed       float64
}

func describe() description {
	return description{
		Component: ComponentName,
		Clock: clock{
			StartTime: 0,
			EndTime:   10,
			TimeStep:  1,
			TimeUnits: "seconds",
		},
		Attributes: []attributeSpec{
			{Name: AttrAuthor, Default: Author, Policy: "read_only"},
			{Name: AttrCells, Default: "5", Policy: "mutable_before_init"},
			{Name: AttrInitial, Default: "1.0", Policy: "mutable_before_init"},
			{Name: AttrRate, Default: "0.1", Policy: "mutable_before_init"},
		},
	}
}

func (m *model) configure(req configureRequest) (*configureResponse, error) {
	if req.Config.Model != "" && req.Config.Model != Name {
		return nil, errorf(kindConfiguration, "configuration is for model %q, not %q", req.Config.Model, Name)
	}
	if _, err := parseCells(req.Attributes[AttrCells]); err != nil {
		return nil, err
	}
	return &configureResponse{Variables: []declaration{
		{Name: RateVar, Role: "input"},
		{Name: ConcentrationVar, Role: "output"},
	}}, nil
}

func (m *model) allocate(req allocateRequest) (*allocateResponse, error) {
	n, err := parseCells(req.Attributes[AttrCells])
	if err != nil {
		return nil, err
	}
	initial, err := parseFinite(AttrInitial, req.Attributes[AttrInitial])
	if err != nil {
		return nil, err
	}
	rate, err := parseFinite(AttrRate, req.Attributes[AttrRate])
	if err != nil {
		return nil, err
	}

	m.rate = make([]float64, n)
	m.concentration = make([]float64, n)
	centers := make([]float64, n)
	for i := range centers {
		m.rate[i] = rate
		m.concentration[i] = initial
		centers[i] = float64(i) + 0.5
	}
	m.steps = 0
	m.elapsed = 0

	g := grid{Type: "rectilinear", Shape: []int{n}, X: centers}
	return &allocateResponse{Variables: []binding{
		{Name: RateVar, Type: "float64", Units: "s-1", Role: "input", Grid: g, Values: m.rate},
		{Name: ConcentrationVar, Type: "float64", Units: "mol m-3", Role: "output", Grid: g, Values: m.concentration},
	}}, nil
}

func (m *model) advance(dt, fraction float64) error {
	if m.concentration == nil {
		return errorf(kindModelFailure, "model is not allocated")
	}
	h := dt * fraction
	for i, r := range m.rate {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return errorf(kindModelFailure, "rate in cell %d is not finite", i)
		}
		m.concentration[i] *= math.Exp(-r * h)
	}
	if fraction == 1 {
		m.steps++
	}
	m.elapsed += h
	return nil
}

func (m *model) saveState() (*stateBlob, error) {
	data, err := json.Marshal(savedState{Steps: m.steps, Elapsed: m.elapsed})
	if err != nil {
		return nil, errorf(kindModelFailure, "encode state: %v", err)
	}
	return &stateBlob{State: data}, nil
}

func (m *model) loadState(blob stateBlob) error {
	var s savedState
	if err := json.Unmarshal(blob.State, &s); err != nil {
		return errorf(kindStateLoad, "decode state: %v", err)
	}
	if s.Steps < 0 {
		return errorf(kindStateLoad, "negative step count %d", s.Steps)
	}
	m.steps, m.elapsed = s.Steps, s.Elapsed
	return nil
}

func (m *model) release() {
	m.rate = nil
	m.concentration = nil
}

func parseCells(s string) (int, error) {
	if s == "" {
		s = "5"
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 || n > maxCells {
		return 0, errorf(kindConfiguration, "cells %q must be an integer between 1 and %d", s, maxCells)
	}
	return n, nil
}

func parseFinite(name, s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errorf(kindConfiguration, "%s %q is not a finite number", name, s)
	}
	return v, nil
}
