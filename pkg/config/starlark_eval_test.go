package config

import (
	"context"
	"testing"
	"time"
)

func TestStarlarkEvaluator_Evaluate(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)
	ctx := context.Background()

	tests := []struct {
		name      string
		script    string
		input     map[string]interface{}
		checkFunc func(*testing.T, *StarlarkResult)
		wantErr   bool
	}{
		{
			name:   "simple arithmetic",
			script: "result = 2 + 2\n",
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["result"] != int64(4) {
					t.Errorf("expected result=4, got %v", sr.Output["result"])
				}
			},
		},
		{
			name:   "use input variables",
			script: "end_time = start * 20.0\n",
			input:  map[string]interface{}{"start": 1.0},
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["end_time"] != 20.0 {
					t.Errorf("expected end_time=20, got %v", sr.Output["end_time"])
				}
				if _, ok := sr.Output["start"]; ok {
					t.Error("predeclared inputs must not be exported")
				}
			},
		},
		{
			name: "private helpers are hidden",
			script: `
def _double(x):
    return x * 2

_base = 5
end_time = _double(_base)
`,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if len(sr.Output) != 1 || sr.Output["end_time"] != int64(10) {
					t.Errorf("output = %v", sr.Output)
				}
			},
		},
		{
			name:   "struct and dict",
			script: `attributes = {"shape": "4x5"}` + "\nmeta = struct(owner = \"hydro\")\n",
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				attrs, ok := sr.Output["attributes"].(map[string]interface{})
				if !ok || attrs["shape"] != "4x5" {
					t.Errorf("attributes = %v", sr.Output["attributes"])
				}
				meta, ok := sr.Output["meta"].(map[string]interface{})
				if !ok || meta["owner"] != "hydro" {
					t.Errorf("meta = %v", sr.Output["meta"])
				}
			},
		},
		{name: "syntax error", script: "end_time = (\n", wantErr: true},
		{name: "runtime error", script: "x = 1 // 0\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := evaluator.Evaluate(ctx, "test.star", tt.script, tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Evaluate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && tt.checkFunc != nil {
				tt.checkFunc(t, result)
			}
		})
	}
}

func TestStarlarkEvaluator_Timeout(t *testing.T) {
	evaluator := NewStarlarkEvaluator(50 * time.Millisecond)

	script := `
def spin():
    n = 0
    for i in range(100000000):
        n += i
    return n

x = spin()
`
	start := time.Now()
	_, err := evaluator.Evaluate(context.Background(), "spin.star", script, nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("cancellation took %v", time.Since(start))
	}
}
