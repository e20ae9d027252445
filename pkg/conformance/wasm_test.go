package conformance_test

import (
	"context"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/openfroyo/bmi/pkg/bmi"
	"github.com/openfroyo/bmi/pkg/conformance"
	"github.com/openfroyo/bmi/pkg/host"
)

// buildDecay compiles models/decay to a WASI reactor, skipping the test
// when no Go toolchain can build it.
func buildDecay(t *testing.T) []byte {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping WASM build in short mode")
	}
	goBin, err := exec.LookPath("go")
	if err != nil {
		t.Skip("go toolchain not found")
	}

	out := filepath.Join(t.TempDir(), "decay.wasm")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(ctx, goBin, "build", "-buildmode=c-shared", "-o", out, ".")
	cmd.Dir = filepath.Join("..", "..", "models", "decay")
	cmd.Env = append(os.Environ(), "GOOS=wasip1", "GOARCH=wasm", "GOWORK=off")
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("cannot build decay model: %v\n%s", err, output)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read decay.wasm: %v", err)
	}
	return data
}

func TestRun_WASMModel(t *testing.T) {
	wasm := buildDecay(t)
	ctx := context.Background()

	factory := func(ctx context.Context) (host.Kernel, error) {
		return host.NewWASMKernel(ctx, wasm, nil)
	}

	t.Run("conformance", func(t *testing.T) {
		report := conformance.Run(ctx, conformance.FromKernel(factory, nil), &conformance.Options{TempDir: t.TempDir()})

		assertPassed(t, report)
		for _, r := range report.Results {
			if r.Status == conformance.StatusSkip {
				t.Errorf("scenario %s skipped: %s", r.Scenario, r.Message)
			}
		}
		if report.Model != "First-order decay along a row of cells" {
			t.Errorf("Model = %q", report.Model)
		}
	})

	t.Run("values", func(t *testing.T) {
		kernel, err := factory(ctx)
		if err != nil {
			t.Fatalf("NewWASMKernel() error: %v", err)
		}
		inst, err := host.NewInstance(kernel, nil)
		if err != nil {
			t.Fatalf("NewInstance() error: %v", err)
		}
		defer func() { _ = inst.Finalize(ctx) }()

		if err := inst.SetAttributeValue("cells", "3"); err != nil {
			t.Fatalf("SetAttributeValue() error: %v", err)
		}
		if err := inst.Initialize(ctx, ""); err != nil {
			t.Fatalf("Initialize() error: %v", err)
		}
		if size, _ := inst.VarSize("concentration"); size != 3 {
			t.Errorf("VarSize(concentration) = %d, want 3", size)
		}

		// Cell 1 does not decay.
		if err := inst.SetValueAtIndices("rate", []int{1}, bmi.Float64Values{0}); err != nil {
			t.Fatalf("SetValueAtIndices() error: %v", err)
		}
		if err := inst.UpdateFrac(ctx, 0.5); err != nil {
			t.Fatalf("UpdateFrac() error: %v", err)
		}
		if err := inst.UpdateUntil(ctx, 9.5); err != nil {
			t.Fatalf("UpdateUntil() error: %v", err)
		}
		if err := inst.UpdateFrac(ctx, 0.5); err != nil {
			t.Fatalf("UpdateFrac() to the end error: %v", err)
		}
		if current, _ := inst.CurrentTime(); current != 10 {
			t.Errorf("CurrentTime() = %g, want 10", current)
		}

		got, err := bmi.Float64s(inst, "concentration")
		if err != nil {
			t.Fatalf("Float64s() error: %v", err)
		}
		want := []float64{math.Exp(-1), 1, math.Exp(-1)}
		for i := range want {
			if math.Abs(got[i]-want[i]) > 1e-12 {
				t.Errorf("concentration[%d] = %v, want %v", i, got[i], want[i])
			}
		}
	})
}
