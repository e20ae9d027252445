package telemetry_test

import (
	"context"
	"fmt"

	"github.com/openfroyo/bmi/pkg/telemetry"
)

// Example_lifecycleEvents subscribes to lifecycle changes recorded by a host.
func Example_lifecycleEvents() {
	tel, err := telemetry.NewTelemetry(telemetry.TestConfig())
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	tel.Events.Subscribe(func(e telemetry.Event) {
		fmt.Println(e.Message)
	}, telemetry.FilterByType(telemetry.EventTypeLifecycleChanged))

	ctx := tel.WithContext(context.Background())
	telemetry.RecordTransition(ctx, "increment", "created", "configured")
	telemetry.RecordTransition(ctx, "increment", "configured", "initialized")

	// Output:
	// increment moved from created to configured
	// increment moved from configured to initialized
}

// Example_recordOperation wraps a unit of model work in a span and metrics.
func Example_recordOperation() {
	tel, _ := telemetry.NewTelemetry(telemetry.TestConfig())
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())
	err := telemetry.RecordModelOperation(ctx, "increment", "Update", nil, func(ctx context.Context) error {
		telemetry.RecordStep(ctx, "increment", 2)
		return nil
	})
	fmt.Println(err)

	// Output:
	// <nil>
}
