package increment_test

import (
	"context"
	"fmt"

	"github.com/openfroyo/bmi/pkg/bmi"
	"github.com/openfroyo/bmi/pkg/models/increment"
)

func Example() {
	ctx := context.Background()

	model, err := increment.NewInstance(nil)
	if err != nil {
		panic(err)
	}
	defer model.Finalize(ctx)

	_ = model.SetAttributeValue(increment.AttrShape, "2x3")
	if err := model.Initialize(ctx, ""); err != nil {
		panic(err)
	}

	if err := model.UpdateUntil(ctx, 5); err != nil {
		panic(err)
	}
	values, _ := bmi.Float64s(model, increment.VarName)
	now, _ := model.CurrentTime()
	fmt.Println(now, values)

	err = model.UpdateUntil(ctx, 25)
	fmt.Println(bmi.KindOf(err))

	// Output:
	// 5 [5 5 5 5 5 5]
	// time_bounds
}
