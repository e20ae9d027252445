package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openfroyo/bmi/pkg/bmi"
)

type clockInfo struct {
	Start   float64 `json:"start_time"`
	End     float64 `json:"end_time"`
	Current float64 `json:"current_time"`
	Step    float64 `json:"time_step"`
	Units   string  `json:"time_units"`
}

type variableInfo struct {
	Name   string           `json:"name"`
	Type   bmi.ElementType  `json:"type"`
	Units  string           `json:"units"`
	Role   bmi.Role         `json:"role"`
	Grid   bmi.GridType     `json:"grid"`
	Shape  []int            `json:"shape"`
	Size   int              `json:"size"`
	Nbytes int              `json:"nbytes"`
	Stats  *valueStatistics `json:"stats,omitempty"`
}

type modelInfo struct {
	Component    string            `json:"component"`
	State        string            `json:"state"`
	Capabilities []bmi.Capability  `json:"capabilities"`
	Clock        clockInfo         `json:"clock"`
	Attributes   map[string]string `json:"attributes"`
	Variables    []variableInfo    `json:"variables"`
}

func newInspectCommand() *cobra.Command {
	var (
		source string
		sets   []string
	)

	cmd := &cobra.Command{
		Use:   "inspect [model[@version]]",
		Short: "Show a model's clock, attributes and variables",
		Long: `Initialize a model and describe it: clock, attributes, capabilities,
and for every variable its type, units, role and grid.

The model defaults to increment.`,
		Example: `  # Describe the reference model
  bmi inspect

  # Describe it with a configuration and an attribute override
  bmi inspect increment --config model.yaml --set shape=4x5`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			reg, err := newRegistry(ctx)
			if err != nil {
				return err
			}
			name, version := modelArg(args)
			model, err := reg.New(ctx, name, version)
			if err != nil {
				return err
			}
			defer model.Finalize(ctx)

			if err := applySets(model, sets); err != nil {
				return err
			}
			if err := model.Initialize(ctx, source); err != nil {
				return err
			}

			info, err := describe(ctx, model, false)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(info)
			}
			printModelInfo(info)
			return nil
		},
	}

	cmd.Flags().StringVarP(&source, "config", "c", "", "configuration source (file or inline CUE/JSON)")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "attribute override name=value (repeatable)")

	return cmd
}

// applySets applies name=value attribute overrides.
func applySets(m bmi.Model, sets []string) error {
	for _, s := range sets {
		name, value, ok := strings.Cut(s, "=")
		if !ok {
			return fmt.Errorf("invalid --set %q: want name=value", s)
		}
		if err := m.SetAttributeValue(name, value); err != nil {
			return err
		}
	}
	return nil
}

// describe collects the clock, attributes and variable metadata of an
// initialized model.
func describe(_ context.Context, m bmi.Model, withStats bool) (*modelInfo, error) {
	info := &modelInfo{
		Component:    m.ComponentName(),
		State:        m.State().String(),
		Capabilities: m.Capabilities().List(),
		Attributes:   map[string]string{},
	}

	var err error
	if info.Clock.Start, err = m.StartTime(); err != nil {
		return nil, err
	}
	info.Clock.End, _ = m.EndTime()
	info.Clock.Current, _ = m.CurrentTime()
	info.Clock.Step, _ = m.TimeStep()
	info.Clock.Units, _ = m.TimeUnits()

	names, err := m.AttributeNames()
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if info.Attributes[name], err = m.AttributeValue(name); err != nil {
			return nil, err
		}
	}

	vars, err := variableNames(m)
	if err != nil {
		return nil, err
	}
	for _, name := range vars {
		v, err := m.Variable(name)
		if err != nil {
			return nil, err
		}
		vi := variableInfo{
			Name:   v.Name,
			Type:   v.Type,
			Units:  v.Units,
			Role:   v.Role,
			Grid:   v.Grid.Type(),
			Shape:  v.Shape(),
			Size:   v.Size(),
			Nbytes: v.Nbytes(),
		}
		if withStats && v.Role.IsOutput() {
			values, err := bmi.ReadValues(m, name)
			if err != nil {
				return nil, err
			}
			vi.Stats = statistics(values)
		}
		info.Variables = append(info.Variables, vi)
	}
	return info, nil
}

// variableNames returns input names followed by output-only names.
func variableNames(m bmi.Model) ([]string, error) {
	inputs, err := m.InputVarNames()
	if err != nil {
		return nil, err
	}
	outputs, err := m.OutputVarNames()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(inputs))
	names := make([]string, 0, len(inputs)+len(outputs))
	for _, n := range append(inputs, outputs...) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	return names, nil
}

func printModelInfo(info *modelInfo) {
	caps := make([]string, len(info.Capabilities))
	for i, c := range info.Capabilities {
		caps[i] = string(c)
	}
	if len(caps) == 0 {
		caps = []string{"none"}
	}

	fmt.Printf("Model:        %s\n", info.Component)
	fmt.Printf("State:        %s\n", info.State)
	fmt.Printf("Capabilities: %s\n", strings.Join(caps, ", "))
	fmt.Printf("Clock:        %g .. %g step %g %s (now %g)\n",
		info.Clock.Start, info.Clock.End, info.Clock.Step, info.Clock.Units, info.Clock.Current)

	fmt.Println("\nAttributes:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, name := range sortedKeys(info.Attributes) {
		fmt.Fprintf(w, "  %s\t%s\n", name, info.Attributes[name])
	}
	_ = w.Flush()

	fmt.Println("\nVariables:")
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  NAME\tTYPE\tUNITS\tROLE\tGRID\tSHAPE\tSIZE\tMIN\tMAX\tMEAN")
	for _, v := range info.Variables {
		lo, hi, mean := "-", "-", "-"
		if v.Stats != nil {
			lo = fmt.Sprintf("%g", v.Stats.Min)
			hi = fmt.Sprintf("%g", v.Stats.Max)
			mean = fmt.Sprintf("%g", v.Stats.Mean)
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%v\t%d\t%s\t%s\t%s\n",
			v.Name, v.Type, v.Units, v.Role, v.Grid, v.Shape, v.Size, lo, hi, mean)
	}
	_ = w.Flush()
}
