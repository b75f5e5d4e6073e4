// clcores-bench runs a load-balancing scenario from a YAML file on the
// simulated runtime and prints the resulting partition and latencies.
//
// Example scenario:
//
//	devices:
//	  - name: fast-gpu
//	    kind: gpu
//	    policy: memstreaming
//	    cost: 5us
//	  - name: slow-cpu
//	    kind: cpu
//	    policy: mempinned
//	    cost: 15us
//	kernel: rsqrt
//	globalRange: 65536
//	localRange: 256
//	stages: 16
//	discipline: pipelineevent
//	iterations: 20
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/gomlx/clcores"
	"github.com/gomlx/clcores/cl"
	"github.com/gomlx/clcores/simcl"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type deviceSpec struct {
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"`
	Policy string `yaml:"policy"`
	Cost   string `yaml:"cost"`
}

type scenario struct {
	Devices     []deviceSpec `yaml:"devices"`
	Kernel      string       `yaml:"kernel"`
	GlobalRange int          `yaml:"globalRange"`
	LocalRange  int          `yaml:"localRange"`
	Stages      int          `yaml:"stages"`
	Discipline  string       `yaml:"discipline"`
	Iterations  int          `yaml:"iterations"`
}

var scenarioPath string

var rootCmd = &cobra.Command{
	Use:   "clcores-bench",
	Short: "Exercise the clcores load balancer and pipelines on simulated devices",
	RunE:  runBench,
}

func init() {
	rootCmd.Flags().StringVarP(&scenarioPath, "scenario", "s", "", "YAML scenario file (required)")
	_ = rootCmd.MarkFlagRequired("scenario")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runBench(cmd *cobra.Command, args []string) error {
	var sc scenario
	if err := yaml.Unmarshal(must.M1(os.ReadFile(scenarioPath)), &sc); err != nil {
		return errors.WithMessagef(err, "parsing scenario %q", scenarioPath)
	}
	if err := sc.defaults(); err != nil {
		return err
	}

	var configs []simcl.DeviceConfig
	for _, d := range sc.Devices {
		kind, err := cl.DeviceKindString(d.Kind)
		if err != nil {
			return errors.WithMessagef(err, "device %q", d.Name)
		}
		policy := cl.MemPinned
		if d.Policy != "" {
			if policy, err = cl.MemPolicyString(d.Policy); err != nil {
				return errors.WithMessagef(err, "device %q", d.Name)
			}
		}
		cost, err := time.ParseDuration(d.Cost)
		if err != nil {
			return errors.WithMessagef(err, "device %q cost", d.Name)
		}
		configs = append(configs, simcl.DeviceConfig{
			Name:        d.Name,
			Kind:        kind,
			Policy:      policy,
			CostPerItem: cost,
		})
	}
	platform := simcl.NewPlatform(simcl.BuiltinKernels(), configs...)

	cores, err := clcores.New(platform).
		WithSource("// simcl resolves kernels by name").
		WithKernelNames(sc.Kernel).
		Done()
	if err != nil {
		return err
	}
	defer cores.Dispose()

	input := make([]float32, sc.GlobalRange)
	for i := range input {
		input[i] = float32(i + 1)
	}
	output := make([]float32, sc.GlobalRange)
	in := must.M1(clcores.NewArray(input))
	out := must.M1(clcores.NewArray(output))

	discipline := clcores.PipelineEvent
	pipelined := sc.Discipline != "none"
	if pipelined {
		if discipline, err = clcores.PipelineTypeString(sc.Discipline); err != nil {
			return err
		}
	}

	start := time.Now()
	for i := 0; i < sc.Iterations; i++ {
		cfg := cores.Compute(sc.Kernel).
			Arrays(in, out).
			Access(clcores.ReadPartial, clcores.WriteSlice).
			GlobalRange(sc.GlobalRange).
			LocalRange(sc.LocalRange).
			ComputeID(1)
		if pipelined {
			cfg = cfg.Pipeline(discipline, sc.Stages)
		}
		if err := cfg.Done(); err != nil {
			return err
		}
	}
	elapsed := time.Since(start)

	fmt.Printf("%d iteration(s) in %s (%.2f ms/iteration)\n\n",
		sc.Iterations, elapsed.Round(time.Millisecond), float64(elapsed.Microseconds())/1e3/float64(sc.Iterations))
	fmt.Print(cores.PerformanceReport(1))
	return nil
}

func (sc *scenario) defaults() error {
	if len(sc.Devices) == 0 {
		return errors.New("scenario needs at least one device")
	}
	if sc.Kernel == "" {
		sc.Kernel = "rsqrt"
	}
	if sc.GlobalRange == 0 {
		sc.GlobalRange = 65536
	}
	if sc.LocalRange == 0 {
		sc.LocalRange = clcores.DefaultLocalRange
	}
	if sc.Stages == 0 {
		sc.Stages = 16
	}
	if sc.Discipline == "" {
		sc.Discipline = "none"
	}
	if sc.Iterations == 0 {
		sc.Iterations = 10
	}
	return nil
}
