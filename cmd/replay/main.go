package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/danielpatrickdp/mechanismd/internal/config"
	"github.com/danielpatrickdp/mechanismd/internal/facade"
	"github.com/danielpatrickdp/mechanismd/internal/mixer"
	"github.com/danielpatrickdp/mechanismd/internal/modelstore"
)

// #region main

// trace is a recorded position/velocity sequence to drive the facade
// offline, at a fixed dt, instead of a live control loop.
type trace struct {
	Dt      float64     `json:"dt"`
	Samples []traceStep `json:"samples"`
}

type traceStep struct {
	Pos []float64 `json:"pos"`
	Vel []float64 `json:"vel"`
}

func main() {
	configPath := flag.String("config", "", "path to config YAML")
	tracePath := flag.String("trace", "", "path to trace JSON (fields: dt, samples[].pos, samples[].vel)")
	modelsDB := flag.String("models-db", "models.db", "path to the model catalogue SQLite file")
	flag.Parse()

	if *configPath == "" || *tracePath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay --config path/to/config.yaml --trace path/to/trace.json [--models-db path]")
		os.Exit(2)
	}

	os.Exit(run(*configPath, *tracePath, *modelsDB))
}

func run(configPath, tracePath, modelsDB string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 2
	}

	tr, err := loadTrace(tracePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load trace: %v\n", err)
		return 2
	}

	store, err := modelstore.NewStore(modelsDB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open model store: %v\n", err)
		return 2
	}
	defer store.Close()

	iface, err := facade.New(cfg, store, nil, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build interface: %v\n", err)
		return 2
	}
	defer iface.Close()

	if err := preloadModels(iface, cfg, tr.Dt); err != nil {
		fmt.Fprintf(os.Stderr, "preload models: %v\n", err)
		return 2
	}

	mode := cfg.MixerMode()
	printReplay(iface, tr, mode)
	return 0
}

func loadTrace(path string) (trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return trace{}, fmt.Errorf("read trace: %w", err)
	}
	var tr trace
	if err := json.Unmarshal(data, &tr); err != nil {
		return trace{}, fmt.Errorf("parse trace: %w", err)
	}
	if tr.Dt <= 0 {
		return trace{}, fmt.Errorf("trace dt must be > 0, got %v", tr.Dt)
	}
	return tr, nil
}

// preloadModels submits every configured model for insertion, then ticks
// a zero-motion warmup loop until they have all reached the arena or a
// deadline passes.
func preloadModels(iface *facade.Interface, cfg config.Config, dt float64) error {
	for _, name := range cfg.Models {
		if _, err := iface.InsertVMFromModel(name); err != nil {
			return fmt.Errorf("submit model %s: %w", name, err)
		}
	}
	zero := make([]float64, cfg.PositionDim)
	deadline := time.Now().Add(2 * time.Second)
	for iface.GetVMCount() < len(cfg.Models) && time.Now().Before(deadline) {
		iface.Update(zero, zero, dt, cfg.MixerMode())
	}
	if iface.GetVMCount() < len(cfg.Models) {
		return fmt.Errorf("only %d of %d configured models reached the arena", iface.GetVMCount(), len(cfg.Models))
	}
	return nil
}

// #endregion main

// #region output

func printReplay(iface *facade.Interface, tr trace, mode mixer.Mode) {
	fmt.Printf("%-6s| %-24s| %-8s| %s\n", "Tick", "Force", "OnVM", "VMCount")
	fmt.Printf("%-6s+%-24s+%-8s+%s\n", "------", "------------------------", "--------", "-------")

	for i, s := range tr.Samples {
		force := iface.Update(s.Pos, s.Vel, tr.Dt, mode)
		fmt.Printf("%-6d| %-24v| %-8v| %d\n", i, force, iface.OnVM(), iface.GetVMCount())
	}
}

// #endregion output
