package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/mechanismd/internal/config"
	"github.com/danielpatrickdp/mechanismd/internal/facade"
	"github.com/danielpatrickdp/mechanismd/internal/modelstore"
)

// #region flags

var (
	configPath string
	modelsDB   string
	dt         float64
)

var rootCmd = &cobra.Command{
	Use:   "mechanismd",
	Short: "Virtual-fixtures mechanism manager",
	Long: `mechanismd runs the virtual-fixtures guidance core: a tick loop
over a live arena of curves, with model insert/delete/save exposed as
REPL verbs on the running process (there is no RPC wire protocol).`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config YAML")
	rootCmd.PersistentFlags().StringVar(&modelsDB, "models-db", "models.db", "path to the model catalogue SQLite file")
	rootCmd.MarkPersistentFlagRequired("config")

	runCmd.Flags().Float64Var(&dt, "dt", 0.01, "tick interval fed to Update between REPL commands")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listModelsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// #endregion flags

// #region run

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the tick loop and an interactive insert/delete/save/list REPL",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLoop(configPath, modelsDB, dt)
	},
}

func runLoop(configPath, modelsDB string, dt float64) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := modelstore.NewStore(modelsDB)
	if err != nil {
		return fmt.Errorf("open model store: %w", err)
	}
	defer store.Close()

	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()
	sugar := log.Sugar()

	iface, err := facade.New(cfg, store, nil, sugar)
	if err != nil {
		return fmt.Errorf("build interface: %w", err)
	}
	defer iface.Close()

	for _, name := range cfg.Models {
		if _, err := iface.InsertVMFromModel(name); err != nil {
			sugar.Warnw("preload submit failed", "model", name, "err", err)
		}
	}

	pos := make([]float64, cfg.PositionDim)
	vel := make([]float64, cfg.PositionDim)
	mode := cfg.MixerMode()

	fmt.Printf("mechanismd ready. dim=%d dt=%v mode=%s\n", cfg.PositionDim, dt, mode)
	fmt.Println("commands: insert empty <dim> | insert model <name> | reload <handle> <name> | delete <handle> | save <handle> <name> | pos <v...> | vel <v...> | tick | list | quit")

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)

		switch fields[0] {
		case "quit", "exit":
			return nil

		case "insert":
			handleInsert(iface, fields, sugar)

		case "reload":
			if len(fields) != 3 {
				fmt.Println("usage: reload <handle> <name>")
				continue
			}
			handle, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				fmt.Printf("bad handle: %v\n", err)
				continue
			}
			id, err := iface.ReloadVM(handle, fields[2])
			printSubmit("reload", id, err)

		case "delete":
			if len(fields) != 2 {
				fmt.Println("usage: delete <handle>")
				continue
			}
			handle, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				fmt.Printf("bad handle: %v\n", err)
				continue
			}
			id, err := iface.DeleteVM(handle)
			printSubmit("delete", id, err)

		case "save":
			if len(fields) != 3 {
				fmt.Println("usage: save <handle> <name>")
				continue
			}
			handle, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				fmt.Printf("bad handle: %v\n", err)
				continue
			}
			id, err := iface.SaveVM(handle, fields[2])
			printSubmit("save", id, err)

		case "pos":
			if v, ok := parseVector(fields[1:], cfg.PositionDim); ok {
				pos = v
			}

		case "vel":
			if v, ok := parseVector(fields[1:], cfg.PositionDim); ok {
				vel = v
			}

		case "tick":
			force := iface.Update(pos, vel, dt, mode)
			fmt.Printf("force=%v onvm=%v vmcount=%d\n", force, iface.OnVM(), iface.GetVMCount())

		case "list":
			printModelTable(store, 50)

		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
	}
	return nil
}

func handleInsert(iface *facade.Interface, fields []string, log *zap.SugaredLogger) {
	if len(fields) < 2 {
		fmt.Println("usage: insert empty <dim> | insert model <name>")
		return
	}
	var id string
	var err error
	switch fields[1] {
	case "empty":
		if len(fields) != 3 {
			fmt.Println("usage: insert empty <dim>")
			return
		}
		dim, perr := strconv.Atoi(fields[2])
		if perr != nil {
			fmt.Printf("bad dim: %v\n", perr)
			return
		}
		id, err = iface.InsertVM(dim)
	case "model":
		if len(fields) != 3 {
			fmt.Println("usage: insert model <name>")
			return
		}
		id, err = iface.InsertVMFromModel(fields[2])
	default:
		fmt.Printf("unknown insert kind %q\n", fields[1])
		return
	}
	printSubmit("insert", id, err)
}

func parseVector(fields []string, dim int) ([]float64, bool) {
	if len(fields) != dim {
		fmt.Printf("expected %d components, got %d\n", dim, len(fields))
		return nil, false
	}
	v := make([]float64, dim)
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			fmt.Printf("bad component %q: %v\n", f, err)
			return nil, false
		}
		v[i] = x
	}
	return v, true
}

func printSubmit(verb, id string, err error) {
	if err != nil {
		fmt.Printf("%s rejected: %v\n", verb, err)
		return
	}
	fmt.Printf("%s accepted, request %s\n", verb, id)
}

// #endregion run

// #region list-models

var listModelsCmd = &cobra.Command{
	Use:   "list-models",
	Short: "List the persisted curve models in the catalogue",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := modelstore.NewStore(modelsDB)
		if err != nil {
			return fmt.Errorf("open model store: %w", err)
		}
		defer store.Close()
		printModelTable(store, 100)
		return nil
	},
}

func printModelTable(store *modelstore.Store, limit int) {
	records, err := store.ListModels(limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list models: %v\n", err)
		return
	}
	if len(records) == 0 {
		fmt.Println("no models in catalogue")
		return
	}
	fmt.Printf("%-24s  %4s  %8s  %10s  %s\n", "Name", "Dim", "Samples", "PhaseDot", "Saved")
	fmt.Printf("%-24s  %4s  %8s  %10s  %s\n", "------------------------", "----", "--------", "----------", "--------------------")
	for _, r := range records {
		fmt.Printf("%-24s  %4d  %8d  %10.4f  %s\n", r.Name, r.Dimension, r.SampleCount, r.PhaseDotRef, r.SavedAt.Format("2006-01-02T15:04:05Z"))
	}
}

// #endregion list-models
