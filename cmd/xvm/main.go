// XVM CLI - loads a compiled program image and executes it.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"

	"github.com/xnlogical/xvm/config"
	"github.com/xnlogical/xvm/store"
	"github.com/xnlogical/xvm/vm"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	configPath := flag.String("c", "xvm.toml", "Path to the configuration file")
	debug := flag.Bool("d", false, "Start the single-step debugger")
	disassemble := flag.Bool("dis", false, "Disassemble the program instead of running it")
	verbosity := flag.Int("v", -1, "Log verbosity (overrides the configuration)")
	fromStore := flag.String("from-store", "", "Load the program image from the store by content hash")
	index := flag.Bool("index", false, "Index the program image into the store before running")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: xvm [options] [image.xbc]\n\n")
		fmt.Fprintf(os.Stderr, "Executes a compiled XVM program image.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  xvm program.xbc             # Run an image\n")
		fmt.Fprintf(os.Stderr, "  xvm -d program.xbc          # Step through an image\n")
		fmt.Fprintf(os.Stderr, "  xvm -index program.xbc      # Store the image, then run it\n")
		fmt.Fprintf(os.Stderr, "  xvm -from-store <hash>      # Run an image from the store\n")
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "xvm: %v\n", err)
		os.Exit(2)
	}
	if *verbosity >= 0 {
		cfg.Log.Verbosity = *verbosity
	}
	commonlog.Configure(cfg.Log.Verbosity, nil)

	image, err := loadImage(cfg, *fromStore, flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "xvm: %v\n", err)
		os.Exit(2)
	}

	if *index {
		if err := indexImage(cfg, image); err != nil {
			fmt.Fprintf(os.Stderr, "xvm: %v\n", err)
			os.Exit(2)
		}
	}

	prog, err := vm.DecodeProgram(image)
	if err != nil {
		fmt.Fprintf(os.Stderr, "xvm: %v\n", err)
		os.Exit(2)
	}

	if *disassemble {
		fmt.Println(prog.Disassemble())
		return
	}
	if cfg.Log.Trace {
		fmt.Fprintln(os.Stderr, prog.Disassemble())
	}

	state := vm.NewState(prog)

	if *debug {
		if err := runDebugger(state); err != nil {
			fmt.Fprintf(os.Stderr, "xvm: %v\n", err)
			os.Exit(2)
		}
		if state.Err() != nil {
			os.Exit(1)
		}
		return
	}

	if _, err := state.Run(); err != nil {
		// The unwinder already reported the failure with its backtrace.
		os.Exit(1)
	}
}

// loadImage resolves the program image: from the store by hash, from the
// path on the command line, or from the configured default entry.
func loadImage(cfg *config.Config, hash, path string) ([]byte, error) {
	if hash != "" {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		defer st.Close()
		return st.Get(hash)
	}

	if path == "" {
		path = cfg.Engine.Entry
	}
	if path == "" {
		return nil, fmt.Errorf("no program image given (and no engine.entry configured)")
	}

	image, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return image, nil
}

// indexImage stores the image in the content-addressed store.
func indexImage(cfg *config.Config, image []byte) error {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	hash, err := st.Put(image)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "indexed %s\n", hash)
	return nil
}
