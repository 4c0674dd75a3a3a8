// Loupe debug agent - serves the expression evaluation and snapshot RPCs
// for a debugged JVM.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/loupe/archive"
	"github.com/chazu/loupe/config"
	"github.com/chazu/loupe/forward"
	"github.com/chazu/loupe/server"
	"github.com/chazu/loupe/wire"
)

func main() {
	// A .env next to the binary may point at the config directory.
	godotenv.Load()

	configDir := flag.String("config", defaultConfigDir(), "Directory containing loupe.toml")
	listen := flag.String("listen", "", "Listen address override (host:port)")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: loupe-agent [options]\n\n")
		fmt.Fprintf(os.Stderr, "Serves the loupe.v1.DebugService for a debugged JVM.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  loupe-agent                        # loupe.toml from the working directory\n")
		fmt.Fprintf(os.Stderr, "  loupe-agent -config /etc/loupe     # explicit config directory\n")
		fmt.Fprintf(os.Stderr, "  loupe-agent -listen :9000          # override the listen address\n")
	}
	flag.Parse()

	cfg, err := loadConfig(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}

	opts := []server.Option{
		server.WithEvalOptions(cfg.EvalOptions()),
		server.WithMaxDeferredRetries(cfg.Eval.MaxDeferredRetries),
		server.WithPolicy(&server.Policy{
			BlockedMethods:      cfg.Policy.BlockedMethods,
			HiddenFieldPrefixes: cfg.Policy.HiddenFieldPrefixes,
			DisableMethodCalls:  cfg.Policy.DisableMethodCalls,
		}),
	}

	if cfg.Archive.Enabled {
		store, err := archive.Open(cfg.ArchivePath())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening snapshot archive: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
		opts = append(opts,
			server.WithSnapshotStore(store),
			server.WithSinks(server.SinkFunc(func(_ context.Context, snap *wire.Snapshot) error {
				return store.Store(snap)
			})),
		)
		if *verbose {
			fmt.Printf("Archiving snapshots to %s\n", cfg.ArchivePath())
		}
	}

	if cfg.Forward.Enabled {
		fw, err := forward.Dial(cfg.Forward.Target, cfg.Forward.Method)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error dialing collector: %v\n", err)
			os.Exit(1)
		}
		defer fw.Close()
		opts = append(opts, server.WithSinks(server.SinkFunc(fw.Forward)))
		if *verbose {
			fmt.Printf("Forwarding snapshots to %s (%s)\n", cfg.Forward.Target, cfg.Forward.Method)
		}
	}

	// The JVMTI bridge attaches the live evaluation environment when the
	// debuggee stops; until then the agent serves config and archive reads.
	srv := server.New(&server.Env{}, opts...)
	defer srv.Stop()

	commonlog.NewInfoMessage(0, fmt.Sprintf("loupe agent starting (config %s)", *configDir))
	if err := srv.ListenAndServe(cfg.Server.Listen); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

// defaultConfigDir prefers LOUPE_CONFIG_DIR, falling back to the working
// directory.
func defaultConfigDir() string {
	if dir := os.Getenv("LOUPE_CONFIG_DIR"); dir != "" {
		return dir
	}
	return "."
}

// loadConfig reads loupe.toml from dir, or returns defaults when the file
// doesn't exist.
func loadConfig(dir string) (*config.Config, error) {
	if _, err := os.Stat(filepath.Join(dir, "loupe.toml")); os.IsNotExist(err) {
		cfg := config.Default()
		cfg.Dir, _ = filepath.Abs(dir)
		return cfg, nil
	}
	return config.Load(dir)
}
