package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"refile-go/internal/app"
	"refile-go/internal/config"
	"refile-go/internal/refile"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies environment overrides.
func loadConfig() (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, defaults["config_path"], nil
}

// newApp reads the config and creates a RefileApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "push", "serve").
func newApp(ctx context.Context, operation string) (*app.RefileApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewRefileApp(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:           "refile",
	Short:         "Content-addressed file relay",
	SilenceUsage:  true,
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, "serve")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Serve(ctx, version)
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		promptKey, _ := cmd.Flags().GetBool("prompt-api-key")

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if promptKey {
			key, err := readSecret("Upload API key: ")
			if err != nil {
				return err
			}
			cfg.Server.APIKey = key
		}

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		fmt.Printf("Base URL: %s\n", cfg.Server.BaseURL)
		return nil
	},
}

// readSecret prompts on stderr and reads a line without echo.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--prompt-api-key requires an interactive terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	key := strings.TrimSpace(string(b))
	if key == "" {
		return "", errors.New("empty API key")
	}
	return key, nil
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}

		apiKey := "(none)"
		if cfg.Server.APIKey != "" {
			apiKey = "(set)"
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Data Dir:    %s\n", cfg.Store.DataDir)
		fmt.Printf("Metadata:    %s\n", orDefault(cfg.Database.Type, "filesystem"))
		fmt.Printf("Listen:      %s\n", cfg.Server.ListenAddr)
		fmt.Printf("Base URL:    %s\n", cfg.Server.BaseURL)
		fmt.Printf("API Key:     %s\n", apiKey)
		fmt.Printf("Replicate:   %s\n", orDefault(cfg.Chain.Replicate, "off"))
		fmt.Println("Vaults:")
		for i, v := range cfg.Vaults {
			fmt.Printf("  %d. %-12s %s\n", i+1, v.Name, v.Type)
		}
		return nil
	},
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// push command
var pushCmd = &cobra.Command{
	Use:   "push PATH",
	Short: "Upload a file or directory and leave pointer files behind",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recursive, _ := cmd.Flags().GetBool("recursive")
		remove, _ := cmd.Flags().GetBool("remove")
		verify, _ := cmd.Flags().GetBool("verify")

		a, err := newApp(cmd.Context(), "push")
		if err != nil {
			return err
		}
		defer a.Close()

		results, err := a.Push(cmd.Context(), args[0], refile.PushOptions{
			Recursive: recursive,
			Verify:    verify,
			Remove:    remove,
		})
		for _, r := range results {
			removed := ""
			if r.Removed {
				removed = "  [removed]"
			}
			fmt.Printf("%s -> %s  %s (%s)%s\n", r.Source, r.PointerPath, r.Pointer.URL, r.Pointer.Backend, removed)
		}
		if err != nil {
			return fmt.Errorf("push failed: %w", err)
		}

		fmt.Printf("Pushed %d file(s)\n", len(results))
		return nil
	},
}

// pull command
var pullCmd = &cobra.Command{
	Use:   "pull POINTER...",
	Short: "Restore original files from pointer files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		overwrite, _ := cmd.Flags().GetBool("overwrite")
		keep, _ := cmd.Flags().GetBool("keep-pointer")

		a, err := newApp(cmd.Context(), "pull")
		if err != nil {
			return err
		}
		defer a.Close()

		failed := 0
		for _, p := range args {
			out, err := a.Pull(cmd.Context(), p, refile.PullOptions{Overwrite: overwrite, KeepPointer: keep})
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", p, err)
				failed++
				continue
			}
			fmt.Printf("%s -> %s\n", p, out)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d pointer(s) failed", failed, len(args))
		}
		return nil
	},
}

// verify command
var verifyCmd = &cobra.Command{
	Use:   "verify POINTER...",
	Short: "Check that pointer URLs are trusted and reachable",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "verify")
		if err != nil {
			return err
		}
		defer a.Close()

		bad := 0
		for _, p := range args {
			res, err := a.Verify(cmd.Context(), p)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", p, err)
				bad++
				continue
			}
			status := "ok"
			switch {
			case !res.Trusted:
				status = "untrusted"
				bad++
			case !res.Reachable:
				status = "unreachable"
				bad++
			}
			fmt.Printf("%-11s %s  %s\n", status, p, res.Pointer.URL)
		}
		if bad > 0 {
			return fmt.Errorf("%d of %d pointer(s) failed verification", bad, len(args))
		}
		return nil
	},
}

// info command
var infoCmd = &cobra.Command{
	Use:   "info ID",
	Short: "Show metadata of a locally stored object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "info")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Info(args[0])
		if err != nil {
			return err
		}
		if res == nil {
			return fmt.Errorf("object %s not found", args[0])
		}

		m := res.Meta
		fmt.Printf("ID:       %s\n", args[0])
		fmt.Printf("Hash:     %s\n", refile.FormatHash(m.Digest))
		fmt.Printf("Filename: %s\n", m.Filename)
		fmt.Printf("Mime:     %s\n", m.Mime)
		fmt.Printf("Size:     %d\n", m.Size)
		fmt.Printf("Uploaded: %s\n", m.UploadTime().UTC().Format("2006-01-02 15:04:05"))
		fmt.Printf("URL:      %s\n", a.ObjectURL(args[0], m.Filename))
		fmt.Printf("Path:     %s\n", res.Path)
		if checked, err := a.SchemaStatus(); checked {
			if err != nil {
				fmt.Printf("Schema:   %v\n", err)
			} else {
				fmt.Printf("Schema:   current\n")
			}
		}
		return nil
	},
}

// backends command
var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List configured backends in fallback order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "backends")
		if err != nil {
			return err
		}
		defer a.Close()

		backends := a.Backends()
		if len(backends) == 0 {
			fmt.Println("No backends configured.")
			return nil
		}
		for i, b := range backends {
			limit := "unlimited"
			if b.MaxSize() > 0 {
				limit = formatSize(b.MaxSize())
			}
			fmt.Printf("%d. %-16s max %s\n", i+1, b.Name(), limit)
		}
		fmt.Printf("\nTrusted hosts: %s\n", strings.Join(a.TrustedHosts(), ", "))
		return nil
	},
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.0f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().Bool("prompt-api-key", false, "Prompt for the upload API key")
	configCmd.AddCommand(configListCmd)

	// root commands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(pushCmd)
	pushCmd.Flags().BoolP("recursive", "r", false, "Recurse into subdirectories")
	pushCmd.Flags().Bool("remove", false, "Remove originals once their pointer is written")
	pushCmd.Flags().Bool("verify", false, "Verify the remote copy before removing anything")
	rootCmd.AddCommand(pullCmd)
	pullCmd.Flags().Bool("overwrite", false, "Replace existing files")
	pullCmd.Flags().Bool("keep-pointer", false, "Keep pointer files after a successful pull")
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(backendsCmd)
}
