package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/mod/modfile"

	"github.com/racelens/racelens/internal/rewrite"
)

// runtimeModule is the module the instrumented program links against.
const runtimeModule = "github.com/racelens/racelens"

func newRunCommand(a *app) *cobra.Command {
	var runtimeDir string

	cmd := &cobra.Command{
		Use:   "run <file.go>... [arguments...]",
		Short: "Instrument a Go program and execute it with the tracker",
		Long: `Run acts as a drop-in replacement for 'go run': it rewrites the given
source files so their memory accesses report to the tracker, builds them
in a scratch module that links this repository in as the runtime, and
executes the result. A race summary is printed when the program exits.

Leading .go arguments are source files; everything after them is passed
to the program.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, progArgs, err := splitRunArgs(args)
			if err != nil {
				return err
			}
			root, err := findRuntimeRoot(runtimeDir)
			if err != nil {
				return err
			}

			ws, err := instrumentWorkspace(a, sources, root)
			if err != nil {
				return err
			}
			defer os.RemoveAll(ws)

			code, err := execScratch(cmd, ws, progArgs)
			if err != nil {
				return err
			}
			if code != 0 {
				// Propagate the program's exit code without cobra noise.
				os.Exit(code)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runtimeDir, "runtime", ".", "directory to search upward for the racelens module")
	return cmd
}

// splitRunArgs separates leading .go files from program arguments, the way
// 'go run' does.
func splitRunArgs(args []string) (sources, progArgs []string, err error) {
	i := 0
	for ; i < len(args); i++ {
		if filepath.Ext(args[i]) != ".go" {
			break
		}
		sources = append(sources, args[i])
	}
	if len(sources) == 0 {
		return nil, nil, errors.New("no Go source files specified")
	}
	return sources, args[i:], nil
}

// findRuntimeRoot walks upward from dir looking for this repository's
// go.mod, so the scratch module can replace the runtime with a local path.
func findRuntimeRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		data, err := os.ReadFile(filepath.Join(abs, "go.mod"))
		if err == nil && modfile.ModulePath(data) == runtimeModule {
			return abs, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("cannot find %s: no go.mod above %s declares it (use --runtime)", runtimeModule, dir)
		}
		abs = parent
	}
}

// instrumentWorkspace rewrites the sources into a scratch module directory
// and returns its path. The caller removes it.
func instrumentWorkspace(a *app, sources []string, runtimeRoot string) (string, error) {
	ws, err := os.MkdirTemp("", "racelens-run-*")
	if err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	cleanup := func() { os.RemoveAll(ws) }

	for _, src := range sources {
		res, err := rewrite.File(src, nil)
		if err != nil {
			cleanup()
			return "", err
		}
		a.log.WithFields(map[string]interface{}{
			"file":   src,
			"reads":  res.Stats.Reads,
			"writes": res.Stats.Writes,
			"booted": res.BootInjected,
		}).Debug("instrumented")

		dst := filepath.Join(ws, filepath.Base(src))
		if err := os.WriteFile(dst, res.Code, 0o644); err != nil {
			cleanup()
			return "", fmt.Errorf("write %s: %w", dst, err)
		}
	}

	mod, err := scratchGoMod(runtimeRoot)
	if err != nil {
		cleanup()
		return "", err
	}
	if err := os.WriteFile(filepath.Join(ws, "go.mod"), mod, 0o644); err != nil {
		cleanup()
		return "", fmt.Errorf("write go.mod: %w", err)
	}
	return ws, nil
}

// scratchGoMod builds the scratch module's go.mod: it requires the runtime
// and replaces it with the local checkout.
func scratchGoMod(runtimeRoot string) ([]byte, error) {
	mf := new(modfile.File)
	if err := mf.AddModuleStmt("racelens.invalid/scratch"); err != nil {
		return nil, err
	}
	if err := mf.AddGoStmt("1.24.0"); err != nil {
		return nil, err
	}
	if err := mf.AddRequire(runtimeModule, "v0.0.0"); err != nil {
		return nil, err
	}
	if err := mf.AddReplace(runtimeModule, "", runtimeRoot, ""); err != nil {
		return nil, err
	}
	return mf.Format()
}

// execScratch tidies and runs the scratch module, forwarding stdio, and
// returns the program's exit code.
func execScratch(cmd *cobra.Command, ws string, progArgs []string) (int, error) {
	tidy := exec.CommandContext(cmd.Context(), "go", "mod", "tidy")
	tidy.Dir = ws
	tidy.Stderr = cmd.ErrOrStderr()
	if err := tidy.Run(); err != nil {
		return 0, fmt.Errorf("go mod tidy: %w", err)
	}

	run := exec.CommandContext(cmd.Context(), "go", append([]string{"run", "."}, progArgs...)...)
	run.Dir = ws
	run.Stdin = cmd.InOrStdin()
	run.Stdout = cmd.OutOrStdout()
	run.Stderr = cmd.ErrOrStderr()
	if err := run.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return 0, fmt.Errorf("go run: %w", err)
	}
	return 0, nil
}
