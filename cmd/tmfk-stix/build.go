// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/tmfk-stix/internal/assemble"
	"github.com/pdiddy/tmfk-stix/internal/history"
	"github.com/pdiddy/tmfk-stix/pkg/types"
)

const modeAll = "all"

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build STIX bundles from a documentation checkout",
	Long: `Build parses docs/tactics, docs/techniques and docs/mitigations of the
repository given by --repo, dates each object from git history, validates
the result and writes <out>/<prefix>_<mode>.json plus a copy suffixed with
the short commit hash.

--mode all builds strict, then attack_compatible. A failing mode stops the
run and writes nothing for that mode.`,
	RunE: runBuild,
}

func runBuild(cmd *cobra.Command, args []string) error {
	modeFlag, _ := cmd.Flags().GetString("mode")
	modes, err := buildModes(modeFlag)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}

	repo, err := history.Open(cfg.Corpus.RepoDir, cfg.History.GitBinary, cfg.History.Ref)
	if err != nil {
		return err
	}

	return build(cmd.Context(), cfg.BuildConfig, repo, modes, os.Stdout)
}

// buildModes expands the --mode flag into the modes to run.
func buildModes(flag string) ([]types.Mode, error) {
	if flag == modeAll {
		return types.Modes, nil
	}
	m, err := types.ParseMode(flag)
	if err != nil {
		return nil, err
	}
	return []types.Mode{m}, nil
}

func build(ctx context.Context, cfg types.BuildConfig, repo assemble.GitRepo, modes []types.Mode, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a := assemble.New(cfg, repo, w)
	for _, m := range modes {
		summary, err := a.Run(ctx, m)
		if err != nil {
			return fmt.Errorf("building %s: %w", m, err)
		}
		fmt.Fprintf(w, "%s: %d tactics, %d techniques, %d mitigations, %d relationships",
			m, summary.Tactics, summary.Techniques, summary.Mitigations, summary.Relationships)
		if summary.Duplicates > 0 {
			fmt.Fprintf(w, " (%d duplicate rows skipped)", summary.Duplicates)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func init() {
	buildCmd.Flags().String("mode", string(types.ModeStrict), "output mode: strict, attack_compatible or all")
	buildCmd.Flags().String("repo", ".", "root of the Threat Matrix for Kubernetes git checkout")
	buildCmd.Flags().String("out", "build", "output directory for bundles")

	viper.BindPFlag("corpus.repo_dir", buildCmd.Flags().Lookup("repo"))
	viper.BindPFlag("output.dir", buildCmd.Flags().Lookup("out"))

	rootCmd.AddCommand(buildCmd)
}
