package packmulti

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/r1tools/revpk/cmd/root"
	"github.com/r1tools/revpk/codec"
	"github.com/r1tools/revpk/packstore"
)

var Command = &cobra.Command{
	GroupID: root.GroupVPK.ID,
	Use:     "packmulti context level [workspace] [build_path] [num_threads] [compress_level]",
	Short:   "Packs every locale of the multi-locale manifest into one shared VPK",
	Long: `Packs every locale of <workspace>/manifest/multiLangManifest.vdf into a
single shared data file, writing one directory file per locale. Identical
chunks across locales are stored once.`,
	Args: cobra.RangeArgs(2, 6),
	Run: func(cmd *cobra.Command, args []string) {
		if err := run(args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	root.Command.AddCommand(Command)
}

func run(args []string) error {
	context, level := args[0], args[1]
	workspace := root.Arg(args, 2, "ship")
	buildPath := root.Arg(args, 3, "vpk")
	threads, err := root.IntArg(args, 4, -1)
	if err != nil {
		return fmt.Errorf("invalid num_threads: %w", err)
	}
	cfg, err := codec.ParseLevel(root.Arg(args, 5, "uber"))
	if err != nil {
		return err
	}
	return packstore.PackMulti(context, level, cfg, workspace, buildPath, packstore.Options{
		Threads: threads,
		Verbose: root.Flags.Verbose,
	})
}
