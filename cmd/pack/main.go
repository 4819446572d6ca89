package pack

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
	Use:     "pack locale context level [workspace] [build_path] [num_threads] [compress_level]",
	Short:   "Packs a single locale's manifest into a VPK",
	Long: `Packs a single locale's manifest into a VPK.

Reads <workspace>/manifest/<locale><context>_<level>.vdf (workspace defaults
to "ship") and writes the data and directory files under build_path (defaults
to "vpk"). The compress_level token selects the codec: fastest, faster,
default, better, uber (LZHAM), or zstd.`,
	Args: cobra.RangeArgs(3, 7),
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
	locale, context, level := args[0], args[1], args[2]
	workspace := root.Arg(args, 3, "ship")
	buildPath := root.Arg(args, 4, "vpk")
	threads, err := root.IntArg(args, 5, -1)
	if err != nil {
		return fmt.Errorf("invalid num_threads: %w", err)
	}
	cfg, err := codec.ParseLevel(root.Arg(args, 6, "uber"))
	if err != nil {
		return err
	}
	return packstore.PackSingle(locale, context, level, cfg, workspace, buildPath, packstore.Options{
		Threads: threads,
		Verbose: root.Flags.Verbose,
	})
}
