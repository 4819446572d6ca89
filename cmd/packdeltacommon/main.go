package packdeltacommon

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
	Use:     "packdeltacommon context [workspace] [build_path] [num_threads] [compress_level]",
	Short:   "Batch-packs every per-map manifest into the shared delta-common VPKs",
	Long: `Batch-packs every per-map manifest of a context under
<workspace>/manifest/ into the two shared delta-common data files, routing
each file into the client or server stream and emitting one directory file
per locale, stream and map. English files are packed first so non-english entries
with no source of their own reuse the english data.`,
	Args: cobra.RangeArgs(1, 5),
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
	context := args[0]
	workspace := root.Arg(args, 1, "ship")
	buildPath := root.Arg(args, 2, "vpk")
	threads, err := root.IntArg(args, 3, -1)
	if err != nil {
		return fmt.Errorf("invalid num_threads: %w", err)
	}
	cfg, err := codec.ParseLevel(root.Arg(args, 4, "uber"))
	if err != nil {
		return err
	}
	return packstore.PackDeltaCommon(context, cfg, workspace, buildPath, packstore.Options{
		Threads: threads,
		Verbose: root.Flags.Verbose,
	})
}
