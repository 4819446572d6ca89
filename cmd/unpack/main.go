package unpack

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/r1tools/revpk"
	"github.com/r1tools/revpk/cmd/root"
	"github.com/r1tools/revpk/packstore"
)

var Command = &cobra.Command{
	GroupID: root.GroupVPK.ID,
	Use:     "unpack dir_file [out_path] [sanitize]",
	Short:   "Unpacks a VPK into a workspace tree",
	Long: `Unpacks a VPK into a workspace tree (out_path defaults to "ship"),
regenerating the build manifest alongside it. With sanitize=1, a data file
path (pak000_NNN) is substituted with its directory file first.`,
	Args: cobra.RangeArgs(1, 3),
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
	dirFile := args[0]
	outPath := root.Arg(args, 1, "ship")
	sanitize, err := root.BoolArg(args, 2, false)
	if err != nil {
		return fmt.Errorf("invalid sanitize: %w", err)
	}
	if sanitize {
		dirFile = revpk.SanitizeDirPath(dirFile)
	}
	dir, err := packstore.ParseDirFile(dirFile)
	if err != nil {
		return err
	}
	return packstore.Unpack(dir, outPath, packstore.Options{Verbose: root.Flags.Verbose})
}
