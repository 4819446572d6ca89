package unpackmulti

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
	Use:     "unpackmulti dir_file [out_path] [sanitize]",
	Short:   "Unpacks a family of locale VPK directories with english fallback",
	Long: `Unpacks every sibling locale directory file sharing dir_file's base name.
The english directory is extracted in full; other locales emit only the
files whose checksum differs from english. A multi-locale manifest covering
all locales is written under <out_path>/manifest/.`,
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
	return packstore.UnpackMulti(dirFile, outPath, packstore.Options{Verbose: root.Flags.Verbose})
}
