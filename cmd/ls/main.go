package ls

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/r1tools/revpk/cmd/root"
	"github.com/r1tools/revpk/internal"
	"github.com/r1tools/revpk/packstore"
)

var Command = &cobra.Command{
	GroupID: root.GroupVPK.ID,
	Use:     "ls dir_file",
	Short:   "Lists the entries of a VPK with reconstructed sizes",
	Args:    cobra.ExactArgs(1),
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
	dir, err := packstore.ParseDirFile(args[0])
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', tabwriter.AlignRight)
	var total uint64
	for i := range dir.Entries {
		e := &dir.Entries[i]
		total += e.Size()
		fmt.Fprintf(w, "%d\t  %s\n", e.Size(), e.Path)
	}
	fmt.Fprintf(w, "%d\t  total (%s) in %d entries\n", total, internal.FormatBytesSI(int64(total)), len(dir.Entries))
	return w.Flush()
}
