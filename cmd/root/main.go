package root

import (
	"strconv"

	"github.com/spf13/cobra"
)

var Flags struct {
	Verbose bool
}

var Command = &cobra.Command{
	Use:   "revpk",
	Short: "Packs and unpacks Respawn VPK archives.",
}

var GroupVPK = &cobra.Group{
	ID:    "vpk",
	Title: "Commands:",
}

func init() {
	Command.AddGroup(GroupVPK)
	Command.PersistentFlags().BoolVarP(&Flags.Verbose, "verbose", "v", false, "display per-file progress information")
}

// Arg returns the optional positional argument at i, or def when absent or
// empty.
func Arg(args []string, i int, def string) string {
	if i < len(args) && args[i] != "" {
		return args[i]
	}
	return def
}

// IntArg is like Arg for integer arguments.
func IntArg(args []string, i int, def int) (int, error) {
	if i >= len(args) || args[i] == "" {
		return def, nil
	}
	return strconv.Atoi(args[i])
}

// BoolArg is like Arg for 0/1 arguments.
func BoolArg(args []string, i int, def bool) (bool, error) {
	if i >= len(args) || args[i] == "" {
		return def, nil
	}
	n, err := strconv.Atoi(args[i])
	return n != 0, err
}
