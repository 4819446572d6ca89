package cmd

import (
	"os"

	"github.com/r1tools/revpk/cmd/root"

	_ "github.com/r1tools/revpk/cmd/ls"
	_ "github.com/r1tools/revpk/cmd/pack"
	_ "github.com/r1tools/revpk/cmd/packdeltacommon"
	_ "github.com/r1tools/revpk/cmd/packmulti"
	_ "github.com/r1tools/revpk/cmd/unpack"
	_ "github.com/r1tools/revpk/cmd/unpackmulti"
)

func Execute() {
	if err := root.Command.Execute(); err != nil {
		os.Exit(1)
	}
}
