// Command revpk packs and unpacks Respawn VPK archives.
package main

import "github.com/r1tools/revpk/cmd"

func main() {
	cmd.Execute()
}
