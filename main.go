// Minet builds metabolic reaction networks from MINE and KEGG records.
//
// Starting from a list of KEGG seed compounds, minet expands the reactions
// reachable through a MINE database into a directed network of compound and
// reaction role nodes, stores it in BadgerDB and serves it to MCP clients.
package main

import (
	"fmt"
	"os"

	"github.com/Benny93/minet-go/cmd"
)

func main() {
	cli := cmd.NewCLI()

	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
