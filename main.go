// Command hcrenew keeps a HidenCloud free server renewed.
package main

import (
	"os"

	"github.com/ibeckermayer/hcrenew/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
