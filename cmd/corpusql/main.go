// Command corpusql searches annotation graph corpora.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/corpusql/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err == nil {
		return
	}
	// Commands report their own failures as ExitErrors. Anything else is a
	// usage or setup error raised before a command ran.
	var exitErr *cli.ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(cli.ExitCommandError)
}
