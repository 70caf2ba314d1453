package main

import (
	"fmt"
	"os"

	"github.com/dmitrijs2005/shiftsync/internal/client/cli"
)

func main() {
	if err := cli.RootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
