package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jonesrussell/domaincrawl/cmd"
	"github.com/jonesrussell/domaincrawl/cmd/crawl"
)

func main() {
	if err := cmd.Execute(); err != nil {
		var coder *crawl.ExitCoder
		if errors.As(err, &coder) {
			os.Exit(coder.Code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
