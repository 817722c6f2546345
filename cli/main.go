package main

import (
	"fmt"
	"os"

	"github.com/BioHazard786/Warproom/cli/cmd"
	"github.com/BioHazard786/Warproom/cli/internal/logging"
)

func main() {
	logger, err := logging.Init()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cmd.Execute()
}
