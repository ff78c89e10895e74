package cli

import (
	"flag"
	"fmt"
	"os"
	"pivotrepair/internal/global"
	"pivotrepair/internal/install"
)

// Setup options
func ConfigureMode(commandname string, args []string) {
	var newNodeConf bool
	var newCoordConf bool
	var newSecret bool
	var outputPath string

	commandFlags := flag.NewFlagSet(commandname, flag.ExitOnError)
	commandFlags.StringVar(&outputPath, "c", "", "Path of the file to create (defaults to the standard location)")
	commandFlags.StringVar(&outputPath, "config", "", "Path of the file to create (defaults to the standard location)")
	commandFlags.BoolVar(&newNodeConf, "node-template", false, "Create new template config for a repair node")
	commandFlags.BoolVar(&newCoordConf, "coordinator-template", false, "Create new template config for the coordinator")
	commandFlags.BoolVar(&newSecret, "create-secret", false, "Create new random link secret file")

	commandFlags.Usage = func() {
		PrintHelpMenu(commandFlags, commandname, global.CmdOpts)
	}
	if len(args) < 1 {
		PrintHelpMenu(commandFlags, commandname, global.CmdOpts)
		os.Exit(1)
	}
	commandFlags.Parse(args[0:])

	pathOr := func(fallback string) (path string) {
		path = outputPath
		if path == "" {
			path = fallback
		}
		return
	}

	var err error
	if newNodeConf {
		err = install.CreateNodeTemplateConfig(pathOr(global.DefaultNodeConfigPath))
	} else if newCoordConf {
		err = install.CreateCoordinatorTemplateConfig(pathOr(global.DefaultCoordConfigPath))
	} else if newSecret {
		err = install.CreateLinkSecret(pathOr(global.DefaultSecretPath))
	} else {
		PrintHelpMenu(commandFlags, commandname, global.CmdOpts)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
