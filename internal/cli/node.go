package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"pivotrepair/internal/global"
	"pivotrepair/internal/lifecycle"
	"pivotrepair/internal/logctx"
	"pivotrepair/internal/node"
)

func NodeMode(ctx context.Context, commandname string, args []string) {
	var configPath string
	var askSecret bool
	commandFlags := flag.NewFlagSet(commandname, flag.ExitOnError)
	SetGlobalArguments(commandFlags)
	SetCommon(commandFlags, &configPath, global.DefaultNodeConfigPath)
	SetSecretPrompt(commandFlags, &askSecret)

	commandFlags.Usage = func() {
		PrintHelpMenu(commandFlags, commandname, global.CmdOpts)
	}
	commandFlags.Parse(args[0:])
	logctx.SetLogLevel(ctx, global.Verbosity)

	jsonCfg, err := node.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	daemonConfig, err := jsonCfg.NewDaemonConf()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if askSecret {
		daemonConfig.Secret, err = readSecret()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	daemon := node.NewDaemon(daemonConfig)
	err = daemon.Start(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting repair node: %v\n", err)
		os.Exit(1)
	}

	err = lifecycle.NotifyReady(ctx)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog, "failed to notify service manager: %v\n", err)
	}
	go lifecycle.SignalHandler(ctx, daemon)

	daemon.Run()
	daemon.Shutdown()
}
