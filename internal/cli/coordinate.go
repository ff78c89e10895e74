package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"pivotrepair/internal/coordinator"
	"pivotrepair/internal/global"
	"pivotrepair/internal/lifecycle"
	"pivotrepair/internal/logctx"
)

// Signals abort the running plan
type planCanceler context.CancelFunc

func (cancel planCanceler) Shutdown() {
	cancel()
}

// Runs the repair plan to completion. Setup failures exit directly, plan failures are returned
// so buffered log output can be flushed first.
func CoordinateMode(ctx context.Context, commandname string, args []string) (err error) {
	var configPath string
	var askSecret bool
	commandFlags := flag.NewFlagSet(commandname, flag.ExitOnError)
	SetGlobalArguments(commandFlags)
	SetCommon(commandFlags, &configPath, global.DefaultCoordConfigPath)
	SetSecretPrompt(commandFlags, &askSecret)

	commandFlags.Usage = func() {
		PrintHelpMenu(commandFlags, commandname, global.CmdOpts)
	}
	commandFlags.Parse(args[0:])
	logctx.SetLogLevel(ctx, global.Verbosity)

	jsonCfg, err := coordinator.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	coordConfig, err := jsonCfg.NewCoordinatorConf()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if askSecret {
		coordConfig.Secret, err = readSecret()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	ctx = logctx.AppendCtxTag(ctx, global.NSCoord)
	planCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go lifecycle.SignalHandler(planCtx, planCanceler(cancel))

	coord, err := coordinator.Connect(planCtx, []string{global.NSCoord}, coordConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to nodes: %v\n", err)
		os.Exit(1)
	}

	err = coord.Run(planCtx, coordConfig.NewProvider, coordConfig.BandwidthRounds)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog, "repair plan failed: %v\n", err)
	}

	closeErr := coord.Close()
	if closeErr != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog, "failed to close node links: %v\n", closeErr)
	}
	return
}
