package cli

import (
	"flag"
	"pivotrepair/internal/global"
)

func SetGlobalArguments(fs *flag.FlagSet) {
	fs.IntVar(&global.Verbosity, "v", 1, "Increase detailed progress messages (Higher is more verbose) <0...5>")
	fs.IntVar(&global.Verbosity, "verbosity", 1, "Increase detailed progress messages (Higher is more verbose) <0...5>")
}

func SetCommon(fs *flag.FlagSet, configPath *string, defaultPath string) {
	fs.StringVar(configPath, "c", defaultPath, "Path to the configuration file")
	fs.StringVar(configPath, "config", defaultPath, "Path to the configuration file")
}

func SetSecretPrompt(fs *flag.FlagSet, askSecret *bool) {
	fs.BoolVar(askSecret, "ask-secret", false, "Read the link secret from the terminal instead of the configured secret file")
}
