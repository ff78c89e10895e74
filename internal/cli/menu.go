package cli

import (
	"flag"
	"fmt"
	"os"
	"pivotrepair/internal/global"
	"slices"
	"strings"
)

const (
	RootCLICommand  string = "root"
	helpMenuTrailer string = `
Node ids follow the order of the configured address list, the coordinator is always id 0.
Sizes accept human units (e.g. 64MiB), durations accept Go units (e.g. 30s).
`
	baseIndentSpaces int = 2
)

// Full standardized help menu (wraps option printer as well)
func PrintHelpMenu(fs *flag.FlagSet, command string, rootCmd *global.CommandSet) {
	if command == "" {
		command = RootCLICommand
	}

	path := findCommand(rootCmd, command)
	if path == nil {
		fmt.Printf("Unknown command: %s\n", command)
		return
	}
	curCmdSet := path[len(path)-1]

	// Usage line, root name is never printed
	usageParts := []string{os.Args[0]}
	for _, cmd := range path[1:] {
		usageParts = append(usageParts, cmd.CommandName)
	}
	switch len(curCmdSet.ChildCommands) {
	case 0:
	case 1:
		for name := range curCmdSet.ChildCommands {
			usageParts = append(usageParts, name)
		}
	default:
		usageParts = append(usageParts, "[subcommand]")
	}
	if curCmdSet.UsageOption != "" {
		usageParts = append(usageParts, curCmdSet.UsageOption)
	}
	fmt.Printf("Usage: %s\n\n", strings.Join(usageParts, " "))

	// Description
	if curCmdSet == rootCmd {
		fmt.Println(curCmdSet.Description)
		fmt.Println(curCmdSet.FullDescription)
		fmt.Println()
	} else if curCmdSet.FullDescription != "" {
		fmt.Println("  Description:")
		fmt.Printf("    %s\n\n", curCmdSet.FullDescription)
	}

	printSubcommands(curCmdSet)
	printFlagOptions(fs, baseIndentSpaces)

	if curCmdSet == rootCmd {
		fmt.Print(helpMenuTrailer)
	}
}

// Depth first search for a command, returns the chain from root to the match
func findCommand(cmd *global.CommandSet, name string) (path []*global.CommandSet) {
	if cmd.CommandName == name {
		path = []*global.CommandSet{cmd}
		return
	}
	for _, child := range cmd.ChildCommands {
		sub := findCommand(child, name)
		if sub != nil {
			path = append([]*global.CommandSet{cmd}, sub...)
			return
		}
	}
	return
}

func printSubcommands(cmd *global.CommandSet) {
	if len(cmd.ChildCommands) == 0 {
		return
	}

	names := make([]string, 0, len(cmd.ChildCommands))
	maxLen := 0
	for name := range cmd.ChildCommands {
		names = append(names, name)
		maxLen = max(maxLen, len(name))
	}
	slices.Sort(names)

	fmt.Printf("%sSubcommands:\n", strings.Repeat(" ", baseIndentSpaces))
	indent := strings.Repeat(" ", baseIndentSpaces+2)
	for _, name := range names {
		padding := strings.Repeat(" ", maxLen-len(name)+2)
		fmt.Printf("%s%s%s - %s\n", indent, name, padding, cmd.ChildCommands[name].Description)
	}
	fmt.Println()
}

type flagOption struct {
	names      []string // "-c", "--config"
	usage      string
	defaultVal string
	hasShort   bool
}

// Groups short and long spellings sharing a usage text into one option
func collectFlagOptions(fs *flag.FlagSet) (opts []*flagOption) {
	byUsage := make(map[string]*flagOption)
	fs.VisitAll(func(arg *flag.Flag) {
		opt, ok := byUsage[arg.Usage]
		if !ok {
			opt = &flagOption{usage: arg.Usage, defaultVal: arg.DefValue}
			byUsage[arg.Usage] = opt
			opts = append(opts, opt)
		}
		if len(arg.Name) == 1 {
			opt.names = append(opt.names, "-"+arg.Name)
			opt.hasShort = true
		} else {
			opt.names = append(opt.names, "--"+arg.Name)
		}
	})

	for _, opt := range opts {
		slices.SortFunc(opt.names, func(a, b string) int { return len(a) - len(b) })
	}
	slices.SortFunc(opts, func(a, b *flagOption) int {
		return strings.Compare(strings.ToLower(a.names[0]), strings.ToLower(b.names[0]))
	})
	return
}

// Custom printer to deduplicate short/long usages and indent automatically
func printFlagOptions(fs *flag.FlagSet, indentSpaces int) {
	const joiner string = ", "
	const usageGap int = 2

	// Long-only options line up behind the short spelling column
	shortColumn := len(joiner) + len("-x")

	opts := collectFlagOptions(fs)

	width := func(opt *flagOption) (n int) {
		n = len(strings.Join(opt.names, joiner))
		if !opt.hasShort {
			n += shortColumn
		}
		return
	}
	maxLen := 0
	for _, opt := range opts {
		maxLen = max(maxLen, width(opt))
	}

	fmt.Printf("%sOptions:\n", strings.Repeat(" ", indentSpaces))
	for _, opt := range opts {
		indent := indentSpaces
		if !opt.hasShort {
			indent += shortColumn
		}
		padding := max(maxLen-width(opt)+usageGap, usageGap)

		desc := opt.usage
		if opt.defaultVal != "" && opt.defaultVal != "false" && opt.defaultVal != "0" {
			desc += fmt.Sprintf(" [default: %s]", opt.defaultVal)
		}
		fmt.Printf("%s%s%s%s\n", strings.Repeat(" ", indent), strings.Join(opt.names, joiner), strings.Repeat(" ", padding), desc)
	}
}
