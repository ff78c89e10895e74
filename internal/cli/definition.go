package cli

import "pivotrepair/internal/global"

func DefineOptions() (cmdOpts *global.CommandSet) {
	// Root level
	root := &global.CommandSet{
		Description:     "Pipelined Repair (PivotRepair)",
		FullDescription: "  Rebuilds lost erasure coded blocks by streaming partial combinations along a chain of nodes",
		CommandName:     RootCLICommand,
		ChildCommands:   make(map[string]*global.CommandSet),
	}

	// Storage node
	root.ChildCommands["node"] = &global.CommandSet{
		CommandName:     "node",
		Description:     "Run Repair Node",
		FullDescription: "Reads local block data, combines relayed pieces, and forwards or stores the result as directed by the coordinator",
		ChildCommands:   nil,
	}

	// Coordinator
	root.ChildCommands["coordinate"] = &global.CommandSet{
		CommandName:     "coordinate",
		Description:     "Run Repair Coordinator",
		FullDescription: "Connects to every node, delivers the repair plan group by group, and waits for completion",
		ChildCommands:   nil,
	}

	// Setup
	root.ChildCommands["configure"] = &global.CommandSet{
		CommandName:     "configure",
		Description:     "Setup Actions",
		FullDescription: "Create template configurations and link secrets",
		ChildCommands:   nil,
	}

	// Version Info
	root.ChildCommands["version"] = &global.CommandSet{
		CommandName:     "version",
		Description:     "Show Version Information",
		FullDescription: "Display meta information about program",
	}

	cmdOpts = root
	return
}
