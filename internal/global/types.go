package global

type CommandSet struct {
	CommandName     string                 // Exact name of cli command
	UsageOption     string                 // Expected command value in usage top line
	Description     string                 // Short text displayed on parent command
	FullDescription string                 // Long text displayed on current command
	ChildCommands   map[string]*CommandSet // Available subcommands
}

type CtxKey string

// Shared JSON blocks for both daemon configs

type MetricConf struct {
	Enabled     bool   `json:"enabled"`
	Interval    string `json:"collectionInterval"`
	MaxAge      string `json:"maximumRetention,omitempty"`
	ListenAddr  string `json:"listenAddress,omitempty"`
	EnableHTTP  bool   `json:"enableHTTPServer"`
	HTTPPortNum int    `json:"httpPort,omitempty"`
}

type LinkConf struct {
	SecretFile string `json:"secretFile,omitempty"` // Shared secret for sealing node links, empty disables sealing
}
