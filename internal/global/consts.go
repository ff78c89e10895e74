package global

import "time"

const (
	// Descriptive Names for available verbosity levels
	VerbosityNone int = iota
	VerbosityStandard
	VerbosityProgress
	VerbosityData
	VerbosityFullData
	VerbosityDebug

	// Descriptive names for available severity levels
	ErrorLog string = "Error"
	WarnLog  string = "Warn"
	InfoLog  string = "Info"
)

const (
	ProgBaseName string = "pivotrepair"
	ProgVersion  string = "v0.3.0"

	// Context keys
	LoggerKey  CtxKey = "logger"  // Event queue (mostly for variable log verbosity handling)
	LogTagsKey CtxKey = "logtags" // List of tags in order of broad->specific appended/popped at various parts of the program

	DefaultConfigDir       string = "/etc/pivotrepair"
	DefaultNodeConfigPath  string = DefaultConfigDir + "/node.json"
	DefaultCoordConfigPath string = DefaultConfigDir + "/coordinator.json"
	DefaultSecretPath      string = DefaultConfigDir + "/link.secret"
	DefaultPlanPath        string = DefaultConfigDir + "/plan.txt"
	LinkSecretSize         int    = 32
	DefaultNodePort        int    = 9650

	// Coordinator is always the first entry of the node address list
	CoordinatorID int64 = 0

	// Pipeline defaults
	DefaultQueueSize       int           = 1024
	DefaultPieceSize       uint64        = 1 << 20
	DefaultBlockNum        int           = 64
	DefaultFlowWorkers     int           = 8
	DefaultAnnounceTimeout time.Duration = 30 * time.Second
	DefaultDialTimeout     time.Duration = 2 * time.Minute

	// Timeout values
	NodeShutdownTimeout  time.Duration = 20 * time.Second
	BeatsConnectTimeout  time.Duration = 3 * time.Second
	MetricDefaultMaxAge  time.Duration = 1 * time.Hour
	MetricDefaultCollect time.Duration = 15 * time.Second

	// Metric HTTP server
	HTTPListenPortNode int           = 10000 + DefaultNodePort
	HTTPListenAddr     string        = "localhost" // Metric queries only exposed to local machine
	HTTPReadTimeout    time.Duration = 30 * time.Second
	HTTPWriteTimeout   time.Duration = 10 * time.Second
	HTTPIdleTimeout    time.Duration = 180 * time.Second

	// Namespacing Name Components
	NSMetric    string = "Metrics"
	NSMetricSrv string = "Server"
	NSTest      string = "Test"
	NSNode      string = "Node"
	NSCoord     string = "Coordinator"
	NSControl   string = "Control"
	NSRecv      string = "Receiver"
	NSStream    string = "Stream"
	NSCombine   string = "Combiner"
	NSFlow      string = "Flow"
	NSQueue     string = "Queue"
	NSWorker    string = "Worker"
	NSTransport string = "Transport"
	NSBandwidth string = "Bandwidth"
	NSStore     string = "Store"
	NSoBeats    string = "Beats"
)
