package model

// ================ Config ================
type OrchestratorConfig struct {
	MaxIterations     int    `envconfig:"ORCHESTRATOR_MAX_ITERATIONS" default:"8"`
	SpecialistTimeout string `envconfig:"ORCHESTRATOR_SPECIALIST_TIMEOUT" default:"120s"`
	AuditTTL          string `envconfig:"ORCHESTRATOR_AUDIT_TTL" default:"24h"`
}

type ManagerModelConfig struct {
	Model       string  `envconfig:"MANAGER_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"MANAGER_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"MANAGER_TEMPERATURE" default:"0.1"`
}

type TeradataModelConfig struct {
	Model        string  `envconfig:"TERADATA_MODEL" default:"gemini-2.5-flash"`
	MaxTokens    int     `envconfig:"TERADATA_MAX_TOKENS" default:"4000"`
	Temperature  float32 `envconfig:"TERADATA_TEMPERATURE" default:"0.2"`
	MaxToolCalls int     `envconfig:"TERADATA_MAX_TOOL_CALLS" default:"8"`
	DatabaseName string  `envconfig:"TD_NAME"`
}

type PlotModelConfig struct {
	Model        string  `envconfig:"PLOT_MODEL" default:"gemini-2.5-flash"`
	MaxTokens    int     `envconfig:"PLOT_MAX_TOKENS" default:"4000"`
	Temperature  float32 `envconfig:"PLOT_TEMPERATURE" default:"0.2"`
	MaxToolCalls int     `envconfig:"PLOT_MAX_TOOL_CALLS" default:"4"`
}

type BackendConfig struct {
	Command     string   `envconfig:"MCP_COMMAND" default:"uvx"`
	Args        []string `envconfig:"MCP_ARGS" default:"teradata-mcp-server"`
	Transport   string   `envconfig:"MCP_TRANSPORT" default:"stdio"`
	DatabaseURI string   `envconfig:"DATABASE_URI"`
}

type SandboxConfig struct {
	Interpreter string `envconfig:"SANDBOX_INTERPRETER" default:"python3"`
	Timeout     string `envconfig:"SANDBOX_TIMEOUT" default:"60s"`
}

type ChartsConfig struct {
	Dir string `envconfig:"CHARTS_DIR" default:"charts"`
}
