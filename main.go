package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/OmarSamirz/NextBI/internal/artifacts"
	"github.com/OmarSamirz/NextBI/internal/backend/teradata"
	"github.com/OmarSamirz/NextBI/internal/core"
	"github.com/OmarSamirz/NextBI/internal/orchestrator/audit"
	"github.com/OmarSamirz/NextBI/internal/orchestrator/driver"
	"github.com/OmarSamirz/NextBI/internal/orchestrator/model"
	"github.com/OmarSamirz/NextBI/internal/orchestrator/nodes"
	"github.com/OmarSamirz/NextBI/internal/orchestrator/specialists"
	"github.com/OmarSamirz/NextBI/internal/sandbox"
	logx "github.com/OmarSamirz/NextBI/pkg/logger"
	pkgredis "github.com/OmarSamirz/NextBI/pkg/redis"
)

// AppConfig defines all configurable parameters, sourced from environment
// variables (loaded from .env for local runs).
type AppConfig struct {
	// Infrastructure
	Redis pkgredis.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Orchestrator configs
	Manager      model.ManagerModelConfig
	Teradata     model.TeradataModelConfig
	Plot         model.PlotModelConfig
	Orchestrator model.OrchestratorConfig
	Backend      model.BackendConfig
	Sandbox      model.SandboxConfig
	Charts       model.ChartsConfig
}

func main() {
	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(os.Getenv("APP_ENV"))})

	// Load .env file
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// Load structured config from env
	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	specialistTimeout, err := time.ParseDuration(envCfg.Orchestrator.SpecialistTimeout)
	if err != nil {
		log.Fatalf("Invalid ORCHESTRATOR_SPECIALIST_TIMEOUT '%s': %v", envCfg.Orchestrator.SpecialistTimeout, err)
	}
	auditTTL, err := time.ParseDuration(envCfg.Orchestrator.AuditTTL)
	if err != nil {
		log.Fatalf("Invalid ORCHESTRATOR_AUDIT_TTL '%s': %v", envCfg.Orchestrator.AuditTTL, err)
	}
	sandboxTimeout, err := time.ParseDuration(envCfg.Sandbox.Timeout)
	if err != nil {
		log.Fatalf("Invalid SANDBOX_TIMEOUT '%s': %v", envCfg.Sandbox.Timeout, err)
	}

	// Cancel in-flight runs on Ctrl-C / SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Audit trail sink: Redis when configured, in-memory otherwise.
	var sink audit.Sink = audit.NewMemorySink()
	if envCfg.Redis.Enabled() {
		rdb, err := envCfg.Redis.New()
		if err != nil {
			log.Fatalf("Failed to initialise Redis client: %v", err)
		}
		defer rdb.Close()
		sink = audit.NewRedisSink(rdb, auditTTL)
		logx.Info().Msg("Audit trail persisted to Redis")
	}

	// Chart artifact store
	store, err := artifacts.NewStore(envCfg.Charts.Dir)
	if err != nil {
		log.Fatalf("Failed to create chart directory: %v", err)
	}

	// Teradata MCP backend
	backend := teradata.New(teradata.Config{
		Command:     envCfg.Backend.Command,
		Args:        envCfg.Backend.Args,
		Transport:   envCfg.Backend.Transport,
		DatabaseURI: envCfg.Backend.DatabaseURI,
	})
	if err := backend.Connect(ctx); err != nil {
		log.Fatalf("Failed to connect to Teradata MCP server: %v", err)
	}
	defer backend.Close()

	// Chat models
	cms, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		APIKey:         envCfg.APIKey,
		BaseURL:        envCfg.BaseURL,
		ManagerConfig:  &envCfg.Manager,
		TeradataConfig: &envCfg.Teradata,
		PlotConfig:     &envCfg.Plot,
	})
	if err != nil {
		log.Fatalf("Failed to create chat models: %v", err)
	}
	if err := cms.BindTeradataTools(ctx, backend.ToolInfos()); err != nil {
		log.Fatalf("Failed to bind Teradata tools: %v", err)
	}
	if err := cms.BindPlotTools(ctx, specialists.PlotToolInfos()); err != nil {
		log.Fatalf("Failed to bind Plot tools: %v", err)
	}

	// Specialists
	registry := specialists.NewRegistry()
	registry.Register(model.DecisionQuery, specialists.NewTeradataSpecialist(
		cms.Teradata, backend, &envCfg.Teradata, specialistTimeout,
	))
	registry.Register(model.DecisionPlot, specialists.NewPlotSpecialist(
		cms.Plot,
		sandbox.NewPythonExecutor(envCfg.Sandbox.Interpreter, sandboxTimeout),
		store,
		&envCfg.Plot,
		specialistTimeout,
	))

	orch := driver.New(driver.Config{
		ManagerModel:     cms.Manager,
		ManagerModelName: cms.ManagerModelName,
		Registry:         registry,
		MaxIterations:    envCfg.Orchestrator.MaxIterations,
		AuditSink:        sink,
	})

	// One-shot mode: question on the command line.
	if len(os.Args) > 1 {
		printResult(orch.Run(ctx, strings.Join(os.Args[1:], " ")))
		return
	}

	// Interactive mode: one question per line on stdin.
	fmt.Println("NextBI ready. Ask a question about your data (Ctrl-D to exit).")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		printResult(orch.Run(ctx, question))
		if ctx.Err() != nil {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("Failed to read input: %v", err)
	}
}

func printResult(res *model.FinalResult) {
	fmt.Printf("\n%s\n", res.Response)
	if res.IsPlot {
		fmt.Printf("Chart: %s\n", res.ArtifactPath)
	}
	if res.SQLQueries != "" {
		fmt.Println(res.SQLQueries)
	}
	if b, err := json.MarshalIndent(res, "", "  "); err == nil {
		logx.Debug().RawJSON("result", b).Msg("Run result")
	}
	fmt.Println("─────────────────────────────────────────────")
}
