package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/llmhub/llmhub-server/internal/config"
	"github.com/llmhub/llmhub-server/internal/handlers"
	"github.com/llmhub/llmhub-server/internal/hub"
	"github.com/llmhub/llmhub-server/internal/logging"
	"github.com/llmhub/llmhub-server/internal/metrics"
	"github.com/llmhub/llmhub-server/internal/server"
	"github.com/llmhub/llmhub-server/internal/server/routes"
	"github.com/llmhub/llmhub-server/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

// buildHub 与 listenApp 在测试中替换，用于观察启动顺序而不真正绑定端口。
var (
	buildHub = func(cfg hub.Config) (handlers.Hub, error) {
		h, err := hub.New(cfg)
		if err != nil {
			return nil, err
		}
		return h, nil
	}
	listenApp = func(app *fiber.App, port int) error {
		return app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})
	}
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	// .env 可选：文件不存在时忽略，格式错误则终止启动
	if err := config.LoadDotEnv(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(stdErr, "读取 .env 失败: %v\n", err)
		return 1
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["providers"] = config.ProviderNames(cfg.Providers)
		fields["listen_port"] = cfg.Global.ListenPort
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → Hub → handlers → Fiber app → 监听。Hub 构建失败时不会绑定端口。
	recorder := metrics.NewRecorder()
	h, err := buildHub(hub.Config{
		Providers:     cfg.ProviderSettings(),
		ModelCacheTTL: cfg.Global.ModelCacheTTL.DurationValue(),
		HTTPClient:    server.NewUpstreamClient(cfg),
		Logger:        logger,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "构建 Hub 失败: %v\n", err)
		return 1
	}

	apiHandlers, err := handlers.New(h, logger, recorder)
	if err != nil {
		fmt.Fprintf(stdErr, "构建 handler 失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["providers"] = config.ProviderNames(cfg.Providers)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["body_limit"] = cfg.Global.BodyLimit
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, apiHandlers, recorder, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数；配置文件可选，flag 优先于 LLMHUB_CONFIG。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet(version.Name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "可选的 TOML 配置文件（可被 LLMHUB_CONFIG 指定）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("LLMHUB_CONFIG")
	if configFlag != "" {
		path = configFlag
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func startHTTPServer(cfg *config.Config, apiHandlers server.RouteHandlers, recorder *metrics.Recorder, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Handlers:   apiHandlers,
		BodyLimit:  cfg.Global.BodyLimit,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterDiagnostics(app, routes.DiagnosticsOptions{
		Providers: cfg.Providers,
		Metrics:   recorder,
	})

	app.Hooks().OnListen(func(fiber.ListenData) error {
		logListening(logger, port)
		return nil
	})

	return listenApp(app, port)
}

func logListening(logger *logrus.Logger, port int) {
	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Infof("llmhub server listening on http://localhost:%d", port)
}
