package main

import (
	"context"
	"flag"
	"leadqualdev/config"
	"leadqualdev/logger"
	"leadqualdev/modelapi/openaiapi"
	"leadqualdev/session"
	"leadqualdev/simulate"
	"leadqualdev/web"
	"log"
	"net/http"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/hyperdxio/opentelemetry-logs-go/exporters/otlp/otlplogs"
	sdk "github.com/hyperdxio/opentelemetry-logs-go/sdk/logs"
	"github.com/hyperdxio/otel-config-go/otelconfig"
)

func main() {
	simulateMode := flag.Bool("simulate", false, "run a simulation batch instead of serving the chat UI")
	flag.Parse()

	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading configuration - %v", err)
	}

	otelShutdown, err := otelconfig.ConfigureOpenTelemetry()
	if err != nil {
		log.Fatalf("Error setting up OTel SDK - %e", err)
	}
	defer otelShutdown()
	ctx := context.Background()

	logExporter, _ := otlplogs.NewExporter(ctx)
	loggerProvider := sdk.NewLoggerProvider(sdk.WithBatcher(logExporter))
	defer loggerProvider.Shutdown(ctx)

	LogMiddleware := logger.Connect(logger.LoggerConnectProps{Production: cfg.Production, LoggerProvider: loggerProvider})
	defer LogMiddleware.Sync()

	client := openaiapi.Connect(ctx, openaiapi.OpenAIConnectProps{
		Logger:  LogMiddleware,
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
	})
	salesBackend := openaiapi.NewSalesBackend(client, cfg.Sales)
	detector := session.RuleDetector{MaxExchanges: cfg.MaxExchanges}

	Logger := LogMiddleware.Logger(ctx)

	if *simulateMode {
		runner := simulate.Connect(ctx, simulate.RunnerConnectProps{
			Logger:   LogMiddleware,
			Backend:  salesBackend,
			Detector: detector,
			NewProspect: func(systemPrompt string) simulate.ProspectPlayer {
				return openaiapi.NewProspectResponder(client, cfg.Prospect, systemPrompt)
			},
			NumSimulations: cfg.NumSimulations,
			Workers:        int64(cfg.SimWorkers),
			LogDir:         cfg.LogDir,
		})

		summary, err := runner.Run(ctx)
		if err != nil {
			Logger.Fatal("[Main] Simulation batch failed", zap.Error(err))
		}
		Logger.Info("[Main] Simulation batch finished",
			zap.Int("completed", summary.Completed),
			zap.Int("requested", summary.Requested),
			zap.Float64("intent_match_rate", summary.IntentMatchRate),
			zap.String("transcripts", summary.LogPath),
		)
		return
	}

	chat := web.Connect(ctx, web.WebConnectProps{
		Logger: LogMiddleware,
		NewController: func() *session.Controller {
			return session.NewController(session.NewControllerProps{
				Backend:  salesBackend,
				Detector: detector,
				Logger:   LogMiddleware,
			})
		},
	})

	if cfg.Production {
		Logger.Info("[Main] Harness starting in production mode", zap.String("port", cfg.Port))
	} else {
		Logger.Info("[Main] Harness starting in development mode", zap.String("port", cfg.Port))
	}

	handler := otelhttp.NewHandler(chat.Routes(), "web")
	if err := http.ListenAndServe(":"+cfg.Port, handler); err != nil {
		Logger.Fatal("[Main] Server stopped", zap.Error(err))
	}
}
