package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/username/navledger/src/config"
	"github.com/username/navledger/src/database"
	"github.com/username/navledger/src/ingestion"
	"github.com/username/navledger/src/journal"
	"github.com/username/navledger/src/logger"
	"github.com/username/navledger/src/narrative"
	"github.com/username/navledger/src/services"
	"github.com/username/navledger/src/utils"
)

func main() {
	mode := flag.String("mode", string(ingestion.ModeAppend), "ingestion mode: append or rebuild")
	source := flag.String("source", "", "override the export source directory")
	narrate := flag.String("narrate", "", "render the narrative for a date (YYYY-MM-DD) after the run")
	flag.Parse()

	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	if *source != "" {
		config.Cfg.SourceDir = *source
	}

	runMode := ingestion.Mode(*mode)
	if runMode != ingestion.ModeAppend && runMode != ingestion.ModeRebuild {
		fmt.Fprintf(os.Stderr, "unknown -mode '%s' (want append or rebuild)\n", *mode)
		os.Exit(2)
	}
	if *narrate != "" {
		if _, err := time.Parse(utils.DefaultDateFormat, *narrate); err != nil {
			fmt.Fprintf(os.Stderr, "invalid -narrate date '%s' (want YYYY-MM-DD)\n", *narrate)
			os.Exit(2)
		}
	}

	database.InitDB(config.Cfg.DatabasePath)
	defer database.DB.Close()

	if err := journal.SeedChartOfAccounts(); err != nil {
		logger.L.Error("Failed to seed chart of accounts", "error", err)
		os.Exit(1)
	}

	prices := services.NewClosingPriceService(config.Cfg.PriceLookupTimeout, config.Cfg.PriceLookupRetries)
	pipeline := ingestion.NewPipeline(config.Cfg, prices)

	result, err := pipeline.Run(runMode)
	if err != nil {
		logger.L.Error("Pipeline run failed", "error", err)
		os.Exit(1)
	}
	for kind, count := range result.Normalized {
		logger.L.Info("Export ingested", "kind", string(kind), "normalized", count, "skipped", result.Skipped[kind])
	}

	if *narrate != "" {
		renderer := narrative.NewRenderer(config.Cfg)
		report, err := renderer.Render(*narrate)
		if err != nil {
			logger.L.Error("Failed to render narrative", "date", *narrate, "error", err)
			os.Exit(1)
		}
		if err := report.Write(os.Stdout); err != nil {
			logger.L.Error("Failed to write narrative", "error", err)
			os.Exit(1)
		}
	}
}
