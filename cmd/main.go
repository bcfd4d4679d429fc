package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Ratchadaporn07043/astrobot/internal/config"
	"github.com/Ratchadaporn07043/astrobot/internal/db"
	"github.com/Ratchadaporn07043/astrobot/internal/embedding"
	"github.com/Ratchadaporn07043/astrobot/internal/helper"
	"github.com/Ratchadaporn07043/astrobot/internal/llmservice"
	"github.com/Ratchadaporn07043/astrobot/internal/ocr"
	"github.com/Ratchadaporn07043/astrobot/internal/ocr/tesseract"
	"github.com/Ratchadaporn07043/astrobot/internal/pipeline"
	"github.com/Ratchadaporn07043/astrobot/internal/rag"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the config file")
	filePath := flag.String("file", "", "Path or s3:// / gs:// url of the pdf to ingest")
	query := flag.String("query", "", "Question to retrieve context for")
	dryRun := flag.Bool("dry-run", false, "Dry run, do not save to database")
	batch := flag.Bool("batch", false, "Write the whole document at the end instead of page by page")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if *filePath != "" && *query != "" {
		log.Fatal().Msg("Please provide either a document file using the -file flag or a query using the -query flag, but not both")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	if *debug {
		cfg.Store.Debug = true
	}
	if *batch {
		cfg.Pipeline.Incremental = false
	}

	ctx := context.Background()

	if *query != "" {
		retrieve(ctx, cfg, *query)
		return
	}

	src := *filePath
	if src == "" {
		src = cfg.Source.Path
	}
	if src == "" {
		log.Fatal().Msg("Please provide either a document file using the -file flag or a query using the -query flag")
	}
	ingest(ctx, cfg, src, *dryRun)
}

func ingest(ctx context.Context, cfg *config.Config, src string, dryRun bool) {
	log.Debug().Interface("config", cfg).Msg("Loaded config")

	recognizer := tesseract.New(cfg.Pipeline.OCRLanguages)
	defer recognizer.Close()

	processor := pipeline.NewProcessor(&cfg.Pipeline, cfg.Source.DocumentCounter, pipeline.Deps{
		OCR:        recognizer,
		Normalizer: ocr.NewNormalizer(cfg.Normalizer.LexiconPath),
		Summarizer: llmservice.NewSummarizer(&cfg.Summarizer),
		Text:       embedding.NewTextEmbedder(&cfg.Embedding.Text),
		Image:      embedding.NewImageEmbedder(&cfg.Embedding.Image),
	})

	driver := pipeline.NewDriver(cfg, processor, dryRun)
	report, err := driver.Run(ctx, src)
	helper.PrettyPrint(report)
	if err != nil {
		log.Fatal().Err(err).Msg("Error ingesting document")
	}
}

func retrieve(ctx context.Context, cfg *config.Config, query string) {
	store, err := db.Connect(ctx, &cfg.Store)
	if err == nil {
		err = store.Ping(ctx)
	}
	if err != nil {
		if !cfg.Store.JSONFallback {
			log.Fatal().Err(err).Msg("Error connecting to store")
		}
		log.Warn().Err(err).Str("dir", cfg.Store.OutputDir).Msg("Store unreachable, searching json files")
		store = db.NewJSONStore(cfg.Store.OutputDir, cfg.Store.OriginalDB)
	}
	defer store.Close(ctx)

	embedder := embedding.NewTextEmbedder(&cfg.Embedding.Text)
	retriever := rag.NewRetriever(store, embedder, cfg.Store.ProcessedDB, &cfg.Retrieval)

	matches, err := retriever.Retrieve(ctx, query)
	if err != nil {
		log.Error().Err(err).Msg("Error retrieving")
		fmt.Println(rag.FallbackAnswer)
		return
	}

	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", query)

	if len(rag.Accepted(matches)) == 0 {
		fmt.Printf("%s\n\n", rag.FallbackAnswer)
	}

	log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	for _, m := range matches {
		note := ""
		if m.BelowThreshold {
			note = " (below threshold)"
		}
		fmt.Printf("%s %.4f%s\n  %s\n\n", m.Source(), m.Similarity, note, m.Summary)
	}
}
