package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Kaniroj/New-AI-Kanilla/internal/types"
	"github.com/Kaniroj/New-AI-Kanilla/pkg/agent"
	"github.com/Kaniroj/New-AI-Kanilla/pkg/config"
	"github.com/Kaniroj/New-AI-Kanilla/pkg/llm"
	"github.com/Kaniroj/New-AI-Kanilla/pkg/retriever"
	"github.com/Kaniroj/New-AI-Kanilla/pkg/store"
)

func setupLogging(level string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return fmt.Errorf("invalid log level %q", level)
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	slog.SetDefault(slog.New(handler))
	return nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// app holds the query-time components shared by ask, chat and serve.
type app struct {
	db          types.VectorDB
	synthesizer *agent.Synthesizer
}

func (a *app) Close() error {
	return a.db.Close()
}

// openApp wires index, embedder, retriever and generator into a synthesizer.
// The index must already exist; queries never create it.
func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	embedder, err := llm.NewEmbedder(cfg.Embedding)
	if err != nil {
		return nil, err
	}

	db, err := store.Connect(ctx, cfg.Index.URI)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	tbl, err := db.OpenTable(ctx, cfg.Index.Table)
	if err != nil {
		db.Close()
		if errors.Is(err, store.ErrTableNotFound) {
			return nil, fmt.Errorf("index table %q does not exist, run `kanilla ingest` first", cfg.Index.Table)
		}
		return nil, err
	}

	r, err := retriever.New(tbl, embedder, cfg.Retrieval.TopK, float32(cfg.Retrieval.MinScore))
	if err != nil {
		db.Close()
		return nil, err
	}

	chat, err := llm.NewChatEngine(cfg.LLM)
	if err != nil {
		db.Close()
		return nil, err
	}
	slog.Default().With("component", "cli").Debug("query stack ready",
		"index", cfg.Index.URI, "table", cfg.Index.Table,
		"embedder", embedder.ModelID(), "llm", chat.Model())

	return &app{db: db, synthesizer: agent.New(chat, r, cfg.LLM)}, nil
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("chunks"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
	)
}
