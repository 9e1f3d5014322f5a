package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Kaniroj/New-AI-Kanilla/pkg/ingest"
	"github.com/Kaniroj/New-AI-Kanilla/pkg/llm"
	"github.com/Kaniroj/New-AI-Kanilla/pkg/loader"
	"github.com/Kaniroj/New-AI-Kanilla/pkg/processor"
	"github.com/Kaniroj/New-AI-Kanilla/pkg/store"
)

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Chunk, embed and index the transcripts",
		Long:  "Load transcripts from the configured sources, split them into chunks, embed them and write them to the index",
		RunE:  runIngest,
	}

	cmd.Flags().String("mode", string(ingest.ModeCreate), "Index mode: create replaces the table, append adds to it")
	cmd.Flags().Bool("no-progress", false, "Disable the progress bar")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	modeFlag, _ := cmd.Flags().GetString("mode")
	mode, err := ingest.ParseMode(modeFlag)
	if err != nil {
		return err
	}

	src, err := loader.FromConfig(cfg.Source)
	if err != nil {
		return err
	}
	proc, err := processor.New(processor.ProcessorConfig{
		ChunkSize:    cfg.Processor.ChunkSize,
		ChunkOverlap: cfg.Processor.ChunkOverlap,
	})
	if err != nil {
		return err
	}
	embedder, err := llm.NewEmbedder(cfg.Embedding)
	if err != nil {
		return err
	}

	db, err := store.Connect(ctx, cfg.Index.URI)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer db.Close()

	writer := ingest.NewWriter(db, embedder, cfg.Index)
	if noProgress, _ := cmd.Flags().GetBool("no-progress"); !noProgress {
		var bar *progressbar.ProgressBar
		writer.OnProgress = func(done, total int) {
			if bar == nil {
				bar = getProgressBar(total, "Indexing transcript chunks")
			}
			bar.Set(done)
			if done == total {
				bar.Finish()
				fmt.Fprintln(cmd.ErrOrStderr())
			}
		}
	}

	color.Blue("Ingesting transcripts into %s (table %s, mode %s)", cfg.Index.URI, cfg.Index.Table, mode)
	report, err := ingest.NewPipeline(src, proc, writer).Run(ctx, mode)
	if report != nil {
		printReport(cmd.OutOrStdout(), report)
	}
	return err
}

func printReport(w io.Writer, report *ingest.Report) {
	fmt.Fprintf(w, "source:    %s\n", report.Source)
	fmt.Fprintf(w, "table:     %s (%s)\n", report.Table, report.Mode)
	fmt.Fprintf(w, "documents: %d\n", report.Documents)
	fmt.Fprintf(w, "chunks:    %d written\n", report.ChunksWritten)
	for _, doc := range report.SkippedDocuments {
		fmt.Fprintf(w, "skipped:   %s (no text)\n", doc)
	}
	for _, f := range report.FailedBatches {
		fmt.Fprintf(w, "failed:    %d chunks of %v: %v\n", f.Chunks, f.Documents, f.Err)
	}

	switch {
	case report.ChunksWritten == 0:
		color.New(color.FgRed).Fprintln(w, "✗ Nothing was indexed")
	case report.Partial():
		color.New(color.FgYellow).Fprintln(w, "! Index written with failed batches")
	default:
		color.New(color.FgGreen).Fprintln(w, "✓ Index is up to date")
	}
}
