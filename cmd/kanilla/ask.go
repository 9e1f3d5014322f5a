package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Kaniroj/New-AI-Kanilla/internal/models"
	"github.com/Kaniroj/New-AI-Kanilla/pkg/client"
	"github.com/Kaniroj/New-AI-Kanilla/pkg/llm"
)

// answerFunc answers one question, either in process or through the HTTP API.
type answerFunc func(ctx context.Context, question string) (*models.AnswerRecord, error)

func askCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a single question",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}
	cmd.Flags().String("server", "", "Ask a running kanilla server instead of answering locally")
	cmd.Flags().Bool("json", false, "Print the raw answer record as JSON")
	return cmd
}

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the course videos interactively",
		Args:  cobra.NoArgs,
		RunE:  runChat,
	}
	cmd.Flags().String("server", "", "Chat through a running kanilla server instead of answering locally")
	return cmd
}

// answerer returns the in-process synthesizer, or an HTTP client when --server
// is set. The returned closer releases the index.
func answerer(ctx context.Context, cmd *cobra.Command) (answerFunc, func(), error) {
	if serverURL, _ := cmd.Flags().GetString("server"); cmd.Flags().Changed("server") {
		c := client.New(serverURL, 0)
		return c.Ask, func() {}, nil
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	a, err := openApp(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return a.synthesizer.Answer, func() { a.Close() }, nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	answer, closeFn, err := answerer(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	record, err := answer(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeRecordJSON(cmd.OutOrStdout(), record)
	}
	printRecord(cmd.OutOrStdout(), record)
	return nil
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	answer, closeFn, err := answerer(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	return chatLoop(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), answer)
}

func chatLoop(ctx context.Context, in io.Reader, out io.Writer, answer answerFunc) error {
	color.New(color.FgCyan).Fprintln(out, "\nAsk about the course videos (type 'exit' to quit)")

	scanner := bufio.NewScanner(in)
	userPrompt := color.New(color.FgGreen)

	for {
		userPrompt.Fprint(out, "\nYou: ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if strings.EqualFold(question, "exit") || strings.EqualFold(question, "quit") {
			return nil
		}

		spinner := getSpinner(" Thinking...")
		record, err := answer(ctx, question)
		spinner.Finish()

		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			color.New(color.FgRed).Fprintf(out, "Error: %s\n", models.PublicMessage(err))
			continue
		}
		printRecord(out, record)
	}
}

func printRecord(w io.Writer, record *models.AnswerRecord) {
	color.New(color.FgCyan).Fprint(w, "\nAssistant: ")
	fmt.Fprintln(w, record.Answer)
	if sources := llm.FormatSources(record.Sources); sources != "" {
		fmt.Fprintln(w, sources)
	}
}

func writeRecordJSON(w io.Writer, record *models.AnswerRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(record)
}
