package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/upb/rag-chat/config"
	"github.com/upb/rag-chat/services"
	"github.com/upb/rag-chat/services/chat"
)

type chatOptions struct {
	conversation string
	filter       string
	system       string
	ingest       bool
	quiet        bool
}

func newChatCmd(root *rootOptions) *cobra.Command {
	opts := &chatOptions{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat in the terminal",
		Long: `Starts a read-eval-print loop. Each line is answered by streaming the
model output; the retrieved documents and their scores are printed first.
Type "exit" or press Ctrl-D to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := bootstrap(cmd, root, func(cfg *config.Config) {
				cfg.RAG.PrintResults = !opts.quiet
				if cmd.Flags().Changed("ingest") {
					cfg.Ingest.OnStartup = opts.ingest
				}
				// no exchange records for terminal sessions
				cfg.Audit.Enabled = false
			})
			if err != nil {
				return err
			}
			defer deps.Close(context.Background())

			ctx := cmd.Context()
			if deps.Config.Ingest.OnStartup {
				report, err := deps.Ingest.Run(ctx)
				if err != nil {
					return err
				}
				cmd.PrintErrf("Ingested %d documents as %d chunks\n", report.Documents, report.Chunks)
			}

			return runREPL(ctx, deps.Chat, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.conversation, "conversation", "c", "cli", "conversation id")
	cmd.Flags().StringVarP(&opts.filter, "filter", "f", "", "metadata filter expression, e.g. \"genre == 'drama'\"")
	cmd.Flags().StringVar(&opts.system, "system", "", "system prompt")
	cmd.Flags().BoolVar(&opts.ingest, "ingest", false, "ingest documents before the first question")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "do not print the retrieved documents")
	return cmd
}

// Streamer is the part of the chat service the REPL uses.
type Streamer interface {
	RagStream(ctx context.Context, req chat.ChatRequest) (*chat.StreamResponse, error)
}

func runREPL(ctx context.Context, svc Streamer, opts *chatOptions, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Fprintln(out, "Let's chat! Type \"exit\" to quit.")
	for {
		fmt.Fprint(out, "\nUSER: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		if err := answer(ctx, svc, opts, line, out); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// answer streams one reply. Request failures are printed and the loop goes
// on; only a failed write to out is returned.
func answer(ctx context.Context, svc Streamer, opts *chatOptions, prompt string, out io.Writer) error {
	stream, err := svc.RagStream(ctx, chat.ChatRequest{
		ConversationID:   opts.conversation,
		UserPrompt:       prompt,
		SystemPrompt:     opts.system,
		FilterExpression: opts.filter,
	})
	if err != nil {
		_, werr := fmt.Fprintf(out, "\nASSISTANT: [%s] %s\n", errorLabel(err), err)
		return werr
	}
	defer stream.Close()

	if _, err := fmt.Fprint(out, "\nASSISTANT: "); err != nil {
		return err
	}
	for chunk := range stream.Chunks {
		if chunk.Err != nil {
			_, err := fmt.Fprintf(out, "\n[%s] %s\n", errorLabel(chunk.Err), chunk.Err)
			return err
		}
		if _, err := io.WriteString(out, chunk.Content); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintln(out)
	return err
}

func errorLabel(err error) string {
	if t := services.GetErrorType(err); t != "" {
		return string(t)
	}
	return "error"
}
