package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mycelian/mycelian-persona/internal/app"
	"github.com/mycelian/mycelian-persona/internal/config"
	"github.com/mycelian/mycelian-persona/internal/pipeline"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingestion pass on the service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postJSON(cmd.Context(), apiFlag, "/v1/ingest", nil, cmd.OutOrStdout())
		},
	}
}

func newSearchCmd() *cobra.Command {
	var (
		query       string
		topK        int
		showContext bool
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Query the vector index directly using PERSONA_* settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), query, topK, showContext, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Query text (required)")
	cmd.Flags().IntVarP(&topK, "topk", "k", 5, "Number of matches to return")
	cmd.Flags().BoolVar(&showContext, "context", false, "Print the assembled context windows as well")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func runSearch(ctx context.Context, query string, topK int, withContext bool, out io.Writer) error {
	cfg, err := config.New()
	if err != nil {
		return err
	}
	c, err := app.Build(ctx, cfg, zerolog.New(os.Stderr).Level(zerolog.WarnLevel))
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	matches, err := c.Retriever().Retrieve(ctx, query, topK)
	if err != nil {
		return err
	}
	if matches == nil {
		fmt.Fprintln(out, "no documents")
		return nil
	}
	for i, m := range matches {
		fmt.Fprintf(out, "%d. [%.3f] %s/%s by %s: %s\n", i+1, m.Score, m.Table, m.SourceID, m.AuthorID, oneLine(m.Text))
	}
	if withContext {
		fmt.Fprintln(out)
		fmt.Fprintln(out, c.Assembler().AssembleAll(ctx, matches))
	}
	return nil
}

func newRespondCmd() *cobra.Command {
	var (
		surface   string
		container string
		sender    string
		text      string
		mentions  []string
	)
	cmd := &cobra.Command{
		Use:   "respond",
		Short: "Send a trigger to the service (surface: channel, thread, dm)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				path string
				body interface{}
			)
			switch surface {
			case "channel":
				path = "/v1/triggers/channel-messages"
				body = pipeline.ChannelTrigger{ChannelID: container, SenderID: sender, Text: text, MentionedIDs: mentions}
			case "thread":
				path = "/v1/triggers/thread-replies"
				body = pipeline.ThreadTrigger{ParentMessageID: container, SenderID: sender, Text: text, MentionedIDs: mentions}
			case "dm":
				if len(mentions) != 1 {
					return fmt.Errorf("dm requires exactly one --to recipient")
				}
				path = "/v1/triggers/direct-messages"
				body = pipeline.DirectTrigger{ConversationID: container, SenderID: sender, RecipientID: mentions[0], Text: text}
			default:
				return fmt.Errorf("unknown surface %q", surface)
			}
			return postJSON(cmd.Context(), apiFlag, path, body, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&surface, "surface", "s", "channel", "channel | thread | dm")
	cmd.Flags().StringVarP(&container, "container", "c", "", "Channel id, parent message id, or conversation id (required)")
	cmd.Flags().StringVarP(&sender, "from", "f", "", "Sender user id (required)")
	cmd.Flags().StringVarP(&text, "text", "t", "", "Message text (required)")
	cmd.Flags().StringSliceVar(&mentions, "to", nil, "Responder user ids (mentions, or the DM recipient)")
	_ = cmd.MarkFlagRequired("container")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func postJSON(ctx context.Context, baseURL, path string, body interface{}, out io.Writer) error {
	req := resty.New().SetBaseURL(strings.TrimRight(baseURL, "/")).R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	resp, err := req.Post(path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("%s: %s", resp.Status(), strings.TrimSpace(resp.String()))
	}
	var pretty interface{}
	if err := json.Unmarshal(resp.Body(), &pretty); err != nil {
		_, err = out.Write(resp.Body())
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(pretty)
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 120 {
		return s[:117] + "..."
	}
	return s
}
