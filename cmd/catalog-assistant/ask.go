package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"catalog-assistant/internal/models"
	resolvequery "catalog-assistant/internal/workers/resource-query/resolve-query"

	"github.com/spf13/cobra"
)

var askTimeout time.Duration

var askCmd = &cobra.Command{
	Use:   "ask [text]",
	Short: "Resolve a single message and print the response JSON",
	Example: `  catalog-assistant ask "Tell me about Dragonhide"
  catalog-assistant ask show me all resources`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().DurationVar(&askTimeout, "timeout", 30*time.Second, "Overall timeout for the request")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), askTimeout)
	defer cancel()

	a, err := newApp(ctx, cfg, zapLog, log)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	result := a.pipeline.Resolve(ctx, resolvequery.Request{
		Text:    strings.Join(args, " "),
		AgentID: cfg.App.AgentID,
	})

	resp := models.MessageResponse{Action: result.Action, FinalResponse: result.Envelope}
	if !result.Handled {
		resp.FinalResponse = models.ResponseEnvelope{
			Text:    "That does not look like a catalog question.",
			Success: true,
			Data:    []models.CatalogRow{},
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	return nil
}
