package admin

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/meddocs/internal/service"
)

// AskCmd returns the ask command
func AskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question grounded in the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}

	cmd.Flags().String("session", "", "Continue an existing chat session")
	cmd.Flags().StringSlice("doc", nil, "Restrict retrieval to these document ids")

	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer initTelemetry(cfg)()

	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	session, _ := cmd.Flags().GetString("session")
	docIDs, _ := cmd.Flags().GetStringSlice("doc")

	res, err := app.Chat.Ask(ctx, service.AskInput{
		SessionID:   session,
		Message:     strings.Join(args, " "),
		DocumentIDs: docIDs,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, res.Result.Answer)
	printCitations(out, res.Result.Citations)

	confidence := okColor
	if res.Result.NoEvidence || res.Result.Confidence < cfg.QAMinSimilarity {
		confidence = failColor
	}
	fmt.Fprintln(out)
	confidence.Fprintf(out, "confidence %.2f", res.Result.Confidence)
	dimColor.Fprintf(out, "  sources %d  session %s\n", res.Result.SourcesUsed, res.SessionID)
	return nil
}
