package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lisanmuaddib/tweet-digest/pkg/nitter"
)

var (
	fetchSummarize bool
	fetchModel     string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <handle> [count]",
	Short: "Retrieve a profile's recent posts once and print them as JSON",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  fetchAction,
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchSummarize, "summarize", false, "also ask the language model for a summary")
	fetchCmd.Flags().StringVar(&fetchModel, "model", "", "model or deployment to summarize with (overrides the configured one)")
	rootCmd.AddCommand(fetchCmd)
}

type fetchAttempt struct {
	Mirror    string           `json:"mirror"`
	Outcome   nitter.Outcome   `json:"outcome"`
	Kind      nitter.ErrorKind `json:"kind,omitempty"`
	Posts     int              `json:"posts"`
	ElapsedMs int64            `json:"elapsed_ms"`
}

type fetchOutput struct {
	RetrievalID string         `json:"retrieval_id"`
	Handle      string         `json:"handle"`
	Mirror      string         `json:"mirror,omitempty"`
	Posts       []nitter.Post  `json:"posts"`
	Attempts    []fetchAttempt `json:"attempts"`
	Summary     []string       `json:"summary,omitempty"`
}

func fetchAction(cmd *cobra.Command, args []string) error {
	count := 10
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("count must be a number: %w", err)
		}
		count = n
	}

	client, err := newNitterClient()
	if err != nil {
		return err
	}
	defer client.Close()

	report, err := client.RetrieveDetailed(cmd.Context(), args[0], count)
	if err != nil {
		return err
	}

	out := fetchOutput{
		RetrievalID: report.ID,
		Handle:      report.Handle,
		Mirror:      report.Mirror,
		Posts:       report.Posts,
	}
	if out.Posts == nil {
		out.Posts = []nitter.Post{}
	}
	for _, a := range report.Attempts {
		out.Attempts = append(out.Attempts, fetchAttempt{
			Mirror:    a.Mirror,
			Outcome:   a.Outcome,
			Kind:      a.Kind,
			Posts:     a.Posts,
			ElapsedMs: a.Elapsed.Milliseconds(),
		})
	}

	if fetchSummarize && len(report.Posts) > 0 {
		summarizer, err := newSummarizer(fetchModel)
		if err != nil {
			return err
		}
		summary, err := summarizer.Summarize(cmd.Context(), report.Handle, report.Posts)
		if err != nil {
			return fmt.Errorf("summarize: %w", err)
		}
		out.Summary = summary.Pages
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(out)
}
