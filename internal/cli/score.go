package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"basegraph.app/triage/internal/sentiment"
)

// ScoreCmd scores text with the lexical heuristic. It needs no configuration.
func ScoreCmd() *cobra.Command {
	var (
		weightsFile string
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "score [text]",
		Short: "Score text with the keyword heuristic",
		Example: `  triage score "This is the third time I'm asking!!!"
  cat message.txt | triage score -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if text == "" || text == "-" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				text = string(b)
			}
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("nothing to score")
			}

			weights, err := sentiment.LoadWeights(weightsFile)
			if err != nil {
				return err
			}
			result := sentiment.NewLexicalScorer(weights).Analyze(text)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			printScore(out, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&weightsFile, "weights", "", "YAML file overriding the default lexical weights")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}
