package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ragpipe/internal/bedrock"
	"ragpipe/internal/index"
	"ragpipe/internal/record"
)

const snippetLen = 120

func newSearchCmd(o *options, d deps) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Print the documents most similar to query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if k <= 0 {
				return usageErr("-k must be > 0, got %d", k)
			}
			ctx := cmd.Context()
			cfg, err := loadConfig(o.configPath, d.Stderr)
			if err != nil {
				return err
			}

			b := &stageBuilder{cfg: cfg, d: d}
			inv, err := b.invoker(ctx)
			if err != nil {
				return &exitError{code: 1, err: err}
			}
			repo, err := openRepo(ctx, cfg)
			if err != nil {
				return &exitError{code: 1, err: err}
			}
			defer repo.Close()

			s := &index.Searcher{
				Repo:     repo,
				Embedder: &bedrock.Embedder{Client: inv, ModelID: cfg.Bedrock.EmbeddingModel},
			}
			results, err := s.Search(ctx, strings.Join(args, " "), k)
			if err != nil {
				return &exitError{code: 1, err: err}
			}
			if len(results) == 0 {
				fmt.Fprintln(d.Stdout, "no documents indexed")
				return nil
			}
			for i, r := range results {
				snippet := strings.Join(strings.Fields(r.Document.Content), " ")
				fmt.Fprintf(d.Stdout, "%d. %.4f [%s] %s\n", i+1, r.Score, r.Document.Metadata["source"], record.Truncate(snippet, snippetLen))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 5, "number of results")
	return cmd
}
