package main

import (
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/medrag/internal/pipeline"
)

type literatureOptions struct {
	req    pipeline.LiteratureRequest
	asJSON bool
}

func newLiteratureCmd(g *globalOptions) *cobra.Command {
	opts := &literatureOptions{}

	cmd := &cobra.Command{
		Use:   "literature",
		Short: "Answer a question from PubMed abstracts",
		Long: `Search PubMed for the query, embed the returned abstracts and answer using
only the most similar ones.

NCBI requires a contact email: pass --email or set pubmed.email / ENTREZ_EMAIL.

Examples:
  medrag literature --query "statin associated myopathy" --email you@example.org
  medrag literature --query "sepsis lactate" --max_results 20 --top_k 5 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := opts.req
			req.ApplyDefaults(g.cfg.Pipeline)
			if err := req.Validate(); err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), g.cfg, g.logger, appOptions{events: true})
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.pipeline.Literature(cmd.Context(), req)
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), res, opts.asJSON)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.req.Query, "query", "", "PubMed search term and question")
	f.StringVar(&opts.req.Email, "email", "", "contact email sent to NCBI")
	f.IntVar(&opts.req.TopK, "top_k", 0, "number of abstracts to use (default 3)")
	f.IntVar(&opts.req.MaxResults, "max_results", 0, "maximum PubMed hits to fetch (default 10)")
	f.BoolVar(&opts.req.Rerank, "rerank", false, "reorder retrieved abstracts by term overlap")
	f.BoolVar(&opts.asJSON, "json", false, "print the result as JSON")

	return cmd
}
