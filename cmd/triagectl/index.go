// cmd/triagectl/index.go
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"medical-triage/internal/common/config"
	"medical-triage/internal/common/database"
	"medical-triage/internal/knowledge"
	retrievedocuments "medical-triage/internal/workers/triage/retrieve-documents"
)

func newIndexCmd(opts *rootOptions) *cobra.Command {
	var (
		file     string
		skipSeed bool
	)
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Create the knowledge index and load documents into Elasticsearch",
		Long: `Create the knowledge index when missing and bulk-load the built-in seed
corpus plus any documents from --file. Documents are embedded when
embeddings are enabled in the configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			docs, err := collectDocuments(file, skipSeed)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				return fmt.Errorf("nothing to index")
			}

			es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			if err := es.Ping(cmd.Context()); err != nil {
				return err
			}

			var embedder retrievedocuments.Embedder
			dims := 0
			if cfg.Embeddings.Enabled {
				embedder = retrievedocuments.NewOpenAIEmbedder(cfg.Embeddings.APIKey, cfg.Embeddings.BaseURL,
					cfg.Embeddings.Model, config.GetDuration(cfg.Embeddings.Timeout))
				dims = cfg.Embeddings.Dimensions
			}
			searcher := retrievedocuments.NewElasticsearchSearcher(es.Client, es.Index,
				cfg.Database.Elasticsearch.VectorField, embedder, opts.logger())

			created, err := searcher.EnsureIndex(cmd.Context(), dims)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "created index %s\n", es.Index)
			}

			n, err := searcher.IndexDocuments(cmd.Context(), docs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d documents into %s\n", n, es.Index)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML corpus with a top-level documents list")
	cmd.Flags().BoolVar(&skipSeed, "skip-seed", false, "do not load the built-in seed corpus")
	return cmd
}

func collectDocuments(file string, skipSeed bool) ([]knowledge.Document, error) {
	var docs []knowledge.Document
	if !skipSeed {
		seed, err := knowledge.Seed()
		if err != nil {
			return nil, err
		}
		docs = append(docs, seed...)
	}
	if file != "" {
		extra, err := knowledge.LoadFile(file)
		if err != nil {
			return nil, err
		}
		docs = append(docs, extra...)
	}
	if err := knowledge.Validate(docs); err != nil {
		return nil, err
	}
	return docs, nil
}
