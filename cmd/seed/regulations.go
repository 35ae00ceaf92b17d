package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/regcheck/backend/internal/cache"
	"github.com/regcheck/backend/internal/db"
	"github.com/regcheck/backend/internal/embedding"
	"github.com/regcheck/backend/internal/vectorstore"
)

var regulationsFile string

var regulationsCmd = &cobra.Command{
	Use:   "regulations",
	Short: "Embed and store the regulatory passage corpus",
	Long: `Reads a YAML corpus, embeds every passage with the configured embedding
model and stores it in the vector store used for retrieval.`,
	RunE: runSeedRegulations,
}

func init() {
	regulationsCmd.Flags().StringVarP(&regulationsFile, "file", "f", "data/regulations.yaml", "YAML corpus of regulatory passages")
	rootCmd.AddCommand(regulationsCmd)
}

func runSeedRegulations(cmd *cobra.Command, args []string) error {
	if cfg.Vector.Backend != "pgvector" {
		return fmt.Errorf("vector store %q is not persistent, nothing to seed", cfg.Vector.Backend)
	}

	f, err := os.Open(regulationsFile)
	if err != nil {
		return fmt.Errorf("failed to open corpus: %w", err)
	}
	defer f.Close()

	passages, err := vectorstore.LoadCorpus(f)
	if err != nil {
		return err
	}

	embedder, err := embedding.New(cfg.Embedding, cfg.LLM.MaxRetries, cache.NewTieredCache(nil, 0, 0), cfg.Cache.EmbeddingTTL)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	log.Printf("🔍 Embedding %d passages with %s...", len(passages), embedder.Model())
	for i := range passages {
		vec, err := embedder.Embed(ctx, passages[i].Content)
		if err != nil {
			return fmt.Errorf("embed %s %s: %w", passages[i].Source, passages[i].Reference, err)
		}
		passages[i].Embedding = vec
	}

	added, err := vectorstore.NewPGStore(db.DB).AddPassages(ctx, passages)
	if err != nil {
		return fmt.Errorf("failed to store passages: %w", err)
	}

	log.Printf("✅ Stored %d regulatory passages", added)
	return nil
}
