package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/pressbox/vectorpipe/internal/config"
	"github.com/pressbox/vectorpipe/internal/embedder"
	"github.com/pressbox/vectorpipe/internal/pipeline"
	"github.com/pressbox/vectorpipe/internal/search"
	"github.com/pressbox/vectorpipe/internal/store"
	"github.com/pressbox/vectorpipe/internal/vectorstore"
)

var (
	configPath string
	cfg        *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vectorpipe",
		Short: "Article vectorization and semantic search pipeline",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
			setupLogging(cfg.Log.Level)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "config file path")

	rootCmd.AddCommand(processCmd())
	rootCmd.AddCommand(articleCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(requeueCmd())
	rootCmd.AddCommand(deleteCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}

// app holds the wired components for one command invocation
type app struct {
	store     store.Store
	embedder  embedder.Embedder
	vectors   vectorstore.Store
	processor *pipeline.Processor
	search    *search.Service
}

func (a *app) close() {
	_ = a.embedder.Close()
	_ = a.vectors.Close()
	_ = a.store.Close()
}

func buildApp(ctx context.Context) (*app, error) {
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open article store: %w", err)
	}

	emb, err := embedder.New(embedder.Config{
		Provider:  cfg.Embedding.Provider,
		APIKey:    cfg.Embedding.APIKey,
		Model:     cfg.Embedding.Model,
		BaseURL:   cfg.Embedding.BaseURL,
		CacheSize: cfg.Embedding.CacheSize,
		Timeout:   cfg.Embedding.Timeout.Std(),
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	vectors, err := vectorstore.New(ctx, vectorstore.Config{
		Backend:    cfg.VectorStore.Backend,
		Namespace:  cfg.VectorStore.Namespace,
		Dimension:  cfg.VectorStore.Dimension,
		BaseURL:    cfg.VectorStore.BaseURL,
		APIKey:     cfg.VectorStore.APIKey,
		Timeout:    cfg.VectorStore.Timeout.Std(),
		ConnString: cfg.VectorStore.ConnString,
		Table:      cfg.VectorStore.Table,
	})
	if err != nil {
		_ = emb.Close()
		_ = st.Close()
		return nil, fmt.Errorf("create vector store: %w", err)
	}

	processor := pipeline.New(st, emb, vectors, pipeline.Config{
		Concurrency:   cfg.Pipeline.Concurrency,
		EmbedInterval: cfg.Pipeline.EmbedInterval.Std(),
	}, slog.Default())

	searcher, err := search.New(emb, vectors, search.Config{
		CacheSize: cfg.Search.CacheSize,
		CacheTTL:  cfg.Search.CacheTTL.Std(),
	}, slog.Default())
	if err != nil {
		_ = vectors.Close()
		_ = emb.Close()
		_ = st.Close()
		return nil, fmt.Errorf("create search service: %w", err)
	}

	return &app{store: st, embedder: emb, vectors: vectors, processor: processor, search: searcher}, nil
}

func parseArticleID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid article id %q", arg)
	}
	return id, nil
}

func processCmd() *cobra.Command {
	var batch int

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Process pending and failed articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			limit := batch
			if limit <= 0 {
				limit = cfg.Pipeline.BatchSize
			}

			stats, err := a.processor.ProcessPending(ctx, limit)
			if err != nil {
				return err
			}

			for _, msg := range stats.Messages {
				fmt.Println(msg)
			}
			fmt.Printf("Processed %d articles: %d succeeded, %d failed\n",
				stats.Processed, stats.Succeeded, stats.Failed)
			return nil
		},
	}

	cmd.Flags().IntVar(&batch, "batch", 0, "maximum articles to process (default: config batch_size)")
	return cmd
}

func articleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "article ID",
		Short: "Process a single article",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseArticleID(args[0])
			if err != nil {
				return err
			}

			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			ok, msg := a.processor.ProcessArticle(cmd.Context(), id)
			fmt.Println(msg)
			if !ok {
				return fmt.Errorf("article %d was not processed", id)
			}
			return nil
		},
	}
}

func searchCmd() *cobra.Command {
	var (
		topK      int
		source    string
		sentiment string
		after     string
	)

	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Run a semantic search over processed articles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if topK <= 0 {
				topK = cfg.Search.TopK
			}
			req := search.Request{
				Query:     args[0],
				TopK:      topK,
				Source:    source,
				Sentiment: sentiment,
			}
			if after != "" {
				ts, err := time.Parse("2006-01-02", after)
				if err != nil {
					return fmt.Errorf("invalid --after date %q (want YYYY-MM-DD)", after)
				}
				req.PublishedAfter = &ts
			}

			resp, err := a.search.Search(cmd.Context(), req)
			if err != nil {
				return err
			}

			if len(resp.Results) == 0 {
				fmt.Println("No results")
				return nil
			}
			for i, r := range resp.Results {
				date := ""
				if r.PublishedDate != nil {
					date = r.PublishedDate.Format("2006-01-02")
				}
				fmt.Printf("%2d. [%.3f] %s\n    %s | %s | sentiment %+.2f\n    %s\n",
					i+1, r.Score, r.Title, r.Source, date, r.Sentiment, r.URL)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&topK, "top-k", 0, "number of results (default: config top_k)")
	cmd.Flags().StringVar(&source, "source", "", "filter by source")
	cmd.Flags().StringVar(&sentiment, "sentiment", "", "filter by sentiment bucket: positive, negative, neutral")
	cmd.Flags().StringVar(&after, "after", "", "only articles published after this date (YYYY-MM-DD)")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show processing state counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.NewSQLiteStore(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			stats, err := st.Stats(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("Pending:    %d\n", stats.Pending)
			fmt.Printf("Processing: %d\n", stats.Processing)
			fmt.Printf("Completed:  %d\n", stats.Completed)
			fmt.Printf("Failed:     %d\n", stats.Failed)
			fmt.Printf("Total:      %d\n", stats.Total)
			fmt.Printf("Completion: %.1f%%\n", stats.CompletionRate()*100)
			return nil
		},
	}
}

func resetCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Return articles stuck in processing to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.NewSQLiteStore(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			cutoff := olderThan
			if cutoff <= 0 {
				cutoff = cfg.Pipeline.StuckTimeout.Std()
			}

			reset, err := st.ResetStuckProcessing(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			fmt.Printf("Reset %d stuck articles to pending\n", reset)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "stuck threshold (default: config stuck_timeout)")
	return cmd
}

func requeueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requeue ID",
		Short: "Re-queue a failed article for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseArticleID(args[0])
			if err != nil {
				return err
			}

			st, err := store.NewSQLiteStore(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			if err := st.RequeueArticle(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Printf("Article %d re-queued\n", id)
			return nil
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an article's vector entry and clear its embedding state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseArticleID(args[0])
			if err != nil {
				return err
			}

			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.processor.DeleteEmbedding(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Printf("Embedding for article %d deleted\n", id)
			return nil
		},
	}
}
