package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"docchat/internal/answer"
	"docchat/internal/chunker"
	"docchat/internal/config"
	"docchat/internal/domain"
	"docchat/internal/embedding"
	"docchat/internal/embedding/openai"
	"docchat/internal/embedding/tfidf"
	"docchat/internal/extractor"
	"docchat/internal/llm"
	"docchat/internal/logging"
	"docchat/internal/service"
	"docchat/internal/summarizer"
	"docchat/internal/vectorstore"
	"docchat/internal/vectorstore/memory"
	"docchat/internal/vectorstore/qdrant"
)

// app bundles what a command needs after configuration.
type app struct {
	log zerolog.Logger
	svc *service.RAGService
}

func loadConfig() (*config.AppConfig, error) {
	if cfgPath != "" {
		return config.Load(cfgPath)
	}
	cfg, _, err := config.LoadDefault()
	return cfg, err
}

// newApp assembles the session. The chat backend is only constructed when
// needLLM is set, so search and extractive summaries work without an API key.
func newApp(cmd *cobra.Command, cfg *config.AppConfig, logOut io.Writer, needLLM bool) (*app, error) {
	if verbose {
		cfg.Log.Level = "debug"
	}
	if logOut == nil {
		logOut = cmd.ErrOrStderr()
	}
	log := logging.New(cfg.Log, logOut)

	var emb embedding.Embedder
	switch cfg.Embedder.Type {
	case "tfidf":
		emb = tfidf.NewEmbedder()
	case "openai":
		client, err := openai.NewClient(openai.Config{
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
			Model:     cfg.Embedder.OpenAI.Model,
			Timeout:   time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
			BatchSize: cfg.Embedder.OpenAI.BatchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		emb = client
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}

	var ch domain.Chunker
	switch cfg.Chunker.Type {
	case "boundary":
		ch = chunker.NewBoundaryChunker(cfg.Chunker.Size, cfg.Chunker.Overlap)
	case "sentence":
		ch = chunker.NewSentenceChunker(cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences)
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Chunker.Type)
	}

	var st vectorstore.Storage
	switch cfg.VectorStore.Type {
	case "memory":
		st = memory.NewStorage()
	case "qdrant":
		q := cfg.VectorStore.Qdrant
		st = qdrant.NewStorage(qdrant.Config{
			URL:        q.URL,
			APIKey:     os.Getenv(q.APIKeyEnv),
			Collection: q.Collection,
			Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
		})
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}

	var client llm.Client
	if needLLM {
		c, err := llm.NewOpenAI(llm.OpenAIConfig{
			BaseURL:   cfg.LLM.BaseURL,
			APIKeyEnv: cfg.LLM.APIKeyEnv,
			Timeout:   time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("llm init failed: %w", err)
		}
		client = c
	}

	var sum domain.Summarizer
	switch cfg.Summarizer.Type {
	case "hierarchical":
		if client != nil {
			sum = summarizer.NewHierarchicalSummarizer(client, summarizer.HierarchicalConfig{
				Model:            cfg.LLM.Model,
				VisionModel:      cfg.LLM.VisionModel,
				GroupSize:        cfg.Summarizer.GroupSize,
				GroupMaxChars:    cfg.Summarizer.GroupMaxChars,
				ShortDocMaxChars: cfg.Summarizer.ShortDocMaxChars,
				Concurrency:      cfg.Summarizer.Concurrency,
				Logger:           &log,
			})
		}
	case "frequency":
		sum = summarizer.NewFrequencySummarizer(cfg.Summarizer.MaxSentences)
	default:
		return nil, fmt.Errorf("unknown summarizer: %s", cfg.Summarizer.Type)
	}

	var ans *answer.Answerer
	if client != nil {
		ans = answer.New(client, answer.Config{
			Model:       cfg.LLM.Model,
			VisionModel: cfg.LLM.VisionModel,
			Temperature: cfg.Answer.Temperature,
			MaxTokens:   cfg.Answer.MaxTokens,
			Logger:      &log,
		})
	}

	batch := 0
	if cfg.Embedder.OpenAI != nil {
		batch = cfg.Embedder.OpenAI.BatchSize
	}
	svc := service.NewRAGService(service.Options{
		Extractor:  extractor.New(extractor.Config{Logger: &log}),
		Chunker:    ch,
		Embedder:   emb,
		Store:      st,
		Summarizer: sum,
		Answerer:   ans,
		TopK:       cfg.Answer.TopK,
		BatchSize:  batch,
		UseHistory: cfg.Answer.UseHistory,
		Logger:     &log,
	})
	return &app{log: log, svc: svc}, nil
}
