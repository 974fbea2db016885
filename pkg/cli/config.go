package cli

import (
	"context"
	"io"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/mnemo/pkg/adapter"
	"github.com/m-mizutani/mnemo/pkg/model"
	"github.com/m-mizutani/mnemo/pkg/prompt"
	"github.com/m-mizutani/mnemo/pkg/repository"
	"github.com/m-mizutani/mnemo/pkg/usecase/chat"
	"github.com/m-mizutani/mnemo/pkg/usecase/consolidate"
	"github.com/m-mizutani/mnemo/pkg/usecase/retrieval"
	"github.com/m-mizutani/mnemo/pkg/usecase/session"
	"github.com/m-mizutani/mnemo/pkg/utils/logging"
	"github.com/urfave/cli/v3"
	"google.golang.org/api/option"
	"gopkg.in/yaml.v3"
)

const (
	backendFirestore = "firestore"
	backendLocal     = "local"

	providerGemini = "gemini"
	providerOllama = "ollama"
	providerOpenAI = "openai"

	embeddingCacheTTL = time.Hour
	maxTurnsLimit     = 100
)

// config holds configuration values
type config struct {
	// Store
	backend     string
	project     string
	database    string
	credentials string
	sqlitePath  string
	chromemPath string

	// LLM
	provider            string
	geminiProject       string
	geminiLocation      string
	generationModel     string
	embeddingModel      string
	embeddingDimensions int64
	ollamaHost          string
	openaiAPIKey        string
	openaiBaseURL       string

	// Retrieval
	memoryIndex  string
	passageIndex string
	topK         int64
	maxTurns     int64
	timezone     string

	// Resilience
	rpcTimeout         time.Duration
	rpcAttempts        int64
	embeddingCacheSize int64

	// Files
	configPath    string
	summaryPrompt string

	// Logging
	logLevel  string
	logFormat string

	firestoreClient *firestore.Client
	index           adapter.VectorIndex
	gen             adapter.Generator
	emb             adapter.Embedder
	closers         []func() error
}

// globalFlags returns store, file and logging flags shared by every command
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "Storage backend (firestore, local)",
			Value:       backendFirestore,
			Sources:     cli.EnvVars("MNEMO_BACKEND"),
			Destination: &cfg.backend,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("MNEMO_PROJECT", "GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("MNEMO_DATABASE", "FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "credentials",
			Usage:       "Path to a Google Cloud service account key file",
			Sources:     cli.EnvVars("MNEMO_CREDENTIALS"),
			Destination: &cfg.credentials,
		},
		&cli.StringFlag{
			Name:        "sqlite-path",
			Usage:       "SQLite database file of the local backend",
			Value:       "mnemo.db",
			Sources:     cli.EnvVars("MNEMO_SQLITE_PATH"),
			Destination: &cfg.sqlitePath,
		},
		&cli.StringFlag{
			Name:        "chromem-path",
			Usage:       "Directory of the local vector index. Kept in memory when empty",
			Value:       "mnemo.index",
			Sources:     cli.EnvVars("MNEMO_CHROMEM_PATH"),
			Destination: &cfg.chromemPath,
		},
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "YAML file with decoding parameters",
			Sources:     cli.EnvVars("MNEMO_CONFIG"),
			Destination: &cfg.configPath,
		},
		&cli.StringFlag{
			Name:        "summary-prompt",
			Usage:       "YAML file replacing the built-in summary prompt template",
			Sources:     cli.EnvVars("MNEMO_SUMMARY_PROMPT"),
			Destination: &cfg.summaryPrompt,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("MNEMO_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       string(logging.FormatConsole),
			Sources:     cli.EnvVars("MNEMO_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "provider",
			Usage:       "LLM provider (gemini, ollama, openai)",
			Value:       providerGemini,
			Sources:     cli.EnvVars("MNEMO_PROVIDER"),
			Destination: &cfg.provider,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("MNEMO_GEMINI_PROJECT", "GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("MNEMO_GEMINI_LOCATION", "GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "generation-model",
			Usage:       "Text generation model. Provider default when empty",
			Sources:     cli.EnvVars("MNEMO_GENERATION_MODEL"),
			Destination: &cfg.generationModel,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Embedding model. Provider default when empty",
			Sources:     cli.EnvVars("MNEMO_EMBEDDING_MODEL"),
			Destination: &cfg.embeddingModel,
		},
		&cli.IntFlag{
			Name:        "embedding-dimensions",
			Usage:       "Embedding vector size (gemini, openai). Provider default when 0",
			Sources:     cli.EnvVars("MNEMO_EMBEDDING_DIMENSIONS"),
			Destination: &cfg.embeddingDimensions,
		},
		&cli.StringFlag{
			Name:        "ollama-host",
			Usage:       "Ollama server URL",
			Value:       "http://localhost:11434",
			Sources:     cli.EnvVars("MNEMO_OLLAMA_HOST", "OLLAMA_HOST"),
			Destination: &cfg.ollamaHost,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "OpenAI API key",
			Sources:     cli.EnvVars("MNEMO_OPENAI_API_KEY", "OPENAI_API_KEY"),
			Destination: &cfg.openaiAPIKey,
		},
		&cli.StringFlag{
			Name:        "openai-base-url",
			Usage:       "Base URL of an OpenAI compatible API",
			Sources:     cli.EnvVars("MNEMO_OPENAI_BASE_URL"),
			Destination: &cfg.openaiBaseURL,
		},
		&cli.DurationFlag{
			Name:        "rpc-timeout",
			Usage:       "Timeout of one call to an external service",
			Value:       30 * time.Second,
			Sources:     cli.EnvVars("MNEMO_RPC_TIMEOUT"),
			Destination: &cfg.rpcTimeout,
		},
		&cli.IntFlag{
			Name:        "rpc-attempts",
			Usage:       "Maximum attempts of a call failing with a transient error",
			Value:       3,
			Sources:     cli.EnvVars("MNEMO_RPC_ATTEMPTS"),
			Destination: &cfg.rpcAttempts,
		},
		&cli.IntFlag{
			Name:        "embedding-cache-size",
			Usage:       "Number of query embeddings kept in memory. Disabled when 0",
			Value:       256,
			Sources:     cli.EnvVars("MNEMO_EMBEDDING_CACHE_SIZE"),
			Destination: &cfg.embeddingCacheSize,
		},
	}
}

// retrievalFlags returns flags for history and memory lookup
func retrievalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "memory-index",
			Usage:       "Vector index of consolidated conversations",
			Value:       consolidate.DefaultIndex,
			Sources:     cli.EnvVars("MNEMO_MEMORY_INDEX"),
			Destination: &cfg.memoryIndex,
		},
		&cli.StringFlag{
			Name:        "passage-index",
			Usage:       "Vector index of verified passages",
			Value:       retrieval.DefaultPassageIndex,
			Sources:     cli.EnvVars("MNEMO_PASSAGE_INDEX"),
			Destination: &cfg.passageIndex,
		},
		&cli.IntFlag{
			Name:        "top-k",
			Usage:       "Number of hits retrieved per query",
			Value:       retrieval.DefaultTopK,
			Sources:     cli.EnvVars("MNEMO_TOP_K"),
			Destination: &cfg.topK,
		},
		&cli.IntFlag{
			Name:        "max-turns",
			Usage:       "Number of recent turns shown to the model",
			Value:       chat.DefaultMaxTurns,
			Sources:     cli.EnvVars("MNEMO_MAX_TURNS"),
			Destination: &cfg.maxTurns,
		},
		&cli.StringFlag{
			Name:        "timezone",
			Usage:       "Time zone of past conversation timestamps",
			Value:       "UTC",
			Sources:     cli.EnvVars("MNEMO_TIMEZONE", "TZ"),
			Destination: &cfg.timezone,
		},
	}
}

// decodingConfig holds decoding parameters per call site
type decodingConfig struct {
	Chat    model.DecodingParams `yaml:"chat"`
	Passage model.DecodingParams `yaml:"passage"`
	Summary model.DecodingParams `yaml:"summary"`
}

// fileConfig is the content of the --config file
type fileConfig struct {
	Decoding decodingConfig `yaml:"decoding"`
}

func defaultFileConfig() *fileConfig {
	return &fileConfig{
		Decoding: decodingConfig{
			Chat:    model.ChatDecoding(),
			Passage: model.PassageDecoding(),
			Summary: model.SummaryDecoding(),
		},
	}
}

// Validate checks every decoding parameter set
func (x *fileConfig) Validate() error {
	sites := map[string]model.DecodingParams{
		"chat":    x.Decoding.Chat,
		"passage": x.Decoding.Passage,
		"summary": x.Decoding.Summary,
	}
	for site, params := range sites {
		if err := params.Validate(); err != nil {
			return goerr.Wrap(err, "invalid decoding parameters", goerr.V("site", site))
		}
	}
	return nil
}

// parseFileConfig overlays data on the default configuration
func parseFileConfig(data []byte) (*fileConfig, error) {
	fc := defaultFileConfig()
	if err := yaml.Unmarshal(data, fc); err != nil {
		return nil, goerr.Wrap(err, "failed to parse config")
	}
	if err := fc.Validate(); err != nil {
		return nil, err
	}
	return fc, nil
}

// ParseFileConfigForTest exposes parseFileConfig for testing
func ParseFileConfigForTest(data []byte) (chatParams, passageParams, summaryParams model.DecodingParams, err error) {
	fc, err := parseFileConfig(data)
	if err != nil {
		return model.DecodingParams{}, model.DecodingParams{}, model.DecodingParams{}, err
	}
	return fc.Decoding.Chat, fc.Decoding.Passage, fc.Decoding.Summary, nil
}

func (cfg *config) fileConfig() (*fileConfig, error) {
	if cfg.configPath == "" {
		return defaultFileConfig(), nil
	}

	data, err := os.ReadFile(cfg.configPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read config", goerr.V("path", cfg.configPath))
	}
	fc, err := parseFileConfig(data)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load config", goerr.V("path", cfg.configPath))
	}
	return fc, nil
}

func (cfg *config) summaryTemplate() (*prompt.SummaryTemplate, error) {
	if cfg.summaryPrompt == "" {
		return prompt.DefaultSummary(), nil
	}
	return prompt.LoadSummary(cfg.summaryPrompt)
}

// setupLogger attaches a logger built from the logging flags to ctx
func (cfg *config) setupLogger(ctx context.Context, w io.Writer) context.Context {
	if w == nil {
		w = os.Stderr
	}
	logger := logging.NewWithFormat(cfg.logLevel, logging.Format(cfg.logFormat), w)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

// close releases every client opened by the newXxx constructors
func (cfg *config) close(ctx context.Context) {
	for i := len(cfg.closers) - 1; i >= 0; i-- {
		if err := cfg.closers[i](); err != nil {
			logging.From(ctx).Warn("failed to close client", "error", err)
		}
	}
	cfg.closers = nil
	cfg.firestoreClient = nil
	cfg.index = nil
}

// newFirestoreClient opens the Firestore client once and shares it between constructors
func (cfg *config) newFirestoreClient(ctx context.Context) (*firestore.Client, error) {
	if cfg.firestoreClient != nil {
		return cfg.firestoreClient, nil
	}
	if cfg.project == "" {
		return nil, goerr.New("project is required")
	}
	if cfg.database == "" {
		return nil, goerr.New("database is required")
	}

	var opts []option.ClientOption
	if cfg.credentials != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.credentials))
	}

	client, err := firestore.NewClientWithDatabase(ctx, cfg.project, cfg.database, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", cfg.project),
			goerr.V("database", cfg.database))
	}

	cfg.firestoreClient = client
	cfg.closers = append(cfg.closers, client.Close)
	return client, nil
}

// newRepository creates a new repository instance
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	switch cfg.backend {
	case backendFirestore:
		client, err := cfg.newFirestoreClient(ctx)
		if err != nil {
			return nil, err
		}
		return repository.NewFirestore(client), nil

	case backendLocal:
		repo, err := repository.NewSQLite(ctx, cfg.sqlitePath)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create repository")
		}
		cfg.closers = append(cfg.closers, repo.Close)
		return repo, nil

	default:
		return nil, goerr.New("unknown backend", goerr.V("backend", cfg.backend))
	}
}

// newIndex creates the vector index of the configured backend
func (cfg *config) newIndex(ctx context.Context) (adapter.VectorIndex, error) {
	if cfg.index != nil {
		return cfg.index, nil
	}

	var idx adapter.VectorIndex
	switch cfg.backend {
	case backendFirestore:
		client, err := cfg.newFirestoreClient(ctx)
		if err != nil {
			return nil, err
		}
		idx = adapter.NewFirestoreIndex(client)

	case backendLocal:
		chromemIdx, err := adapter.NewChromemIndex(cfg.chromemPath)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create vector index")
		}
		idx = chromemIdx

	default:
		return nil, goerr.New("unknown backend", goerr.V("backend", cfg.backend))
	}

	cfg.index = adapter.NewRetryIndex(idx, cfg.retryPolicy())
	return cfg.index, nil
}

func (cfg *config) retryPolicy() adapter.RetryPolicy {
	policy := adapter.DefaultRetryPolicy()
	if cfg.rpcTimeout > 0 {
		policy.Timeout = cfg.rpcTimeout
	}
	if cfg.rpcAttempts > 0 {
		policy.MaxAttempts = int(cfg.rpcAttempts)
	}
	return policy
}

type llm interface {
	adapter.Generator
	adapter.Embedder
}

func (cfg *config) newLLM(ctx context.Context) (llm, error) {
	switch cfg.provider {
	case providerGemini:
		if cfg.geminiProject == "" {
			return nil, goerr.New("gemini-project is required")
		}
		if cfg.geminiLocation == "" {
			return nil, goerr.New("gemini-location is required")
		}
		var opts []adapter.GeminiOption
		if cfg.generationModel != "" {
			opts = append(opts, adapter.WithGenerativeModel(cfg.generationModel))
		}
		if cfg.embeddingModel != "" {
			opts = append(opts, adapter.WithEmbeddingModel(cfg.embeddingModel))
		}
		if cfg.embeddingDimensions > 0 {
			opts = append(opts, adapter.WithEmbeddingDimensions(int(cfg.embeddingDimensions)))
		}
		return adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, opts...)

	case providerOllama:
		var opts []adapter.OllamaOption
		if cfg.generationModel != "" {
			opts = append(opts, adapter.WithOllamaGenerativeModel(cfg.generationModel))
		}
		if cfg.embeddingModel != "" {
			opts = append(opts, adapter.WithOllamaEmbeddingModel(cfg.embeddingModel))
		}
		return adapter.NewOllama(cfg.ollamaHost, opts...)

	case providerOpenAI:
		if cfg.openaiAPIKey == "" && cfg.openaiBaseURL == "" {
			return nil, goerr.New("openai-api-key is required")
		}
		var opts []adapter.OpenAIOption
		if cfg.generationModel != "" {
			opts = append(opts, adapter.WithOpenAIGenerativeModel(cfg.generationModel))
		}
		if cfg.embeddingModel != "" {
			opts = append(opts, adapter.WithOpenAIEmbeddingModel(cfg.embeddingModel))
		}
		if cfg.embeddingDimensions > 0 {
			opts = append(opts, adapter.WithOpenAIEmbeddingDimensions(int(cfg.embeddingDimensions)))
		}
		return adapter.NewOpenAI(cfg.openaiAPIKey, cfg.openaiBaseURL, opts...), nil

	default:
		return nil, goerr.New("unknown provider", goerr.V("provider", cfg.provider))
	}
}

// newModels creates the generator and embedder with retries and the query embedding cache
func (cfg *config) newModels(ctx context.Context) (adapter.Generator, adapter.Embedder, error) {
	if cfg.gen != nil {
		return cfg.gen, cfg.emb, nil
	}

	raw, err := cfg.newLLM(ctx)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to create LLM client", goerr.V("provider", cfg.provider))
	}

	policy := cfg.retryPolicy()
	cfg.gen = adapter.NewRetryGenerator(raw, policy)
	cfg.emb = adapter.NewCachedEmbedder(
		adapter.NewRetryEmbedder(raw, policy),
		int(cfg.embeddingCacheSize),
		embeddingCacheTTL,
	)
	return cfg.gen, cfg.emb, nil
}

// newStorage creates a new Storage adapter instance
func (cfg *config) newStorage(ctx context.Context, bucketName, prefix string) (adapter.Storage, error) {
	if bucketName == "" {
		return nil, goerr.New("bucket name is required")
	}

	storage, err := adapter.NewStorage(ctx, bucketName, prefix)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return storage, nil
}

func (cfg *config) location() (*time.Location, error) {
	if cfg.timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(cfg.timezone)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid timezone", goerr.V("timezone", cfg.timezone))
	}
	return loc, nil
}

// services bundles the use cases a command works with
type services struct {
	repo       repository.Repository
	sessions   *session.UseCase
	chat       *chat.UseCase
	dispatcher *consolidate.Dispatcher
}

// close waits for queued consolidations
func (s *services) close() {
	if s.dispatcher != nil {
		s.dispatcher.Close()
	}
}

// newConsolidation creates the memory consolidation use case
func (cfg *config) newConsolidation(ctx context.Context, repo repository.Repository) (*consolidate.UseCase, error) {
	fc, err := cfg.fileConfig()
	if err != nil {
		return nil, err
	}
	tmpl, err := cfg.summaryTemplate()
	if err != nil {
		return nil, err
	}
	gen, emb, err := cfg.newModels(ctx)
	if err != nil {
		return nil, err
	}
	idx, err := cfg.newIndex(ctx)
	if err != nil {
		return nil, err
	}

	return consolidate.New(repo, gen, emb, idx,
		consolidate.WithIndex(cfg.memoryIndex),
		consolidate.WithTemplate(tmpl),
		consolidate.WithDecoding(fc.Decoding.Summary),
	), nil
}

// newSessions creates the session use case. The local backend has no change feed, so ended
// sessions are consolidated in process.
func (cfg *config) newSessions(ctx context.Context, repo repository.Repository, opts ...session.Option) (*session.UseCase, *consolidate.Dispatcher, error) {
	if cfg.backend != backendLocal {
		return session.New(repo, opts...), nil, nil
	}

	uc, err := cfg.newConsolidation(ctx, repo)
	if err != nil {
		return nil, nil, err
	}
	dispatcher := consolidate.NewDispatcher(context.WithoutCancel(ctx), uc, 1, 16)
	opts = append(opts, session.WithPublisher(dispatcher))
	return session.New(repo, opts...), dispatcher, nil
}

// newServices wires every use case needed to answer queries
func (cfg *config) newServices(ctx context.Context) (*services, error) {
	if cfg.maxTurns < 1 || cfg.maxTurns > maxTurnsLimit {
		return nil, goerr.New("max-turns must be between 1 and 100", goerr.V("max_turns", cfg.maxTurns))
	}
	if cfg.topK < 1 {
		return nil, goerr.New("top-k must be positive", goerr.V("top_k", cfg.topK))
	}

	fc, err := cfg.fileConfig()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.location()
	if err != nil {
		return nil, err
	}

	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, err
	}
	gen, emb, err := cfg.newModels(ctx)
	if err != nil {
		return nil, err
	}
	idx, err := cfg.newIndex(ctx)
	if err != nil {
		return nil, err
	}

	sessions, dispatcher, err := cfg.newSessions(ctx, repo)
	if err != nil {
		return nil, err
	}

	retriever := retrieval.New(emb, idx, gen,
		retrieval.WithMemoryIndex(cfg.memoryIndex),
		retrieval.WithPassageIndex(cfg.passageIndex),
		retrieval.WithTopK(int(cfg.topK)),
		retrieval.WithLocation(loc),
		retrieval.WithPassageDecoding(fc.Decoding.Passage),
	)

	chatUC := chat.New(sessions, retriever, gen,
		chat.WithMaxTurns(int(cfg.maxTurns)),
		chat.WithDecoding(fc.Decoding.Chat),
	)

	return &services{
		repo:       repo,
		sessions:   sessions,
		chat:       chatUC,
		dispatcher: dispatcher,
	}, nil
}
