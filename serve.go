package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"sarthi/catalog"
	"sarthi/config"
	"sarthi/db"
	"sarthi/distress"
	"sarthi/reflection"
	"sarthi/router"
	"sarthi/tools"
	"sarthi/workers"
)

type ServeFlags struct {
	ConfigFlags
	Port      string
	NoWorkers bool
}

func (f *ServeFlags) BindFlags(fs *pflag.FlagSet) {
	f.ConfigFlags.BindFlags(fs)
	fs.StringVar(&f.Port, "port", "", "HTTP port override")
	fs.BoolVar(&f.NoWorkers, "no-workers", false, "Do not start the distress alert worker")
}

func NewServeCommand() *cobra.Command {
	f := &ServeFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reflection API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.Load()
			if err != nil {
				return errors.WithMessage(err, "could not load configuration")
			}
			if f.Port != "" {
				cfg.ApiPort = f.Port
			}
			return serve(cmd.Context(), cfg, !f.NoWorkers)
		},
	}
	f.BindFlags(cmd.Flags())
	return cmd
}

func serve(parent context.Context, cfg config.Configuration, withWorkers bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.FromConfig(cfg)
	if err != nil {
		return errors.WithMessage(err, "invalid workflow catalog")
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return errors.WithMessage(err, "could not connect to database")
	}
	defer database.Close()

	if err := db.Migrate(database, cat); err != nil {
		return errors.WithMessage(err, "could not migrate database")
	}

	classifier, closeClassifier, err := buildClassifier(ctx, cfg, database)
	if err != nil {
		return errors.WithMessage(err, "could not build distress classifier")
	}
	defer closeClassifier()

	svc := reflection.NewService(reflection.NewStore(database), cat, classifier, reflection.OptionsFromConfig(cfg))

	if withWorkers {
		workers.StartAlertProcessor(ctx, database, buildNotifier(cfg),
			time.Duration(cfg.Alerts.IntervalSeconds)*time.Second, cfg.Alerts.MaxAttempts)
	}

	if cfg.LogLevel != "debug" && cfg.LogLevel != "trace" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	router.Initialize(r, database, svc)

	srv := &http.Server{
		Addr:              ":" + cfg.ApiPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("Sarthi listening on :%s", cfg.ApiPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// buildClassifier returns a nil Classifier when screening is disabled. The
// returned func releases provider connections.
func buildClassifier(ctx context.Context, cfg config.Configuration, database *gorm.DB) (reflection.Classifier, func(), error) {
	noop := func() {}
	if !cfg.ClassifierEnabled() {
		log.Warn("distress classifier disabled, messages will be stored unclassified")
		return nil, noop, nil
	}
	cl := cfg.Classifier

	var (
		embedder distress.Embedder
		err      error
	)
	switch cl.Embedder {
	case config.EMBEDDER_GENAI:
		if cl.GenAIAPIKey == "" {
			return nil, noop, errors.New("GEMINI_API_KEY must be set for the genai embedder")
		}
		embedder, err = distress.NewGenAIEmbedder(ctx, cl.GenAIAPIKey, cl.EmbeddingModel)
		if err != nil {
			return nil, noop, err
		}
	default:
		if cl.OpenAIAPIKey == "" {
			return nil, noop, errors.New("OPENAI_API_KEY must be set for the openai embedder")
		}
		embedder = distress.NewOpenAIEmbedder(cl.OpenAIAPIKey, cl.EmbeddingModel)
	}

	var closers []func() error
	var index distress.Index
	switch cl.Index {
	case config.INDEX_DATABASE:
		index = distress.NewDBIndex(database)
	default:
		pc, err := distress.NewPineconeIndex(ctx, cl.PineconeAPIKey, cl.PineconeIndex)
		if err != nil {
			return nil, noop, err
		}
		closers = append(closers, pc.Close)
		index = pc
	}

	red, yellow := cfg.Thresholds()
	opts := distress.Options{
		Thresholds: distress.Thresholds{Red: red, Yellow: yellow},
		TopK:       cl.TopK,
		Namespace:  cl.Namespace,
		Timeout:    time.Duration(cl.TimeoutMs) * time.Millisecond,
		Model:      cl.EmbeddingModel,
	}
	if cfg.RedisURL != "" {
		cache, err := distress.NewRedisCache(cfg.RedisURL, time.Duration(cl.CacheTTLSeconds)*time.Second)
		if err != nil {
			log.WithError(err).Warn("invalid REDIS_URL, classification cache disabled")
		} else {
			opts.Cache = cache
			closers = append(closers, cache.Close)
		}
	}

	log.WithFields(log.Fields{
		"embedder":       cl.Embedder,
		"model":          cl.EmbeddingModel,
		"index":          cl.Index,
		"namespace":      cl.Namespace,
		"red":            red,
		"yellow":         yellow,
		"failure_policy": cl.FailurePolicy,
	}).Info("distress classifier ready")

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.WithError(err).Warn("closing classifier resource")
			}
		}
	}
	return distress.NewClassifier(embedder, index, opts), closeAll, nil
}

func buildNotifier(cfg config.Configuration) workers.Notifier {
	a := cfg.Alerts
	client := tools.WhatsAppClient{
		AccessToken:   a.AccessToken,
		ApiVersion:    a.ApiVersion,
		PhoneNumberID: a.PhoneNumberID,
	}
	if a.WhatsAppTo == "" || !client.Configured() {
		log.Warn("WhatsApp alerts not configured, distress alerts will only be logged")
		return workers.LogNotifier{}
	}
	to, err := tools.NormalizeWhatsAppTo(a.WhatsAppTo, a.CountryCode)
	if err != nil {
		log.WithError(err).Warn("invalid alerts.whatsapp_to, distress alerts will only be logged")
		return workers.LogNotifier{}
	}
	return workers.WhatsAppNotifier{Client: client, To: to}
}
