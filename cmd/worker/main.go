package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fiapx/fiapx-analysis-service/internal/analysis"
	"github.com/fiapx/fiapx-analysis-service/internal/domain/port"
	"github.com/fiapx/fiapx-analysis-service/internal/infra/config"
	"github.com/fiapx/fiapx-analysis-service/internal/infra/email"
	"github.com/fiapx/fiapx-analysis-service/internal/infra/ffmpeg"
	"github.com/fiapx/fiapx-analysis-service/internal/infra/inference"
	"github.com/fiapx/fiapx-analysis-service/internal/infra/metrics"
	miniostorage "github.com/fiapx/fiapx-analysis-service/internal/infra/minio"
	"github.com/fiapx/fiapx-analysis-service/internal/infra/postgres"
	"github.com/fiapx/fiapx-analysis-service/internal/infra/protect"
	"github.com/fiapx/fiapx-analysis-service/internal/infra/rabbitmq"
	"github.com/fiapx/fiapx-analysis-service/internal/infra/tracing"
	"github.com/fiapx/fiapx-analysis-service/internal/usecase"
	"github.com/fiapx/fiapx-analysis-service/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const serviceName = "fiapx-analysis-service"

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting " + serviceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if Jaeger unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint, serviceName)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(ctx)
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		log.Warn("migration warning", zap.Error(err))
	}

	// MinIO
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:        cfg.MinIOEndpoint,
		AccessKey:       cfg.MinIOAccessKey,
		SecretKey:       cfg.MinIOSecretKey,
		UseSSL:          cfg.MinIOUseSSL,
		UploadBucket:    cfg.MinIOUploadBucket,
		ProtectedBucket: cfg.MinIOProtectedBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")

	statusPub := rabbitmq.NewStatusPublisher(pub)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	// Analysis pipeline
	classifier := inference.Limit(inference.NewClient(inference.ClientConfig{
		URL:        cfg.InferenceURL,
		Model:      cfg.ModelName,
		Timeout:    cfg.InferenceTimeout,
		MaxRetries: cfg.InferenceMaxRetries,
	}, log), cfg.InferenceMaxConcurrency)
	decoder := ffmpeg.NewDecoder(cfg.FFmpegPath, cfg.FFprobePath, log)
	pipeline := analysis.NewPipeline(classifier, decoder, log, analysis.PipelineConfig{
		SampleFrames: cfg.VideoSampleFrames,
		ModelName:    cfg.ModelName,
	})

	var protector port.FileProtector
	if cfg.EncryptFiles {
		p, err := protect.NewProtector(protect.Config{
			Secret: cfg.EncryptionKey,
			Salt:   cfg.EncryptionSalt,
		}, log)
		fatalOnErr(err, "create file protector")
		protector = p
	}

	repo := postgres.NewAnalysisRepository(pool)
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	uc := usecase.NewAnalyzeMediaUseCase(
		repo, storage, pipeline, protector,
		statusPub, dlqPub, notifier,
		log,
		usecase.AnalyzeMediaConfig{
			TempDir:     cfg.TempDir,
			MaxRetries:  cfg.MaxRetries,
			MaxFileSize: cfg.MaxFileSize,
		},
	)

	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, log,
		metrics.ReadinessCheck{Name: "postgres", Check: pool.Ping},
		metrics.ReadinessCheck{Name: "rabbitmq", Check: func(context.Context) error {
			if rmqConn.IsClosed() {
				return amqp.ErrClosed
			}
			return nil
		}},
	)

	// Consumer (worker pool)
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQRequestQueue,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, uc.Execute, log)
	fatalOnErr(err, "create consumer")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info(serviceName+" started, consuming messages",
		zap.Bool("encrypt_files", cfg.EncryptFiles),
		zap.String("model", cfg.ModelName),
	)

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info(serviceName + " stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
