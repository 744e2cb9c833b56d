// Command canvasdata runs the Canvas Data sync outside of Lambda: single passes, a long-running
// scheduled mode, single downloads and a preview of the catalog definitions.
package main

import (
	"context"
	"fmt"
	"os"

	"canvasdatasync/config"
	"canvasdatasync/controller"
	"canvasdatasync/dispatch"
	"canvasdatasync/source"
	"canvasdatasync/target"
	"canvasdatasync/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// log a convenience wrapper to shorten code lines
var log = &utils.Logger

func main() {
	os.Exit(execute())
}

func execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// options the global flags; non-zero values override the environment and the config file
type options struct {
	overrides config.Config
	dev       bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:           "canvasdata",
		Short:         "Canvas Data sync",
		Long:          "Mirrors the Canvas Data dump files into S3 and registers them as Glue tables.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.overrides.ConfigFile, "config", "", "YAML configuration file")
	flags.StringVar(&opts.overrides.S3Bucket, "bucket", "", "target bucket (s3_bucket)")
	flags.StringVar(&opts.overrides.S3Prefix, "prefix", "", "key prefix of the mirrored files (s3_prefix)")
	flags.StringVar(&opts.overrides.SNSTopic, "sns-topic", "", "topic receiving the pass summary (sns_topic)")
	flags.StringVar(&opts.overrides.DatabaseName, "database", "", "Glue database (database_name)")
	flags.StringVar(&opts.overrides.FetchFunctionName, "fetch-function", "",
		"download through this Lambda function instead of in-process workers (fetch_function_name)")
	flags.StringVar(&opts.overrides.APIBaseURL, "api-url", "", "Canvas Data API endpoint (api_base_url)")
	flags.StringVar(&opts.overrides.AWSRegion, "region", "", "AWS region (aws_region)")
	flags.BoolVar(&opts.overrides.DryRun, "dry-run", false, "log what would change without changing anything")
	flags.StringVar(&opts.overrides.LogLevel, "log-level", "", "trace, debug, info, warn or error (log_level)")
	flags.StringVar(&opts.overrides.LogFile, "log-file", "", "write logs to this rotated file (log_file)")
	flags.BoolVar(&opts.overrides.LogJSON, "log-json", false, "JSON formatted logs (log_json)")
	flags.BoolVar(&opts.dev, "dev", false, "development log format")

	rootCmd.AddCommand(newSyncCmd(opts), newServeCmd(opts), newFetchCmd(opts), newSchemaCmd(opts))
	return rootCmd
}

// loadConfig reads the configuration and sets up the logger from it.
func (o *options) loadConfig(ctx context.Context) (*config.Config, error) {
	conf, err := config.Load(ctx, config.LoadOptions{
		Secrets:   config.LazySecretsManager{Region: o.overrides.AWSRegion},
		Overrides: &o.overrides,
	})
	if err != nil {
		return nil, err
	}
	o.initLogger(conf.LogLevel, conf.LogFile, conf.LogJSON)
	return conf, nil
}

func (o *options) initLogger(level string, file string, asJSON bool) {
	utils.InitLogger(utils.LogOptions{JSON: asJSON, Dev: o.dev, Level: level, File: file})
}

// services the collaborators of a pass built from one configuration
type services struct {
	conf      *config.Config
	awsConfig aws.Config
	s3Client  *s3.Client
	api       *source.CanvasDataAPI
	// local is set when downloads run in-process
	local *dispatch.LocalDispatcher
}

func newServices(ctx context.Context, conf *config.Config) (*services, error) {
	awsConfig, err := config.LoadAWSConfig(ctx, conf)
	if err != nil {
		return nil, err
	}
	api, err := source.NewCanvasDataAPI(conf.APIBaseURL, conf.APIKey, conf.APISecret, nil)
	if err != nil {
		return nil, err
	}
	return &services{conf: conf, awsConfig: awsConfig, s3Client: s3.NewFromConfig(awsConfig), api: api}, nil
}

// controller wires a controller. Downloads go to the fetch function when one is configured,
// to in-process workers otherwise; the caller starts and closes s.local.
func (s *services) controller(reinvoker dispatch.Reinvoker) *controller.Controller {
	var dispatcher dispatch.Dispatcher
	if s.conf.FetchFunctionName != "" {
		dispatcher = dispatch.NewLambdaDispatcher(awslambda.NewFromConfig(s.awsConfig), s.conf.FetchFunctionName)
	} else {
		s.local = dispatch.NewLocalDispatcher(target.NewFetcher(s.s3Client, nil),
			s.conf.LocalWorkers, s.conf.LocalQueueSize, s.conf.FetchRate)
		dispatcher = s.local
		log.Info("Downloading with in-process workers", zap.Int("workers", s.conf.LocalWorkers))
	}
	return &controller.Controller{
		Settings:   controller.Settings{Bucket: s.conf.S3Bucket, Prefix: s.conf.S3Prefix, DryRun: s.conf.DryRun},
		Manifest:   s.api,
		Mirror:     target.NewS3Mirror(s.s3Client, s.conf.S3Bucket, s.conf.S3Prefix),
		Dispatcher: dispatcher,
		Reinvoker:  reinvoker,
		Catalog: target.NewGlueCatalog(glue.NewFromConfig(s.awsConfig), s.conf.DatabaseName,
			s.conf.S3Bucket, s.conf.S3Prefix),
		Notifier: controller.NewSNSNotifier(sns.NewFromConfig(s.awsConfig), s.conf.SNSTopic),
	}
}

// closeLocal waits for the in-process downloads to finish and logs their outcome.
func (s *services) closeLocal() {
	if s.local == nil {
		return
	}
	if err := s.local.Close(); err != nil {
		log.Warn("In-process workers stopped with an error", zap.Error(err))
	}
	stats := s.local.Stats()
	log.Info("In-process downloads finished", zap.Int64("fetched", stats.Fetched),
		zap.Int64("skipped", stats.Skipped), zap.Int64("failed", stats.Failed))
}
