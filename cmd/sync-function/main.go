// Command sync-function is the Lambda function running one sync pass per invocation.
package main

import (
	"context"
	"encoding/json"

	"canvasdatasync/config"
	"canvasdatasync/controller"
	"canvasdatasync/dispatch"
	"canvasdatasync/source"
	"canvasdatasync/target"
	"canvasdatasync/utils"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"
)

var log = &utils.Logger

func handle(ctx context.Context, event json.RawMessage) (controller.Summary, error) {
	// configuration is read on every invocation so environment changes apply to the next pass
	conf, err := config.Load(ctx, config.LoadOptions{
		Secrets:              config.LazySecretsManager{},
		RequireFetchFunction: true,
	})
	if err != nil {
		return controller.Summary{}, err
	}
	utils.InitLogger(utils.LogOptions{JSON: true, Level: conf.LogLevel})

	awsConfig, err := config.LoadAWSConfig(ctx, conf)
	if err != nil {
		return controller.Summary{}, err
	}
	api, err := source.NewCanvasDataAPI(conf.APIBaseURL, conf.APIKey, conf.APISecret, nil)
	if err != nil {
		return controller.Summary{}, err
	}
	lambdaClient := awslambda.NewFromConfig(awsConfig)

	c := &controller.Controller{
		Settings:   controller.Settings{Bucket: conf.S3Bucket, Prefix: conf.S3Prefix, DryRun: conf.DryRun},
		Manifest:   api,
		Mirror:     target.NewS3Mirror(s3.NewFromConfig(awsConfig), conf.S3Bucket, conf.S3Prefix),
		Dispatcher: dispatch.NewLambdaDispatcher(lambdaClient, conf.FetchFunctionName),
		Reinvoker:  dispatch.NewLambdaReinvoker(lambdaClient, lambdacontext.FunctionName),
		Catalog: target.NewGlueCatalog(glue.NewFromConfig(awsConfig), conf.DatabaseName,
			conf.S3Bucket, conf.S3Prefix),
		Notifier: controller.NewSNSNotifier(sns.NewFromConfig(awsConfig), conf.SNSTopic),
	}
	summary, err := c.Run(ctx, event, controller.ContextDeadline(ctx))
	if err != nil {
		log.Error("Sync pass failed", zap.Error(err))
		return controller.Summary{}, err
	}
	return summary, nil
}

func main() {
	utils.InitLogger(utils.LogOptions{JSON: true})
	lambda.Start(handle)
}
