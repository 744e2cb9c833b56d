// Command fetch-function is the Lambda function copying one remote file into the bucket.
package main

import (
	"context"
	"os"

	"canvasdatasync/config"
	"canvasdatasync/target"
	"canvasdatasync/utils"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

var log = &utils.Logger

// fetcher is shared by warm invocations of the same instance
var fetcher *target.Fetcher

func handle(ctx context.Context, req target.FetchRequest) (target.FetchResult, error) {
	result, err := fetcher.Fetch(ctx, req)
	if err != nil {
		log.Error("Fetch failed", zap.String("key", req.Key), zap.Error(err))
		return target.FetchResult{}, err
	}
	return result, nil
}

func main() {
	utils.InitLogger(utils.LogOptions{JSON: true, Level: os.Getenv("log_level")})

	awsConfig, err := config.LoadAWSConfig(context.Background(), &config.Config{})
	if err != nil {
		log.Fatal("Failed to load the AWS configuration", zap.Error(err))
	}
	fetcher = target.NewFetcher(s3.NewFromConfig(awsConfig), nil)
	lambda.Start(handle)
}
