package main

import (
	"encoding/json"
	"fmt"
	"os"

	"canvasdatasync/config"
	"canvasdatasync/target"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"
)

func newFetchCmd(opts *options) *cobra.Command {
	var req target.FetchRequest
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Copy one URL into one object, the way a download worker does",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			opts.initLogger(opts.overrides.LogLevel, opts.overrides.LogFile, opts.overrides.LogJSON)
			if req.Bucket == "" {
				req.Bucket = opts.overrides.S3Bucket
			}

			awsConfig, err := config.LoadAWSConfig(ctx, &opts.overrides)
			if err != nil {
				return err
			}
			result, err := target.NewFetcher(s3.NewFromConfig(awsConfig), nil).Fetch(ctx, req)
			if err != nil {
				return err
			}
			b, err := json.Marshal(result)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(b))
			return nil
		},
	}
	cmd.Flags().StringVar(&req.FileURL, "url", "", "the file to download")
	cmd.Flags().StringVar(&req.Key, "key", "", "the object key to write")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}
