package main

import (
	"fmt"
	"os"
	"sort"

	"canvasdatasync/target"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newSchemaCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the table definitions the catalog would receive, as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			conf, err := opts.loadConfig(ctx)
			if err != nil {
				return err
			}
			svc, err := newServices(ctx, conf)
			if err != nil {
				return err
			}
			schema, err := svc.api.GetSchema(ctx)
			if err != nil {
				return err
			}

			definitions := make([]target.TableDefinition, 0, len(schema))
			for _, table := range schema {
				definitions = append(definitions, target.BuildTableDefinition(table, conf.S3Bucket, conf.S3Prefix))
			}
			sort.Slice(definitions, func(i, j int) bool { return definitions[i].Name < definitions[j].Name })

			encoder := yaml.NewEncoder(os.Stdout)
			encoder.SetIndent(2)
			if err := encoder.Encode(definitions); err != nil {
				return fmt.Errorf("failed to print the definitions: %w", err)
			}
			return encoder.Close()
		},
	}
}
