package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPrefix every mirrored object lives under this key prefix
	DefaultPrefix = "raw_files/"
	// DefaultDatabase the Glue database receiving the table definitions
	DefaultDatabase = "canvasdata"
	// DefaultAPIBaseURL the Canvas Data API endpoint
	DefaultAPIBaseURL = "https://api.inshosteddata.com"
)

// ErrMissing is returned (wrapped) when a required configuration entry is absent.
var ErrMissing = errors.New("missing required configuration")

// Config represents the application configuration defined through various sources
// such as environment variables, a YAML file, AWS Secrets Manager or command line flags.
type Config struct {

	// S3Bucket the bucket holding the mirrored files (required)
	S3Bucket string `yaml:"s3_bucket"`

	// S3Prefix the key prefix under which all mirrored files are stored, always ending with "/"
	S3Prefix string `yaml:"s3_prefix"`

	// SNSTopic the ARN of the topic receiving the pass summary (required)
	SNSTopic string `yaml:"sns_topic"`

	// FetchFunctionName the Lambda function downloading one file; required when running inside Lambda
	FetchFunctionName string `yaml:"fetch_function_name"`

	// DatabaseName the Glue catalog database
	DatabaseName string `yaml:"database_name"`

	// APISecretID the id of a Secrets Manager secret holding {"api_key": ..., "api_secret": ...}
	APISecretID string `yaml:"api_sm_id"`

	// APIKey and APISecret the Canvas Data API credentials, read directly when no secret id is given
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`

	// APIBaseURL the Canvas Data API endpoint
	APIBaseURL string `yaml:"api_base_url"`

	// DryRun disables all mutating calls (dispatch, delete, catalog writes)
	DryRun bool `yaml:"dry_run"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
	LogFile  string `yaml:"log_file"`

	AWSRegion    string `yaml:"aws_region"`
	AWSAccessKey string `yaml:"aws_access_key_id"`
	AWSSecretKey string `yaml:"aws_secret_access_key"`

	// Schedule the cron expression starting passes in the long-running mode
	Schedule string `yaml:"schedule"`

	// PassTimeout the wall-clock budget of one pass in the long-running mode
	PassTimeout time.Duration `yaml:"pass_timeout"`

	// LocalWorkers the number of in-process download workers in the long-running mode
	LocalWorkers int `yaml:"local_workers"`

	// LocalQueueSize the capacity of the in-process download queue
	LocalQueueSize int `yaml:"local_queue_size"`

	// FetchRate the maximum number of downloads started per second by the in-process workers
	FetchRate float64 `yaml:"fetch_rate"`

	// ConfigFile an optional YAML file with any of the settings above
	ConfigFile string `yaml:"-"`
}

// SecretGetter returns the string value of a secret.
type SecretGetter interface {
	GetSecretString(ctx context.Context, secretID string) (string, error)
}

// LoadOptions controls where Load reads its values from.
type LoadOptions struct {
	// Getenv defaults to os.Getenv
	Getenv func(string) string
	// Secrets resolves api_sm_id; required only when api_sm_id is set
	Secrets SecretGetter
	// Overrides non-zero fields (command line flags) win over every other source
	Overrides *Config
	// RequireFetchFunction makes fetch_function_name mandatory (Lambda dispatch)
	RequireFetchFunction bool
}

// Load builds the configuration of one pass. It fails before any side effect when a required
// entry is missing or the credentials secret is malformed.
func Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	c := &Config{}
	// Load configuration from various sources (in order of precedence)
	if err := c.loadFromEnv(opts.Getenv); err != nil {
		return nil, err
	}
	if opts.Overrides != nil && opts.Overrides.ConfigFile != "" {
		c.ConfigFile = opts.Overrides.ConfigFile
	}
	if err := c.loadFromFile(); err != nil {
		return nil, err
	}
	if opts.Overrides != nil {
		c.override(opts.Overrides) // some arguments can override other configuration sources
	}
	c.applyDefaults()
	if err := c.loadCredentials(ctx, opts.Secrets); err != nil {
		return nil, err
	}
	if err := c.validate(opts.RequireFetchFunction); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) loadFromEnv(getenv func(string) string) error {
	c.S3Bucket = getenv("s3_bucket")
	c.S3Prefix = getenv("s3_prefix")
	c.SNSTopic = getenv("sns_topic")
	c.FetchFunctionName = getenv("fetch_function_name")
	c.DatabaseName = getenv("database_name")
	c.APISecretID = getenv("api_sm_id")
	c.APIKey = getenv("api_key")
	c.APISecret = getenv("api_secret")
	c.APIBaseURL = getenv("api_base_url")
	c.DryRun = strings.EqualFold(strings.TrimSpace(getenv("dry_run")), "true")
	c.LogLevel = getenv("log_level")
	c.LogJSON = strings.EqualFold(strings.TrimSpace(getenv("log_json")), "true")
	c.LogFile = getenv("log_file")
	c.AWSRegion = getenv("aws_region")
	if c.AWSRegion == "" {
		c.AWSRegion = getenv("AWS_REGION")
	}
	c.AWSAccessKey = getenv("aws_access_key_id")
	c.AWSSecretKey = getenv("aws_secret_access_key")
	c.Schedule = getenv("schedule")
	c.ConfigFile = getenv("config_file")

	if v := getenv("pass_timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid value for pass_timeout: %w", err)
		}
		c.PassTimeout = d
	}
	if v := getenv("local_workers"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid value for local_workers: %w", err)
		}
		c.LocalWorkers = n
	}
	if v := getenv("local_queue_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid value for local_queue_size: %w", err)
		}
		c.LocalQueueSize = n
	}
	if v := getenv("fetch_rate"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid value for fetch_rate: %w", err)
		}
		c.FetchRate = f
	}
	return nil
}

// loadFromFile reads the optional YAML file; its non-zero values take precedence over the environment.
func (c *Config) loadFromFile() error {
	if c.ConfigFile == "" {
		return nil
	}
	content, err := os.ReadFile(c.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to read the config file '%s': %w", c.ConfigFile, err)
	}
	fileConfig := &Config{}
	if err := yaml.Unmarshal(content, fileConfig); err != nil {
		return fmt.Errorf("failed to parse YAML from the config file '%s': %w", c.ConfigFile, err)
	}
	c.override(fileConfig)
	return nil
}

func (c *Config) applyDefaults() {
	if c.S3Prefix == "" {
		c.S3Prefix = DefaultPrefix
	}
	if !strings.HasSuffix(c.S3Prefix, "/") {
		c.S3Prefix += "/"
	}
	if c.DatabaseName == "" {
		c.DatabaseName = DefaultDatabase
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = DefaultAPIBaseURL
	}
	if c.Schedule == "" {
		c.Schedule = "@every 6h"
	}
	if c.PassTimeout <= 0 {
		c.PassTimeout = 15 * time.Minute
	}
	if c.LocalWorkers <= 0 {
		c.LocalWorkers = 4
	}
	if c.LocalQueueSize <= 0 {
		c.LocalQueueSize = 10000
	}
	if c.FetchRate <= 0 {
		c.FetchRate = 5
	}
}

// apiCredentials the shape of the secret referenced by api_sm_id
type apiCredentials struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

// loadCredentials resolves the Canvas Data API key pair, preferring the secret when api_sm_id is set.
func (c *Config) loadCredentials(ctx context.Context, secrets SecretGetter) error {
	if c.APISecretID == "" {
		return nil
	}
	if secrets == nil {
		return fmt.Errorf("api_sm_id is set but no secrets client is available")
	}
	value, err := secrets.GetSecretString(ctx, c.APISecretID)
	if err != nil {
		return fmt.Errorf("failed to read secret '%s': %w", c.APISecretID, err)
	}
	var creds apiCredentials
	if err := json.Unmarshal([]byte(value), &creds); err != nil {
		return fmt.Errorf("malformed secret '%s': %w", c.APISecretID, err)
	}
	if creds.APIKey == "" || creds.APISecret == "" {
		return fmt.Errorf("malformed secret '%s': api_key and api_secret are required", c.APISecretID)
	}
	c.APIKey, c.APISecret = creds.APIKey, creds.APISecret
	return nil
}

func (c *Config) validate(requireFetchFunction bool) error {
	var missing []string
	if c.S3Bucket == "" {
		missing = append(missing, "s3_bucket")
	}
	if c.SNSTopic == "" {
		missing = append(missing, "sns_topic")
	}
	if requireFetchFunction && c.FetchFunctionName == "" {
		missing = append(missing, "fetch_function_name")
	}
	if c.APIKey == "" {
		missing = append(missing, "api_key")
	}
	if c.APISecret == "" {
		missing = append(missing, "api_secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}
	return nil
}

// LoadAWSConfig loads the AWS SDK configuration, allowing environment variables and shared config
// to supply anything not set explicitly.
func LoadAWSConfig(ctx context.Context, c *Config) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if c.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(c.AWSRegion))
	}
	if c.AWSAccessKey != "" && c.AWSSecretKey != "" {
		// Last parameter is session token, usually empty
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AWSAccessKey, c.AWSSecretKey, "")))
	}
	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return awsConfig, nil
}

// override updates the current Config instance's fields by overriding them with non-zero values
// from another Config instance.
func (c *Config) override(other *Config) {
	v := reflect.ValueOf(other).Elem()
	t := reflect.TypeOf(other).Elem()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// Skip unexported fields
		if !field.CanInterface() {
			continue
		}

		// Get the corresponding field in the original 'c' structure
		cField := reflect.ValueOf(c).Elem().FieldByName(fieldType.Name)

		// Check if the field exists and is settable
		if cField.IsValid() && cField.CanSet() {
			switch field.Kind() {
			case reflect.String:
				if field.String() != "" {
					cField.Set(field)
				}
			case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
				if field.Int() != 0 {
					cField.Set(field)
				}
			case reflect.Float32, reflect.Float64:
				if field.Float() != 0 {
					cField.Set(field)
				}
			case reflect.Bool:
				if field.Bool() {
					cField.Set(field)
				}
			default:
				panic(fmt.Sprintf("unhandled configuration field kind %s", field.Kind()))
			}
		}
	}
}
