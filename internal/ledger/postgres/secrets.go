package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/frostline/rehydrate/pkg/types"
)

// SecretsAPI is the subset of the Secrets Manager client used to resolve
// database credentials.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// dbSecret is the credential shape of an RDS-managed secret. Accepts both
// "dbname" (RDS convention) and "database".
type dbSecret struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"dbname"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s dbSecret) name() string {
	if s.DBName != "" {
		return s.DBName
	}
	return s.Database
}

func (s dbSecret) dsn() string {
	port := s.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(s.Username, s.Password),
		Host:   fmt.Sprintf("%s:%d", s.Host, port),
		Path:   "/" + s.name(),
	}
	return u.String()
}

func resolveDSN(ctx context.Context, cfg *types.PostgresConfig) (string, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("loading AWS config: %w", err)
	}
	return dsnFromSecret(ctx, secretsmanager.NewFromConfig(awsCfg), cfg.SecretARN)
}

// dsnFromSecret fetches the secret and turns it into a connection string. The
// secret value is either a ready-made DSN or an RDS credential JSON object.
func dsnFromSecret(ctx context.Context, client SecretsAPI, arn string) (string, error) {
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(arn),
	})
	if err != nil {
		return "", fmt.Errorf("fetching secret: %w", err)
	}

	secret := aws.ToString(out.SecretString)
	if strings.HasPrefix(secret, "postgres://") || strings.HasPrefix(secret, "postgresql://") {
		return secret, nil
	}

	var creds dbSecret
	if err := json.Unmarshal([]byte(secret), &creds); err != nil {
		return "", fmt.Errorf("parsing database secret: %w", err)
	}
	if creds.Host == "" {
		return "", fmt.Errorf("database secret missing host")
	}
	return creds.dsn(), nil
}
