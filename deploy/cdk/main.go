package main

import (
	"os"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/jsii-runtime-go"
)

func main() {
	defer jsii.Close()

	app := awscdk.NewApp(nil)
	cfg := DefaultConfig()

	if name := os.Getenv("REHYDRATE_TABLE_NAME"); name != "" {
		cfg.TableName = name
	}
	if bucket := os.Getenv("REHYDRATE_DEFAULT_BUCKET"); bucket != "" {
		cfg.DefaultBucket = bucket
	}
	if tier := os.Getenv("REHYDRATE_DEFAULT_TIER"); tier != "" {
		cfg.DefaultTier = tier
	}
	if days := os.Getenv("REHYDRATE_RESTORE_DAYS"); days != "" {
		cfg.RestoreDays = days
	}
	cfg.DestroyOnDelete = os.Getenv("REHYDRATE_DESTROY_ON_DELETE") == "true"

	stackName := "RehydrateStack"
	if name := os.Getenv("REHYDRATE_STACK_NAME"); name != "" {
		stackName = name
	}

	NewRehydrateStack(app, stackName, cfg)
	app.Synth(nil)
}
