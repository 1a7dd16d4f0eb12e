package main

// StackConfig holds configuration for the rehydrate CDK stack.
type StackConfig struct {
	TableName        string
	MemorySize       float64
	Timeout          float64
	LambdaDistDir    string
	DefaultBucket    string
	DefaultTier      string
	RestoreDays      string
	SweepRateMinutes float64
	LogRetentionDays float64
	DestroyOnDelete  bool
}

// DefaultConfig returns a StackConfig with sensible defaults. The Lambda
// timeout is generous because the listener runs copies inside the invocation.
func DefaultConfig() StackConfig {
	return StackConfig{
		TableName:        "rehydrate",
		MemorySize:       256,
		Timeout:          300,
		LambdaDistDir:    "../dist/lambda",
		DefaultTier:      "standard",
		SweepRateMinutes: 15,
		LogRetentionDays: 7,
	}
}
