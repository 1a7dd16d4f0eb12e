package main

import (
	"path/filepath"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsdynamodb"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsevents"
	"github.com/aws/aws-cdk-go/awscdk/v2/awseventstargets"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambdaeventsources"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslogs"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssns"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssqs"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
)

func NewRehydrateStack(scope constructs.Construct, id string, cfg StackConfig) awscdk.Stack {
	stack := awscdk.NewStack(scope, &id, nil)

	// Ledger table. GSI1 serves source-location lookups for completion event
	// correlation, GSI2 serves per-status scans for the sweeper.
	table := awsdynamodb.NewTableV2(stack, jsii.String("Table"), &awsdynamodb.TablePropsV2{
		TableName: jsii.String(cfg.TableName),
		PartitionKey: &awsdynamodb.Attribute{
			Name: jsii.String("PK"),
			Type: awsdynamodb.AttributeType_STRING,
		},
		SortKey: &awsdynamodb.Attribute{
			Name: jsii.String("SK"),
			Type: awsdynamodb.AttributeType_STRING,
		},
		Billing:             awsdynamodb.Billing_OnDemand(nil),
		DynamoStream:        awsdynamodb.StreamViewType_NEW_IMAGE,
		TimeToLiveAttribute: jsii.String("ttl"),
		RemovalPolicy:       removalPolicy(cfg.DestroyOnDelete),
		GlobalSecondaryIndexes: &[]*awsdynamodb.GlobalSecondaryIndexPropsV2{
			{
				IndexName: jsii.String("GSI1"),
				PartitionKey: &awsdynamodb.Attribute{
					Name: jsii.String("GSI1PK"),
					Type: awsdynamodb.AttributeType_STRING,
				},
				SortKey: &awsdynamodb.Attribute{
					Name: jsii.String("GSI1SK"),
					Type: awsdynamodb.AttributeType_STRING,
				},
			},
			{
				IndexName: jsii.String("GSI2"),
				PartitionKey: &awsdynamodb.Attribute{
					Name: jsii.String("GSI2PK"),
					Type: awsdynamodb.AttributeType_STRING,
				},
				SortKey: &awsdynamodb.Attribute{
					Name: jsii.String("GSI2SK"),
					Type: awsdynamodb.AttributeType_STRING,
				},
			},
		},
	})

	// Intake and completion queues. Redrive dead-letters messages the
	// partial-batch handlers keep failing.
	queueTimeout := awscdk.Duration_Seconds(jsii.Number(cfg.Timeout * 6))
	makeQueue := func(name string) awssqs.Queue {
		dlq := awssqs.NewQueue(stack, jsii.String(name+"-dlq"), &awssqs.QueueProps{
			QueueName: jsii.String(cfg.TableName + "-" + name + "-dlq"),
		})
		return awssqs.NewQueue(stack, jsii.String(name+"-queue"), &awssqs.QueueProps{
			QueueName:         jsii.String(cfg.TableName + "-" + name),
			VisibilityTimeout: queueTimeout,
			DeadLetterQueue: &awssqs.DeadLetterQueue{
				MaxReceiveCount: jsii.Number(5),
				Queue:           dlq,
			},
		})
	}
	intakeQueue := makeQueue("intake")
	completionQueue := makeQueue("completion")

	// Topics: status changes for downstream consumers, alerts for operators.
	statusTopic := awssns.NewTopic(stack, jsii.String("StatusTopic"), &awssns.TopicProps{
		TopicName: jsii.String(cfg.TableName + "-status"),
	})
	alertTopic := awssns.NewTopic(stack, jsii.String("AlertTopic"), &awssns.TopicProps{
		TopicName: jsii.String(cfg.TableName + "-alerts"),
	})

	// Common Lambda props
	commonEnv := map[string]*string{
		"TABLE_NAME":      table.TableName(),
		"ALERT_TOPIC_ARN": alertTopic.TopicArn(),
		"DEFAULT_TIER":    jsii.String(cfg.DefaultTier),
	}
	if cfg.DefaultBucket != "" {
		commonEnv["DEFAULT_BUCKET"] = jsii.String(cfg.DefaultBucket)
	}
	if cfg.RestoreDays != "" {
		commonEnv["RESTORE_DAYS"] = jsii.String(cfg.RestoreDays)
	}

	timeout := awscdk.Duration_Seconds(jsii.Number(cfg.Timeout))
	memorySize := jsii.Number(cfg.MemorySize)
	logRetention := logRetentionDays(cfg.LogRetentionDays)

	makeFn := func(name string, env *map[string]*string) awslambda.Function {
		return awslambda.NewFunction(stack, jsii.String(name), &awslambda.FunctionProps{
			FunctionName: jsii.String(cfg.TableName + "-" + name),
			Runtime:      awslambda.Runtime_PROVIDED_AL2023(),
			Handler:      jsii.String("bootstrap"),
			Code:         awslambda.Code_FromAsset(jsii.String(filepath.Join(cfg.LambdaDistDir, name)), nil),
			Architecture: awslambda.Architecture_ARM_64(),
			MemorySize:   memorySize,
			Timeout:      timeout,
			Environment:  env,
			LogRetention: logRetention,
		})
	}

	intakeFn := makeFn("intake", &commonEnv)
	listenerFn := makeFn("listener", &commonEnv)
	sweeperFn := makeFn("sweeper", &commonEnv)
	statusRouterFn := makeFn("status-router", &map[string]*string{
		"STATUS_TOPIC_ARN": statusTopic.TopicArn(),
	})

	// IAM grants. Bucket names are per-request data, so archive access cannot
	// be scoped at deploy time.
	table.GrantReadWriteData(intakeFn)
	table.GrantReadWriteData(listenerFn)
	table.GrantReadWriteData(sweeperFn)
	statusTopic.GrantPublish(statusRouterFn)
	alertTopic.GrantPublish(sweeperFn)
	addArchivePermissions(intakeFn, listenerFn, sweeperFn)

	// Event sources
	batchFailures := &awslambdaeventsources.SqsEventSourceProps{
		BatchSize:               jsii.Number(10),
		ReportBatchItemFailures: jsii.Bool(true),
	}
	intakeFn.AddEventSource(awslambdaeventsources.NewSqsEventSource(intakeQueue, batchFailures))
	listenerFn.AddEventSource(awslambdaeventsources.NewSqsEventSource(completionQueue, batchFailures))

	statusRouterFn.AddEventSource(awslambdaeventsources.NewDynamoEventSource(table, &awslambdaeventsources.DynamoEventSourceProps{
		StartingPosition: awslambda.StartingPosition_LATEST,
		BatchSize:        jsii.Number(10),
	}))

	rule := awsevents.NewRule(stack, jsii.String("SweepSchedule"), &awsevents.RuleProps{
		RuleName: jsii.String(cfg.TableName + "-sweep"),
		Schedule: awsevents.Schedule_Rate(awscdk.Duration_Minutes(jsii.Number(cfg.SweepRateMinutes))),
	})
	rule.AddTarget(awseventstargets.NewLambdaFunction(sweeperFn, nil))

	// Stack outputs
	awscdk.NewCfnOutput(stack, jsii.String("TableName"), &awscdk.CfnOutputProps{
		Value: table.TableName(),
	})
	awscdk.NewCfnOutput(stack, jsii.String("IntakeQueueUrl"), &awscdk.CfnOutputProps{
		Value: intakeQueue.QueueUrl(),
	})
	awscdk.NewCfnOutput(stack, jsii.String("CompletionQueueUrl"), &awscdk.CfnOutputProps{
		Value: completionQueue.QueueUrl(),
	})
	awscdk.NewCfnOutput(stack, jsii.String("StatusTopicArn"), &awscdk.CfnOutputProps{
		Value: statusTopic.TopicArn(),
	})
	awscdk.NewCfnOutput(stack, jsii.String("AlertTopicArn"), &awscdk.CfnOutputProps{
		Value: alertTopic.TopicArn(),
	})

	return stack
}

// addArchivePermissions grants the recovery path its S3 surface: restore
// submission for intake, copy (get + put) for the listener and the sweeper's
// backlog pass.
func addArchivePermissions(fns ...awslambda.Function) {
	statement := awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Actions: &[]*string{
			jsii.String("s3:RestoreObject"),
			jsii.String("s3:GetObject"),
			jsii.String("s3:PutObject"),
		},
		Resources: &[]*string{jsii.String("*")},
	})
	for _, fn := range fns {
		fn.AddToRolePolicy(statement)
	}
}

func removalPolicy(destroy bool) awscdk.RemovalPolicy {
	if destroy {
		return awscdk.RemovalPolicy_DESTROY
	}
	return awscdk.RemovalPolicy_RETAIN
}

func logRetentionDays(days float64) awslogs.RetentionDays {
	switch days {
	case 1:
		return awslogs.RetentionDays_ONE_DAY
	case 3:
		return awslogs.RetentionDays_THREE_DAYS
	case 5:
		return awslogs.RetentionDays_FIVE_DAYS
	case 7:
		return awslogs.RetentionDays_ONE_WEEK
	case 14:
		return awslogs.RetentionDays_TWO_WEEKS
	case 30:
		return awslogs.RetentionDays_ONE_MONTH
	case 60:
		return awslogs.RetentionDays_TWO_MONTHS
	case 90:
		return awslogs.RetentionDays_THREE_MONTHS
	case 365:
		return awslogs.RetentionDays_ONE_YEAR
	default:
		return awslogs.RetentionDays_ONE_WEEK
	}
}
