package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func main() {
	var (
		sourceTable = flag.String("source-table", "scribepod-jobs-legacy", "Source DynamoDB table")
		destTable   = flag.String("dest-table", "scribepod-dialogues", "Destination DynamoDB table")
		dryRun      = flag.Bool("dry-run", false, "Scan and count but don't write")
		region      = flag.String("region", "us-east-1", "AWS region")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(*region))
	if err != nil {
		slog.Error("Failed to load AWS config", "error", err)
		os.Exit(1)
	}

	ddbClient := dynamodb.NewFromConfig(cfg)

	if *dryRun {
		slog.Info("DRY RUN MODE - no writes will be performed")
	}

	slog.Info("Starting migration",
		"source", *sourceTable,
		"dest", *destTable,
		"region", *region,
	)

	var (
		totalScanned atomic.Int64
		totalWritten atomic.Int64
		totalRekeyed atomic.Int64
	)

	scanInput := &dynamodb.ScanInput{
		TableName: aws.String(*sourceTable),
	}

	var batch []types.WriteRequest
	const batchSize = 25

	paginator := dynamodb.NewScanPaginator(ddbClient, scanInput)

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			slog.Error("Scan failed", "error", err)
			os.Exit(1)
		}

		for _, item := range page.Items {
			totalScanned.Add(1)

			processedItem := processItem(item, &totalRekeyed)

			if !*dryRun {
				batch = append(batch, types.WriteRequest{
					PutRequest: &types.PutRequest{
						Item: processedItem,
					},
				})

				if len(batch) >= batchSize {
					if err := writeBatch(ctx, ddbClient, *destTable, batch); err != nil {
						slog.Error("Batch write failed", "error", err)
						os.Exit(1)
					}
					totalWritten.Add(int64(len(batch)))
					batch = batch[:0]
				}
			}

			if totalScanned.Load()%100 == 0 {
				slog.Info("Progress",
					"scanned", totalScanned.Load(),
					"written", totalWritten.Load(),
					"rekeyed", totalRekeyed.Load(),
				)
			}
		}
	}

	if !*dryRun && len(batch) > 0 {
		if err := writeBatch(ctx, ddbClient, *destTable, batch); err != nil {
			slog.Error("Final batch write failed", "error", err)
			os.Exit(1)
		}
		totalWritten.Add(int64(len(batch)))
	}

	slog.Info("Migration complete",
		"total_scanned", totalScanned.Load(),
		"total_written", totalWritten.Load(),
		"total_rekeyed", totalRekeyed.Load(),
		"dry_run", *dryRun,
	)
}

// processItem rewrites legacy JOB# keys to the DIALOGUE# layout and moves
// transcript URLs onto the dedicated serving host. Already-migrated items
// pass through untouched.
func processItem(item map[string]types.AttributeValue, rekeyCounter *atomic.Int64) map[string]types.AttributeValue {
	pkAttr, ok := item["PK"]
	if !ok {
		return item
	}

	pkStr, ok := pkAttr.(*types.AttributeValueMemberS)
	if !ok {
		return item
	}

	if strings.HasPrefix(pkStr.Value, "JOB#") {
		id := strings.TrimPrefix(pkStr.Value, "JOB#")
		item["PK"] = &types.AttributeValueMemberS{Value: "DIALOGUE#" + id}
		if _, ok := item["dialogueId"]; !ok {
			item["dialogueId"] = &types.AttributeValueMemberS{Value: id}
		}
		rekeyCounter.Add(1)
	}

	urlAttr, ok := item["transcriptUrl"]
	if !ok {
		return item
	}
	urlStr, ok := urlAttr.(*types.AttributeValueMemberS)
	if !ok {
		return item
	}

	// scribepod.dev/transcripts/ -> dialogues.scribepod.dev/transcripts/
	// Skip URLs already on the serving host (idempotent).
	if strings.Contains(urlStr.Value, "scribepod.dev/transcripts/") &&
		!strings.Contains(urlStr.Value, "dialogues.scribepod.dev/transcripts/") {
		newURL := strings.ReplaceAll(urlStr.Value, "scribepod.dev/transcripts/", "dialogues.scribepod.dev/transcripts/")
		item["transcriptUrl"] = &types.AttributeValueMemberS{Value: newURL}
	}

	return item
}

// writeBatch writes a batch of items to the destination table.
func writeBatch(ctx context.Context, client *dynamodb.Client, tableName string, batch []types.WriteRequest) error {
	if len(batch) == 0 {
		return nil
	}

	input := &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{
			tableName: batch,
		},
	}

	result, err := client.BatchWriteItem(ctx, input)
	if err != nil {
		return fmt.Errorf("BatchWriteItem failed: %w", err)
	}

	if len(result.UnprocessedItems) > 0 {
		slog.Warn("Unprocessed items detected", "count", len(result.UnprocessedItems[tableName]))
		retryInput := &dynamodb.BatchWriteItemInput{
			RequestItems: result.UnprocessedItems,
		}
		retryResult, err := client.BatchWriteItem(ctx, retryInput)
		if err != nil {
			return fmt.Errorf("retry BatchWriteItem failed: %w", err)
		}
		if len(retryResult.UnprocessedItems) > 0 {
			return fmt.Errorf("still have %d unprocessed items after retry", len(retryResult.UnprocessedItems[tableName]))
		}
	}

	return nil
}
