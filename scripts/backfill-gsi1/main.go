// Backfill the GSI1 listing index for DIALOGUE# items written before the
// global dialogue listing existed.
//
// Usage:
//
//	go run ./scripts/backfill-gsi1 --dry-run          # preview changes
//	go run ./scripts/backfill-gsi1                     # apply changes
//	go run ./scripts/backfill-gsi1 --table my-table    # custom table name
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/oklog/ulid/v2"
)

func main() {
	tableName := flag.String("table", "scribepod-dialogues", "DynamoDB table name")
	dryRun := flag.Bool("dry-run", false, "Preview changes without writing")
	flag.Parse()

	ctx := context.Background()
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion("us-east-1"))
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	client := dynamodb.NewFromConfig(cfg)

	fmt.Printf("Table: %s | Dry run: %v\n", *tableName, *dryRun)

	var lastKey map[string]types.AttributeValue
	var scanned, updated, skipped int

	for {
		input := &dynamodb.ScanInput{
			TableName:        tableName,
			FilterExpression: aws.String("begins_with(PK, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":prefix": &types.AttributeValueMemberS{Value: "DIALOGUE#"},
			},
		}
		if lastKey != nil {
			input.ExclusiveStartKey = lastKey
		}

		result, err := client.Scan(ctx, input)
		if err != nil {
			log.Fatalf("scan: %v", err)
		}

		for _, item := range result.Items {
			scanned++
			pk := attrStr(item, "PK")
			dialogueID := strings.TrimPrefix(pk, "DIALOGUE#")

			// Already indexed?
			if attrStr(item, "GSI1PK") == "DIALOGUES" {
				skipped++
				continue
			}

			createdAt := attrStr(item, "createdAt")
			if createdAt == "" {
				// Items from before createdAt existed carry the
				// timestamp in their ULID.
				id, err := ulid.Parse(dialogueID)
				if err != nil {
					log.Printf("SKIP %s: no createdAt and not a ULID", dialogueID)
					skipped++
					continue
				}
				createdAt = time.UnixMilli(int64(id.Time())).UTC().Format(time.RFC3339)
			}

			gsi1sk := createdAt + "#" + dialogueID

			action := "UPDATE"
			if *dryRun {
				action = "DRY-RUN"
			}
			fmt.Printf("[%s] %s: GSI1PK=DIALOGUES GSI1SK=%s\n", action, dialogueID, gsi1sk)

			if !*dryRun {
				_, err := client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
					TableName: tableName,
					Key: map[string]types.AttributeValue{
						"PK": &types.AttributeValueMemberS{Value: pk},
						"SK": &types.AttributeValueMemberS{Value: "METADATA"},
					},
					UpdateExpression: aws.String("SET GSI1PK = :g1pk, GSI1SK = :g1sk"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":g1pk": &types.AttributeValueMemberS{Value: "DIALOGUES"},
						":g1sk": &types.AttributeValueMemberS{Value: gsi1sk},
					},
				})
				if err != nil {
					log.Printf("ERROR updating %s: %v", dialogueID, err)
					continue
				}
			}
			updated++
		}

		lastKey = result.LastEvaluatedKey
		if lastKey == nil {
			break
		}
	}

	fmt.Printf("\nDone. Scanned: %d, Updated: %d, Skipped: %d\n", scanned, updated, skipped)
	if *dryRun {
		fmt.Println("(dry run — no changes written)")
		os.Exit(0)
	}
}

func attrStr(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}
