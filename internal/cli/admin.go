package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/spf13/cobra"

	"github.com/lioneltchami/scribepod/internal/jobserver"
)

var (
	flagAdminTable  string
	flagAdminRegion string
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage platform users and API keys",
	Long:  "Administrative commands against the platform's DynamoDB table. Requires AWS credentials with access to the table.",
}

func init() {
	rootCmd.AddCommand(adminCmd)

	defaultTable := os.Getenv("DYNAMODB_TABLE")
	if defaultTable == "" {
		defaultTable = "scribepod-dialogues"
	}
	defaultRegion := os.Getenv("AWS_REGION")
	if defaultRegion == "" {
		defaultRegion = "us-east-1"
	}
	adminCmd.PersistentFlags().StringVar(&flagAdminTable, "table", defaultTable, "DynamoDB table name")
	adminCmd.PersistentFlags().StringVar(&flagAdminRegion, "region", defaultRegion, "AWS region")

	adminCmd.AddCommand(adminCreateUserCmd)
	adminCmd.AddCommand(adminApproveUserCmd)
	adminCmd.AddCommand(adminSuspendUserCmd)
	adminCmd.AddCommand(adminListUsersCmd)
	adminCmd.AddCommand(adminCreateKeyCmd)
	adminCmd.AddCommand(adminRevokeKeyCmd)
	adminCmd.AddCommand(adminListKeysCmd)
	adminCmd.AddCommand(adminUsageCmd)
}

func adminStore(ctx context.Context) (*jobserver.Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(flagAdminRegion))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return jobserver.NewStore(dynamodb.NewFromConfig(awsCfg), flagAdminTable), nil
}

var adminCreateUserCmd = &cobra.Command{
	Use:   "create-user <user-id> <email> <name>",
	Short: "Create a user (starts in pending status)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := adminStore(cmd.Context())
		if err != nil {
			return err
		}
		if existing, err := store.GetUserByEmail(cmd.Context(), args[1]); err != nil {
			return err
		} else if existing != nil {
			return fmt.Errorf("email %s already belongs to %s", args[1], strings.TrimPrefix(existing.PK, "USER#"))
		}
		if err := store.CreateUser(cmd.Context(), args[0], args[1], args[2]); err != nil {
			return err
		}
		fmt.Printf("Created user %s (pending approval)\n", args[0])
		return nil
	},
}

var adminApproveUserCmd = &cobra.Command{
	Use:   "approve-user <user-id>",
	Short: "Approve a pending user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := adminStore(cmd.Context())
		if err != nil {
			return err
		}
		if err := store.ApproveUser(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Approved user %s\n", args[0])
		return nil
	},
}

var adminSuspendUserCmd = &cobra.Command{
	Use:   "suspend-user <user-id>",
	Short: "Suspend a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := adminStore(cmd.Context())
		if err != nil {
			return err
		}
		if err := store.SuspendUser(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Suspended user %s\n", args[0])
		return nil
	},
}

var adminListUsersCmd = &cobra.Command{
	Use:   "list-users",
	Short: "List all users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := adminStore(cmd.Context())
		if err != nil {
			return err
		}
		users, err := store.ListUsers(cmd.Context())
		if err != nil {
			return err
		}
		if len(users) == 0 {
			fmt.Println("No users.")
			return nil
		}

		fmt.Printf("%-20s %-28s %-10s %-8s %s\n", "USER", "EMAIL", "STATUS", "ROLE", "CREATED")
		fmt.Println(strings.Repeat("─", 80))
		for _, u := range users {
			fmt.Printf("%-20s %-28s %-10s %-8s %s\n",
				strings.TrimPrefix(u.PK, "USER#"), u.Email, u.Status, u.Role, shortDate(u.CreatedAt))
		}
		return nil
	},
}

var adminCreateKeyCmd = &cobra.Command{
	Use:   "create-key <user-id> <key-name>",
	Short: "Create an API key for a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := adminStore(cmd.Context())
		if err != nil {
			return err
		}
		user, err := store.GetUser(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("user %s not found", args[0])
		}

		plaintext, prefix, err := store.CreateAPIKey(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Created key %s for %s\n\n", prefix, args[0])
		fmt.Printf("  %s\n\n", plaintext)
		fmt.Println("This is the only time the key is shown. Store it now.")
		return nil
	},
}

var adminRevokeKeyCmd = &cobra.Command{
	Use:   "revoke-key <key-prefix>",
	Short: "Revoke an API key by its prefix",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := adminStore(cmd.Context())
		if err != nil {
			return err
		}
		if err := store.RevokeAPIKey(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Revoked key %s\n", args[0])
		return nil
	},
}

var adminListKeysCmd = &cobra.Command{
	Use:   "list-keys <user-id>",
	Short: "List a user's API keys",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := adminStore(cmd.Context())
		if err != nil {
			return err
		}
		keys, err := store.ListAPIKeys(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			fmt.Printf("No keys for %s.\n", args[0])
			return nil
		}

		fmt.Printf("%-10s %-20s %-9s %-12s %s\n", "PREFIX", "NAME", "STATUS", "CREATED", "LAST USED")
		fmt.Println(strings.Repeat("─", 68))
		for _, k := range keys {
			lastUsed := "never"
			if k.LastUsedAt != "" {
				lastUsed = shortDate(k.LastUsedAt)
			}
			fmt.Printf("%-10s %-20s %-9s %-12s %s\n",
				strings.TrimPrefix(k.PK, "APIKEY#"), k.Name, k.Status, shortDate(k.CreatedAt), lastUsed)
		}
		return nil
	},
}

var adminUsageCmd = &cobra.Command{
	Use:   "usage <user-id> [month]",
	Short: "Show a user's monthly usage (month as YYYY-MM, default current)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		month := time.Now().UTC().Format("2006-01")
		if len(args) == 2 {
			month = args[1]
		}

		store, err := adminStore(cmd.Context())
		if err != nil {
			return err
		}
		usage, err := store.GetMonthlyUsage(cmd.Context(), args[0], month)
		if err != nil {
			return err
		}

		fmt.Printf("Usage for %s in %s\n", args[0], month)
		fmt.Printf("  Dialogues: %d\n", usage.DialogueCount)
		fmt.Printf("  Turns:     %d\n", usage.TotalTurns)
		fmt.Printf("  Tokens:    %d\n", usage.TotalTokens)
		fmt.Printf("  Cost:      $%.4f\n", usage.TotalCostUSD)
		return nil
	},
}

func shortDate(ts string) string {
	if len(ts) >= 10 {
		return ts[:10]
	}
	return ts
}
