package commands

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Kvijay199428/VEGA-sub001/internal/ratelimit"
)

// ratelimitCmd represents the ratelimit command
var ratelimitCmd = &cobra.Command{
	Use:   "ratelimit",
	Short: "Inspect or reset venue rate limiters",
	Long: `Shows per-broker window occupancy of the STANDARD and MULTI_ORDER limiters.

With REDIS_ENABLED=true the counts are shared by every instance; otherwise
they only reflect this process.

Example:
  go run ./cmd/vega ratelimit usage
  go run ./cmd/vega ratelimit reset --broker UPSTOX`,
}

var (
	ratelimitUsageCmd = &cobra.Command{
		Use:   "usage",
		Short: "Show window usage per broker and category",
		RunE:  showRateLimitUsage,
	}

	ratelimitResetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Clear the windows of one broker, or of all",
		RunE:  resetRateLimits,
	}

	ratelimitBroker string
)

func init() {
	rootCmd.AddCommand(ratelimitCmd)
	ratelimitCmd.AddCommand(ratelimitUsageCmd)
	ratelimitCmd.AddCommand(ratelimitResetCmd)

	ratelimitResetCmd.Flags().StringVar(&ratelimitBroker, "broker", "", "broker to reset (default all)")
}

func showRateLimitUsage(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app) error {
		ctx := context.Background()
		for _, name := range sortedKeys(a.limiters) {
			fmt.Printf("📊 %s\n", name)
			usage := a.limiters[name].Usage(ctx)
			for _, category := range []ratelimit.Category{ratelimit.CategoryStandard, ratelimit.CategoryMultiOrder} {
				u := usage[category]
				marker := ""
				if u.IsNearingLimit() {
					marker = "  ⚠️ nearing limit"
				}
				fmt.Printf("   %-12s %s%s\n", category, u.String(), marker)
			}
			fmt.Println()
		}
		return nil
	})
}

func resetRateLimits(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app) error {
		ctx := context.Background()
		if ratelimitBroker != "" {
			m, ok := a.limiters[ratelimitBroker]
			if !ok {
				return fmt.Errorf("unknown broker %s", ratelimitBroker)
			}
			m.ResetAll(ctx)
			fmt.Printf("✅ %s limiters reset\n", ratelimitBroker)
			return nil
		}
		for _, name := range sortedKeys(a.limiters) {
			a.limiters[name].ResetAll(ctx)
		}
		fmt.Println("✅ All limiters reset")
		return nil
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
