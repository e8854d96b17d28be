package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Kvijay199428/VEGA-sub001/internal/broker"
	"github.com/Kvijay199428/VEGA-sub001/internal/strategyconfig"
)

// brokersCmd represents the brokers command
var brokersCmd = &cobra.Command{
	Use:   "brokers",
	Short: "Show broker capabilities and routing",
	Long: `Prints the effective capability of every broker (presets patched by the
routing file) and the routing rules: fallback, strategy tags, user priorities.

Subcommands:
  validate FILE  - parse and validate a routing file without starting anything

Example:
  go run ./cmd/vega brokers
  go run ./cmd/vega brokers validate config/routing.yaml`,
	RunE: showBrokers,
}

var brokersValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a routing file",
	Args:  cobra.ExactArgs(1),
	RunE:  validateRouting,
}

func init() {
	rootCmd.AddCommand(brokersCmd)
	brokersCmd.AddCommand(brokersValidateCmd)
}

func showBrokers(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	var routing *strategyconfig.Config
	if cfg.Broker.RoutingFile != "" {
		if routing, _, err = strategyconfig.Load(cfg.Broker.RoutingFile); err != nil {
			return fmt.Errorf("load routing file: %w", err)
		}
	}
	_, _, caps, err := broker.FromRoutingFile(routing)
	if err != nil {
		return err
	}

	fmt.Printf("Mode: %s\n\n", cfg.Broker.Mode)
	for _, name := range sortedKeys(caps) {
		c := caps[name]
		fmt.Printf("🏦 %s\n", name)
		fmt.Printf("   Segments:     %s\n", strings.Join(c.SupportedSegments, ", "))
		fmt.Printf("   Order types:  %s\n", strings.Join(c.SupportedOrderTypes, ", "))
		fmt.Printf("   Products:     %s\n", strings.Join(c.SupportedProducts, ", "))
		fmt.Printf("   Batch size:   %d\n", c.BatchSize())
		fmt.Printf("   Rate/min:     %d\n", c.RateLimitPerMinute)
		fmt.Printf("   Multi-order: %v  Modify: %v  Cancel-multi: %v  Exit-all: %v  Slicing: %v\n",
			c.SupportsMultiOrder, c.SupportsModify, c.SupportsCancelMulti, c.SupportsExitAll, c.SupportsSlicing)
		fmt.Println()
	}

	if routing == nil {
		fmt.Printf("Routing: no file, fallback %s\n", cfg.Broker.Fallback)
		return nil
	}
	printRouting(routing, cfg.Broker.RoutingFile)
	return nil
}

func validateRouting(cmd *cobra.Command, args []string) error {
	routing, _, err := strategyconfig.Load(args[0])
	if err != nil {
		return fmt.Errorf("❌ %w", err)
	}
	if _, err := broker.ApplyOverrides(broker.Presets(), routing.Capabilities); err != nil {
		return fmt.Errorf("❌ %w", err)
	}
	fmt.Println("✅ Routing file is valid")
	printRouting(routing, args[0])
	return nil
}

func printRouting(routing *strategyconfig.Config, source string) {
	snap, err := strategyconfig.NewSnapshot(routing, source)
	if err == nil {
		fmt.Printf("Routing: %s (version %s, hash %s)\n", snap.Source, snap.Version, snap.ConfigHash)
	}
	if routing.Fallback != "" {
		fmt.Printf("   Fallback: %s\n", routing.Fallback)
	}
	for _, s := range routing.Strategies {
		fmt.Printf("   strategy %-16s → %s\n", s.Tag, s.Broker)
	}
	for _, u := range routing.Users {
		fmt.Printf("   user     %-16s → %s\n", u.UserID, strings.Join(u.Priority, " > "))
	}
	if w := routing.Trading.MaintenanceWindow; w.Start != "" {
		fmt.Printf("   maintenance %s-%s\n", w.Start, w.End)
	}
}
