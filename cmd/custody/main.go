package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/custodia-project/custodia/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden at release time via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	cfgFile   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "custody",
	Short: "Custodia ledger CLI",
	Long: `custody is the command-line interface for the Custodia shipment
custody ledger.

It records custody events, walks shipment chains, verifies chain integrity,
and reports ledger statistics against a running custodyd instance.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.custodia")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.custodia/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "custodyd base URL (default http://localhost:8080)")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(anchorCmd)
	rootCmd.AddCommand(versionCmd)
}

func apiClient() *client.Client {
	return client.New(serverURL)
}

func cmdContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 15*time.Second)
}

// ── record ───────────────────────────────────────────────────────────────────

var (
	recordActorID      string
	recordActorKind    string
	recordActorName    string
	recordActorOrg     string
	recordLocation     string
	recordLocationKind string
	recordCountry      string
	recordMetadata     []string
)

var recordCmd = &cobra.Command{
	Use:   "record <shipment-id> <event-type>",
	Short: "Record one custody event for a shipment",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		metadata := make(map[string]string)
		for _, kv := range recordMetadata {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("metadata entry %q is not key=value", kv)
			}
			metadata[parts[0]] = parts[1]
		}

		ctx, cancel := cmdContext()
		defer cancel()

		event, err := apiClient().RecordEvent(ctx, client.EventInput{
			ShipmentID: args[0],
			EventType:  args[1],
			Actor: client.Actor{
				ID:           recordActorID,
				Kind:         recordActorKind,
				Name:         recordActorName,
				Organization: recordActorOrg,
			},
			Location: client.Location{
				Name:    recordLocation,
				Kind:    recordLocationKind,
				Country: recordCountry,
			},
			Metadata: metadata,
		})
		if err != nil {
			return err
		}

		fmt.Printf("recorded %s\n", event.ID)
		fmt.Printf("  data hash: %s\n", event.DataHash)
		fmt.Printf("  prev hash: %s\n", event.PreviousHash)
		fmt.Printf("  tx hash:   %s\n", event.TransactionHash)
		return nil
	},
}

func init() {
	recordCmd.Flags().StringVar(&recordActorID, "actor-id", "", "actor identifier (required)")
	recordCmd.Flags().StringVar(&recordActorKind, "actor-kind", "user", "actor kind: user, system, sensor, api")
	recordCmd.Flags().StringVar(&recordActorName, "actor-name", "", "actor display name")
	recordCmd.Flags().StringVar(&recordActorOrg, "actor-org", "", "actor organization")
	recordCmd.Flags().StringVar(&recordLocation, "location", "", "location name")
	recordCmd.Flags().StringVar(&recordLocationKind, "location-kind", "unknown", "location kind: facility, checkpoint, vehicle, port, customs, destination, unknown")
	recordCmd.Flags().StringVar(&recordCountry, "country", "", "location country")
	recordCmd.Flags().StringArrayVar(&recordMetadata, "meta", nil, "metadata entry key=value (repeatable)")
	_ = recordCmd.MarkFlagRequired("actor-id")
}

// ── events ───────────────────────────────────────────────────────────────────

var eventsJSON bool

var eventsCmd = &cobra.Command{
	Use:   "events <shipment-id>",
	Short: "List a shipment's chain, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		chain, err := apiClient().ChainEvents(ctx, args[0])
		if err != nil {
			return err
		}
		if eventsJSON {
			return json.NewEncoder(os.Stdout).Encode(chain)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIMESTAMP\tTYPE\tACTOR\tLOCATION\tDATA HASH")
		for _, e := range chain.Events {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				e.Timestamp.Format(time.RFC3339),
				e.EventType, e.Actor.Name, e.Location.Name,
				shortHash(e.DataHash),
			)
		}
		return w.Flush()
	},
}

func init() {
	eventsCmd.Flags().BoolVar(&eventsJSON, "json", false, "output raw JSON")
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyEventID string

var verifyCmd = &cobra.Command{
	Use:   "verify <shipment-id>",
	Short: "Verify a shipment's chain integrity",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		if verifyEventID != "" {
			result, err := apiClient().VerifyEvent(ctx, verifyEventID)
			if err != nil {
				return err
			}
			fmt.Printf("event %s\n", result.EventID)
			fmt.Printf("  hash valid:  %v\n", result.HashValid)
			fmt.Printf("  chain valid: %v\n", result.ChainValid)
			fmt.Printf("  signature:   %s\n", result.Signature)
			fmt.Printf("  valid:       %v\n", result.IsValid)
			return nil
		}

		if len(args) == 0 {
			return fmt.Errorf("provide a shipment id or --event")
		}

		result, err := apiClient().VerifyChain(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("shipment %s: %d events\n", result.ShipmentID, result.EventCount)
		if result.IsValid {
			fmt.Println("chain intact")
			return nil
		}
		fmt.Println("chain COMPROMISED")
		for _, id := range result.BrokenLinks {
			fmt.Printf("  broken link:  %s\n", id)
		}
		for _, id := range result.InvalidHashes {
			fmt.Printf("  invalid hash: %s\n", id)
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyEventID, "event", "", "verify a single event by id instead of a full chain")
}

// ── stats ────────────────────────────────────────────────────────────────────

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show ledger-wide statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		stats, err := apiClient().Stats(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("events:     %d\n", stats.TotalEvents)
		fmt.Printf("shipments:  %d\n", stats.TotalShipments)
		fmt.Printf("today:      %d\n", stats.EventsToday)
		fmt.Printf("verified:   %.1f%%\n", stats.VerifiedRatio*100)
		fmt.Printf("avg/chain:  %.2f\n", stats.AvgEventsPerShipment)

		if len(stats.ByEventType) > 0 {
			types := make([]string, 0, len(stats.ByEventType))
			for t := range stats.ByEventType {
				types = append(types, t)
			}
			sort.Strings(types)

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "\nTYPE\tCOUNT")
			for _, t := range types {
				fmt.Fprintf(w, "%s\t%d\n", t, stats.ByEventType[t])
			}
			return w.Flush()
		}
		return nil
	},
}

// ── anchor ───────────────────────────────────────────────────────────────────

var anchorDate string

var anchorCmd = &cobra.Command{
	Use:   "anchor <shipment-id>",
	Short: "Compute the Merkle anchor for one day of a shipment's events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		result, err := apiClient().DayAnchor(ctx, args[0], anchorDate)
		if err != nil {
			return err
		}
		fmt.Printf("shipment:    %s\n", result.ShipmentID)
		fmt.Printf("date:        %s\n", result.Date)
		fmt.Printf("events:      %d\n", result.EventCount)
		fmt.Printf("merkle root: %s\n", result.MerkleRoot)
		return nil
	},
}

func init() {
	anchorCmd.Flags().StringVar(&anchorDate, "date", "", "UTC day as YYYY-MM-DD (default today)")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("custody", version)
	},
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12] + "…"
	}
	return h
}
