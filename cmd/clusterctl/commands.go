package main

import (
	"fmt"

	"cluster-intelligence-be/internal/dto"
	"cluster-intelligence-be/internal/migration"
	"cluster-intelligence-be/pkg/clusterhealth"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health [cluster-id]",
	Short: "Show global health, or analyze one cluster",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHealth,
}

var rebalanceCmd = &cobra.Command{
	Use:   "rebalance",
	Short: "Split oversized clusters, merge undersized ones and move misplaced collections",
	RunE:  runRebalance,
}

var contentClustersCmd = &cobra.Command{
	Use:   "content-clusters [collection-id]",
	Short: "Group a collection's documents by embedding similarity",
	Args:  cobra.ExactArgs(1),
	RunE:  runContentClusters,
}

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Generate topology suggestions",
	RunE:  runSuggest,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the cluster tables",
	RunE:  runMigrate,
}

var (
	rebalanceDryRun  bool
	rebalanceMaxSize int
	rebalanceMinSize int
	maxClusters      int
	minClusterSize   int
)

func init() {
	rebalanceCmd.Flags().BoolVar(&rebalanceDryRun, "dry-run", false, "Only report what would change")
	rebalanceCmd.Flags().IntVar(&rebalanceMaxSize, "max-size", 0, "Largest healthy cluster (default 20)")
	rebalanceCmd.Flags().IntVar(&rebalanceMinSize, "min-size", 0, "Smallest healthy cluster (default 2)")

	contentClustersCmd.Flags().IntVarP(&maxClusters, "max-clusters", "k", 0, "Upper bound on clusters")
	contentClustersCmd.Flags().IntVar(&minClusterSize, "min-size", 0, "Drop clusters smaller than this")

	rootCmd.AddCommand(healthCmd, rebalanceCmd, contentClustersCmd, suggestCmd, migrateCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	userId, err := userID()
	if err != nil {
		return err
	}
	c, err := newContainer()
	if err != nil {
		return err
	}
	defer c.Close()
	ctx := cmd.Context()

	if len(args) == 1 {
		clusterId, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid cluster id: %w", err)
		}
		report, err := c.ClusterService.AnalyzeClusterHealth(ctx, userId, clusterId)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(report)
		}
		printReport(*report)
		return nil
	}

	global, err := c.ClusterService.GetGlobalHealth(ctx, userId)
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(global)
	}
	color.Cyan("%d clusters, average score %.2f", global.ClusterCount, global.AverageScore)
	for _, r := range global.Clusters {
		printReport(r)
	}
	if len(global.ActionItems) > 0 {
		fmt.Println()
		color.Cyan("Action items:")
		for _, item := range global.ActionItems {
			fmt.Printf("  [%s] %s %s: %s\n", item.Priority, item.Type, item.ClusterName, item.Reason)
		}
	}
	return nil
}

func printReport(r clusterhealth.Report) {
	paint := color.GreenString
	switch r.Status {
	case clusterhealth.StatusFair, clusterhealth.StatusPoor:
		paint = color.YellowString
	case clusterhealth.StatusCritical:
		paint = color.RedString
	}
	fmt.Printf("%-32s %s  score=%.2f members=%d\n", r.ClusterName, paint("%-8s", r.Status), r.HealthScore, r.MemberCount)
	for _, issue := range r.Issues {
		fmt.Printf("    - %s\n", issue)
	}
}

func runRebalance(cmd *cobra.Command, _ []string) error {
	userId, err := userID()
	if err != nil {
		return err
	}
	c, err := newContainer()
	if err != nil {
		return err
	}
	defer c.Close()

	res, err := c.ClusterService.RebalanceClusters(cmd.Context(), userId, &dto.RebalanceRequest{
		MaxClusterSize: rebalanceMaxSize,
		MinClusterSize: rebalanceMinSize,
		DryRun:         rebalanceDryRun,
	})
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(res)
	}

	a := res.Analysis
	if !a.NeedsChange {
		color.Green("Topology is balanced")
		return nil
	}
	fmt.Printf("Oversized: %d  Undersized: %d  Moves: %d\n", len(a.Oversized), len(a.Undersized), len(a.Moves))
	if res.DryRun {
		for _, m := range a.Moves {
			fmt.Printf("  move %s: %s -> %s (%.2f -> %.2f)\n", m.CollectionName, m.FromClusterName, m.ToClusterName, m.CurrentScore, m.TargetScore)
		}
		color.Yellow("Dry run, nothing applied")
		return nil
	}
	for _, s := range res.Splits {
		reportOutcome("split", s.Success, s.Reason)
	}
	for _, m := range res.Merges {
		reportOutcome("merge", m.Success, m.Reason)
	}
	color.Green("Applied %d moves, %d clusters affected", len(res.MovesApplied), len(res.AffectedClusterIds))
	return nil
}

func reportOutcome(op string, ok bool, reason string) {
	if ok {
		color.Green("  %s applied", op)
		return
	}
	color.Yellow("  %s not applied: %s", op, reason)
}

func runContentClusters(cmd *cobra.Command, args []string) error {
	userId, err := userID()
	if err != nil {
		return err
	}
	collectionId, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid collection id: %w", err)
	}
	c, err := newContainer()
	if err != nil {
		return err
	}
	defer c.Close()

	res, err := c.ClusterService.GetContentBasedClusters(cmd.Context(), userId, &dto.ContentClustersRequest{
		CollectionId:   collectionId,
		MaxClusters:    maxClusters,
		MinClusterSize: minClusterSize,
	})
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(res)
	}
	if !res.Success {
		color.Yellow("No clusters: %s", res.Reason)
		return nil
	}
	d := res.Diagnostics
	color.Cyan("k=%d over %d points (dimension %d, %d iterations, converged=%t)", d.K, d.ValidPoints, d.Dimension, d.Iterations, d.Converged)
	for _, cl := range res.Clusters {
		fmt.Printf("  %-32s size=%-4d cohesion=%.3f\n", cl.Name, cl.Size, cl.Cohesion)
	}
	return nil
}

func runSuggest(cmd *cobra.Command, _ []string) error {
	userId, err := userID()
	if err != nil {
		return err
	}
	c, err := newContainer()
	if err != nil {
		return err
	}
	defer c.Close()

	res, err := c.SuggestionService.GenerateSuggestions(cmd.Context(), userId)
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(res)
	}
	color.Cyan("%d new suggestions, %d expired", res.Created, res.Expired)
	for _, s := range res.Suggestions {
		fmt.Printf("  %-6s %.2f  %s\n", s.Type, s.Confidence, s.Reasoning)
	}
	return nil
}

func runMigrate(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.Connection == "" {
		return fmt.Errorf("DB_CONNECTION_STRING is not set")
	}
	cfg.Database.Store = "postgres"
	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if err := migration.Run(db); err != nil {
		return err
	}
	color.Green("Migration completed")
	return nil
}
