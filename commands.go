package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/datalytyx/databricks-maintenance/pkg/auth"
	"github.com/datalytyx/databricks-maintenance/pkg/cache"
	"github.com/datalytyx/databricks-maintenance/pkg/config"
	"github.com/datalytyx/databricks-maintenance/pkg/databricks"
	"github.com/datalytyx/databricks-maintenance/pkg/fetch"
	"github.com/datalytyx/databricks-maintenance/pkg/libraries"
	"github.com/datalytyx/databricks-maintenance/pkg/lifecycle"
	"github.com/datalytyx/databricks-maintenance/pkg/logger"
	"github.com/datalytyx/databricks-maintenance/pkg/maintenance"
	"github.com/datalytyx/databricks-maintenance/pkg/report"
	"github.com/datalytyx/databricks-maintenance/pkg/utils"
)

// Version information variables (set at build time)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// NewCheckRuntimesCommand creates the check-runtimes command
func NewCheckRuntimesCommand() *cobra.Command {
	var (
		months int
		output string
		format string
	)
	cmd := &cobra.Command{
		Use:   "check-runtimes",
		Short: "Find clusters on deprecated or soon-to-be deprecated runtimes",
		Long:  "Classify every cluster of the workspace by runtime lifecycle status and recommend an upgrade target for each at-risk cluster",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			return runCheckRuntimes(cmd.Context(), cmd.OutOrStdout(), months, output, f)
		},
	}
	cmd.Flags().IntVarP(&months, "months", "m", 0, "Soon-deprecated window in months (default from configuration)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Also write the results to this JSON file")
	cmd.Flags().StringVar(&format, "format", string(report.FormatTable), "Output format: table, json or yaml")
	return cmd
}

// NewListRuntimesCommand creates the list-runtimes command
func NewListRuntimesCommand() *cobra.Command {
	var (
		ltsOnly bool
		format  string
	)
	cmd := &cobra.Command{
		Use:   "list-runtimes",
		Short: "List runtimes available for cluster creation",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			return runListRuntimes(cmd.Context(), cmd.OutOrStdout(), ltsOnly, f)
		},
	}
	cmd.Flags().BoolVar(&ltsOnly, "lts", false, "Only list long-term-support runtimes, newest first")
	cmd.Flags().StringVar(&format, "format", string(report.FormatTable), "Output format: table, json or yaml")
	return cmd
}

// NewCheckLibrariesCommand creates the check-libraries command
func NewCheckLibrariesCommand() *cobra.Command {
	var (
		clusterID string
		output    string
		format    string
	)
	cmd := &cobra.Command{
		Use:   "check-libraries",
		Short: "Check a cluster for outdated or vulnerable libraries",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			return runCheckLibraries(cmd.Context(), cmd.OutOrStdout(), clusterID, output, f)
		},
	}
	cmd.Flags().StringVarP(&clusterID, "cluster-id", "c", "", "Cluster ID to check")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Also write the results to this JSON file")
	cmd.Flags().StringVar(&format, "format", string(report.FormatTable), "Output format: table, json or yaml")
	_ = cmd.MarkFlagRequired("cluster-id")
	return cmd
}

// NewGenerateReportCommand creates the generate-report command
func NewGenerateReportCommand() *cobra.Command {
	var (
		output string
		months int
	)
	cmd := &cobra.Command{
		Use:   "generate-report",
		Short: "Generate an HTML maintenance report",
		Long:  "Scan runtimes of all clusters and libraries of the first clusters, then write a standalone HTML report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateReport(cmd.Context(), cmd.OutOrStdout(), output, months)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output HTML file")
	cmd.Flags().IntVarP(&months, "months", "m", 0, "Soon-deprecated window in months (default from configuration)")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

// NewCacheCommand creates the cache command group
func NewCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the local response cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newCache(cmd.Context())
			c.Clear()
			fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "invalidate <key>",
		Short: "Remove one cached entry of the selected workspace, e.g. clusters_list or deprecation_dates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newCache(cmd.Context())
			removed := c.Invalidate(args[0])
			if ws, err := config.GetConfig().Workspace(workspaceName); err == nil {
				removed = c.Scope(workspaceScope(ws)).Invalidate(args[0]) || removed
			}
			if removed {
				fmt.Fprintf(cmd.OutOrStdout(), "Invalidated %s\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "No cached entry for %s\n", args[0])
			}
			return nil
		},
	})
	return cmd
}

// NewVersionCommand creates a new version command
func NewVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display version, build commit, and build time information",
		Run: func(cmd *cobra.Command, args []string) {
			runVersion(cmd.OutOrStdout())
		},
	}

	return cmd
}

// workspaceSession bundles the collaborators of one workspace.
type workspaceSession struct {
	cfg    *config.Config
	logger *logrus.Logger
	// shared holds workspace-independent entries such as package index lookups.
	shared  *cache.Cache
	client  *databricks.Client
	manager *lifecycle.Manager
	fetcher *fetch.Fetcher
}

func newCache(ctx context.Context) *cache.Cache {
	return cache.NewFromConfig(config.GetConfig().Cache, logger.GetLoggerFromContext(ctx))
}

// workspaceScope names the cache scope of a workspace after its host.
func workspaceScope(ws *config.WorkspaceConfig) string {
	if u, err := url.Parse(ws.Host()); err == nil && u.Host != "" {
		return u.Host
	}
	return ws.Host()
}

// openWorkspace wires auth, the API client and the lifecycle manager for the selected workspace.
func openWorkspace(ctx context.Context) (*workspaceSession, error) {
	cfg := config.GetConfig()
	if cfg == nil {
		return nil, fmt.Errorf("configuration has not been loaded")
	}
	log := logger.GetLoggerFromContext(ctx)

	ws, err := cfg.Workspace(workspaceName)
	if err != nil {
		return nil, err
	}
	authPolicy, err := auth.NewAuthProvider().WorkspacePolicy(ws)
	if err != nil {
		return nil, fmt.Errorf("failed to set up workspace authentication: %w", err)
	}

	shared := cache.NewFromConfig(cfg.Cache, log)
	c := shared.Scope(workspaceScope(ws))
	client, err := databricks.NewClient(ws.Host(), authPolicy, &databricks.ClientOptions{
		Timeout:       cfg.API.Timeout,
		MaxRetries:    cfg.API.MaxRetries,
		RetryDelay:    cfg.API.RetryDelay,
		MaxRetryDelay: cfg.API.MaxRetryDelay,
		Cache:         c,
		Logger:        log,
	})
	if err != nil {
		return nil, err
	}

	policy, err := runtimePolicy(cfg.Runtime)
	if err != nil {
		return nil, err
	}
	fetcher := fetch.New(cfg.Runtime.DocumentationTimeout, log, fetch.WithRateLimit(cfg.Libraries.RequestsPerSecond))

	return &workspaceSession{
		cfg:     cfg,
		logger:  log,
		shared:  shared,
		client:  client,
		manager: lifecycle.NewManager(client, fetcher, c, log, lifecycle.WithPolicy(policy)),
		fetcher: fetcher,
	}, nil
}

func (s *workspaceSession) libraryChecker() (*libraries.Checker, error) {
	lc := s.cfg.Libraries
	index := libraries.NewPyPIIndex(lc.PyPIURL, s.fetcher, s.shared)
	return libraries.NewChecker(s.client, index, lc.SecurityMinimums, lc.Workers, s.logger)
}

// runtimePolicy converts the runtime configuration into a lifecycle policy.
func runtimePolicy(rc config.RuntimeConfig) (lifecycle.Policy, error) {
	policy := lifecycle.DefaultPolicy()
	if len(rc.DocumentationURLs) > 0 {
		policy.DocumentationURLs = rc.DocumentationURLs
	}
	if rc.SoonDeprecatedMonths > 0 {
		policy.SoonDeprecatedMonths = rc.SoonDeprecatedMonths
	}
	if rc.InferenceCutoff != "" {
		major, minor, err := rc.ParseCutoff()
		if err != nil {
			return policy, err
		}
		policy.InferenceCutoff = lifecycle.Version{Major: major, Minor: minor}
	}
	if len(rc.KnownEndOfSupport) > 0 {
		known := make([]lifecycle.DeprecationRecord, 0, len(rc.KnownEndOfSupport))
		for _, entry := range rc.KnownEndOfSupport {
			v, ok := lifecycle.ParseVersion(entry.Version)
			if !ok {
				return policy, fmt.Errorf("invalid runtime version %q in knownEndOfSupport", entry.Version)
			}
			if _, err := time.Parse(lifecycle.DateLayout, entry.Date); err != nil {
				return policy, fmt.Errorf("invalid end-of-support date %q for %s: %w", entry.Date, entry.Version, err)
			}
			known = append(known, lifecycle.DeprecationRecord{Version: v, DeprecationDate: entry.Date, Note: entry.Note})
		}
		policy.KnownEndOfSupport = known
	}
	return policy, nil
}

// thresholdFor returns now plus months, or the zero time to use the configured window.
func thresholdFor(months int) time.Time {
	if months <= 0 {
		return time.Time{}
	}
	return lifecycle.Threshold(time.Now().UTC(), months)
}

func runCheckRuntimes(ctx context.Context, out io.Writer, months int, output string, format report.Format) error {
	session, err := openWorkspace(ctx)
	if err != nil {
		return err
	}

	statuses, err := session.manager.ClassifyClusters(ctx, thresholdFor(months))
	if err != nil {
		return err
	}
	recs, err := session.manager.RecommendUpgrades(ctx, statuses)
	if err != nil {
		return err
	}
	rows := report.RuntimeRows(statuses, recs)

	if len(rows) == 0 && format == report.FormatTable {
		fmt.Fprintln(out, "No clusters found with deprecated or soon-to-be deprecated runtimes.")
	} else if err := report.WriteRuntimeRows(out, rows, format); err != nil {
		return err
	}

	if output != "" {
		if err := writeJSONFile(output, rows); err != nil {
			return err
		}
		fmt.Fprintf(out, "Results written to %s\n", output)
	}
	return nil
}

func runListRuntimes(ctx context.Context, out io.Writer, ltsOnly bool, format report.Format) error {
	session, err := openWorkspace(ctx)
	if err != nil {
		return err
	}

	var runtimes []lifecycle.RuntimeVersion
	if ltsOnly {
		runtimes, err = session.manager.ListLTSRuntimes(ctx)
	} else {
		runtimes, err = session.manager.ListAvailableRuntimes(ctx)
	}
	if err != nil {
		return err
	}
	return report.WriteRuntimes(out, runtimes, format)
}

func runCheckLibraries(ctx context.Context, out io.Writer, clusterID, output string, format report.Format) error {
	session, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	checker, err := session.libraryChecker()
	if err != nil {
		return err
	}

	findings, err := checker.CheckCluster(ctx, clusterID)
	if err != nil {
		return err
	}

	if len(findings) == 0 && format == report.FormatTable {
		fmt.Fprintln(out, "No outdated or vulnerable libraries found.")
	} else if err := report.WriteFindings(out, findings, format); err != nil {
		return err
	}

	if output != "" {
		if findings == nil {
			findings = []libraries.Finding{}
		}
		if err := writeJSONFile(output, findings); err != nil {
			return err
		}
		fmt.Fprintf(out, "Results written to %s\n", output)
	}
	return nil
}

func runGenerateReport(ctx context.Context, out io.Writer, output string, months int) error {
	session, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	checker, err := session.libraryChecker()
	if err != nil {
		return err
	}

	runner := maintenance.NewRunner(session.client, session.manager, checker, session.cfg.Report.MaxLibraryClusters, session.logger)
	res, err := runner.Run(ctx, thresholdFor(months))
	if err != nil {
		return err
	}
	if res.LibraryScan != nil && !res.LibraryScan.Success {
		session.logger.Warnf("Library scan incomplete: %s", res.LibraryScan.Error)
	}

	name := workspaceName
	if name == "" {
		name = config.DefaultWorkspace
	}
	doc := report.NewDocument(name, res, time.Now())
	var buf bytes.Buffer
	if err := report.WriteHTML(&buf, doc); err != nil {
		return err
	}
	if err := utils.WriteFileAtomic(output, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", output, err)
	}

	session.logger.Infof("Report %s generated in %v", doc.RunID, res.RuntimeScan.Duration)
	fmt.Fprintf(out, "Report generated at %s\n", output)
	return nil
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results to JSON: %w", err)
	}
	if err := utils.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// runVersion displays version information
func runVersion(out io.Writer) {
	fmt.Fprintf(out, "Databricks Maintenance Toolkit\n")
	fmt.Fprintf(out, "Version: %s\n", Version)
	fmt.Fprintf(out, "Git Commit: %s\n", GitCommit)
	fmt.Fprintf(out, "Build Time: %s\n", BuildTime)
}
