package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kuitang/hostdesk/internal/webhosting"
)

// planFile is the YAML document accepted by "plans apply":
//
//	plans:
//	  - name: Starter
//	    constraints:
//	      storage_size: 10 GiB
//	      monthly_traffic: 100
//	    capabilities:
//	      php: {version: "8.3"}
//	      ssh: {}
type planFile struct {
	Plans []planEntry `yaml:"plans"`
}

type planEntry struct {
	Name         string                       `yaml:"name"`
	Constraints  webhosting.Constraints       `yaml:"constraints"`
	Capabilities map[string]map[string]string `yaml:"capabilities"`
}

func (p planEntry) capabilities() webhosting.Capabilities {
	caps := make([]webhosting.Capability, 0, len(p.Capabilities))
	for name, cfg := range p.Capabilities {
		if len(cfg) == 0 {
			cfg = nil
		}
		caps = append(caps, webhosting.Capability{Name: name, Config: cfg})
	}
	return webhosting.NewCapabilities(caps...)
}

func parsePlanFile(data []byte) (planFile, error) {
	var f planFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return planFile{}, fmt.Errorf("parse plan file: %w", err)
	}
	seen := make(map[string]bool, len(f.Plans))
	for i, p := range f.Plans {
		if p.Name == "" {
			return planFile{}, fmt.Errorf("plan #%d has no name", i+1)
		}
		if seen[p.Name] {
			return planFile{}, fmt.Errorf("plan %q is listed twice", p.Name)
		}
		seen[p.Name] = true
		if err := p.Constraints.Validate(); err != nil {
			return planFile{}, fmt.Errorf("plan %q: %w", p.Name, err)
		}
		if err := p.capabilities().Validate(); err != nil {
			return planFile{}, fmt.Errorf("plan %q: %w", p.Name, err)
		}
	}
	return f, nil
}

func newPlansCmd(opts *globalOptions) *cobra.Command {
	plansCmd := &cobra.Command{
		Use:   "plans",
		Short: "List and apply webhosting plans",
	}
	plansCmd.AddCommand(newPlansListCmd(opts), newPlansApplyCmd(opts))
	return plansCmd
}

func newPlansListCmd(opts *globalOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := opts.openDB()
			if err != nil {
				return err
			}
			defer database.Close()

			plans, err := webhosting.NewPlanService(database).List(cmd.Context())
			if err != nil {
				return err
			}
			switch format {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(plans)
			case "human":
				return printPlans(cmd.OutOrStdout(), plans)
			default:
				return fmt.Errorf("unknown format %q (json, human)", format)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "human", "Output format (json, human)")
	return cmd
}

func printPlans(w io.Writer, plans []webhosting.Plan) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTORAGE\tTRAFFIC (GiB)\tMAILBOXES\tCAPABILITIES\tID")
	for _, p := range plans {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			p.Name,
			p.Constraints.StorageSize.Format(),
			countLabel(p.Constraints.MonthlyTraffic),
			countLabel(p.Constraints.Email.MaximumMailboxCount),
			p.Capabilities.Len(),
			p.ID,
		)
	}
	return tw.Flush()
}

func countLabel(n int) string {
	if n == webhosting.Unlimited {
		return "unlimited"
	}
	return strconv.Itoa(n)
}

func newPlansApplyCmd(opts *globalOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "apply FILE",
		Short: "Create or update plans from a YAML file",
		Long: `Creates plans that do not exist yet and updates the constraints and capabilities of existing plans, matched by name.

Every entry is validated before anything is written. Each plan is then written in its own transaction; if a later write fails, plans already listed in the output stay applied.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			file, err := parsePlanFile(data)
			if err != nil {
				return err
			}

			database, err := opts.openDB()
			if err != nil {
				return err
			}
			defer database.Close()

			return applyPlans(cmd, webhosting.NewPlanService(database), file, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report changes without writing them")
	return cmd
}

func applyPlans(cmd *cobra.Command, svc *webhosting.PlanService, file planFile, dryRun bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	existing, err := svc.List(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]webhosting.Plan, len(existing))
	for _, p := range existing {
		byName[p.Name] = p
	}

	for _, entry := range file.Plans {
		caps := entry.capabilities()
		current, ok := byName[entry.Name]
		if !ok {
			if dryRun {
				fmt.Fprintf(out, "would create %s\n", entry.Name)
				continue
			}
			p, err := svc.Create(ctx, entry.Name, entry.Constraints, caps)
			if err != nil {
				return fmt.Errorf("create %s: %w", entry.Name, err)
			}
			fmt.Fprintf(out, "created %s (%s)\n", p.Name, p.ID)
			continue
		}

		changes := current.Constraints.Changes(entry.Constraints)
		diff := current.Capabilities.Diff(caps)
		if len(changes) == 0 && diff.Empty() {
			fmt.Fprintf(out, "unchanged %s\n", entry.Name)
			continue
		}
		if !dryRun {
			if _, _, _, err := svc.Update(ctx, current.ID, entry.Constraints, caps); err != nil {
				return fmt.Errorf("update %s: %w", entry.Name, err)
			}
		}
		fmt.Fprintf(out, "updated %s\n", entry.Name)
		for _, c := range changes {
			fmt.Fprintf(out, "  %s\n", c)
		}
		for _, n := range diff.Added {
			fmt.Fprintf(out, "  + capability %s\n", n)
		}
		for _, n := range diff.Removed {
			fmt.Fprintf(out, "  - capability %s\n", n)
		}
		for _, n := range diff.Changed {
			fmt.Fprintf(out, "  ~ capability %s\n", n)
		}
	}
	return nil
}
