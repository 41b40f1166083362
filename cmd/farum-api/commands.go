package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/farum-reflect/internal/app/summary"
	"github.com/PabloGalante/farum-reflect/internal/domain"
)

func newTemplatesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List the reflection templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tSTEPS\tFIELDS")
			for _, t := range a.templates.ListTemplates() {
				fields := 0
				for _, s := range t.Steps {
					fields += len(s.Fields)
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", t.ID, t.Title, len(t.Steps), fields)
			}
			return w.Flush()
		},
	}
}

func newSummaryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "summary <session-id>",
		Short: "Print the summary of a stored draft",
		Long: `Print the plain-text summary of the draft stored under a session id,
read from the configured draft backend.

Examples:
  farum-api summary 3f0c9a2e-5d7b-4a1e-9a57-2b1f2d8f6c11`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			stores, err := a.openStores(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer stores.Close()

			draft, err := stores.drafts.LoadDraft(ctx, domain.SessionID(args[0]))
			if err != nil {
				return err
			}
			tmpl, err := a.templates.GetTemplate(draft.TemplateID)
			if err != nil {
				return err
			}

			_, err = fmt.Fprint(cmd.OutOrStdout(), summary.Project(tmpl, draft.Answers))
			return err
		},
	}
}

func newRecordCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "record <session-id>",
		Short: "Print the completed reflection stored for a session",
		Long: `Read the completed reflection of a session back from the configured
record backend and print its summary. The record id is derived from the
session id, so this confirms whether a submission landed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			stores, err := a.openStores(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer stores.Close()

			reader, ok := stores.records.(domain.RecordReader)
			if !ok {
				return fmt.Errorf("record backend %s cannot read records", a.cfg.RecordBackend)
			}
			rec, err := reader.GetRecord(ctx, domain.RecordIDFor(domain.SessionID(args[0])))
			if err != nil {
				return err
			}
			tmpl, err := a.templates.GetTemplate(rec.TemplateID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "record %s\nuser %s\ncompleted %s\n\n", rec.ID, rec.UserID, rec.CompletedAt.UTC().Format(time.RFC3339))
			_, err = fmt.Fprint(out, summary.Project(tmpl, rec.Answers))
			return err
		},
	}
}

func newDraftsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "drafts",
		Short: "List stored drafts",
		Long: `List every draft in the configured draft backend. Drafts are never
purged automatically; this is how an operator finds abandoned ones.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			stores, err := a.openStores(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer stores.Close()

			lister, ok := stores.drafts.(domain.DraftLister)
			if !ok {
				return fmt.Errorf("draft backend %s cannot list drafts", a.cfg.DraftBackend)
			}
			drafts, err := lister.ListDrafts(ctx)
			if err != nil {
				return err
			}
			return printDrafts(cmd, drafts)
		},
	}
}

func printDrafts(cmd *cobra.Command, drafts []*domain.Draft) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tTEMPLATE\tSTATUS\tSTEP\tCHANGED")
	for _, d := range drafts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			d.SessionID, d.TemplateID, d.Status, d.CurrentStep+1, d.LastMutatedAt.UTC().Format(time.RFC3339))
	}
	return w.Flush()
}
