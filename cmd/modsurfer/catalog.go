package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/dylibso/modsurfer/api"
	errs "github.com/dylibso/modsurfer/errors"
	"github.com/dylibso/modsurfer/module"
)

func newClient(gs *globalState) *api.Client {
	return api.New(gs.host, api.WithLogger(gs.logger))
}

// moduleRow is the flat listing form shared by get, list, and search.
type moduleRow struct {
	ModuleID   int64    `json:"module_id"`
	Hash       string   `json:"hash"`
	Exports    int      `json:"exports"`
	Imports    int      `json:"imports"`
	Namespaces []string `json:"namespaces"`
	Language   string   `json:"source_language"`
	Size       string   `json:"size"`
}

func toRow(p api.Persisted) moduleRow {
	summary := p.Module.ToSummary()
	return moduleRow{
		ModuleID:   p.ModuleID,
		Hash:       p.Module.Hash,
		Exports:    len(summary.Exports),
		Imports:    len(summary.Imports),
		Namespaces: summary.ImportNamespaces(),
		Language:   p.Module.SourceLanguage,
		Size:       humanize.IBytes(p.Module.Size),
	}
}

func printRows(gs *globalState, rows []moduleRow) error {
	if gs.jsonOutput() {
		out, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(gs.stdout, string(out))
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "Hash", "Exports", "Imports", "Namespaces", "Language", "Size").
		StyleFunc(func(row, col int) lipgloss.Style {
			return lipgloss.NewStyle().Padding(0, 1)
		})
	for _, r := range rows {
		hash := r.Hash
		if len(hash) > 12 {
			hash = hash[:12]
		}
		t.Row(
			fmt.Sprintf("%d", r.ModuleID),
			hash,
			fmt.Sprintf("%d", r.Exports),
			fmt.Sprintf("%d", r.Imports),
			strings.Join(r.Namespaces, ", "),
			r.Language,
			r.Size,
		)
	}
	fmt.Fprintln(gs.stdout, t.String())
	return nil
}

type createCmd struct {
	gs        *globalState
	path      string
	checkPath string
	location  string
	metadata  []string
}

func (c *createCmd) run(cmd *cobra.Command, _ []string) error {
	// Validate before storing when a checkfile is supplied; a failing
	// module is reported and never uploaded.
	if c.checkPath != "" {
		report, _, err := runValidation(cmd, c.gs, c.path, c.checkPath)
		if err != nil {
			return err
		}
		if report.HasFailures() {
			if c.gs.jsonOutput() {
				out, err := report.JSON()
				if err != nil {
					return err
				}
				fmt.Fprintln(c.gs.stdout, string(out))
			} else {
				fmt.Fprintln(c.gs.stdout, report.Table(true))
			}
			return &reportFailureError{}
		}
	}

	metadata := make(map[string]string, len(c.metadata))
	for _, raw := range c.metadata {
		key, value, ok := strings.Cut(raw, "=")
		if !ok {
			return errs.Config("invalid --metadata entry %q, want key=value", raw)
		}
		metadata[key] = value
	}

	wasm, err := afero.ReadFile(c.gs.fs, c.path)
	if err != nil {
		return errs.IO(errs.PhaseAPI, "read module "+c.path, err)
	}

	id, hash, err := newClient(c.gs).Create(cmd.Context(), wasm, metadata, c.location)
	if err != nil {
		return err
	}

	if c.gs.jsonOutput() {
		out, _ := json.MarshalIndent(map[string]any{"module_id": id, "hash": hash}, "", "  ")
		fmt.Fprintln(c.gs.stdout, string(out))
		return nil
	}
	fmt.Fprintf(c.gs.stdout, "created module %d (%s)\n", id, hash)
	return nil
}

func getCmdCreate(gs *globalState) *cobra.Command {
	createCmd := &createCmd{gs: gs}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Store a module in the catalog",
		Long:  "Upload a module to the catalog server, optionally validating it against a checkfile first.",
		Args:  cobra.NoArgs,
		RunE:  createCmd.run,
	}
	cmd.Flags().StringVarP(&createCmd.path, "path", "p", "", "path to the wasm module")
	cmd.Flags().StringVarP(&createCmd.checkPath, "check", "c", "", "checkfile to validate against before storing")
	cmd.Flags().StringVar(&createCmd.location, "location", "", "logical location URL recorded with the module")
	cmd.Flags().StringArrayVar(&createCmd.metadata, "metadata", nil, "metadata entries (key=value, repeatable)")
	cmd.MarkFlagRequired("path")
	return cmd
}

type getCmd struct {
	gs *globalState
	id int64
}

func (c *getCmd) run(cmd *cobra.Command, _ []string) error {
	persisted, err := newClient(c.gs).Get(cmd.Context(), c.id)
	if err != nil {
		return err
	}
	return printRows(c.gs, []moduleRow{toRow(*persisted)})
}

func getCmdGet(gs *globalState) *cobra.Command {
	getCmd := &getCmd{gs: gs}

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Fetch one stored module",
		Args:  cobra.NoArgs,
		RunE:  getCmd.run,
	}
	cmd.Flags().Int64Var(&getCmd.id, "id", 0, "module ID")
	cmd.MarkFlagRequired("id")
	return cmd
}

type listCmd struct {
	gs     *globalState
	offset uint32
	limit  uint32
}

func (c *listCmd) run(cmd *cobra.Command, _ []string) error {
	list, err := newClient(c.gs).List(cmd.Context(), c.offset, c.limit)
	if err != nil {
		return err
	}
	rows := make([]moduleRow, 0, len(list.Modules))
	for _, p := range list.Modules {
		rows = append(rows, toRow(p))
	}
	return printRows(c.gs, rows)
}

func getCmdList(gs *globalState) *cobra.Command {
	listCmd := &listCmd{gs: gs}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored modules",
		Args:  cobra.NoArgs,
		RunE:  listCmd.run,
	}
	cmd.Flags().Uint32Var(&listCmd.offset, "offset", 0, "pagination offset")
	cmd.Flags().Uint32Var(&listCmd.limit, "limit", 50, "pagination limit")
	return cmd
}

type searchCmd struct {
	gs           *globalState
	hash         string
	moduleName   string
	functionName string
	language     string
	text         string
	offset       uint32
	limit        uint32
}

func (c *searchCmd) run(cmd *cobra.Command, _ []string) error {
	query := api.SearchQuery{
		Hash:         c.hash,
		ModuleName:   c.moduleName,
		FunctionName: c.functionName,
		Offset:       c.offset,
		Limit:        c.limit,
	}
	if c.language != "" {
		query.SourceLanguage = module.ParseSourceLanguage(c.language).String()
	}
	if c.text != "" {
		query.Strings = []string{c.text}
	}

	list, err := newClient(c.gs).Search(cmd.Context(), query)
	if err != nil {
		return err
	}
	rows := make([]moduleRow, 0, len(list.Modules))
	for _, p := range list.Modules {
		rows = append(rows, toRow(p))
	}
	return printRows(c.gs, rows)
}

func getCmdSearch(gs *globalState) *cobra.Command {
	searchCmd := &searchCmd{gs: gs}

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search stored modules",
		Long:  "Search the catalog by hash, module name, function name, source language, or data-section text.",
		Args:  cobra.NoArgs,
		RunE:  searchCmd.run,
	}
	cmd.Flags().StringVar(&searchCmd.hash, "hash", "", "content hash")
	cmd.Flags().StringVar(&searchCmd.moduleName, "module-name", "", "module file name")
	cmd.Flags().StringVar(&searchCmd.functionName, "function-name", "", "imported or exported function name")
	cmd.Flags().StringVar(&searchCmd.language, "source-language", "", "source language")
	cmd.Flags().StringVar(&searchCmd.text, "text", "", "data-section text")
	cmd.Flags().Uint32Var(&searchCmd.offset, "offset", 0, "pagination offset")
	cmd.Flags().Uint32Var(&searchCmd.limit, "limit", 50, "pagination limit")
	return cmd
}

type deleteCmd struct {
	gs  *globalState
	ids []int64
}

func (c *deleteCmd) run(cmd *cobra.Command, _ []string) error {
	deleted, err := newClient(c.gs).Delete(cmd.Context(), c.ids)
	if err != nil {
		return err
	}
	if c.gs.jsonOutput() {
		out, _ := json.MarshalIndent(deleted, "", "  ")
		fmt.Fprintln(c.gs.stdout, string(out))
		return nil
	}
	for _, d := range deleted {
		fmt.Fprintf(c.gs.stdout, "deleted module %d (%s)\n", d.ModuleID, d.Hash)
	}
	return nil
}

func getCmdDelete(gs *globalState) *cobra.Command {
	deleteCmd := &deleteCmd{gs: gs}

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete stored modules",
		Args:  cobra.NoArgs,
		RunE:  deleteCmd.run,
	}
	cmd.Flags().Int64SliceVar(&deleteCmd.ids, "id", nil, "module ID (repeatable)")
	cmd.MarkFlagRequired("id")
	return cmd
}

type yankCmd struct {
	gs      *globalState
	id      int64
	version string
}

func (c *yankCmd) run(cmd *cobra.Command, _ []string) error {
	if err := newClient(c.gs).Yank(cmd.Context(), c.id, c.version); err != nil {
		return err
	}
	fmt.Fprintf(c.gs.stdout, "yanked module %d version %s\n", c.id, c.version)
	return nil
}

func getCmdYank(gs *globalState) *cobra.Command {
	yankCmd := &yankCmd{gs: gs}

	cmd := &cobra.Command{
		Use:   "yank",
		Short: "Withdraw a stored module version",
		Args:  cobra.NoArgs,
		RunE:  yankCmd.run,
	}
	cmd.Flags().Int64Var(&yankCmd.id, "id", 0, "module ID")
	cmd.Flags().StringVar(&yankCmd.version, "version", "", "version to yank")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("version")
	return cmd
}

type auditCmd struct {
	gs        *globalState
	checkPath string
	outcome   string
	offset    uint32
	limit     uint32
}

func (c *auditCmd) run(cmd *cobra.Command, _ []string) error {
	if c.outcome != string(api.AuditPass) && c.outcome != string(api.AuditFail) {
		return errs.Config("invalid --outcome %q, want pass or fail", c.outcome)
	}
	checkfileBytes, err := afero.ReadFile(c.gs.fs, c.checkPath)
	if err != nil {
		return errs.IO(errs.PhaseAPI, "read checkfile "+c.checkPath, err)
	}

	reports, err := newClient(c.gs).Audit(cmd.Context(), checkfileBytes, api.AuditOutcome(c.outcome), c.offset, c.limit)
	if err != nil {
		return err
	}

	if c.gs.jsonOutput() {
		out, err := json.MarshalIndent(reports, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(c.gs.stdout, string(out))
		return nil
	}
	for i, r := range reports {
		if i != 0 {
			fmt.Fprintln(c.gs.stdout)
		}
		fmt.Fprintf(c.gs.stdout, "Report for module: %d\n", r.ModuleID)
		fmt.Fprintln(c.gs.stdout, r.Report.Table(true))
	}
	return nil
}

func getCmdAudit(gs *globalState) *cobra.Command {
	auditCmd := &auditCmd{gs: gs}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit stored modules against a checkfile",
		Long:  "Ask the catalog server to validate every stored module against a checkfile and report those matching the requested outcome.",
		Args:  cobra.NoArgs,
		RunE:  auditCmd.run,
	}
	cmd.Flags().StringVarP(&auditCmd.checkPath, "check", "c", "mod.yaml", "path to the checkfile")
	cmd.Flags().StringVar(&auditCmd.outcome, "outcome", "fail", "filter by outcome (pass or fail)")
	cmd.Flags().Uint32Var(&auditCmd.offset, "offset", 0, "pagination offset")
	cmd.Flags().Uint32Var(&auditCmd.limit, "limit", 50, "pagination limit")
	return cmd
}
