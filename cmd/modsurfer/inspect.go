package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dylibso/modsurfer/module"
)

type inspectCmd struct {
	gs          *globalState
	path        string
	interactive bool
}

func (c *inspectCmd) run(cmd *cobra.Command, _ []string) error {
	if c.interactive {
		return runInteractive(c.gs, c.path)
	}

	m, err := loadModule(c.gs, c.path)
	if err != nil {
		return err
	}

	if c.gs.jsonOutput() {
		out, err := json.MarshalIndent(summaryJSON(m), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(c.gs.stdout, string(out))
		return nil
	}

	width := 100
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 40 {
		width = w
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Width(min(width, 100)).
		StyleFunc(func(row, col int) lipgloss.Style {
			return lipgloss.NewStyle().Padding(0, 1)
		})
	t.Row("Hash", m.Hash)
	t.Row("Size", humanize.IBytes(m.Size))
	t.Row("Language", m.SourceLanguage.String())
	t.Row("Imports", fmt.Sprintf("%d", len(m.Imports)))
	t.Row("Exports", fmt.Sprintf("%d", len(m.Exports)))
	t.Row("Namespaces", strings.Join(m.ImportNamespaces(), ", "))
	t.Row("Memories", fmt.Sprintf("%d", len(m.Memories)))
	t.Row("Tables", fmt.Sprintf("%d", len(m.Tables)))
	t.Row("Globals", fmt.Sprintf("%d", m.Globals))
	t.Row("Complexity", fmt.Sprintf("%d (%s)", m.Complexity.Score, m.Complexity.Risk))
	t.Row("Strings", fmt.Sprintf("%d", len(m.Strings)))
	fmt.Fprintln(c.gs.stdout, t.String())

	if len(m.Imports) > 0 {
		fmt.Fprintln(c.gs.stdout, "Imports:")
		for _, imp := range m.Imports {
			fmt.Fprintf(c.gs.stdout, "  %s.%s%s\n", imp.Namespace, imp.Name, signatureLabel(imp.Func))
		}
	}
	if len(m.Exports) > 0 {
		fmt.Fprintln(c.gs.stdout, "Exports:")
		for _, exp := range m.Exports {
			if exp.Kind == module.ExportFunction {
				fmt.Fprintf(c.gs.stdout, "  %s%s\n", exp.Name, signatureLabel(exp.Func))
			} else {
				fmt.Fprintf(c.gs.stdout, "  %s (%s)\n", exp.Name, strings.ToLower(exp.Kind.String()))
			}
		}
	}
	return nil
}

type summaryOut struct {
	Hash           string   `json:"hash"`
	SizeBytes      uint64   `json:"size_bytes"`
	SourceLanguage string   `json:"source_language"`
	Imports        int      `json:"imports"`
	Exports        int      `json:"exports"`
	Namespaces     []string `json:"namespaces"`
	Memories       int      `json:"memories"`
	Tables         int      `json:"tables"`
	Globals        int      `json:"globals"`
	Complexity     uint32   `json:"complexity"`
	Risk           string   `json:"risk"`
	Strings        int      `json:"strings"`
}

func summaryJSON(m *module.Module) summaryOut {
	return summaryOut{
		Hash:           m.Hash,
		SizeBytes:      m.Size,
		SourceLanguage: m.SourceLanguage.String(),
		Imports:        len(m.Imports),
		Exports:        len(m.Exports),
		Namespaces:     m.ImportNamespaces(),
		Memories:       len(m.Memories),
		Tables:         len(m.Tables),
		Globals:        m.Globals,
		Complexity:     m.Complexity.Score,
		Risk:           m.Complexity.Risk.String(),
		Strings:        len(m.Strings),
	}
}

func signatureLabel(fn *module.FunctionType) string {
	if fn == nil {
		return ""
	}
	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = strings.ToLower(p.String())
	}
	out := "(" + strings.Join(params, ", ") + ")"
	if len(fn.Results) > 0 {
		results := make([]string, len(fn.Results))
		for i, r := range fn.Results {
			results[i] = strings.ToLower(r.String())
		}
		out += " -> " + strings.Join(results, ", ")
	}
	return out
}

func getCmdInspect(gs *globalState) *cobra.Command {
	inspectCmd := &inspectCmd{gs: gs}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show a module's summary",
		Long:  "Decode a wasm module and print its summary: hash, size, language, imports, exports, and complexity. Use -i for an interactive browser.",
		Args:  cobra.NoArgs,
		RunE:  inspectCmd.run,
	}
	cmd.Flags().StringVarP(&inspectCmd.path, "path", "p", "", "path to the wasm module")
	cmd.Flags().BoolVarP(&inspectCmd.interactive, "interactive", "i", false, "browse the module interactively")
	cmd.MarkFlagRequired("path")
	return cmd
}
