package cli

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/roach88/relq/internal/catalog"
	"github.com/roach88/relq/internal/querysql"
)

// CatalogOptions holds flags for the catalog command.
type CatalogOptions struct {
	*RootOptions
	Dialect string
	DDL     bool
}

// CatalogTable is one table in catalog output.
type CatalogTable struct {
	Name       string            `json:"name"`
	PrimaryKey string            `json:"primary_key"`
	Columns    []CatalogColumn   `json:"columns"`
	References map[string]string `json:"references,omitempty"`
	DDL        string            `json:"ddl,omitempty"`
}

// CatalogColumn is one column in catalog output.
type CatalogColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CatalogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "catalog <file.cue|dir>",
		Short: "Validate and describe a table catalog",
		Long: `Load a CUE table catalog, check its primary keys and references, and
list its tables. With --ddl, print the CREATE TABLE statements the
harness seeds for the chosen dialect.

A directory is loaded as a CUE package.

Examples:
  relq catalog scenarios/blog.cue
  relq catalog ./catalog --ddl --dialect postgres
  relq catalog scenarios/blog.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalog(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dialect, "dialect", "", "dialect for --ddl (default from config)")
	cmd.Flags().BoolVar(&opts.DDL, "ddl", false, "include CREATE TABLE statements")

	return cmd
}

func runCatalog(opts *CatalogOptions, path string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	dialect, err := dialectFlag(cmd, "dialect", opts.Dialect, opts.Config.Dialect)
	if err != nil {
		return err
	}

	cat, err := loadCatalog(opts.Fs, path)
	if err != nil {
		_ = out.Error(CodeLoad, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load catalog", err)
	}

	tables := make([]CatalogTable, 0)
	for _, t := range cat.Tables() {
		ct := CatalogTable{Name: t.Name, PrimaryKey: t.PrimaryKey}
		for _, c := range t.Columns {
			ct.Columns = append(ct.Columns, CatalogColumn{Name: c.Name, Type: string(c.Type)})
		}
		if len(t.References) > 0 {
			ct.References = make(map[string]string, len(t.References))
			for col, target := range t.References {
				ct.References[col] = target.String()
			}
		}
		if opts.DDL {
			text, err := querysql.RenderCreateTable(t.Def(), dialect)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to render DDL for "+t.Name, err)
			}
			ct.DDL = text.SQL
		}
		tables = append(tables, ct)
	}
	opts.Logger.Debug("catalog loaded", "path", path, "tables", len(tables))

	if out.JSON() {
		return out.Success(map[string]any{"tables": tables})
	}
	for _, ct := range tables {
		printCatalogTable(out, ct, opts.DDL)
	}
	return nil
}

// loadCatalog reads a catalog file or a directory of catalog files through
// fs. Only the OS filesystem gets the full CUE loader with imports.
func loadCatalog(fs afero.Fs, path string) (*catalog.Catalog, error) {
	isDir, err := afero.IsDir(fs, path)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	if isDir {
		if _, onDisk := fs.(*afero.OsFs); onDisk {
			return catalog.LoadDir(path)
		}
		return catalog.LoadFs(fs, path)
	}
	src, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return catalog.Parse(path, src)
}

func printCatalogTable(out *OutputFormatter, ct CatalogTable, ddl bool) {
	if ddl {
		out.Text("%s;", ct.DDL)
		return
	}
	out.Text("%s (primary key %s)", ct.Name, ct.PrimaryKey)
	for _, c := range ct.Columns {
		if target, ok := ct.References[c.Name]; ok {
			out.Text("  %-12s %-10s -> %s", c.Name, c.Type, target)
			continue
		}
		out.Text("  %-12s %s", c.Name, c.Type)
	}
}
