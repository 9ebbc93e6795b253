package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/geopower/internal/source"
	"github.com/go-gota/gota/dataframe"
	"github.com/spf13/cobra"
)

// readFrame loads a CSV/TSV/XLSX dataset. sheet is only used for workbooks.
func readFrame(path, sheet string) (dataframe.DataFrame, error) {
	if sheet != "" {
		return source.LoadXLSX(path, sheet)
	}
	return source.Load(path)
}

// writeFrame writes df to path (CSV or XLSX by extension) or to the command's
// stdout as CSV when path is empty.
func writeFrame(cmd *cobra.Command, df dataframe.DataFrame, path string) error {
	if path == "" {
		return df.WriteCSV(cmd.OutOrStdout())
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		if err := source.WriteXLSX(df, path, "data"); err != nil {
			return err
		}
	case ".csv", "":
		if err := source.WriteCSV(df, path); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported output extension: %s (use .csv or .xlsx)", filepath.Ext(path))
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s Wrote %d rows to %s\n", okMark, df.Nrow(), path)
	return nil
}
