package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/case-reconcile/internal/model"
	"github.com/sells-group/case-reconcile/internal/normalize"
	"github.com/sells-group/case-reconcile/internal/tabular"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Show how an input file's columns and case ids are normalized",
	Long:  "Loads and normalizes the input file without looking anything up. Useful to check header synonyms before a run.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		input, _ := cmd.Flags().GetString("input")
		synPath, _ := cmd.Flags().GetString("synonyms")
		if synPath == "" {
			synPath = cfg.Input.SynonymsFile
		}

		var syn normalize.Synonyms
		if synPath != "" {
			var err error
			if syn, err = normalize.LoadSynonyms(synPath); err != nil {
				return err
			}
		}

		raw, err := tabular.Load(cmd.Context(), input, tabular.Options{
			Charset: cfg.Input.Charset,
			Sheet:   cfg.Input.Sheet,
		})
		if err != nil {
			return eris.Wrap(err, "normalize")
		}
		ds, err := normalize.Normalize(raw, syn)
		if err != nil {
			return eris.Wrap(err, "normalize")
		}
		printNormalized(os.Stdout, ds)
		return nil
	},
}

func init() {
	normalizeCmd.Flags().String("input", "", "path to the input .csv or .xlsx file (required)")
	normalizeCmd.Flags().String("synonyms", "", "YAML file with extra header synonyms")
	_ = normalizeCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(normalizeCmd)
}

func printNormalized(w io.Writer, ds *model.Dataset) {
	rows := make([][]string, 0, len(ds.Columns))
	for i, c := range ds.Columns {
		rows = append(rows, []string{strconv.Itoa(i + 1), c.Name, c.Key})
	}
	fmt.Fprintln(w, renderTable([]string{"#", "Header", "Key"}, rows, []columnAlignment{alignRight}))

	s := normalize.Summarize(ds)
	fmt.Fprintln(w, renderTable(
		[]string{"Rows", "Unique Case IDs", "Duplicate Rows", "Missing Case IDs"},
		[][]string{{strconv.Itoa(s.Rows), strconv.Itoa(s.Unique), strconv.Itoa(s.Duplicates), strconv.Itoa(s.Missing)}},
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
	))
}
