package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/vayureader/vayu-cli/internal/adapters/catalog"
)

func newAPICmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api",
		Short: "Call a Vayu Reader endpoint with the stored session",
	}

	cmd.AddCommand(newAPIGetCmd(app))

	return cmd
}

func newAPIGetCmd(app *app) *cobra.Command {
	var base string

	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Send an authenticated GET request and print the JSON response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := app.gatewayFor(base)
			if err != nil {
				return err
			}

			app.currentSession(cmd.Context())

			var raw json.RawMessage
			if err := g.DoJSON(cmd.Context(), http.MethodGet, args[0], nil, &raw); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), raw)
		},
	}

	cmd.Flags().StringVar(&base, "base", basePDF, "Service to call: auth, pdf, dictionary or abbreviation")

	return cmd
}

func newPDFsCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pdfs",
		Short: "Browse the document library",
	}

	var query catalog.PDFQuery
	list := &cobra.Command{
		Use:   "list",
		Short: "List documents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app.currentSession(cmd.Context())

			raw, err := app.catalog.ListPDFs(cmd.Context(), query)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), raw)
		},
	}
	list.Flags().IntVar(&query.Page, "page", 0, "Page number")
	list.Flags().IntVar(&query.Limit, "limit", 0, "Page size")
	list.Flags().StringVar(&query.Search, "search", "", "Filter by title")

	cmd.AddCommand(list)

	return cmd
}

func newDictionaryCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dictionary",
		Short: "Look up dictionary entries",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "search <word>",
		Short: "Search the dictionary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app.currentSession(cmd.Context())

			raw, err := app.catalog.SearchDictionary(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), raw)
		},
	})

	return cmd
}

func newAbbreviationsCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "abbreviations",
		Short: "Look up abbreviations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "search <term>",
		Short: "Search abbreviations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app.currentSession(cmd.Context())

			raw, err := app.catalog.SearchAbbreviations(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), raw)
		},
	})

	return cmd
}

// writeJSON pretty prints raw, or writes it as is when it is not valid JSON.
func writeJSON(out io.Writer, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, err = fmt.Fprintln(out, strconv.Quote(string(raw)))
		return err
	}

	buf.WriteByte('\n')
	_, err := out.Write(buf.Bytes())
	return err
}
