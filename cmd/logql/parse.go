package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/coffersTech/logql/internal/pkg/logql"
)

func newParseCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "parse [query]",
		Short: "Parse a query and print its syntax tree",
		Long: "Parse a query and print its syntax tree.\n" +
			"Arguments are joined with spaces; without arguments the query is read from stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				query = strings.TrimRight(string(data), "\r\n")
			}

			q, err := logql.Parse(query)
			if err != nil {
				return err
			}
			return writeQuery(cmd.OutOrStdout(), q, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "tree", "Output format: tree, json, yaml, query")
	return cmd
}

func writeQuery(w io.Writer, q *logql.Query, format string) error {
	switch format {
	case "tree":
		_, err := io.WriteString(w, q.Tree().String())
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(q.Tree())
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(q.Tree()); err != nil {
			return err
		}
		return enc.Close()
	case "query":
		_, err := fmt.Fprintln(w, q.String())
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
