package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/artpar/kintone/core/schema"
	"github.com/artpar/kintone/domain/attachment"
	"github.com/spf13/cobra"
)

var formCmd = &cobra.Command{
	Use:   "form",
	Short: "Print the field schema of the app",
	Args:  cobra.NoArgs,
	RunE:  runForm,
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print one record",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Query records",
	Long: `Query records of the app.

Conditions are code<op>value, typed through the app's form:
  =  !=  >  <  >=  <=  in  not in  like  not like

Examples:
  kintone list --where 'status=Done' --where 'amount >= 100'
  kintone list --where 'owner in alice,LOGINUSER()' --order $id --desc --limit 20
  kintone list --where 'due < TODAY()' --or --where 'status=Late'
  kintone list --query 'title like "report" limit 5' --fields title,amount`,
	Args: cobra.NoArgs,
	RunE: runList,
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Render a query without running it",
	Args:  cobra.NoArgs,
	RunE:  runQuery,
}

var (
	formJSON   bool
	getJSON    bool
	listFlags  listOptions
	queryFlags listOptions
	listFields []string
	listJSON   bool
)

func addListFlags(cmd *cobra.Command, v *listOptions) {
	cmd.Flags().StringArrayVarP(&v.where, "where", "w", nil, "condition code<op>value (repeatable)")
	cmd.Flags().BoolVar(&v.or, "or", false, "join conditions with or instead of and")
	cmd.Flags().StringVar(&v.order, "order", "", "field code to sort by")
	cmd.Flags().BoolVar(&v.desc, "desc", false, "sort descending")
	cmd.Flags().IntVar(&v.limit, "limit", -1, "maximum records (kintone caps at 500)")
	cmd.Flags().IntVar(&v.offset, "offset", -1, "records to skip")
}

func init() {
	rootCmd.AddCommand(formCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(queryCmd)

	formCmd.Flags().BoolVar(&formJSON, "json", false, "print the raw form JSON")
	getCmd.Flags().BoolVar(&getJSON, "json", false, "print the record as JSON")

	addListFlags(listCmd, &listFlags)
	listCmd.Flags().String("query", "", "raw query, instead of --where/--order/--limit/--offset")
	listCmd.Flags().StringSliceVarP(&listFields, "fields", "f", nil, "field codes to fetch and print as a table")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "print JSON lines even with --fields")

	addListFlags(queryCmd, &queryFlags)
}

func runForm(cmd *cobra.Command, args []string) error {
	s, err := newSession(nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if formJSON {
		data, err := s.api.FormJSON(ctx)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(append(data, '\n'))
		return err
	}

	form, err := s.api.Form(ctx)
	if err != nil {
		return err
	}
	printForm(cmd.OutOrStdout(), form)
	return nil
}

func printForm(out io.Writer, form map[string]*schema.Field) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tTYPE\tLABEL\tREQUIRED\tOPTIONS")
	for _, code := range sortedFormCodes(form) {
		f := form[code]
		printFormRow(w, code, f)
		if f.Type() == schema.FieldTypeSubtable {
			cols := f.Fields()
			for _, col := range sortedFormCodes(cols) {
				printFormRow(w, code+"."+col, cols[col])
			}
		}
	}
	w.Flush()
}

func printFormRow(w io.Writer, code string, f *schema.Field) {
	required := ""
	if f.Required() {
		required = "yes"
	}
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", code, f.WireName(), f.Label(), required, strings.Join(f.Options(), ","))
}

func sortedFormCodes(form map[string]*schema.Field) []string {
	codes := make([]string, 0, len(form))
	for code := range form {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func runGet(cmd *cobra.Command, args []string) error {
	id, err := parseRecordID(args[0])
	if err != nil {
		return err
	}
	s, err := newSession(nil)
	if err != nil {
		return err
	}

	rec, err := s.api.Record(cmd.Context(), id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if getJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tTYPE\tVALUE")
	for _, f := range rec.Fields() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", f.Code(), f.WireName(), formatValue(f))
	}
	return w.Flush()
}

func runList(cmd *cobra.Command, args []string) error {
	raw, _ := cmd.Flags().GetString("query")
	if raw != "" && (listFlags.needsForm() || listFlags.limit >= 0 || listFlags.offset >= 0) {
		return fmt.Errorf("--query cannot be combined with --where, --order, --limit or --offset")
	}

	s, err := newSession(nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	q := raw
	if q == "" {
		q, err = renderQuery(ctx, s, listFlags)
		if err != nil {
			return err
		}
	}
	s.logger.Debug().Str("query", q).Msg("listing records")

	page, err := s.api.Records(ctx, listFields, q, true)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(listFields) > 0 && !listJSON {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, strings.ToUpper(schema.CodeID)+"\t"+strings.Join(listFields, "\t"))
		for _, rec := range page.Records {
			id, _ := rec.ID()
			cells := make([]string, len(listFields))
			for i, code := range listFields {
				if f := rec.Field(code); f != nil {
					cells[i] = formatValue(f)
				}
			}
			fmt.Fprintf(w, "%d\t%s\n", id, strings.Join(cells, "\t"))
		}
		if err := w.Flush(); err != nil {
			return err
		}
	} else {
		enc := json.NewEncoder(out)
		for _, rec := range page.Records {
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
	}

	if page.TotalCount >= 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d records\n", len(page.Records), page.TotalCount)
	}
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	var form map[string]*schema.Field
	if queryFlags.needsForm() {
		s, err := newSession(nil)
		if err != nil {
			return err
		}
		if form, err = s.api.Form(cmd.Context()); err != nil {
			return err
		}
	}
	q, err := buildListQuery(form, queryFlags)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), q)
	return nil
}

// renderQuery fetches the form only when a condition or ordering needs it.
func renderQuery(ctx context.Context, s *session, v listOptions) (string, error) {
	var form map[string]*schema.Field
	if v.needsForm() {
		var err error
		if form, err = s.api.Form(ctx); err != nil {
			return "", err
		}
	}
	return buildListQuery(form, v)
}

// formatValue renders a field value for a table cell.
func formatValue(f *schema.Field) string {
	switch v := f.Value().(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []string:
		return strings.Join(v, ",")
	case schema.User:
		return v.Code
	case []schema.User:
		codes := make([]string, len(v))
		for i, u := range v {
			codes[i] = u.Code
		}
		return strings.Join(codes, ",")
	case []*attachment.File:
		names := make([]string, len(v))
		for i, file := range v {
			names[i] = file.Name()
		}
		return strings.Join(names, ",")
	case []*schema.Record:
		return fmt.Sprintf("%d rows", len(v))
	}
	if t, ok := f.Time(); ok {
		switch f.Descriptor().Shape {
		case schema.ShapeDate:
			return t.Format(schema.DateLayout)
		case schema.ShapeTime:
			return t.Format(schema.TimeLayout)
		}
		return t.Format(schema.DatetimeLayout)
	}
	return fmt.Sprint(f.Value())
}
