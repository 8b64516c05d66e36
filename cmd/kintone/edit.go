package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/artpar/kintone/adapters/remote"
	"github.com/artpar/kintone/core/schema"
	"github.com/artpar/kintone/core/validation"
	"github.com/artpar/kintone/domain/attachment"
	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a record",
	Long: `Create a record from --set and --attach values.

Values are checked against the app's form before anything is sent; files
are uploaded first.

Examples:
  kintone add --set title=Invoice --set amount=120 --set tags=a,b
  kintone add --set title=Scan --attach files=scan.pdf`,
	Args: cobra.NoArgs,
	RunE: runAdd,
}

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update fields of a record",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpdate,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete records",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDelete,
}

var (
	editSets     []string
	editAttaches []string
	editRevision int64
)

func init() {
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(deleteCmd)

	for _, cmd := range []*cobra.Command{addCmd, updateCmd} {
		cmd.Flags().StringArrayVarP(&editSets, "set", "s", nil, "field value code=value; lists are comma separated (repeatable)")
		cmd.Flags().StringArrayVar(&editAttaches, "attach", nil, "attach a file code=path (repeatable)")
	}
	updateCmd.Flags().Int64Var(&editRevision, "revision", 0, "expected revision; 0 skips the check")
}

// buildRecord fills a new record from code=value assignments and
// code=path attachments.
func buildRecord(form map[string]*schema.Field, sets, attaches []string) (*schema.Record, error) {
	rec := schema.NewRecord()

	for _, s := range sets {
		code, raw, err := parseAssignment(s)
		if err != nil {
			return nil, err
		}
		f, ok := form[code]
		if !ok {
			return nil, fmt.Errorf("unknown field %q", code)
		}
		v, err := fieldValue(f, raw)
		if err != nil {
			return nil, err
		}
		field := f.Blank()
		if err := field.SetValue(v); err != nil {
			return nil, err
		}
		rec.AddField(field)
	}

	for _, a := range attaches {
		code, path, err := parseAssignment(a)
		if err != nil {
			return nil, err
		}
		field := rec.Field(code)
		if field == nil {
			f, ok := form[code]
			if !ok {
				return nil, fmt.Errorf("unknown field %q", code)
			}
			field = f.Blank()
			rec.AddField(field)
		}
		file, err := readAttachment(path, "")
		if err != nil {
			return nil, err
		}
		if err := field.AddFile(file); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func readAttachment(path, contentType string) (*attachment.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	if contentType == "" {
		contentType = detectContentType(path, data)
	}
	return attachment.New(data, filepath.Base(path), contentType), nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	s, err := newSession(nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	form, err := s.api.Form(ctx)
	if err != nil {
		return err
	}
	rec, err := buildRecord(form, editSets, editAttaches)
	if err != nil {
		return err
	}
	if err := validation.New(form).ValidateInsert(rec).Err(); err != nil {
		return err
	}

	n, err := s.api.UploadPending(ctx, rec)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info().Int("files", n).Msg("attachments uploaded")
	}

	ref, err := s.api.Insert(ctx, rec)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Created record %d (revision %d)\n", checkMark, ref.ID, ref.Revision)
	return nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	id, err := parseRecordID(args[0])
	if err != nil {
		return err
	}
	if len(editSets) == 0 && len(editAttaches) == 0 {
		return fmt.Errorf("nothing to update: use --set or --attach")
	}
	s, err := newSession(nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	form, err := s.api.Form(ctx)
	if err != nil {
		return err
	}
	rec, err := buildRecord(form, editSets, editAttaches)
	if err != nil {
		return err
	}
	if err := validation.New(form).ValidateUpdate(rec).Err(); err != nil {
		return err
	}

	if _, err := s.api.UploadPending(ctx, rec); err != nil {
		return err
	}
	rev, err := s.api.Update(ctx, id, rec, editRevision)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Updated record %d (revision %d)\n", checkMark, id, rev)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	ids := make([]int64, len(args))
	for i, arg := range args {
		id, err := parseRecordID(arg)
		if err != nil {
			return err
		}
		ids[i] = id
	}
	s, err := newSession(nil)
	if err != nil {
		return err
	}

	for start := 0; start < len(ids); start += remote.MaxBulkRecords {
		end := min(start+remote.MaxBulkRecords, len(ids))
		if err := s.api.BulkDelete(cmd.Context(), ids[start:end], nil); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted %d records\n", checkMark, len(ids))
	return nil
}

func parseRecordID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid record id %q", s)
	}
	return id, nil
}
