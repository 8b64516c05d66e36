package main

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a file and print its file key",
	Long: `Upload a file to kintone's temporary storage.

The printed file key can be set on a FILE field within three days.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

var downloadCmd = &cobra.Command{
	Use:   "download <fileKey>",
	Short: "Download an attachment",
	Args:  cobra.ExactArgs(1),
	RunE:  runDownload,
}

var (
	uploadContentType string
	downloadOutput    string
)

func init() {
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(downloadCmd)

	uploadCmd.Flags().StringVar(&uploadContentType, "content-type", "", "MIME type (default: from the extension or content)")
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "write to this file instead of stdout")
}

func runUpload(cmd *cobra.Command, args []string) error {
	file, err := readAttachment(args[0], uploadContentType)
	if err != nil {
		return err
	}
	s, err := newSession(nil)
	if err != nil {
		return err
	}

	if err := s.api.FileUpload(cmd.Context(), file); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), file.FileKey())
	return nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	s, err := newSession(nil)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if downloadOutput != "" {
		f, err := os.Create(downloadOutput)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	n, err := s.api.FileDownload(cmd.Context(), args[0], w)
	if err != nil {
		return err
	}
	if downloadOutput != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s Wrote %d bytes to %s\n", checkMark, n, downloadOutput)
	}
	return nil
}

// detectContentType prefers the extension and falls back to sniffing.
func detectContentType(path string, data []byte) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}
