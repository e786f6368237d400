package conversationscmder

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatstream/cmd/chatstream/cmdutil"
	"github.com/papercomputeco/chatstream/pkg/cliui"
	"github.com/papercomputeco/chatstream/pkg/storage"
)

func newExportCmd() *cobra.Command {
	var output string

	cmd := withStore(&cobra.Command{
		Use:   "export",
		Short: "Export every conversation as a JSON archive",
		Args:  cobra.NoArgs,
	}, func(ctx context.Context, cmd *cobra.Command, _ *cmdutil.Settings, store storage.Driver, _ []string) error {
		if output == "" || output == "-" {
			return storage.Export(ctx, store, cmd.OutOrStdout())
		}

		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("creating %s: %w", output, err)
		}
		if err := storage.Export(ctx, store, f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("writing %s: %w", output, err)
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "  %s Exported to %s\n", cliui.SuccessMark, output)
		return nil
	})

	cmd.Flags().StringVarP(&output, "output", "o", "", "File to write (default: stdout)")
	return cmd
}

func newImportCmd() *cobra.Command {
	return withStore(&cobra.Command{
		Use:   "import <file|->",
		Short: "Import a JSON archive, replacing conversations with the same id",
		Args:  cobra.ExactArgs(1),
	}, runImport)
}

func runImport(ctx context.Context, cmd *cobra.Command, _ *cmdutil.Settings, store storage.Driver, args []string) error {
	var r io.Reader
	if args[0] == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening archive: %w", err)
		}
		defer f.Close()
		r = f
	}

	merged, err := storage.Import(ctx, store, r)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "  %s Imported archive, %d conversations stored\n", cliui.SuccessMark, len(merged))
	return nil
}
