package cmd

import (
	"errors"
	"fmt"

	"github.com/manudelosrios02/datalogger/internal/errcode"
	"github.com/manudelosrios02/datalogger/internal/storage"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored recordings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fsys := afero.NewBasePathFs(afero.NewReadOnlyFs(afero.NewOsFs()), cfg.Storage.Directory)
		entries, err := storage.New(fsys).List()
		if errors.Is(err, errcode.StorageUnavailable) {
			fmt.Printf("%s: no recordings\n", cfg.Storage.Directory)
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Printf("%s (%d files)\n", cfg.Storage.Directory, len(entries))
		for _, e := range entries {
			fmt.Printf("  %-12s %10d  %s\n", e.Name, e.Size, e.ModTime.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}
