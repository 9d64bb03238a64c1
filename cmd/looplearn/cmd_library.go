/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/looplearn/internal/config"
	"github.com/friendsincode/looplearn/internal/db"
	"github.com/friendsincode/looplearn/internal/library"
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Inspect and move saved loop lists",
}

var libraryListCmd = &cobra.Command{
	Use:   "ls",
	Short: "List saved loop lists",
	Args:  cobra.NoArgs,
	RunE:  runLibraryList,
}

var libraryShowCmd = &cobra.Command{
	Use:   "show <name|file.json>",
	Short: "Print a saved loop list",
	Args:  cobra.ExactArgs(1),
	RunE:  runLibraryShow,
}

var libraryValidateCmd = &cobra.Command{
	Use:   "validate <file.json>...",
	Short: "Check loop list files for corrupt data or invalid ranges",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runLibraryValidate,
}

var libraryImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Copy every list from the library folder into the database",
	Args:  cobra.NoArgs,
	RunE:  runLibraryImport,
}

var libraryExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Copy every list from the database into the library folder",
	Args:  cobra.NoArgs,
	RunE:  runLibraryExport,
}

var libraryDryRun bool

func init() {
	rootCmd.AddCommand(libraryCmd)
	libraryCmd.AddCommand(libraryListCmd, libraryShowCmd, libraryValidateCmd, libraryImportCmd, libraryExportCmd)

	libraryImportCmd.Flags().BoolVar(&libraryDryRun, "dry-run", false, "Report what would be copied without writing")
	libraryExportCmd.Flags().BoolVar(&libraryDryRun, "dry-run", false, "Report what would be copied without writing")
}

// openLibrary opens the configured backend. The returned func releases it.
func openLibrary(backend string) (library.Store, func(), error) {
	switch backend {
	case config.LibraryFolder:
		return library.NewFolderStore(cfg.LibraryDir, logger), func() {}, nil
	case config.LibraryDatabase:
		database, err := db.Connect(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		if err := db.Migrate(database); err != nil {
			_ = db.Close(database)
			return nil, nil, fmt.Errorf("migrate database: %w", err)
		}
		return library.NewSQLStore(database, logger), func() { _ = db.Close(database) }, nil
	default:
		return nil, nil, fmt.Errorf("unknown library backend: %s", backend)
	}
}

func runLibraryList(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	store, release, err := openLibrary(cfg.LibraryBackend)
	if err != nil {
		return err
	}
	defer release()

	entries, err := store.List(cmd.Context())
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTITLE\tMODIFIED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Name, e.Title, e.ModifiedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func runLibraryShow(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	ref := args[0]
	var (
		list any
		err  error
	)
	if info, statErr := os.Stat(ref); statErr == nil && !info.IsDir() {
		list, err = library.LoadFile(ref)
	} else {
		store, release, openErr := openLibrary(cfg.LibraryBackend)
		if openErr != nil {
			return openErr
		}
		defer release()
		list, err = store.Load(cmd.Context(), ref)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(list)
}

func runLibraryValidate(cmd *cobra.Command, args []string) error {
	var failed int
	for _, path := range args {
		list, err := library.LoadFile(path)
		switch {
		case err == nil:
			fmt.Fprintf(cmd.OutOrStdout(), "ok      %s (%d loops)\n", path, list.Len())
		case errors.Is(err, library.ErrCorrupt):
			failed++
			fmt.Fprintf(cmd.OutOrStdout(), "corrupt %s: %v\n", path, err)
		default:
			failed++
			fmt.Fprintf(cmd.OutOrStdout(), "error   %s: %v\n", path, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed validation", failed, len(args))
	}
	return nil
}

func runLibraryImport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	return copyLibrary(cmd.Context(), config.LibraryFolder, config.LibraryDatabase)
}

func runLibraryExport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	return copyLibrary(cmd.Context(), config.LibraryDatabase, config.LibraryFolder)
}

// copyLibrary copies every entry from one backend to the other. A corrupt
// source entry is skipped and reported; other errors abort.
func copyLibrary(ctx context.Context, from, to string) error {
	src, releaseSrc, err := openLibrary(from)
	if err != nil {
		return err
	}
	defer releaseSrc()

	dst, releaseDst, err := openLibrary(to)
	if err != nil {
		return err
	}
	defer releaseDst()

	if to == config.LibraryFolder && !libraryDryRun {
		if err := os.MkdirAll(cfg.LibraryDir, 0o755); err != nil {
			return fmt.Errorf("create library dir: %w", err)
		}
	}

	entries, err := src.List(ctx)
	if err != nil {
		return err
	}

	var copied, skipped int
	for _, e := range entries {
		list, err := src.Load(ctx, e.Name)
		if errors.Is(err, library.ErrCorrupt) {
			skipped++
			logger.Warn().Err(err).Str("name", e.Name).Msg("skipping corrupt list")
			continue
		}
		if err != nil {
			return err
		}

		if libraryDryRun {
			logger.Info().Str("name", e.Name).Int("loops", list.Len()).Msg("would copy")
			copied++
			continue
		}
		stored, err := dst.Save(ctx, e.Name, list)
		if err != nil {
			return fmt.Errorf("save %q: %w", e.Name, err)
		}
		logger.Info().Str("name", stored).Int("loops", list.Len()).Msg("copied")
		copied++
	}

	logger.Info().
		Str("from", from).
		Str("to", to).
		Int("copied", copied).
		Int("skipped", skipped).
		Bool("dry_run", libraryDryRun).
		Msg("library copy complete")
	return nil
}
