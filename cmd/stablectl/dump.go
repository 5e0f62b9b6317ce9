package main

import (
	"fmt"

	"github.com/joshuapare/stablekit/mem"
	"github.com/spf13/cobra"
)

var (
	dumpIndexPages uint64
	dumpMemory     int
	dumpFree       bool
)

func init() {
	cmd := newDumpCmd()
	cmd.Flags().Uint64Var(&dumpIndexPages, "index-pages", 0, "Index region size in pages (0 = default)")
	cmd.Flags().IntVar(&dumpMemory, "memory", -1, "Only show entries of this memory ID")
	cmd.Flags().BoolVar(&dumpFree, "free", false, "Include free-list entries")
	rootCmd.AddCommand(cmd)
}

func newDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump <store>",
		Short: "List the page-index entries of a store file",
		Long: `The dump command lists every entry of a store file's page index: which
virtual memory owns which logical page, and where that page physically
lives in the data region.

Example:
  stablectl dump store.bin
  stablectl dump store.bin --memory 3
  stablectl dump store.bin --free --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(args)
		},
	}
	return cmd
}

type DumpEntry struct {
	Owner    uint8
	Free     bool
	Logical  uint64
	Physical uint64
}

func runDump(args []string) error {
	mgr, _, cleanup, err := openStore(args[0], dumpIndexPages)
	if err != nil {
		return err
	}
	defer cleanup()

	mappings, err := mgr.Mappings()
	if err != nil {
		return fmt.Errorf("failed to read page index: %w", err)
	}

	var entries []DumpEntry
	for _, m := range mappings {
		free := m.Owner == mem.FreeID
		if free && !dumpFree {
			continue
		}
		if dumpMemory >= 0 && int(m.Owner) != dumpMemory {
			continue
		}
		entries = append(entries, DumpEntry{
			Owner:    uint8(m.Owner),
			Free:     free,
			Logical:  m.Logical,
			Physical: m.Physical,
		})
	}

	if jsonOut {
		return printJSON(entries)
	}

	if len(entries) == 0 {
		printInfo("No page-index entries\n")
		return nil
	}
	printInfo("%-8s %-10s %-10s\n", "OWNER", "LOGICAL", "PHYSICAL")
	for _, e := range entries {
		owner := fmt.Sprintf("%d", e.Owner)
		if e.Free {
			owner = "free"
		}
		printInfo("%-8s %-10d %-10d\n", owner, e.Logical, e.Physical)
	}
	printInfo("\n%d entries\n", len(entries))
	return nil
}
