package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/joshuapare/stablekit/mem"
	"github.com/joshuapare/stablekit/pages"
	"github.com/spf13/cobra"
)

var statsIndexPages uint64

func init() {
	cmd := newStatsCmd()
	cmd.Flags().Uint64Var(&statsIndexPages, "index-pages", 0, "Index region size in pages (0 = default)")
	rootCmd.AddCommand(cmd)
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <store>",
		Short: "Show page distribution statistics for a store file",
		Long: `The stats command opens a store file, reads its page index and reports
how the file's pages are distributed across virtual memories, along with
the page I/O the scan itself performed.

Example:
  stablectl stats store.bin
  stablectl stats store.bin --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(args)
		},
	}
	return cmd
}

type StoreStats struct {
	FilePath     string
	FileSize     int64
	FilePages    uint64
	LastModified time.Time

	IndexPages uint64
	DataPages  uint64
	FreePages  uint64

	Memories []MemoryStats

	ScanPagesRead uint64
}

type MemoryStats struct {
	ID    uint8
	Pages uint64
	Bytes uint64
}

func runStats(args []string) error {
	path := args[0]

	mgr, backing, cleanup, err := openStore(path, statsIndexPages)
	if err != nil {
		return err
	}
	defer cleanup()

	fileInfo, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	mappings, err := mgr.Mappings()
	if err != nil {
		return fmt.Errorf("failed to read page index: %w", err)
	}

	stats := StoreStats{
		FilePath:     path,
		FileSize:     fileInfo.Size(),
		FilePages:    uint64(fileInfo.Size()) / mem.PageSize,
		LastModified: fileInfo.ModTime(),
		IndexPages:   indexPagesOrDefault(statsIndexPages),
		DataPages:    mgr.DataPages(),
	}

	perOwner := make(map[uint8]uint64)
	for _, m := range mappings {
		if m.Owner == mem.FreeID {
			stats.FreePages++
			continue
		}
		perOwner[uint8(m.Owner)]++
	}
	ids := make([]int, 0, len(perOwner))
	for id := range perOwner {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	for _, id := range ids {
		n := perOwner[uint8(id)]
		stats.Memories = append(stats.Memories, MemoryStats{
			ID:    uint8(id),
			Pages: n,
			Bytes: n * mem.PageSize,
		})
	}
	stats.ScanPagesRead = backing.Stats().PagesRead

	if jsonOut {
		return printJSON(stats)
	}

	printInfo("\nStore Statistics: %s\n\n", path)
	printInfo("File Information:\n")
	printInfo("  Path: %s\n", path)
	printInfo("  Size: %s (%d pages)\n", formatBytes(stats.FileSize), stats.FilePages)
	printInfo("  Last Modified: %s\n\n", stats.LastModified.Format("2006-01-02 15:04:05"))

	printInfo("Layout:\n")
	printInfo("  Index region: %d pages\n", stats.IndexPages)
	printInfo("  Data region: %d pages claimed\n", stats.DataPages)
	printInfo("  Free pages: %d\n\n", stats.FreePages)

	if len(stats.Memories) > 0 {
		printInfo("Virtual Memories:\n")
		for _, m := range stats.Memories {
			printInfo("  Memory %3d: %6d pages (%s)\n", m.ID, m.Pages, formatBytes(int64(m.Bytes)))
		}
		printInfo("\n")
	} else {
		printInfo("Virtual Memories: none\n\n")
	}

	printVerbose("Scan read %d pages\n", stats.ScanPagesRead)
	return nil
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func indexPagesOrDefault(n uint64) uint64 {
	if n == 0 {
		return pages.DefaultIndexPages
	}
	return n
}

// openStore maps an existing store file and opens the page manager over a
// profiled view of it. The returned cleanup closes the mapping.
func openStore(path string, indexPages uint64) (*pages.Manager, *mem.Profiled, func(), error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to stat file: %w", err)
	}
	filePages := (uint64(info.Size()) + mem.PageSize - 1) / mem.PageSize
	maxPages := mem.DefaultMaxFilePages
	if filePages > maxPages {
		maxPages = filePages
	}
	fm, err := mem.OpenFile(path, mem.FileOptions{MaxPages: maxPages})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	printVerbose("Opened %s: %d pages\n", path, fm.Size())
	profiled := mem.NewProfiled(fm)
	mgr, err := pages.NewManager(profiled, pages.Options{IndexPages: indexPages})
	if err != nil {
		fm.Close()
		return nil, nil, nil, fmt.Errorf("failed to open page index: %w", err)
	}
	return mgr, profiled, func() { fm.Close() }, nil
}
