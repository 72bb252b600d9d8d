package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"gridplace.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "grid":
			gridCmd(os.Args[2:])
			return
		case "snapshots":
			snapshotsCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(filepath.Join(*dataDir, "grids"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if e.IsDir() {
			fmt.Println(e.Name())
		}
	}
}

func snapshotsCmd(args []string) {
	fs := flag.NewFlagSet("snapshots", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	gridID := fs.String("grid", "grid_1", "grid id")
	_ = fs.Parse(args)

	dir := filepath.Join(*dataDir, "grids", *gridID, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range ents {
		if e.IsDir() || filepath.Ext(e.Name()) != ".zst" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		h, err := snapshot.ReadHeader(path)
		if err != nil {
			fmt.Printf("%s\terror: %v\n", e.Name(), err)
			continue
		}
		fmt.Printf("%s\tv%d\tgrid=%s\tseq=%d\tsaved_at_ms=%d\n", e.Name(), h.Version, h.GridID, h.Seq, h.SavedAt)
	}
}
