package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	gridID := fs.String("grid", "", "grid id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	item := fs.String("item", "", "item filter (placements)")
	placementID := fs.String("placement", "", "placement id filter (audits)")
	all := fs.Bool("all", false, "include removed placements")
	_ = fs.Parse(args)

	q := "placements"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*gridID) == "" {
			fmt.Fprintln(os.Stderr, "missing -grid or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "grids", *gridID, "index.sqlite")
	}
	if *limit <= 0 {
		*limit = 20
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "placements":
		query := `SELECT id,item,pivot_x,pivot_y,pivot_z,cell_count,placed_at,COALESCE(removed_at,'') FROM placements WHERE 1=1`
		var qargs []any
		if !*all {
			query += ` AND removed_at IS NULL`
		}
		if s := strings.TrimSpace(*item); s != "" {
			query += ` AND item=?`
			qargs = append(qargs, s)
		}
		query += ` ORDER BY placed_at DESC LIMIT ?`
		qargs = append(qargs, *limit)
		rows, err := db.Query(query, qargs...)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				ID        string `json:"id"`
				Item      string `json:"item"`
				Pivot     [3]int `json:"pivot"`
				CellCount int    `json:"cell_count"`
				PlacedAt  string `json:"placed_at"`
				RemovedAt string `json:"removed_at,omitempty"`
			}
			if err := rows.Scan(&r.ID, &r.Item, &r.Pivot[0], &r.Pivot[1], &r.Pivot[2], &r.CellCount, &r.PlacedAt, &r.RemovedAt); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		exitOnRowsErr(rows)

	case "audits":
		query := `SELECT seq,time,action,state,COALESCE(placement_id,''),item,x,y,z,COALESCE(reason,'') FROM audits`
		var qargs []any
		if s := strings.TrimSpace(*placementID); s != "" {
			query += ` WHERE placement_id=?`
			qargs = append(qargs, s)
		}
		query += ` ORDER BY seq DESC LIMIT ?`
		qargs = append(qargs, *limit)
		rows, err := db.Query(query, qargs...)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Seq         int64  `json:"seq"`
				Time        string `json:"time"`
				Action      string `json:"action"`
				State       string `json:"state"`
				PlacementID string `json:"placement_id,omitempty"`
				Item        string `json:"item"`
				Pivot       [3]int `json:"pivot"`
				Reason      string `json:"reason,omitempty"`
			}
			if err := rows.Scan(&r.Seq, &r.Time, &r.Action, &r.State, &r.PlacementID, &r.Item, &r.Pivot[0], &r.Pivot[1], &r.Pivot[2], &r.Reason); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		exitOnRowsErr(rows)

	case "snapshots":
		rows, err := db.Query(`SELECT seq,path,grid_id,saved_at,placements FROM snapshots ORDER BY seq DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Seq        int64  `json:"seq"`
				Path       string `json:"path"`
				GridID     string `json:"grid_id"`
				SavedAt    int64  `json:"saved_at"`
				Placements int    `json:"placements"`
			}
			if err := rows.Scan(&r.Seq, &r.Path, &r.GridID, &r.SavedAt, &r.Placements); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		exitOnRowsErr(rows)

	case "catalogs":
		rows, err := db.Query(`SELECT name,digest,updated_at FROM catalogs ORDER BY name`)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Name      string `json:"name"`
				Digest    string `json:"digest"`
				UpdatedAt string `json:"updated_at"`
			}
			if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		exitOnRowsErr(rows)

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(placements|audits|snapshots|catalogs)")
		os.Exit(2)
	}
}

func exitOnRowsErr(rows *sql.Rows) {
	if err := rows.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "rows:", err)
		os.Exit(1)
	}
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}
