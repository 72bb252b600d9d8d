package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// gridCmd dumps the server's read-only grid view (or its metrics with -metrics).
func gridCmd(args []string) {
	fs := flag.NewFlagSet("grid", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	metrics := fs.Bool("metrics", false, "fetch /metrics instead of /debug/grid")
	_ = fs.Parse(args)

	path := "/debug/grid"
	if *metrics {
		path = "/metrics"
	}
	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + path
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
