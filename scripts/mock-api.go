//go:build ignore

// Mock paginated API for running pagecache locally
// Run with: go run scripts/mock-api.go -port 9001 -total 95
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"
)

func main() {
	port := flag.Int("port", 9001, "Port to listen on")
	total := flag.Int("total", 95, "Total number of items per resource")
	latency := flag.Duration("latency", 50*time.Millisecond, "Artificial response latency")
	flag.Parse()

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok"})
	})

	// Every other path is a resource paged with ?page=&page_size=
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(*latency)

		q := r.URL.Query()
		page, _ := strconv.Atoi(q.Get("page"))
		if page < 1 {
			page = 1
		}
		size, _ := strconv.Atoi(q.Get("page_size"))
		if size < 1 {
			size = 10
		}
		pages := (*total + size - 1) / size

		items := []map[string]interface{}{}
		for id := (page-1)*size + 1; id <= page*size && id <= *total; id++ {
			items = append(items, map[string]interface{}{
				"id":       id,
				"resource": r.URL.Path,
				"sort":     q.Get("sort"),
				"order":    q.Get("order"),
			})
		}

		log.Printf("%s page=%d size=%d", r.URL.Path, page, size)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"items": items,
			"pagination": map[string]interface{}{
				"page":         page,
				"page_size":    size,
				"total_count":  *total,
				"total_pages":  pages,
				"has_next":     page < pages,
				"has_previous": page > 1,
			},
		})
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("Mock API listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}
