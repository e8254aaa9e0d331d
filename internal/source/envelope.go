package source

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/wudi/pagecache/internal/config"
	"github.com/wudi/pagecache/internal/pagecache"
)

// decodeEnvelope extracts items and pagination metadata from body using the
// configured gjson paths. Fields the API leaves out are filled from the
// request params where they can be derived.
func decodeEnvelope(body []byte, cfg config.SourceConfig, p pagecache.Params) (pagecache.Result[json.RawMessage], error) {
	if !gjson.ValidBytes(body) {
		return pagecache.Result[json.RawMessage]{}, fmt.Errorf("response is not valid JSON")
	}

	items := gjson.GetBytes(body, cfg.ItemsPath)
	if !items.IsArray() {
		return pagecache.Result[json.RawMessage]{}, fmt.Errorf("no item array at %q", cfg.ItemsPath)
	}
	out := make([]json.RawMessage, 0, len(items.Array()))
	items.ForEach(func(_, v gjson.Result) bool {
		out = append(out, json.RawMessage(v.Raw))
		return true
	})

	paths := cfg.Pagination
	get := func(path string) gjson.Result {
		if path == "" {
			return gjson.Result{}
		}
		return gjson.GetBytes(body, path)
	}

	meta := pagecache.Metadata{
		Page:       int(get(paths.Page).Int()),
		PageSize:   int(get(paths.PageSize).Int()),
		TotalCount: int(get(paths.TotalCount).Int()),
		TotalPages: int(get(paths.TotalPages).Int()),
		NextCursor: get(paths.NextCursor).String(),
		PrevCursor: get(paths.PrevCursor).String(),
	}
	if meta.Page == 0 {
		meta.Page = p.Page
	}
	if meta.PageSize == 0 {
		meta.PageSize = p.PageSize
	}
	if meta.TotalPages == 0 && meta.TotalCount > 0 && meta.PageSize > 0 {
		meta.TotalPages = (meta.TotalCount + meta.PageSize - 1) / meta.PageSize
	}

	if v := get(paths.HasNext); v.Exists() {
		meta.HasNext = v.Bool()
	} else {
		meta.HasNext = meta.NextCursor != "" || (meta.Page > 0 && meta.Page < meta.TotalPages)
	}
	if v := get(paths.HasPrevious); v.Exists() {
		meta.HasPrevious = v.Bool()
	} else {
		meta.HasPrevious = meta.PrevCursor != "" || meta.Page > 1
	}

	return pagecache.Result[json.RawMessage]{Items: out, Pagination: meta}, nil
}
