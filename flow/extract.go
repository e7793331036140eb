package flow

import (
	"regexp"
	"strconv"
	"strings"
)

// ExtractField projects a full backend response down to one named or
// custom-addressed sub-value.
//
// Field semantics:
//   - "full": the data verbatim (identity).
//   - "custom": walk customPath using dot-separated segments with
//     optional name[index] array indexing; any missing link yields nil
//     rather than an error.
//   - "markdown", "html", "metadata", "results", "first", "json",
//     "urls": fixed shape-specific projections.
//   - anything else: index the object by that key, falling back to the
//     whole value when the key is absent.
func ExtractField(data interface{}, field string, customPath string) interface{} {
	switch field {
	case "", "full":
		return data
	case "custom":
		return walkPath(data, customPath)
	case "markdown", "html", "metadata", "results":
		return keyOrWhole(data, field)
	case "first":
		return firstResult(data)
	case "json":
		return keyOrWhole(data, "json")
	case "urls":
		return extractURLs(data)
	default:
		return keyOrWhole(data, field)
	}
}

var indexedSegment = regexp.MustCompile(`^([^\[\]]*)\[(\d+)\]$`)

// walkPath follows a dot-separated path ("a.b[1].c") through nested maps
// and slices, short-circuiting to nil on any missing link.
func walkPath(data interface{}, path string) interface{} {
	if path == "" {
		return data
	}
	current := data
	for _, segment := range strings.Split(path, ".") {
		name := segment
		index := -1
		if m := indexedSegment.FindStringSubmatch(segment); m != nil {
			name = m[1]
			index, _ = strconv.Atoi(m[2])
		}

		if name != "" {
			obj, ok := current.(map[string]interface{})
			if !ok {
				return nil
			}
			current, ok = obj[name]
			if !ok {
				return nil
			}
		}

		if index >= 0 {
			arr, ok := current.([]interface{})
			if !ok || index >= len(arr) {
				return nil
			}
			current = arr[index]
		}
	}
	return current
}

// keyOrWhole indexes a map by key, returning the whole value when the
// key is absent or the value is not a map.
func keyOrWhole(data interface{}, key string) interface{} {
	if obj, ok := data.(map[string]interface{}); ok {
		if v, ok := obj[key]; ok {
			return v
		}
	}
	return data
}

// firstResult returns the first element of a results array, or of the
// value itself when it is already an array.
func firstResult(data interface{}) interface{} {
	if arr, ok := data.([]interface{}); ok && len(arr) > 0 {
		return arr[0]
	}
	if obj, ok := data.(map[string]interface{}); ok {
		if arr, ok := obj["results"].([]interface{}); ok && len(arr) > 0 {
			return arr[0]
		}
	}
	return data
}

// extractURLs prefers, in order: the url field of each result object, a
// raw urls array, a raw links array. Anything else yields the data
// unchanged.
func extractURLs(data interface{}) interface{} {
	obj, ok := data.(map[string]interface{})
	if !ok {
		return data
	}

	if results, ok := obj["results"].([]interface{}); ok {
		urls := make([]interface{}, 0, len(results))
		for _, item := range results {
			if entry, ok := item.(map[string]interface{}); ok {
				if url, ok := entry["url"]; ok {
					urls = append(urls, url)
				}
			}
		}
		if len(urls) > 0 {
			return urls
		}
	}
	if urls, ok := obj["urls"]; ok {
		return urls
	}
	if links, ok := obj["links"]; ok {
		return links
	}
	return data
}
