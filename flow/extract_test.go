package flow

import (
	"reflect"
	"testing"
)

func TestExtractField(t *testing.T) {
	data := map[string]interface{}{
		"markdown": "# Title",
		"html":     "<h1>Title</h1>",
		"metadata": map[string]interface{}{"lang": "en"},
		"results": []interface{}{
			map[string]interface{}{"url": "https://a.example.com", "title": "A"},
			map[string]interface{}{"url": "https://b.example.com", "title": "B"},
		},
	}

	tests := []struct {
		name   string
		field  string
		path   string
		want   interface{}
	}{
		{"empty is identity", "", "", data},
		{"full is identity", "full", "", data},
		{"markdown", "markdown", "", "# Title"},
		{"html", "html", "", "<h1>Title</h1>"},
		{"metadata", "metadata", "", map[string]interface{}{"lang": "en"}},
		{"results", "results", "", data["results"]},
		{"first", "first", "", map[string]interface{}{"url": "https://a.example.com", "title": "A"}},
		{"urls from results", "urls", "", []interface{}{"https://a.example.com", "https://b.example.com"}},
		{"custom path", "custom", "results[1].title", "B"},
		{"custom missing link", "custom", "results[1].missing.deep", nil},
		{"custom index out of range", "custom", "results[9]", nil},
		{"unknown key falls back to whole", "nosuchkey", "", data},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractField(data, tt.field, tt.path)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractField(%q, %q) = %#v, want %#v", tt.field, tt.path, got, tt.want)
			}
		})
	}
}

func TestExtractURLsFallbacks(t *testing.T) {
	withURLs := map[string]interface{}{"urls": []interface{}{"https://x.example.com"}}
	if got := ExtractField(withURLs, "urls", ""); !reflect.DeepEqual(got, []interface{}{"https://x.example.com"}) {
		t.Errorf("urls array not returned: %#v", got)
	}

	withLinks := map[string]interface{}{"links": []interface{}{"https://y.example.com"}}
	if got := ExtractField(withLinks, "urls", ""); !reflect.DeepEqual(got, []interface{}{"https://y.example.com"}) {
		t.Errorf("links fallback not returned: %#v", got)
	}

	scalar := "not an object"
	if got := ExtractField(scalar, "urls", ""); got != scalar {
		t.Errorf("non-object should pass through, got %#v", got)
	}
}

func TestExtractFirstOnBareArray(t *testing.T) {
	arr := []interface{}{"one", "two"}
	if got := ExtractField(arr, "first", ""); got != "one" {
		t.Errorf("first of bare array = %#v, want \"one\"", got)
	}
}
