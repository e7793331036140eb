package tool

import (
	"reflect"
	"testing"
)

func TestMigrateLegacyTranslation(t *testing.T) {
	in := map[string]interface{}{
		"prompt": "p",
		"tools": []interface{}{
			map[string]interface{}{
				"name":        "search",
				"serverUrl":   "https://search.example.com",
				"authToken":   "tok",
				"description": "Search the web",
				"parameters":  map[string]interface{}{"type": "object"},
			},
			map[string]interface{}{
				"name":      "bare",
				"serverUrl": "https://bare.example.com",
			},
		},
	}

	out := MigrateLegacy(in)

	if _, exists := out["tools"]; exists {
		t.Error("legacy tools key must be removed")
	}
	servers, ok := out["toolServers"].([]interface{})
	if !ok || len(servers) != 2 {
		t.Fatalf("toolServers = %#v", out["toolServers"])
	}

	first := servers[0].(map[string]interface{})
	if first["name"] != "search" || first["url"] != "https://search.example.com" || first["authToken"] != "tok" {
		t.Errorf("first server = %#v", first)
	}
	spec, ok := first["tool"].(map[string]interface{})
	if !ok || spec["description"] != "Search the web" {
		t.Errorf("tool spec = %#v", first["tool"])
	}

	second := servers[1].(map[string]interface{})
	if _, exists := second["tool"]; exists {
		t.Error("entry without description should not grow a tool spec")
	}
	if _, exists := second["authToken"]; exists {
		t.Error("empty auth token should be omitted")
	}
}

func TestMigrateLegacyPure(t *testing.T) {
	in := map[string]interface{}{
		"tools": []interface{}{
			map[string]interface{}{"name": "a", "serverUrl": "https://a"},
		},
	}
	_ = MigrateLegacy(in)

	if _, exists := in["toolServers"]; exists {
		t.Error("MigrateLegacy mutated its input")
	}
	if _, exists := in["tools"]; !exists {
		t.Error("MigrateLegacy deleted from its input")
	}
}

func TestMigrateLegacyNoLegacyData(t *testing.T) {
	in := map[string]interface{}{"prompt": "p", "model": "openai/gpt-4o"}
	out := MigrateLegacy(in)
	if !reflect.DeepEqual(in, out) {
		t.Errorf("payload without legacy tools should round-trip: %#v", out)
	}
}

func TestMigrateLegacyStaleTools(t *testing.T) {
	in := map[string]interface{}{
		"tools": []interface{}{
			map[string]interface{}{"name": "old", "serverUrl": "https://old"},
		},
		"toolServers": []interface{}{
			map[string]interface{}{"name": "current", "url": "https://current"},
		},
	}
	out := MigrateLegacy(in)

	if _, exists := out["tools"]; exists {
		t.Error("stale legacy list must be dropped")
	}
	servers := out["toolServers"].([]interface{})
	if len(servers) != 1 || servers[0].(map[string]interface{})["name"] != "current" {
		t.Errorf("current toolServers must win: %#v", servers)
	}
}
