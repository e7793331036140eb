package tool

// MigrateLegacy translates a node's data payload from the older inline
// tool-list shape to the current tool-server shape. Early workflow
// definitions attached tools directly to the step:
//
//	{"tools": [{"name": "search", "serverUrl": "https://...", "authToken": "..."}]}
//
// The current shape declares servers instead, inline or by identifier:
//
//	{"toolServers": [{"name": "search", "url": "https://...", "authToken": "..."}]}
//
// MigrateLegacy is a pure translation: it never performs network access
// and never mutates its input. Payloads already in the current shape are
// returned as a plain copy.
func MigrateLegacy(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = v
	}

	legacy, ok := out["tools"].([]interface{})
	if !ok || len(legacy) == 0 {
		return out
	}
	if _, exists := out["toolServers"]; exists {
		// Current shape already present; the legacy list is stale.
		delete(out, "tools")
		return out
	}

	servers := make([]interface{}, 0, len(legacy))
	for _, raw := range legacy {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		server := map[string]interface{}{}
		if name, ok := entry["name"].(string); ok {
			server["name"] = name
		}
		if url, ok := entry["serverUrl"].(string); ok {
			server["url"] = url
		}
		if token, ok := entry["authToken"].(string); ok && token != "" {
			server["authToken"] = token
		}
		if desc, ok := entry["description"].(string); ok && desc != "" {
			server["tool"] = map[string]interface{}{
				"name":        server["name"],
				"description": desc,
				"parameters":  entry["parameters"],
			}
		}
		servers = append(servers, server)
	}

	out["toolServers"] = servers
	delete(out, "tools")
	return out
}

// ParseServerConfigs converts a decoded toolServers list (as produced by
// MigrateLegacy or present natively in node data) into ServerConfigs.
// Malformed entries are skipped.
func ParseServerConfigs(raw []interface{}) []*ServerConfig {
	out := make([]*ServerConfig, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		cfg := &ServerConfig{}
		if v, ok := entry["name"].(string); ok {
			cfg.Name = v
		}
		if v, ok := entry["url"].(string); ok {
			cfg.URL = v
		}
		if v, ok := entry["authToken"].(string); ok {
			cfg.AuthToken = v
		}
		if v, ok := entry["capability"].(string); ok {
			cfg.Capability = Capability(v)
		}
		if t, ok := entry["tool"].(map[string]interface{}); ok {
			spec := &Spec{}
			if v, ok := t["name"].(string); ok {
				spec.Name = v
			}
			if v, ok := t["description"].(string); ok {
				spec.Description = v
			}
			if v, ok := t["parameters"].(map[string]interface{}); ok {
				spec.Parameters = v
			}
			cfg.Tool = spec
		}
		if cfg.URL == "" && cfg.Name == "" {
			continue
		}
		out = append(out, cfg)
	}
	return out
}
