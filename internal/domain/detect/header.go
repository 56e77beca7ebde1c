package detect

import (
	"regexp"
	"strings"
)

// headerLine matches one "Field: value" line inside a plugin header
// comment, tolerating comment decoration around it. This is deliberately a
// loose text pattern, not a PHP parser: headers in the wild carry odd
// spacing and mixed comment styles.
var headerLine = regexp.MustCompile(`^[ \t/*#@-]*([A-Za-z][A-Za-z ]*?)\s*:\s*(.+?)\s*(?:\*/)?\s*$`)

// recognizedHeaders maps header field names (lowercased) to the keys used
// in Result.PluginData. "Plugin Name" is the marker field: its
// presence is what makes a repository a plugin.
var recognizedHeaders = map[string]string{
	"plugin name":       "name",
	"version":           "version",
	"description":       "description",
	"author":            "author",
	"plugin uri":        "uri",
	"text domain":       "text_domain",
	"requires at least": "requires",
	"requires php":      "requires_php",
	"license":           "license",
}

// parseHeader extracts recognized plugin header fields from the truncated
// top of an entry file. A missing marker field means "not a plugin", never
// an error.
func parseHeader(content string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		m := headerLine.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		key, ok := recognizedHeaders[strings.ToLower(strings.TrimSpace(m[1]))]
		if !ok {
			continue
		}
		if _, seen := fields[key]; seen {
			continue
		}
		fields[key] = m[2]
	}
	return fields
}
