package hls

import "strings"

// parseAttributes splits an HLS attribute list (KEY=VALUE,KEY="a,b") into a map.
// Keys are upper-cased; quoted values are returned without quotes.
func parseAttributes(s string) map[string]string {
	attrs := make(map[string]string)
	for len(s) > 0 {
		eq := strings.IndexByte(s, '=')
		if eq < 0 {
			break
		}
		key := strings.ToUpper(strings.TrimSpace(s[:eq]))
		s = s[eq+1:]

		var val string
		if strings.HasPrefix(s, `"`) {
			end := strings.IndexByte(s[1:], '"')
			if end < 0 {
				val, s = s[1:], ""
			} else {
				val, s = s[1:end+1], s[end+2:]
			}
			if comma := strings.IndexByte(s, ','); comma >= 0 {
				s = s[comma+1:]
			} else {
				s = ""
			}
		} else if comma := strings.IndexByte(s, ','); comma >= 0 {
			val, s = strings.TrimSpace(s[:comma]), s[comma+1:]
		} else {
			val, s = strings.TrimSpace(s), ""
		}
		if key != "" {
			attrs[key] = val
		}
	}
	return attrs
}

// replaceURIAttr swaps the URI attribute value in a tag line, keeping every
// other byte of the line as it was.
func replaceURIAttr(line, oldURI, newURI string) string {
	quoted := `URI="` + oldURI + `"`
	if idx := strings.Index(line, quoted); idx >= 0 {
		return line[:idx] + `URI="` + newURI + `"` + line[idx+len(quoted):]
	}
	return strings.Replace(line, oldURI, newURI, 1)
}
