// Package subtitle handles subtitle payloads: file naming, language
// filtering and the fonts an ASS script needs at render time.
package subtitle

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"
)

var inlineFontRegex = regexp.MustCompile(`\\fn([^\\}]+)`)

// Fonts returns the font families referenced by an ASS/SSA script in
// first-seen order: Style Fontname columns plus inline \fn overrides.
func Fonts(data []byte) []string {
	var (
		fonts   []string
		seen    = make(map[string]bool)
		section string
		fontCol = -1
	)
	add := func(name string) {
		name = strings.TrimPrefix(strings.TrimSpace(name), "@")
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			return
		}
		seen[key] = true
		fonts = append(fonts, name)
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\ufeff"))
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.ToLower(line)
			fontCol = -1
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch {
		case isStyleSection(section) && key == "Format":
			fontCol = -1
			for i, col := range strings.Split(value, ",") {
				if strings.EqualFold(strings.TrimSpace(col), "Fontname") {
					fontCol = i
				}
			}
		case isStyleSection(section) && key == "Style":
			col := fontCol
			if col < 0 {
				col = 1 // Name, Fontname, ... when the Format line is missing
			}
			fields := strings.Split(value, ",")
			if col < len(fields) {
				add(fields[col])
			}
		case key == "Dialogue":
			for _, m := range inlineFontRegex.FindAllStringSubmatch(value, -1) {
				add(m[1])
			}
		}
	}
	return fonts
}

func isStyleSection(section string) bool {
	return section == "[v4+ styles]" || section == "[v4 styles]"
}
