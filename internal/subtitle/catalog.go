package subtitle

import "strings"

// Catalog maps font family names to font file names on the font server.
type Catalog map[string]string

// DefaultCatalog lists the fonts commonly referenced by anime subtitle scripts.
var DefaultCatalog = Catalog{
	"Adobe Arabic":            "AdobeArabic-Bold.otf",
	"Andale Mono":             "andalemo.ttf",
	"Arial":                   "arial.ttf",
	"Arial Black":             "ariblk.ttf",
	"Arial Bold":              "arialbd.ttf",
	"Arial Bold Italic":       "arialbi.ttf",
	"Arial Italic":            "ariali.ttf",
	"Comic Sans MS":           "comic.ttf",
	"Comic Sans MS Bold":      "comicbd.ttf",
	"Courier New":             "cour.ttf",
	"Courier New Bold":        "courbd.ttf",
	"Courier New Bold Italic": "courbi.ttf",
	"Courier New Italic":      "couri.ttf",
	"DejaVu LGC Sans Mono":    "DejaVuLGCSansMono.ttf",
	"DejaVu Sans":             "DejaVuSans.ttf",
	"DejaVu Sans Bold":        "DejaVuSans-Bold.ttf",
	"Georgia":                 "georgia.ttf",
	"Georgia Bold":            "georgiab.ttf",
	"Georgia Italic":          "georgiai.ttf",
	"Impact":                  "impact.ttf",
	"Rubik":                   "Rubik-Regular.ttf",
	"Rubik Bold":              "Rubik-Bold.ttf",
	"Times New Roman":         "times.ttf",
	"Times New Roman Bold":    "timesbd.ttf",
	"Times New Roman Italic":  "timesi.ttf",
	"Trebuchet MS":            "trebuc.ttf",
	"Trebuchet MS Bold":       "trebucbd.ttf",
	"Trebuchet MS Italic":     "trebucit.ttf",
	"Verdana":                 "verdana.ttf",
	"Verdana Bold":            "verdanab.ttf",
	"Verdana Italic":          "verdanai.ttf",
	"Webdings":                "webdings.ttf",
}

// Lookup finds the file for a font name, ignoring case.
func (c Catalog) Lookup(name string) (string, bool) {
	if file, ok := c[name]; ok {
		return file, true
	}
	for k, file := range c {
		if strings.EqualFold(k, name) {
			return file, true
		}
	}
	return "", false
}
