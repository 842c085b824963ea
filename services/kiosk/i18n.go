package kiosk

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
)

//go:embed catalogs/*.json
var catalogsFS embed.FS

// BaselineLanguage is the catalog substituted when a configuration
// declares a language the build does not ship.
const BaselineLanguage = "en"

// Catalog is one language's message catalog.
type Catalog struct {
	Language string
	messages map[string]string
}

// Text returns the message for a key, or the key itself when the
// catalog has no entry for it.
func (c *Catalog) Text(key string) string {
	if c == nil {
		return key
	}
	if msg, ok := c.messages[key]; ok {
		return msg
	}
	return key
}

// LoadCatalog loads the embedded catalog for a two-letter language
// code. Unsupported codes fall back to the baseline catalog silently;
// this is a local recovery, never surfaced to the user.
func LoadCatalog(language string) *Catalog {
	code := strings.ToLower(strings.TrimSpace(language))
	catalog, err := readCatalog(code)
	if err != nil {
		catalog, err = readCatalog(BaselineLanguage)
		if err != nil {
			// The baseline catalog is embedded; failing to parse it is
			// a build defect.
			panic(fmt.Sprintf("kiosk: baseline catalog: %v", err))
		}
	}
	return catalog
}

func readCatalog(code string) (*Catalog, error) {
	data, err := catalogsFS.ReadFile("catalogs/" + code + ".json")
	if err != nil {
		return nil, err
	}
	messages := map[string]string{}
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, err
	}
	return &Catalog{Language: code, messages: messages}, nil
}

// SupportedLanguages lists the catalogs shipped in this build.
func SupportedLanguages() []string {
	entries, err := catalogsFS.ReadDir("catalogs")
	if err != nil {
		return []string{BaselineLanguage}
	}
	codes := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".json") {
			codes = append(codes, strings.TrimSuffix(name, ".json"))
		}
	}
	return codes
}
