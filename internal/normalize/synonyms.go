package normalize

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/case-reconcile/internal/model"
)

// Synonyms maps a cleaned header (trimmed, lowercased) to a canonical key.
type Synonyms map[string]string

// DefaultSynonyms returns the built-in header synonym table.
func DefaultSynonyms() Synonyms {
	return Synonyms{
		"doc number":        model.KeyCaseID,
		"docnumber":         model.KeyCaseID,
		"doc #":             model.KeyCaseID,
		"doc":               model.KeyCaseID,
		"sid":               model.KeyCaseID,
		"sid number":        model.KeyCaseID,
		"case id":           model.KeyCaseID,
		"caseid":            model.KeyCaseID,
		"fist name":         model.KeyFirstName,
		"first name":        model.KeyFirstName,
		"firstname":         model.KeyFirstName,
		"last name":         model.KeyLastName,
		"lastname":          model.KeyLastName,
		"location":          model.KeyLocation,
		"status":            model.KeyStatus,
		"release date":      model.KeyReleaseDate,
		"date of search":    model.KeyDateOfSearch,
		"previous location": "previouslocation",
		"out?":              "out",
	}
}

// Key returns the canonical key for a raw header.
func (s Synonyms) Key(header string) string {
	clean := CleanHeader(header)
	if key, ok := s[clean]; ok {
		return key
	}
	return clean
}

// CleanHeader trims and lowercases a header.
func CleanHeader(header string) string {
	return strings.ToLower(strings.TrimSpace(header))
}

// synonymFile is the on-disk layout: canonical key -> list of headers.
type synonymFile struct {
	Synonyms map[string][]string `yaml:"synonyms"`
}

// LoadSynonyms reads extra synonyms from a YAML file and merges them over
// the defaults:
//
//	synonyms:
//	  caseId: ["inmate id", "oid"]
//	  firstName: ["given name"]
func LoadSynonyms(path string) (Synonyms, error) {
	syn := DefaultSynonyms()
	if path == "" {
		return syn, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "normalize: read synonyms %s", path)
	}

	var f synonymFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "normalize: parse synonyms")
	}

	for key, headers := range f.Synonyms {
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, eris.New("normalize: synonyms file has an empty key")
		}
		for _, h := range headers {
			if c := CleanHeader(h); c != "" {
				syn[c] = key
			}
		}
	}
	return syn, nil
}
