package classify

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed domains.yaml
var domainsYAML []byte

// ErrNoDefaultDomain is returned when a domain table lacks a default entry.
var ErrNoDefaultDomain = errors.New("domain table has no default domain")

// Domain describes one knowledge domain: the product it covers, the aliases
// that detect it in query text, and the document types its specialist is
// scoped to.
type Domain struct {
	Key      string   `yaml:"key"`
	Product  string   `yaml:"product"`
	Aliases  []string `yaml:"aliases"`
	DocTypes []string `yaml:"doc_types"`
	Default  bool     `yaml:"default"`
}

// Table is the loaded domain set plus derived lookup indexes.
type Table struct {
	Domains []Domain

	defaultKey string
	byProduct  map[string]Domain
}

// LoadTable parses a domain table from path, or the embedded default table
// when path is empty.
func LoadTable(path string) (*Table, error) {
	raw := domainsYAML
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read domain table: %w", err)
		}
		raw = data
	}

	var doc struct {
		Domains []Domain `yaml:"domains"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse domain table: %w", err)
	}

	t := &Table{
		Domains:   doc.Domains,
		byProduct: make(map[string]Domain, len(doc.Domains)),
	}
	for _, d := range doc.Domains {
		if d.Default {
			t.defaultKey = d.Key
		}
		if d.Product != "" {
			t.byProduct[strings.ToLower(d.Product)] = d
		}
	}

	if t.defaultKey == "" {
		return nil, ErrNoDefaultDomain
	}
	return t, nil
}

// DefaultKey returns the key of the default/general domain.
func (t *Table) DefaultKey() string {
	return t.defaultKey
}

// ByProduct resolves a detected product name to its domain.
func (t *Table) ByProduct(product string) (Domain, bool) {
	d, ok := t.byProduct[strings.ToLower(product)]
	return d, ok
}
