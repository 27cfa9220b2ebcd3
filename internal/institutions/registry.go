// Package institutions maps institution names to their extractors.
package institutions

import (
	"fmt"
	"slices"

	"instconnect/internal/components/telemetry"
	"instconnect/internal/connector"
	"instconnect/internal/institutions/plaidypus"
	"instconnect/internal/transport"
	"instconnect/pkg/textutil"
)

// unknown names at least this similar to a known one get a suggestion
const suggestionThreshold = 0.8

type Institution struct {
	Name           string
	DisplayName    string
	DefaultBaseUrl string
	Factory        func(client *transport.Client, tel telemetry.API) connector.Extractor
}

var registry = map[string]Institution{
	"plaidypus": {
		Name:           "plaidypus",
		DisplayName:    "First Plaidypus Bank",
		DefaultBaseUrl: plaidypus.DefaultBaseUrl,
		Factory:        newPlaidypus,
	},
}

func newPlaidypus(client *transport.Client, tel telemetry.API) connector.Extractor {
	return plaidypus.New(client, tel)
}

func Lookup(name string) (Institution, error) {
	inst, ok := registry[name]
	if ok {
		return inst, nil
	}
	suggestion, similarity := textutil.BestMatch(name, Names())
	if similarity >= suggestionThreshold {
		return Institution{}, fmt.Errorf("unknown institution %q, did you mean %q?", name, suggestion)
	}
	return Institution{}, fmt.Errorf("unknown institution %q, known institutions: %v", name, Names())
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Open creates the institution's extractor, opts.BaseUrl falls back to the
// institution's default.
func (i Institution) Open(opts transport.Options, tel telemetry.API) (connector.Extractor, error) {
	if opts.BaseUrl == "" {
		opts.BaseUrl = i.DefaultBaseUrl
	}

	client, err := transport.NewClient(opts, tel)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", i.Name, err)
	}
	return i.Factory(client, tel), nil
}
