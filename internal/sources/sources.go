// Package sources builds concrete ingest.Source adapters from
// configuration entries.
package sources

import (
	"fmt"

	"pricewatch/internal/ingest"
	"pricewatch/internal/sources/edostavka"
	"pricewatch/internal/sources/gippo"
	"pricewatch/internal/sources/mirror"
	"pricewatch/pkg/config"
)

func Build(sc config.SourceConfig) (ingest.Source, error) {
	switch sc.Kind {
	case "edostavka":
		var opts []edostavka.Option
		if sc.BaseURL != "" {
			opts = append(opts, edostavka.WithBaseURL(sc.BaseURL))
		}
		return edostavka.New(sc.Name, opts...), nil
	case "gippo":
		var opts []gippo.Option
		if sc.BaseURL != "" {
			opts = append(opts, gippo.WithBaseURL(sc.BaseURL))
		}
		return gippo.New(sc.Name, opts...), nil
	case "mirror":
		if sc.Path == "" {
			return nil, fmt.Errorf("mirror source needs a fixture path")
		}
		return mirror.New(sc.Name, sc.Path), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", sc.Kind)
	}
}
