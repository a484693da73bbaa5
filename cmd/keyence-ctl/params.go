package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/kswx/keyence-go/pkg/bundle"
)

// loadParams builds the session parameter tree. Sources are applied in
// order, later ones winning per key: the manifest's parameters section, the
// YAML config file, then the command-line overrides.
func loadParams(manifest *bundle.Manifest, configPath string, overrides map[string]any) (map[string]any, error) {
	params := make(map[string]any)

	if manifest != nil {
		tree, err := manifest.ParamTree()
		if err != nil && !errors.Is(err, bundle.ErrNoParameters) {
			return nil, err
		}
		merge(params, tree)
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		var file map[string]any
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("%s: %w", configPath, err)
		}
		merge(params, file)
	}

	merge(params, overrides)
	return params, nil
}

// merge copies src into dst, merging nested maps key by key.
func merge(dst, src map[string]any) {
	for k, v := range src {
		sub, ok := v.(map[string]any)
		if !ok {
			dst[k] = v
			continue
		}
		cur, ok := dst[k].(map[string]any)
		if !ok {
			cur = make(map[string]any, len(sub))
			dst[k] = cur
		}
		merge(cur, sub)
	}
}

// flagOverrides returns the parameters set on the command line.
func flagOverrides(host string, port int, protocolLog string) map[string]any {
	out := make(map[string]any)
	if host != "" {
		out["host"] = host
	}
	if port != 0 {
		out["port"] = strconv.Itoa(port)
	}
	if protocolLog != "" {
		out["protocol_log"] = protocolLog
	}
	return out
}
