package main

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// render writes v as indented JSON or as block YAML with the JSON field names.
func render(w io.Writer, format string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	switch format {
	case "", "json":
		_, err = w.Write(append(data, '\n'))
		return err
	case "yaml", "yml":
		// JSON is YAML: parse it to keep key order, then re-emit in block style
		var doc yaml.Node
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		blockStyle(&doc)
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(&doc); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q: want json or yaml", format)
	}
}

func blockStyle(n *yaml.Node) {
	// the encoder re-quotes strings that would otherwise read as another type
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
