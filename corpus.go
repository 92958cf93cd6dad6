package wayfinder

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/poiesic/wayfinder/core"
)

//go:embed demo.json
var demoJSON []byte

// ReadPlaces parses places from r. The input is either a JSON array of
// places or a stream of place objects, one after another. Every place is
// validated; the error names the offending entry.
func ReadPlaces(r io.Reader) ([]*core.Place, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read places: %w", err)
	}

	var places []*core.Place
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &places); err != nil {
			return nil, fmt.Errorf("failed to parse places: %w", err)
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		for {
			var p core.Place
			err := dec.Decode(&p)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("failed to parse place %d: %w", len(places)+1, err)
			}
			places = append(places, &p)
		}
	}

	for i, p := range places {
		if err := core.ValidatePlace(p); err != nil {
			return nil, fmt.Errorf("place %d: %w", i+1, err)
		}
	}
	return places, nil
}

// DemoPlaces returns a small Bangkok corpus for trying the engine out.
func DemoPlaces() []*core.Place {
	places, err := ReadPlaces(bytes.NewReader(demoJSON))
	if err != nil {
		panic(fmt.Sprintf("built-in demo corpus is invalid: %v", err))
	}
	return places
}
