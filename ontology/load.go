package ontology

import (
	_ "embed"
	"fmt"
	"log/slog"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/poiesic/wayfinder/config"
	"github.com/poiesic/wayfinder/core"
)

// PathEnvVar names an override file when no path is configured.
const PathEnvVar = "WAYFINDER_ONTOLOGY"

//go:embed defaults.yaml
var defaultsYAML []byte

// Load parses the embedded defaults, merges the optional override file at
// path over them and validates the result. Errors wrap core.ErrConfigMissing.
func Load(path string) (*Ontology, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaultsYAML), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: failed to parse built-in ontology: %w", core.ErrConfigMissing, err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: failed to load ontology file %s: %w", core.ErrConfigMissing, path, err)
		}
	}

	o := &Ontology{}
	if err := k.Unmarshal("", o); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal ontology: %w", core.ErrConfigMissing, err)
	}

	if err := o.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfigMissing, err)
	}
	return o, nil
}

// LoadRegistry loads the ontology and compiles it. Failures never prevent
// startup: a broken override falls back to the built-in document, and a
// broken built-in document falls back to Minimal. Every fallback is logged.
func LoadRegistry(path string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	o, err := Load(path)
	if err != nil && path != "" {
		logger.Error("ontology override unusable, using built-in ontology", "path", path, "err", err)
		o, err = Load("")
	}
	if err != nil {
		logger.Error("built-in ontology unusable, using minimal defaults", "err", err)
		o = Minimal()
	}

	r, err := NewRegistry(o)
	if err != nil {
		logger.Error("ontology failed to compile, using minimal defaults", "err", err)
		r, _ = NewRegistry(Minimal())
	}
	return r
}

// Validate checks field constraints and cross references between sections.
func (o *Ontology) Validate() error {
	if err := config.ValidateStruct(o); err != nil {
		return err
	}

	slots := make(map[string]struct{}, len(o.Slots))
	for i := range o.Slots {
		key := o.Slots[i].Key()
		if _, dup := slots[key]; dup {
			return fmt.Errorf("%w: duplicate slot %s", config.ErrInvalid, key)
		}
		slots[key] = struct{}{}
	}

	ref := func(section, key string) error {
		if _, ok := slots[key]; !ok {
			return fmt.Errorf("%w: %s references unknown slot %q", config.ErrInvalid, section, key)
		}
		return nil
	}
	for i := range o.Synonyms {
		if err := ref("synonyms", o.Synonyms[i].Key()); err != nil {
			return err
		}
	}
	for _, rule := range o.Editorial {
		if err := ref("editorial", rule.Slot); err != nil {
			return err
		}
	}
	for _, hint := range o.Hints {
		if err := ref("hints", hint.Slot); err != nil {
			return err
		}
	}
	for _, key := range o.QuietSlots {
		if err := ref("quiet_slots", key); err != nil {
			return err
		}
	}

	for _, m := range []core.Mode{core.ModeLight, core.ModeVibe, core.ModeSurprise} {
		if _, ok := o.Modes[string(m)]; !ok {
			return fmt.Errorf("%w: missing weights for mode %q", config.ErrInvalid, m)
		}
	}
	if _, ok := o.FieldWeights[IntentDefault]; !ok {
		return fmt.Errorf("%w: missing default field weights", config.ErrInvalid)
	}
	return nil
}
