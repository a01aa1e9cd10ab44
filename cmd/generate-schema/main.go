// Command generate-schema writes the JSON schema of the gofor configuration
// file, with every key annotated with its default value.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/marmos91/gofor/pkg/config"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// durationPattern matches the strings time.ParseDuration accepts.
const durationPattern = `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`

var durationType = reflect.TypeOf(time.Duration(0))

func main() {
	flags := pflag.NewFlagSet("generate-schema", pflag.ContinueOnError)
	output := flags.StringP("output", "o", "config.schema.json", "Where to write the schema")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	// Positional form kept for existing scripts
	if flags.NArg() > 0 {
		*output = flags.Arg(0)
	}

	if err := writeSchema(*output); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("JSON schema written to %s\n", *output)
}

func writeSchema(path string) error {
	schema, err := buildSchema()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write schema: %w", err)
	}
	return nil
}

// buildSchema reflects config.Config using the YAML key names users write,
// then fills in the defaults gofor applies.
func buildSchema() (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		FieldNameTag:              "yaml",
		Mapper:                    mapType,
	}

	schema := reflector.Reflect(&config.Config{})
	schema.Title = "gofor Configuration"
	schema.Description = "Configuration file of the gofor Gopher server (config.yaml)"

	defaults, err := defaultValues()
	if err != nil {
		return nil, err
	}
	applyDefaults(schema, defaults)

	return schema, nil
}

// mapType renders durations the way the config file spells them ("30s").
func mapType(t reflect.Type) *jsonschema.Schema {
	if t == durationType {
		return &jsonschema.Schema{
			Type:        "string",
			Pattern:     durationPattern,
			Description: "Go duration, e.g. 500ms, 30s, 1m",
		}
	}
	return nil
}

// defaultValues renders config.GetDefaultConfig as a generic YAML tree, so
// keys and value forms match what `gofor init` writes.
func defaultValues() (map[string]any, error) {
	data, err := yaml.Marshal(config.GetDefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("marshal defaults: %w", err)
	}

	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("unmarshal defaults: %w", err)
	}
	return tree, nil
}

func applyDefaults(schema *jsonschema.Schema, defaults map[string]any) {
	if schema.Properties == nil {
		return
	}
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		value, ok := defaults[pair.Key]
		if !ok {
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			applyDefaults(pair.Value, nested)
			continue
		}
		pair.Value.Default = value
	}
}
