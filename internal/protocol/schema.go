package protocol

import (
	_ "embed"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	//go:embed schemas/arena_state.schema.json
	arenaStateSchemaJSON string

	//go:embed schemas/command.schema.json
	commandSchemaJSON string

	arenaStateSchema = jsonschema.MustCompileString("arena_state.schema.json", arenaStateSchemaJSON)
	commandSchema    = jsonschema.MustCompileString("command.schema.json", commandSchemaJSON)
)

// ValidateArenaState checks the frame envelope only. Individual agent
// records are left to the decoder so a bad record can be skipped alone.
// v must come from json.Unmarshal into an interface value.
func ValidateArenaState(v any) error {
	if err := arenaStateSchema.Validate(v); err != nil {
		return fmt.Errorf("arena_state: %w", err)
	}
	return nil
}

// ValidateCommand is used by the broadcaster to sanity check viewer input.
func ValidateCommand(v any) error {
	if err := commandSchema.Validate(v); err != nil {
		return fmt.Errorf("command: %w", err)
	}
	return nil
}
