package oracle

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

type scenarioFile struct {
	Scenarios []*Script `toml:"scenario"`
}

// LoadScenarios reads scripted scenarios from a TOML file:
//
//   [[scenario]]
//   name = "ping"
//   players = [{ id = "p1", password = "somepw" }]
//
//     [[scenario.step]]
//     player = "p1"
//     action = "login"
//     expect = "op=LOGIN&code=0&content=p1"
//
func LoadScenarios(path string) ([]Scenario, error) {
	var file scenarioFile

	meta, err := toml.DecodeFile(path, &file)
	if err != nil {
		return nil, fmt.Errorf("load scenarios: %w", err)
	}

	return scenarios(meta, &file)
}

// ParseScenarios is LoadScenarios for TOML that's already in memory.
func ParseScenarios(data string) ([]Scenario, error) {
	var file scenarioFile

	meta, err := toml.Decode(data, &file)
	if err != nil {
		return nil, fmt.Errorf("parse scenarios: %w", err)
	}

	return scenarios(meta, &file)
}

func scenarios(meta toml.MetaData, file *scenarioFile) ([]Scenario, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}

		return nil, fmt.Errorf("%w: unknown keys %s", ErrInvalidScenario, strings.Join(keys, ", "))
	}

	out := make([]Scenario, 0, len(file.Scenarios))

	for _, s := range file.Scenarios {
		if err := s.Validate(); err != nil {
			return nil, err
		}

		out = append(out, s)
	}

	return out, nil
}
