package root

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"

	"github.com/coderena/validator/pkg/dendrite"
	"github.com/coderena/validator/pkg/metagraph"
)

// fleetConfig is the CLI's YAML description of the miner set a `validator
// run` invocation grades, standing in for the real subtensor
// metagraph/axon transport spec.md §1 explicitly treats as an external
// collaborator this repository does not implement. Loading it produces the
// same metagraph.Fake/dendrite.Client pair the package's own tests use
// (SPEC_FULL.md §6), so a standalone run is reproducible without a chain
// connection.
type fleetConfig struct {
	Block  int            `yaml:"block"`
	Miners []minerConfig  `yaml:"miners"`
}

type minerConfig struct {
	UID      int    `yaml:"uid"`
	Hotkey   string `yaml:"hotkey"`
	// LogicDir, if set, is a directory tree copied verbatim into this
	// miner's logic bundle (relative path -> file text). Empty means the
	// miner does not respond to the logic synapse query.
	LogicDir string `yaml:"logic_dir"`
}

// loadFleet reads path and returns the metagraph/dendrite fakes it
// describes; UIDs are listed in the order of the file's miners[] entries.
func loadFleet(path string) (*metagraph.Fake, *dendrite.Fake, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading fleet file: %w", err)
	}

	var cfg fleetConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, nil, fmt.Errorf("parsing fleet file: %w", err)
	}

	mg := &metagraph.Fake{
		Hotkeys: make(map[int]string, len(cfg.Miners)),
		Block:   cfg.Block,
	}
	dc := &dendrite.Fake{
		Responses: make(map[int]dendrite.LogicSynapseResponse, len(cfg.Miners)),
	}

	for _, m := range cfg.Miners {
		mg.UIDList = append(mg.UIDList, m.UID)
		mg.Hotkeys[m.UID] = m.Hotkey

		if m.LogicDir == "" {
			dc.Responses[m.UID] = dendrite.LogicSynapseResponse{}
			continue
		}
		bundle, err := readBundleDir(m.LogicDir)
		if err != nil {
			return nil, nil, fmt.Errorf("reading logic_dir for uid %d: %w", m.UID, err)
		}
		dc.Responses[m.UID] = dendrite.LogicSynapseResponse{Logic: bundle}
	}

	return mg, dc, nil
}

// readBundleDir reads every regular file under dir into a relative-path ->
// content map, the inverse of pkg/evaluator's materializeBundle.
func readBundleDir(dir string) (map[string]string, error) {
	bundle := make(map[string]string)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		bundle[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bundle, nil
}
