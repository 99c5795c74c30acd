// Package config implements the launcher's YAML topology file: how many
// NUMA nodes to spawn workers on, which CPUs belong to each, and where the
// shared mailbox lives, mirroring the YAML-tagged-struct convention this
// codebase's sibling services use for their own spec files.
package config

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/fastllm-numa/numacore/errs"
)

// currentConfigVersion is the schema version this build writes and reads
// without a migration step.
const currentConfigVersion = 2

// Topology is the launcher's top-level config: one NumaNode entry per
// worker process to spawn.
type Topology struct {
	ConfigVersion int        `yaml:"configVersion"`
	MailboxName   string     `yaml:"mailbox_name"`
	Threads       int        `yaml:"threads"`
	IdleSweepSecs int        `yaml:"idle_sweep_seconds,omitempty"`
	Nodes         []NumaNode `yaml:"nodes"`
}

// NumaNode describes one worker's CPU affinity and partition identity.
type NumaNode struct {
	PartID  int   `yaml:"part_id"`
	CPUs    []int `yaml:"cpus"`
	Threads int   `yaml:"threads,omitempty"` // overrides Topology.Threads when set
}

// Load reads and validates a topology file at path, applying the versioned
// migration chain when the file predates the current schema.
func Load(path string) (*Topology, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read topology file %s: %v", errs.ErrResource, path, err)
	}

	var t Topology
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("%w: parse topology file %s: %v", errs.ErrConfiguration, path, err)
	}

	if t.ConfigVersion == 0 {
		t.ConfigVersion = 1
	}
	if t.ConfigVersion < currentConfigVersion {
		UpgradeV1ToV2(&t)
	}

	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpgradeV1ToV2 fills in fields the v1 schema didn't have (idle sweep
// interval) with their v2 defaults and logs a deprecation warning, per the
// same versioned-migration convention the workload-spec loader uses.
func UpgradeV1ToV2(t *Topology) {
	logrus.WithFields(logrus.Fields{
		"from_version": t.ConfigVersion,
		"to_version":   currentConfigVersion,
	}).Warn("topology config uses a deprecated schema version; upgrading in memory")

	if t.IdleSweepSecs == 0 {
		t.IdleSweepSecs = 120
	}
	t.ConfigVersion = currentConfigVersion
}

func (t *Topology) validate() error {
	if t.MailboxName == "" {
		return fmt.Errorf("%w: topology config missing mailbox_name", errs.ErrConfiguration)
	}
	if len(t.Nodes) == 0 {
		return fmt.Errorf("%w: topology config has no nodes", errs.ErrConfiguration)
	}
	seen := make(map[int]bool, len(t.Nodes))
	for _, n := range t.Nodes {
		if len(n.CPUs) == 0 {
			return fmt.Errorf("%w: node part_id=%d has no cpus", errs.ErrConfiguration, n.PartID)
		}
		if seen[n.PartID] {
			return fmt.Errorf("%w: duplicate part_id=%d in topology config", errs.ErrConfiguration, n.PartID)
		}
		seen[n.PartID] = true
	}
	return nil
}

// PartCount returns the number of worker processes the topology describes.
func (t *Topology) PartCount() int {
	return len(t.Nodes)
}

// ThreadsFor returns the effective thread count for node, falling back to
// the topology-wide default.
func (t *Topology) ThreadsFor(n NumaNode) int {
	if n.Threads > 0 {
		return n.Threads
	}
	return t.Threads
}
