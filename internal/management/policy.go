package management

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/giantswarm/mcp-minecraft/internal/correlate"
)

// Operation names. They key the policy table, label metrics and name spans.
const (
	OpSaveAll         = "save_all"
	OpListPlayers     = "list_players"
	OpEnableAutoSave  = "enable_autosave"
	OpDisableAutoSave = "disable_autosave"
	OpListUsers       = "list_users"
	OpBackup          = "backup"
	OpRCONCommand     = "rcon_command"
)

const listCommand = "list uuids"

// correlatedOps are the operations driven through the console correlator.
// Only these can carry a policy.
var correlatedOps = []string{OpSaveAll, OpListPlayers, OpEnableAutoSave, OpDisableAutoSave}

// ErrUnknownOperation is returned for a policy override naming an operation
// that has no console policy.
var ErrUnknownOperation = errors.New("unknown operation")

// Policy is the command and reply phases of one console operation.
type Policy struct {
	Command string
	Phases  []correlate.Phase
}

// Request converts the policy to a correlation request.
func (p Policy) Request() correlate.Request {
	req := correlate.Request{Command: p.Command, Phases: p.Phases}
	for _, ph := range p.Phases {
		req.Deadline += ph.Timeout
	}
	return req
}

// DefaultPolicies returns the built-in policy table. Each call returns a
// fresh map.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		OpSaveAll: {
			Command: "save-all",
			Phases: []correlate.Phase{
				{Name: "started", Pattern: replyPattern(`Saving the game \(this may take a moment!\)`), Timeout: 500 * time.Millisecond},
				{Name: "saved", Pattern: replyPattern(`Saved the game`), Timeout: 5 * time.Second},
			},
		},
		OpDisableAutoSave: {
			Command: "save-off",
			Phases: []correlate.Phase{
				{Name: "disabled", Pattern: replyPattern(`(?:Automatic saving is now disabled|Saving is already turned off)`), Timeout: 500 * time.Millisecond},
			},
		},
		OpEnableAutoSave: {
			Command: "save-on",
			Phases: []correlate.Phase{
				{Name: "enabled", Pattern: replyPattern(`(?:Automatic saving is now enabled|Saving is already turned on)`), Timeout: 500 * time.Millisecond},
			},
		},
		OpListPlayers: {
			Command: listCommand,
			Phases: []correlate.Phase{
				{Name: "list", Pattern: playerListPattern, Timeout: 2 * time.Second},
			},
		},
	}
}

// policyFile is the YAML shape of a policy override file:
//
//	save_all:
//	  command: save-all
//	  phases:
//	    - name: started
//	      pattern: 'Saving the game'
//	      timeout: 1s
type policyFile map[string]struct {
	Command string `yaml:"command"`
	Phases  []struct {
		Name    string `yaml:"name"`
		Pattern string `yaml:"pattern"`
		Timeout string `yaml:"timeout"`
	} `yaml:"phases"`
}

// LoadPolicyFile reads overrides from path and merges them over the defaults.
func LoadPolicyFile(path string) (map[string]Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open policy file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParsePolicies(f)
}

// ParsePolicies reads YAML overrides from r and merges them over the
// defaults. An override replaces the whole policy of its operation.
func ParsePolicies(r io.Reader) (map[string]Policy, error) {
	var file policyFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode policy file: %w", err)
	}

	policies := DefaultPolicies()
	names := make([]string, 0, len(file))
	for name := range file {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, ok := policies[name]; !ok {
			return nil, fmt.Errorf("%w %q (valid: %s)", ErrUnknownOperation, name, strings.Join(correlatedOps, ", "))
		}
		raw := file[name]
		if strings.TrimSpace(raw.Command) == "" {
			return nil, fmt.Errorf("policy %s: command is required", name)
		}
		if strings.ContainsAny(raw.Command, "\r\n") {
			return nil, fmt.Errorf("policy %s: command must be a single line", name)
		}
		if len(raw.Phases) == 0 {
			return nil, fmt.Errorf("policy %s: at least one phase is required", name)
		}

		p := Policy{Command: raw.Command}
		for i, ph := range raw.Phases {
			re, err := regexp.Compile(ph.Pattern)
			if err != nil {
				return nil, fmt.Errorf("policy %s phase %d: invalid pattern: %w", name, i+1, err)
			}
			timeout, err := time.ParseDuration(ph.Timeout)
			if err != nil {
				return nil, fmt.Errorf("policy %s phase %d: invalid timeout: %w", name, i+1, err)
			}
			if timeout <= 0 {
				return nil, fmt.Errorf("policy %s phase %d: timeout must be positive", name, i+1)
			}
			p.Phases = append(p.Phases, correlate.Phase{Name: ph.Name, Pattern: re, Timeout: timeout})
		}
		policies[name] = p
	}
	return policies, nil
}
