package mcp

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Policy controls which tools that modify the vault an MCP client may call.
// Read-only tools are always available.
type Policy struct {
	Version       int      `yaml:"version"`
	DefaultAction string   `yaml:"default_action"`
	DeniedTools   []string `yaml:"denied_tools"`
	AllowedTools  []string `yaml:"allowed_tools"`
}

// PolicyFileName is the name of the policy file, kept next to the vault file
const PolicyFileName = "mcp-policy.yaml"

// maxPolicySize bounds the policy file
const maxPolicySize = 64 * 1024

// Policy action constants
const (
	ActionAllow = "allow"
	ActionDeny  = "deny"
)

// ErrPolicyNotFound is returned when no policy file exists
var ErrPolicyNotFound = errors.New("MCP policy file not found")

// ErrPolicyInsecure is returned when policy file has insecure permissions
var ErrPolicyInsecure = errors.New("MCP policy file has insecure permissions")

// ErrPolicySymlink is returned when policy file is a symlink
var ErrPolicySymlink = errors.New("MCP policy file is a symlink")

// ErrPolicyNotOwnedByUser is returned when policy file is not owned by current user
var ErrPolicyNotOwnedByUser = errors.New("MCP policy file not owned by current user")

// LoadPolicy loads the MCP policy from the vault directory.
// The file is opened without following symlinks and checked through the
// open descriptor, so it cannot be swapped between check and read.
func LoadPolicy(dir string) (*Policy, error) {
	policyPath := filepath.Join(dir, PolicyFileName)

	f, err := openPolicyFile(policyPath)
	if err != nil {
		if errors.Is(err, ErrPolicyNotFound) || errors.Is(err, ErrPolicySymlink) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to open policy file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat policy file: %w", err)
	}

	if err := checkFilePermissions(info); err != nil {
		return nil, err
	}
	if err := checkFileOwnership(info); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(io.LimitReader(f, maxPolicySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	if len(content) > maxPolicySize {
		return nil, fmt.Errorf("policy file is larger than %d bytes", maxPolicySize)
	}

	var policy Policy
	if err := yaml.Unmarshal(content, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	// Default to deny if not specified
	if policy.DefaultAction == "" {
		policy.DefaultAction = ActionDeny
	}

	if err := policy.ValidatePolicy(); err != nil {
		return nil, err
	}

	return &policy, nil
}

// IsToolAllowed checks if a write tool may be called.
// Evaluation order:
// 1. denied_tools → deny
// 2. allowed_tools → allow
// 3. default_action
//
// A nil policy denies every write tool.
func (p *Policy) IsToolAllowed(tool string) (allowed bool, reason string) {
	if p == nil {
		return false, fmt.Sprintf("tool '%s' modifies the vault and no %s is configured", tool, PolicyFileName)
	}

	for _, denied := range p.DeniedTools {
		if denied == tool {
			return false, fmt.Sprintf("tool '%s' is in denied_tools", tool)
		}
	}

	for _, allowed := range p.AllowedTools {
		if allowed == tool {
			return true, ""
		}
	}

	if p.DefaultAction == ActionAllow {
		return true, ""
	}

	return false, fmt.Sprintf("tool '%s' not in allowed_tools list", tool)
}

// ValidatePolicy validates the policy configuration
func (p *Policy) ValidatePolicy() error {
	if p.Version != 1 {
		return fmt.Errorf("unsupported policy version: %d", p.Version)
	}

	if p.DefaultAction != ActionDeny && p.DefaultAction != ActionAllow {
		return fmt.Errorf("invalid default_action: %s (must be '%s' or '%s')", p.DefaultAction, ActionDeny, ActionAllow)
	}

	for _, list := range [][]string{p.AllowedTools, p.DeniedTools} {
		for _, tool := range list {
			if !isWriteTool(tool) {
				return fmt.Errorf("unknown write tool in policy: %s", tool)
			}
		}
	}

	return nil
}
