package guard

import (
	"log/slog"
	"path/filepath"
	"strings"
)

// PathPolicy gates filesystem access by resolved path prefix. Blocked
// prefixes always win; when an allowed list is configured every path
// must fall under one of its prefixes.
type PathPolicy struct {
	blocked []string
	allowed []string
	logger  *slog.Logger
}

// NewPathPolicy creates a PathPolicy. Empty lists mean no restriction.
func NewPathPolicy(blocked, allowed []string, logger *slog.Logger) *PathPolicy {
	return &PathPolicy{blocked: blocked, allowed: allowed, logger: logger}
}

// Check reports whether path may be accessed. The path is resolved to
// an absolute cleaned form before prefix comparison, so relative paths
// and ./.. segments cannot dodge a blocked prefix. Denials are logged
// at warn.
func (p *PathPolicy) Check(path string) bool {
	resolved, err := filepath.Abs(path)
	if err != nil {
		p.logger.Warn("path resolution failed", "error", err)
		return false
	}

	for _, blocked := range p.blocked {
		if strings.HasPrefix(resolved, blocked) {
			p.logger.Warn("access denied to blocked path", "path", resolved)
			return false
		}
	}

	if len(p.allowed) > 0 {
		for _, allowed := range p.allowed {
			if strings.HasPrefix(resolved, allowed) {
				return true
			}
		}
		p.logger.Warn("access denied to non-allowed path", "path", resolved)
		return false
	}

	return true
}
