package files

import (
	"context"
	"errors"

	"github.com/haasonsaas/aide/internal/agent"
	"github.com/haasonsaas/aide/internal/security"
)

// Resolver maps tool-supplied paths to validated absolute paths. A
// security policy on the tool context takes precedence; without one the
// workspace scope built at construction confines access, so the tools
// stay safe when used standalone.
type Resolver struct {
	scope *security.FilesystemScope
}

// NewResolver builds a resolver rooted at the workspace. An empty
// workspace means the current directory.
func NewResolver(workspace string) Resolver {
	scope, err := security.NewFilesystemScope(workspace, nil, false)
	if err != nil {
		scope = nil
	}
	return Resolver{scope: scope}
}

// Resolve validates path for the operation and returns the absolute
// location. Violations surface as *security.SecurityError in the chain.
func (r Resolver) Resolve(ctx context.Context, path string, op security.Op) (string, error) {
	if tc, ok := agent.ToolContextFromContext(ctx); ok && tc.Security != nil {
		return tc.Security.ValidatePath(path, op)
	}
	if r.scope == nil {
		return "", errors.New("workspace is not configured")
	}
	return r.scope.ValidatePath(path, op)
}
