package app

import (
	"context"
	"errors"
	"fmt"

	"traceline/internal/config"
	"traceline/internal/engine"
	"traceline/internal/repo"
)

// DefaultActor is used when no actor is given on the command line.
const DefaultActor = "local-user"

// ResolveOrgAndConfig picks the active org and config for a workspace.
// The org override wins over traceline.yml. An org missing from the
// database is created on the fly with actorID as owner.
func ResolveOrgAndConfig(ctx context.Context, workspace, orgOverride, actorID string, eng engine.Engine) (string, *config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return "", nil, err
	}
	if cfg == nil {
		if orgOverride == "" {
			return "", nil, fmt.Errorf("org not specified; use --org or create %s with tl init", config.Path(workspace))
		}
		cfg = config.Default(orgOverride)
	}
	if orgOverride != "" {
		cfg.Org.ID = orgOverride
	}
	if actorID == "" {
		actorID = DefaultActor
	}
	if _, err := eng.Repo.GetOrg(ctx, cfg.Org.ID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if _, err := eng.InitOrg(ctx, cfg, actorID); err != nil {
			return "", nil, fmt.Errorf("init org %s: %w", cfg.Org.ID, err)
		}
	}
	return cfg.Org.ID, cfg, nil
}
