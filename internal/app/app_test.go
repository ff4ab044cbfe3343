package app

import (
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/satindergrewal/shuffleradio/internal/config"
)

func TestNewDefaultsToAll(t *testing.T) {
	a, err := New(config.Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	if a.cfg.Target != All {
		t.Errorf("Target = %q, want %q", a.cfg.Target, All)
	}

	deps := a.ModuleManager.DependenciesForModule(All)
	for _, m := range []string{Server, Catalog, Radio} {
		if !slices.Contains(deps, m) {
			t.Errorf("%s does not depend on %s: %v", All, m, deps)
		}
	}
	if deps := a.ModuleManager.DependenciesForModule(Catalog); slices.Contains(deps, Radio) {
		t.Errorf("%s should not depend on %s", Catalog, Radio)
	}
}
