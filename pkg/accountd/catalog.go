package accountd

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/matchlobby/pkg/datastore"
	"github.com/NicolasHaas/matchlobby/pkg/model"
)

// GameYAML represents a catalog entry in YAML.
type GameYAML struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Version     string `yaml:"version,omitempty"`
	File        string `yaml:"file,omitempty"` // defaults to <name>.py
}

// Catalog is the top-level YAML document for the game catalog.
type Catalog struct {
	Games []GameYAML `yaml:"games"`
}

// LoadGamesFromYAML reads a catalog file and upserts every game in it.
func LoadGamesFromYAML(path string, st datastore.GameWriteProvider) error {
	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI config
	if err != nil {
		return fmt.Errorf("read games catalog: %w", err)
	}
	return ImportGamesFromYAML(data, st)
}

// ImportGamesFromYAML parses catalog YAML and upserts every game in it.
// Invalid entries are logged and skipped.
func ImportGamesFromYAML(data []byte, st datastore.GameWriteProvider) error {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return fmt.Errorf("parse games catalog: %w", err)
	}

	imported := 0
	for _, g := range cat.Games {
		file := g.File
		if file == "" {
			file = g.Name + ".py"
		}
		game := &model.Game{Name: g.Name, Description: g.Description, Version: g.Version, File: file}
		if err := st.UpsertGame(game); err != nil {
			slog.Error("failed to import game", "name", g.Name, "err", err)
			continue
		}
		imported++
	}

	slog.Info("imported games catalog", "count", imported)
	return nil
}

// ExportGamesYAML exports the catalog as YAML.
func ExportGamesYAML(st datastore.GameReadProvider) ([]byte, error) {
	games, err := st.ListGames()
	if err != nil {
		return nil, err
	}
	cat := Catalog{Games: make([]GameYAML, 0, len(games))}
	for _, g := range games {
		cat.Games = append(cat.Games, GameYAML{
			Name:        g.Name,
			Description: g.Description,
			Version:     g.Version,
			File:        g.File,
		})
	}
	return yaml.Marshal(&cat)
}
