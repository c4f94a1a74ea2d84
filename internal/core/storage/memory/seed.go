package memory

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aevon-lab/segment-relay/internal/identity"
)

// actorRecord is one entry of an actors seed file.
type actorRecord struct {
	ID            string    `yaml:"id"`
	Name          string    `yaml:"name"`
	Username      string    `yaml:"username"`
	Email         string    `yaml:"email"`
	CreatedAt     time.Time `yaml:"created_at"`
	SSOExternalID string    `yaml:"sso_external_id"`
	IPAddress     string    `yaml:"ip_address"`
}

type seedFile struct {
	Actors []actorRecord `yaml:"actors"`
}

// LoadActorStore creates a store seeded from the YAML file at path. An empty path yields an empty store.
//
//	actors:
//	  - id: "1"
//	    email: "ada@example.com"
//	    created_at: 2024-01-02T15:04:05Z
func LoadActorStore(path string) (*ActorStore, error) {
	if path == "" {
		return NewActorStore()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read actors file: %w", err)
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse actors file %s: %w", path, err)
	}

	actors := make([]identity.Actor, 0, len(f.Actors))
	seen := make(map[string]struct{}, len(f.Actors))
	for _, r := range f.Actors {
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("actors file %s: duplicate actor id %q", path, r.ID)
		}
		seen[r.ID] = struct{}{}
		actors = append(actors, identity.Actor{
			ID:            r.ID,
			Name:          r.Name,
			Username:      r.Username,
			Email:         r.Email,
			CreatedAt:     r.CreatedAt,
			SSOExternalID: r.SSOExternalID,
			IPAddress:     r.IPAddress,
		})
	}

	s, err := NewActorStore(actors...)
	if err != nil {
		return nil, fmt.Errorf("actors file %s: %w", path, err)
	}
	return s, nil
}
