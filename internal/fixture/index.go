package fixture

import (
	"context"
	"fmt"
	"strings"

	"github.com/danmuck/aqltest/internal/observability"
	"github.com/rs/zerolog/log"
)

type IndexType string

const (
	IndexNumeric IndexType = "numeric"
	IndexString  IndexType = "string"
)

func ParseIndexType(raw string) (IndexType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "numeric":
		return IndexNumeric, nil
	case "string":
		return IndexString, nil
	default:
		return "", fmt.Errorf("unknown index type %q", raw)
	}
}

// IndexSpec names a secondary index. An empty Set indexes the whole namespace.
type IndexSpec struct {
	Name      string
	Namespace string
	Set       string
	Bin       string
	Type      IndexType
}

// CreateCommand is the equivalent sindex-create info command.
func (s IndexSpec) CreateCommand() string {
	cmd := fmt.Sprintf("sindex-create:ns=%s;indexname=%s;indexdata=%s,%s", s.Namespace, s.Name, s.Bin, s.Type)
	if s.Set != "" {
		cmd += ";set=" + s.Set
	}
	return cmd
}

func (s IndexSpec) Validate() error {
	switch {
	case strings.TrimSpace(s.Name) == "":
		return fmt.Errorf("index name is required")
	case strings.TrimSpace(s.Namespace) == "":
		return fmt.Errorf("index %s: namespace is required", s.Name)
	case strings.TrimSpace(s.Bin) == "":
		return fmt.Errorf("index %s: bin is required", s.Name)
	case s.Type != IndexNumeric && s.Type != IndexString:
		return fmt.Errorf("index %s: unknown type %q", s.Name, s.Type)
	}
	return nil
}

func CreateIndex(ctx context.Context, store Store, spec IndexSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	log.Debug().Str("cmd", spec.CreateCommand()).Msg("fixture.CreateIndex")
	err := store.CreateIndex(ctx, spec)
	observability.RecordIndexOperation("create", err == nil)
	if err != nil {
		return err
	}
	log.Info().Str("index", spec.Name).Str("bin", spec.Bin).Str("set", spec.Set).Msg("created secondary index")
	return nil
}

func CreateIndexes(ctx context.Context, store Store, specs []IndexSpec) error {
	for _, spec := range specs {
		if err := CreateIndex(ctx, store, spec); err != nil {
			return err
		}
	}
	return nil
}

func DeleteIndex(ctx context.Context, store Store, namespace, name string) error {
	err := store.DropIndex(ctx, namespace, "", name)
	observability.RecordIndexOperation("delete", err == nil)
	if err != nil {
		return err
	}
	log.Info().Str("index", name).Msg("deleted secondary index")
	return nil
}
