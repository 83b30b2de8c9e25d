package service

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/llmrelay/llmrelay/internal/models"
	"github.com/llmrelay/llmrelay/internal/repository"
)

// BootstrapFile is the declarative seed applied at startup. Every entry is
// idempotent: existing rows are matched by their natural key and left alone.
type BootstrapFile struct {
	Groups    []BootstrapGroup    `yaml:"groups"`
	Providers []BootstrapProvider `yaml:"providers"`
	APIKeys   []BootstrapKey      `yaml:"api_keys"`
}

type BootstrapGroup struct {
	Name string `yaml:"name"`
}

type BootstrapProvider struct {
	Name            string                    `yaml:"name"`
	APIEndpoint     string                    `yaml:"api_endpoint"`
	APIKey          string                    `yaml:"api_key"`
	Model           string                    `yaml:"model"`
	PricePerMillion *float64                  `yaml:"price_per_million_tokens"`
	InputPricePerM  *float64                  `yaml:"input_price_per_million_tokens"`
	OutputPricePerM *float64                  `yaml:"output_price_per_million_tokens"`
	Type            string                    `yaml:"type"`
	IsActive        *bool                     `yaml:"is_active"`
	Groups          []BootstrapProviderMember `yaml:"groups"`
}

type BootstrapProviderMember struct {
	Name     string `yaml:"name"`
	Priority int    `yaml:"priority"`
}

type BootstrapKey struct {
	Key      string   `yaml:"key"`
	IsActive *bool    `yaml:"is_active"`
	Groups   []string `yaml:"groups"`
}

// LoadBootstrap reads and decodes a bootstrap file. Unknown fields are
// rejected so typos fail loudly.
func LoadBootstrap(path string) (*BootstrapFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bootstrap file %q: %w", path, err)
	}
	defer f.Close()

	file := &BootstrapFile{}
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(file); err != nil {
		return nil, fmt.Errorf("failed to decode bootstrap file %q: %w", path, err)
	}
	return file, nil
}

// Bootstrapper applies a BootstrapFile against the repositories.
type Bootstrapper struct {
	providers   repository.ProviderRepository
	groups      repository.GroupRepository
	memberships repository.MembershipRepository
	keys        repository.APIKeyRepository
	logger      *zap.Logger
}

func NewBootstrapper(
	providers repository.ProviderRepository,
	groups repository.GroupRepository,
	memberships repository.MembershipRepository,
	keys repository.APIKeyRepository,
	logger *zap.Logger,
) *Bootstrapper {
	return &Bootstrapper{
		providers:   providers,
		groups:      groups,
		memberships: memberships,
		keys:        keys,
		logger:      logger,
	}
}

// Apply seeds groups, providers, memberships and API keys. Group names
// referenced by providers or keys are created implicitly.
func (b *Bootstrapper) Apply(ctx context.Context, file *BootstrapFile) error {
	groupIDs := make(map[string]int64)

	ensureGroup := func(name string) (int64, error) {
		if id, ok := groupIDs[name]; ok {
			return id, nil
		}
		existing, err := b.groups.FindByName(ctx, name)
		if err != nil {
			return 0, err
		}
		if existing != nil {
			groupIDs[name] = existing.ID
			return existing.ID, nil
		}
		id, err := b.groups.Insert(ctx, name)
		if err != nil {
			return 0, err
		}
		b.logger.Info("bootstrap created group", zap.String("name", name))
		groupIDs[name] = id
		return id, nil
	}

	for _, g := range file.Groups {
		if _, err := ensureGroup(g.Name); err != nil {
			return fmt.Errorf("failed to bootstrap group %q: %w", g.Name, err)
		}
	}

	for _, p := range file.Providers {
		existing, err := b.providers.FindByTriplet(ctx, p.APIEndpoint, p.APIKey, p.Model)
		if err != nil {
			return fmt.Errorf("failed to bootstrap provider %q: %w", p.Name, err)
		}

		var providerID int64
		if existing != nil {
			providerID = existing.ID
		} else {
			billing := p.Type
			if billing == "" {
				billing = models.BillingPerToken
			}
			active := true
			if p.IsActive != nil {
				active = *p.IsActive
			}
			providerID, err = b.providers.Insert(ctx, &models.Provider{
				Name:            p.Name,
				APIEndpoint:     p.APIEndpoint,
				APIKey:          p.APIKey,
				Model:           p.Model,
				PricePerMillion: p.PricePerMillion,
				InputPricePerM:  p.InputPricePerM,
				OutputPricePerM: p.OutputPricePerM,
				Type:            billing,
				IsActive:        active,
			})
			if err != nil {
				return fmt.Errorf("failed to bootstrap provider %q: %w", p.Name, err)
			}
			b.logger.Info("bootstrap created provider",
				zap.String("name", p.Name), zap.String("model", p.Model))
		}

		for _, member := range p.Groups {
			groupID, err := ensureGroup(member.Name)
			if err != nil {
				return fmt.Errorf("failed to bootstrap group %q: %w", member.Name, err)
			}
			priority := member.Priority
			if priority == 0 {
				priority = 1
			}
			if err := b.memberships.Upsert(ctx, providerID, groupID, priority); err != nil {
				return fmt.Errorf("failed to bootstrap membership %q->%q: %w", p.Name, member.Name, err)
			}
		}
	}

	for _, k := range file.APIKeys {
		if k.Key == "" {
			continue
		}
		existing, err := b.keys.FindByKey(ctx, k.Key)
		if err != nil {
			return fmt.Errorf("failed to bootstrap api key: %w", err)
		}
		if existing != nil {
			continue
		}

		ids := make([]int64, 0, len(k.Groups))
		for _, name := range k.Groups {
			id, err := ensureGroup(name)
			if err != nil {
				return fmt.Errorf("failed to bootstrap group %q: %w", name, err)
			}
			ids = append(ids, id)
		}
		active := true
		if k.IsActive != nil {
			active = *k.IsActive
		}
		if _, err := b.keys.Insert(ctx, &models.APIKey{Key: k.Key, IsActive: active}, ids); err != nil {
			return fmt.Errorf("failed to bootstrap api key: %w", err)
		}
		b.logger.Info("bootstrap created api key", zap.String("prefix", keyPrefix(k.Key)))
	}

	return nil
}
