package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"offsync/internal/api"
	"offsync/internal/config"
	"offsync/internal/queue"
)

type commandContext struct {
	configFlag *string
	apiFlag    *string
	tenantFlag *string
	jsonFlag   *bool
	localFlag  *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, apiFlag, tenantFlag *string, jsonFlag, localFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		apiFlag:    apiFlag,
		tenantFlag: tenantFlag,
		jsonFlag:   jsonFlag,
		localFlag:  localFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) JSONMode() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// tenant resolves the --tenant flag, defaulting to the only active tenant.
func (c *commandContext) tenant() (string, error) {
	if c.tenantFlag != nil {
		if tenant := strings.TrimSpace(*c.tenantFlag); tenant != "" {
			return tenant, nil
		}
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	switch len(cfg.Tenants.Active) {
	case 1:
		return cfg.Tenants.Active[0], nil
	case 0:
		return "", errors.New("tenant is required: pass --tenant or set tenants.active")
	default:
		return "", fmt.Errorf("tenant is required: pass --tenant (active tenants: %s)", strings.Join(cfg.Tenants.Active, ", "))
	}
}

func (c *commandContext) apiClient() (*api.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	bind := cfg.API.Bind
	if c.apiFlag != nil && strings.TrimSpace(*c.apiFlag) != "" {
		bind = *c.apiFlag
	}
	return api.NewClient(bind, cfg.API.Token)
}

// withQueue runs fn against the daemon API when it answers, otherwise
// against the local queue database.
func (c *commandContext) withQueue(ctx context.Context, fn func(queueAPI) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if c.localFlag == nil || !*c.localFlag {
		client, err := c.apiClient()
		if err != nil {
			return err
		}
		if client != nil {
			if _, err := client.Status(ctx); err == nil {
				return fn(&queueAPIAdapter{client: client})
			} else if !api.IsAPIUnavailable(err) {
				return err
			}
		}
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(newQueueStoreAdapter(cfg, store))
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
