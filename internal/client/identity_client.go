package client

import (
	"context"
	"os"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	apperrors "github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/service"
)

// StaticIdentityClient implements service.IdentityClientInterface over a
// fixed user table. There is no authentication: a user id is trusted as-is.
type StaticIdentityClient struct {
	mu    sync.RWMutex
	users map[string]*service.Actor
}

type usersFile struct {
	Users []*service.Actor `yaml:"users"`
}

// DefaultUsers is the demo directory used when no users file is configured.
var DefaultUsers = []*service.Actor{
	{ID: "user-001", FirstName: "Sarah", LastName: "Johnson", Role: service.RoleProcurementManager},
	{ID: "user-002", FirstName: "Michael", LastName: "Chen", Role: service.RoleFinanceManager},
	{ID: "user-003", FirstName: "Emily", LastName: "Rodriguez", Role: "Department Manager"},
	{ID: "user-004", FirstName: "David", LastName: "Thompson", Role: service.RoleSystemAdministrator},
	{ID: "user-005", FirstName: "Lisa", LastName: "Anderson", Role: "Employee"},
}

// NewStaticIdentityClient builds a directory from the given users.
func NewStaticIdentityClient(users []*service.Actor) *StaticIdentityClient {
	c := &StaticIdentityClient{users: make(map[string]*service.Actor, len(users))}
	for _, u := range users {
		cp := *u
		c.users[u.ID] = &cp
	}
	return c
}

// LoadStaticIdentityClient reads a YAML users file of the form
//
//	users:
//	  - id: user-001
//	    first_name: Sarah
//	    last_name: Johnson
//	    role: Procurement Manager
func LoadStaticIdentityClient(path string) (*StaticIdentityClient, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read users file %s", path)
	}

	var f usersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrapf(err, "failed to parse users file %s", path)
	}
	for i, u := range f.Users {
		if u == nil || u.ID == "" {
			return nil, errors.Errorf("users file %s: entry %d has no id", path, i)
		}
	}
	return NewStaticIdentityClient(f.Users), nil
}

// GetUser returns a copy of the user with the given id.
func (c *StaticIdentityClient) GetUser(ctx context.Context, userID string) (*service.Actor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	u, ok := c.users[userID]
	if !ok {
		return nil, apperrors.NotFound("user", userID)
	}
	cp := *u
	return &cp, nil
}

// GetUsersWithRole returns the sorted ids of users holding role.
func (c *StaticIdentityClient) GetUsersWithRole(ctx context.Context, role string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var ids []string
	for id, u := range c.users {
		if u.Role == role {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

var _ service.IdentityClientInterface = (*StaticIdentityClient)(nil)
