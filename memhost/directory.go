package memhost

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/MrEthical07/magiclink"
	"github.com/google/uuid"
)

// Directory is a mutex-guarded user, client and group store. It implements
// magiclink.UserDirectory, magiclink.ClientRegistry and
// magiclink.GroupDirectory.
type Directory struct {
	mu      sync.RWMutex
	users   map[string]magiclink.User
	clients map[string]magiclink.Client
	groups  map[string]magiclink.Group
	newID   func() string
}

func NewDirectory() *Directory {
	return &Directory{
		users:   make(map[string]magiclink.User),
		clients: make(map[string]magiclink.Client),
		groups:  make(map[string]magiclink.Group),
		newID:   uuid.NewString,
	}
}

// PutUser inserts or replaces u. An empty ID is assigned.
func (d *Directory) PutUser(u magiclink.User) magiclink.User {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u.ID == "" {
		u.ID = d.newID()
	}
	d.users[u.ID] = u
	return u
}

// PutClient inserts or replaces c.
func (d *Directory) PutClient(c magiclink.Client) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clients[c.ClientID] = c
}

// PutGroup inserts or replaces g.
func (d *Directory) PutGroup(g magiclink.Group) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.groups[g.Name] = g
}

// SetEnabled toggles a user. Unknown ids are ignored.
func (d *Directory) SetEnabled(userID string, enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.users[userID]; ok {
		u.Enabled = enabled
		d.users[userID] = u
	}
}

// Len returns the number of users.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}

func (d *Directory) GetUserByID(_ context.Context, userID string) (magiclink.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userID]
	if !ok {
		return magiclink.User{}, fmt.Errorf("%w: id %q", magiclink.ErrUserNotFound, userID)
	}
	return u, nil
}

// FindUserByUsernameOrEmail matches usernames and emails case-insensitively.
func (d *Directory) FindUserByUsernameOrEmail(_ context.Context, usernameOrEmail string) (magiclink.User, error) {
	needle := strings.TrimSpace(usernameOrEmail)
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, u := range d.users {
		if strings.EqualFold(u.Username, needle) || strings.EqualFold(u.Email, needle) {
			return u, nil
		}
	}
	return magiclink.User{}, magiclink.ErrUserNotFound
}

// CreateUser provisions an enabled user whose username is the email address.
func (d *Directory) CreateUser(_ context.Context, email string) (magiclink.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return magiclink.User{}, fmt.Errorf("memhost: email required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if strings.EqualFold(u.Email, email) || strings.EqualFold(u.Username, email) {
			return magiclink.User{}, fmt.Errorf("memhost: user %q already exists", email)
		}
	}
	u := magiclink.User{
		ID:       d.newID(),
		Username: email,
		Email:    email,
		Enabled:  true,
	}
	d.users[u.ID] = u
	return u, nil
}

func (d *Directory) SetEmailVerified(_ context.Context, userID string, verified bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok {
		return fmt.Errorf("%w: id %q", magiclink.ErrUserNotFound, userID)
	}
	u.EmailVerified = verified
	d.users[userID] = u
	return nil
}

func (d *Directory) GetClientByClientID(_ context.Context, clientID string) (magiclink.Client, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.clients[clientID]
	if !ok {
		return magiclink.Client{}, fmt.Errorf("%w: %q", magiclink.ErrClientNotFound, clientID)
	}
	c.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	return c, nil
}

func (d *Directory) GetGroupByName(_ context.Context, name string) (magiclink.Group, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.groups[name]
	if !ok {
		return magiclink.Group{}, fmt.Errorf("%w: %q", magiclink.ErrGroupNotFound, name)
	}
	g.AllowedDomains = append([]string(nil), g.AllowedDomains...)
	return g, nil
}
