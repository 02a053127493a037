// Package realmfile loads a realm's clients, groups and seed users from YAML
// and applies them to a host store.
//
// Example:
//
//	realm: acme
//	displayName: Acme
//	clients:
//	  - clientId: portal
//	    rootUrl: https://portal.example.com
//	    redirectUris: ["https://portal.example.com/*"]
//	groups:
//	  - name: magic-link-domains
//	    allowedDomains: [example.org]
//	users:
//	  - username: alice
//	    email: alice@example.com
package realmfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/magiclink"
	"github.com/MrEthical07/magiclink/memhost"
)

// ErrInvalidRealm is returned for a file that parses but is not usable.
var ErrInvalidRealm = errors.New("realmfile: invalid realm")

// Realm is the decoded file.
type Realm struct {
	Name        string   `yaml:"realm"`
	DisplayName string   `yaml:"displayName"`
	Clients     []Client `yaml:"clients"`
	Groups      []Group  `yaml:"groups"`
	Users       []User   `yaml:"users"`
}

type Client struct {
	ClientID     string   `yaml:"clientId"`
	Name         string   `yaml:"name"`
	RootURL      string   `yaml:"rootUrl"`
	BaseURL      string   `yaml:"baseUrl"`
	RedirectURIs []string `yaml:"redirectUris"`
}

type Group struct {
	Name           string   `yaml:"name"`
	AllowedDomains []string `yaml:"allowedDomains"`
}

// User is a seed user. Enabled defaults to true.
type User struct {
	ID            string `yaml:"id"`
	Username      string `yaml:"username"`
	Email         string `yaml:"email"`
	FirstName     string `yaml:"firstName"`
	LastName      string `yaml:"lastName"`
	EmailVerified bool   `yaml:"emailVerified"`
	Enabled       *bool  `yaml:"enabled"`
}

// Target receives the seeded records. [*pgstore.Store] implements it;
// [Memory] adapts a memhost directory.
type Target interface {
	PutClient(ctx context.Context, c magiclink.Client) error
	PutGroup(ctx context.Context, g magiclink.Group) error
	PutUser(ctx context.Context, u magiclink.User) error
}

// LoadFile reads and parses path.
func LoadFile(path string) (*Realm, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("realmfile: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a realm document. Unknown keys are rejected.
func Parse(r io.Reader) (*Realm, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var realm Realm
	if err := dec.Decode(&realm); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidRealm)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidRealm, err)
	}
	if err := realm.Validate(); err != nil {
		return nil, err
	}
	return &realm, nil
}

// ParseBytes is Parse over a byte slice.
func ParseBytes(b []byte) (*Realm, error) {
	return Parse(bytes.NewReader(b))
}

// Validate checks names are present and unique.
func (r *Realm) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: realm name is required", ErrInvalidRealm)
	}

	seen := make(map[string]struct{})
	for i, c := range r.Clients {
		if c.ClientID == "" {
			return fmt.Errorf("%w: clients[%d] has no clientId", ErrInvalidRealm, i)
		}
		if _, dup := seen[c.ClientID]; dup {
			return fmt.Errorf("%w: duplicate client %q", ErrInvalidRealm, c.ClientID)
		}
		seen[c.ClientID] = struct{}{}
	}

	clear(seen)
	for i, g := range r.Groups {
		if g.Name == "" {
			return fmt.Errorf("%w: groups[%d] has no name", ErrInvalidRealm, i)
		}
		if _, dup := seen[g.Name]; dup {
			return fmt.Errorf("%w: duplicate group %q", ErrInvalidRealm, g.Name)
		}
		seen[g.Name] = struct{}{}
	}

	clear(seen)
	for i, u := range r.Users {
		if u.Email == "" && u.Username == "" {
			return fmt.Errorf("%w: users[%d] needs a username or email", ErrInvalidRealm, i)
		}
		key := strings.ToLower(u.Email)
		if key == "" {
			key = strings.ToLower(u.Username)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate user %q", ErrInvalidRealm, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// Apply writes every client, group and user to target. newID assigns ids to
// users that have none; nil leaves them empty.
func (r *Realm) Apply(ctx context.Context, target Target, newID func() string) error {
	for _, c := range r.Clients {
		if err := target.PutClient(ctx, magiclink.Client{
			ClientID:     c.ClientID,
			Name:         c.Name,
			RootURL:      c.RootURL,
			BaseURL:      c.BaseURL,
			RedirectURIs: append([]string(nil), c.RedirectURIs...),
		}); err != nil {
			return fmt.Errorf("realmfile: client %q: %w", c.ClientID, err)
		}
	}
	for _, g := range r.Groups {
		if err := target.PutGroup(ctx, magiclink.Group{
			Name:           g.Name,
			AllowedDomains: append([]string(nil), g.AllowedDomains...),
		}); err != nil {
			return fmt.Errorf("realmfile: group %q: %w", g.Name, err)
		}
	}
	for _, u := range r.Users {
		user := u.toUser()
		if user.ID == "" && newID != nil {
			user.ID = newID()
		}
		if err := target.PutUser(ctx, user); err != nil {
			return fmt.Errorf("realmfile: user %q: %w", user.Email, err)
		}
	}
	return nil
}

func (u User) toUser() magiclink.User {
	enabled := true
	if u.Enabled != nil {
		enabled = *u.Enabled
	}
	username := u.Username
	if username == "" {
		username = strings.ToLower(u.Email)
	}
	return magiclink.User{
		ID:            u.ID,
		Username:      username,
		Email:         strings.ToLower(strings.TrimSpace(u.Email)),
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		EmailVerified: u.EmailVerified,
		Enabled:       enabled,
	}
}

type memoryTarget struct {
	dir *memhost.Directory
}

// Memory adapts dir to [Target]. Users without an id get one from dir.
func Memory(dir *memhost.Directory) Target {
	return memoryTarget{dir: dir}
}

func (m memoryTarget) PutClient(_ context.Context, c magiclink.Client) error {
	m.dir.PutClient(c)
	return nil
}

func (m memoryTarget) PutGroup(_ context.Context, g magiclink.Group) error {
	m.dir.PutGroup(g)
	return nil
}

func (m memoryTarget) PutUser(_ context.Context, u magiclink.User) error {
	m.dir.PutUser(u)
	return nil
}
