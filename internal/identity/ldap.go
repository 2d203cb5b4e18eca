package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/kilupskalvis/tfsgit/internal/models"
	"github.com/sony/gobreaker"
)

// LDAPConfig holds directory connection settings.
type LDAPConfig struct {
	URL          string `toml:"url"`
	BaseDN       string `toml:"base_dn"`
	BindDN       string `toml:"bind_dn"`
	BindPassword string `toml:"bind_password"`
}

// conn is the part of *ldap.Conn used here.
type conn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

// LDAP looks up users by sAMAccountName in an Active Directory style
// directory. Repeated failures open a circuit breaker so a dead directory
// costs one timeout instead of one per changeset.
type LDAP struct {
	cfg     LDAPConfig
	dial    func(url string) (conn, error)
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

var _ Lookup = (*LDAP)(nil)

// NewLDAP creates a directory lookup.
func NewLDAP(cfg LDAPConfig, logger *slog.Logger) *LDAP {
	if logger == nil {
		logger = slog.Default()
	}
	l := &LDAP{
		cfg: cfg,
		dial: func(url string) (conn, error) {
			return ldap.DialURL(url)
		},
		logger: logger,
	}
	l.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "ldap",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoIdentity)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("identity directory circuit changed state", "from", from.String(), "to", to.String())
		},
	})
	return l
}

// GetIdentity implements Lookup.
func (l *LDAP) GetIdentity(ctx context.Context, committer string) (*models.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := l.breaker.Execute(func() (interface{}, error) {
		return l.search(AccountName(committer))
	})
	if err != nil {
		return nil, err
	}
	return res.(*models.Identity), nil
}

func (l *LDAP) search(account string) (*models.Identity, error) {
	c, err := l.dial(l.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", l.cfg.URL, err)
	}
	defer func() {
		if cerr := c.Close(); cerr != nil {
			l.logger.Debug("failed to close LDAP connection", "error", cerr)
		}
	}()

	if l.cfg.BindDN != "" {
		if err := c.Bind(l.cfg.BindDN, l.cfg.BindPassword); err != nil {
			return nil, fmt.Errorf("bind as %s: %w", l.cfg.BindDN, err)
		}
	}

	req := ldap.NewSearchRequest(
		l.cfg.BaseDN, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 1, 0, false,
		fmt.Sprintf("(&(objectClass=user)(sAMAccountName=%s))", ldap.EscapeFilter(account)),
		[]string{"displayName", "mail"}, nil,
	)
	res, err := c.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", account, err)
	}
	if len(res.Entries) == 0 {
		return nil, ErrNoIdentity
	}

	e := res.Entries[0]
	return &models.Identity{
		DisplayName: e.GetAttributeValue("displayName"),
		MailAddress: e.GetAttributeValue("mail"),
	}, nil
}
