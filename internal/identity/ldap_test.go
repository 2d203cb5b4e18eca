package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/kilupskalvis/tfsgit/internal/models"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	entries   []*ldap.Entry
	searchErr error
	filters   []string
	binds     int
	closed    int
}

func (f *fakeConn) Bind(username, password string) error {
	f.binds++
	return nil
}

func (f *fakeConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	f.filters = append(f.filters, req.Filter)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return &ldap.SearchResult{Entries: f.entries}, nil
}

func (f *fakeConn) Close() error {
	f.closed++
	return nil
}

func newTestLDAP(fc *fakeConn, dialErr error) *LDAP {
	l := NewLDAP(LDAPConfig{URL: "ldap://dc.example.com", BaseDN: "dc=example,dc=com", BindDN: "cn=svc"}, nil)
	l.dial = func(string) (conn, error) {
		if dialErr != nil {
			return nil, dialErr
		}
		return fc, nil
	}
	return l
}

func TestLDAP_GetIdentity(t *testing.T) {
	fc := &fakeConn{entries: []*ldap.Entry{
		ldap.NewEntry("cn=John Doe,dc=example,dc=com", map[string][]string{
			"displayName": {"John Doe"},
			"mail":        {"john.doe@example.com"},
		}),
	}}
	l := newTestLDAP(fc, nil)

	id, err := l.GetIdentity(context.Background(), `CORP\jdoe`)
	require.NoError(t, err)
	assert.Equal(t, &models.Identity{DisplayName: "John Doe", MailAddress: "john.doe@example.com"}, id)
	assert.Equal(t, []string{"(&(objectClass=user)(sAMAccountName=jdoe))"}, fc.filters)
	assert.Equal(t, 1, fc.binds)
	assert.Equal(t, 1, fc.closed)
}

func TestLDAP_EscapesFilter(t *testing.T) {
	fc := &fakeConn{}
	l := newTestLDAP(fc, nil)

	_, err := l.GetIdentity(context.Background(), "evil*)(cn=x")
	assert.ErrorIs(t, err, ErrNoIdentity)
	require.Len(t, fc.filters, 1)
	assert.NotContains(t, fc.filters[0], "*)(")
}

func TestLDAP_NoEntryDoesNotTripBreaker(t *testing.T) {
	l := newTestLDAP(&fakeConn{}, nil)

	for i := 0; i < 10; i++ {
		_, err := l.GetIdentity(context.Background(), "ghost")
		assert.ErrorIs(t, err, ErrNoIdentity)
	}
	assert.Equal(t, gobreaker.StateClosed, l.breaker.State())
}

func TestLDAP_BreakerOpensAfterFailures(t *testing.T) {
	l := newTestLDAP(nil, errors.New("connection refused"))

	for i := 0; i < 5; i++ {
		_, err := l.GetIdentity(context.Background(), "jdoe")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	}

	_, err := l.GetIdentity(context.Background(), "jdoe")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestLDAP_CancelledContext(t *testing.T) {
	l := newTestLDAP(&fakeConn{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.GetIdentity(ctx, "jdoe")
	assert.ErrorIs(t, err, context.Canceled)
}

type staticLookup struct {
	id  *models.Identity
	err error
}

func (s staticLookup) GetIdentity(context.Context, string) (*models.Identity, error) {
	return s.id, s.err
}

func TestChain(t *testing.T) {
	want := &models.Identity{DisplayName: "X"}
	c := Chain{nil, staticLookup{err: errors.New("down")}, staticLookup{id: want}}

	id, err := c.GetIdentity(context.Background(), "x")
	require.NoError(t, err)
	assert.Same(t, want, id)

	_, err = Chain{staticLookup{err: errors.New("down")}}.GetIdentity(context.Background(), "x")
	assert.EqualError(t, err, "down")

	_, err = Chain{}.GetIdentity(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestAccountName(t *testing.T) {
	assert.Equal(t, "jdoe", AccountName(`CORP\jdoe`))
	assert.Equal(t, "jdoe", AccountName("jdoe"))
}
