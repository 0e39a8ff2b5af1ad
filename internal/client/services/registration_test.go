package services

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/deskauth/internal/client/client"
	"github.com/dmitrijs2005/deskauth/internal/client/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pending(t *testing.T, f *fixture) string {
	t.Helper()
	p, err := f.reg.Pending(context.Background())
	require.NoError(t, err)
	return p
}

func TestRegistration_RoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.reg.CreateAccount(ctx, "bob", "Bob", "pw1", models.AccountUser)
	require.NoError(t, err)
	require.NotNil(t, res)

	require.Len(t, f.dialer.dials, 1)
	assert.Equal(t, recordedDial{Method: "cryptosign", AuthID: testRegistrarID, Secret: testRegistrarKey}, f.dialer.dials[0])
	create := f.dialer.callsTo(ProcAccountCreate)
	require.Len(t, create, 1)
	assert.Equal(t, []any{"bob", "Bob", "user", "pw1"}, create[0].Args)

	assert.Equal(t, "bob", pending(t, f))
	assert.Zero(t, f.dialer.last().closed, "channel is retained for verification")

	_, err = f.reg.Verify(ctx, "bob", "000000")
	require.NoError(t, err)

	assert.Empty(t, pending(t, f))
	assert.Equal(t, 1, f.dialer.last().closed)
	assert.Equal(t, 1, f.dialer.dialsBy(testRegistrarID))
	assert.Nil(t, f.reg.channel)
	assert.Equal(t, []any{"bob", "000000"}, f.dialer.callsTo(ProcAccountVerify)[0].Args)
}

func TestRegistration_VerifyWrongCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.reg.CreateAccount(ctx, "bob", "Bob", "pw1", models.AccountUser)
	require.NoError(t, err)

	_, err = f.reg.Verify(ctx, "bob", "123456")
	var rerr *client.RemoteError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "wamp.error.invalid_argument", rerr.URI)

	assert.Equal(t, "bob", pending(t, f))
	assert.Equal(t, 1, f.dialer.sessions[0].closed, "verification channel is closed on failure too")
	assert.Nil(t, f.reg.channel)

	// The retained channel is gone, so the retry authenticates exactly once.
	_, err = f.reg.Verify(ctx, "bob", "000000")
	require.NoError(t, err)
	assert.Equal(t, 2, f.dialer.dialsBy(testRegistrarID))
	assert.Equal(t, 1, f.dialer.sessions[1].closed)
	assert.Empty(t, pending(t, f))
}

func TestRegistration_Preconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing pending", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.reg.Verify(ctx, "bob", "000000")
		assert.ErrorIs(t, err, ErrNoPendingRegistration)
		_, err = f.reg.ResendCode(ctx, "bob")
		assert.ErrorIs(t, err, ErrNoPendingRegistration)
		assert.Empty(t, f.dialer.dials)
		assert.Empty(t, f.dialer.calls)
	})

	t.Run("different username", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.SetPending(ctx, "alice"))
		_, err := f.reg.Verify(ctx, "bob", "000000")
		assert.ErrorIs(t, err, ErrNoPendingRegistration)
		assert.Empty(t, f.dialer.dials)
		assert.Equal(t, "alice", pending(t, f))
	})
}

func TestRegistration_ResendThenVerifyReusesChannel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.reg.CreateAccount(ctx, "bob", "Bob", "pw1", models.AccountUser)
	require.NoError(t, err)

	_, err = f.reg.ResendCode(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, f.dialer.sessions[0].closed, "resend keeps the channel")

	_, err = f.reg.Verify(ctx, "bob", "000000")
	require.NoError(t, err)

	assert.Equal(t, 1, f.dialer.dialsBy(testRegistrarID))
	for _, c := range f.dialer.calls {
		assert.Equal(t, 1, c.Session, c.Procedure)
	}
	assert.Equal(t, []any{"bob"}, f.dialer.callsTo(ProcAccountResend)[0].Args)
}

func TestRegistration_AfterLostSession(t *testing.T) {
	ctx := context.Background()

	t.Run("verify opens exactly one channel", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.SetPending(ctx, "bob"))

		_, err := f.reg.Verify(ctx, "bob", "000000")
		require.NoError(t, err)
		assert.Equal(t, 1, f.dialer.dialsBy(testRegistrarID))
		assert.Equal(t, 1, f.dialer.last().closed)
	})

	t.Run("resend reopens, verify reuses", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.SetPending(ctx, "bob"))

		_, err := f.reg.ResendCode(ctx, "bob")
		require.NoError(t, err)
		_, err = f.reg.Verify(ctx, "bob", "000000")
		require.NoError(t, err)
		assert.Equal(t, 1, f.dialer.dialsBy(testRegistrarID))
	})
}

func TestRegistration_ResendFailureKeepsChannel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.dialer.handlers[ProcAccountResend] = func(*fakeSession, []any, map[string]any) (*client.Result, error) {
		return nil, &client.RemoteError{URI: "wamp.error.canceled"}
	}

	_, err := f.reg.CreateAccount(ctx, "bob", "Bob", "pw1", models.AccountUser)
	require.NoError(t, err)

	_, err = f.reg.ResendCode(ctx, "bob")
	require.Error(t, err)
	assert.NotNil(t, f.reg.channel)
	assert.Zero(t, f.dialer.sessions[0].closed)
}

func TestRegistration_CreateFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("remote rejection closes the channel", func(t *testing.T) {
		f := newFixture(t)
		f.dialer.handlers[ProcAccountCreate] = func(*fakeSession, []any, map[string]any) (*client.Result, error) {
			return nil, &client.RemoteError{URI: "wamp.error.invalid_argument", Args: []any{"account already exists"}}
		}

		_, err := f.reg.CreateAccount(ctx, "bob", "Bob", "pw1", models.AccountUser)
		var rerr *client.RemoteError
		require.ErrorAs(t, err, &rerr)
		assert.Equal(t, 1, f.dialer.last().closed)
		assert.Nil(t, f.reg.channel)
		assert.Empty(t, pending(t, f))
	})

	t.Run("open failure", func(t *testing.T) {
		f := newFixture(t)
		f.dialer.signErr = client.ErrUnavailable

		_, err := f.reg.CreateAccount(ctx, "bob", "Bob", "pw1", models.AccountUser)
		assert.ErrorIs(t, err, client.ErrUnavailable)
		assert.Empty(t, f.dialer.calls)
		assert.Empty(t, pending(t, f))
	})
}

func TestRegistration_SinglePendingRegistration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.reg.CreateAccount(ctx, "bob", "Bob", "pw1", models.AccountUser)
	require.NoError(t, err)
	_, err = f.reg.CreateAccount(ctx, "carol", "Carol", "pw2", models.AccountUser)
	require.NoError(t, err)

	assert.Equal(t, 1, f.dialer.sessions[0].closed, "earlier channel released")
	assert.Zero(t, f.dialer.sessions[1].closed)
	assert.Equal(t, "carol", pending(t, f))
}

func TestRegistration_GuestHasNoPendingMarker(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.reg.CreateAccount(ctx, "guest_x", "Guest X", "Passw0rd!", models.AccountGuest)
	require.NoError(t, err)
	assert.Empty(t, pending(t, f))
	assert.Equal(t, "guest", f.dialer.callsTo(ProcAccountCreate)[0].Args[2])
}

func TestRegistration_Abandon(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.reg.CreateAccount(ctx, "bob", "Bob", "pw1", models.AccountUser)
	require.NoError(t, err)

	require.NoError(t, f.reg.Abandon(ctx))
	assert.Equal(t, 1, f.dialer.last().closed)
	assert.Empty(t, pending(t, f))

	require.NoError(t, f.reg.Abandon(ctx), "abandon is idempotent")
	f.reg.Release(ctx)
	assert.Equal(t, 1, f.dialer.last().closed)
}

func TestRegistration_CloseFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.dialer.closeErr = errors.New("socket gone")

	_, err := f.reg.CreateAccount(ctx, "bob", "Bob", "pw1", models.AccountUser)
	require.NoError(t, err)
	_, err = f.reg.Verify(ctx, "bob", "000000")
	require.NoError(t, err)
	assert.Equal(t, 1, f.dialer.last().closed)
}

func TestOptions_Procedure(t *testing.T) {
	assert.Equal(t, "io.xconn.deskconn.account.get", Options{}.withDefaults().procedure(ProcAccountGet))
	assert.Equal(t, "my.ns.device.create", Options{Prefix: "my.ns."}.procedure(ProcDeviceCreate))
	assert.Equal(t, "account.get", Options{}.procedure(ProcAccountGet))
}
