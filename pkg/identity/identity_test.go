package identity

import (
	"context"
	"testing"
	"time"

	"gato-backoffice/pkg/config"

	"github.com/stretchr/testify/require"
)

func newVerifier(secret string) *Verifier {
	cfg := &config.Config{}
	cfg.Session.Secret = secret
	cfg.Session.Issuer = "gato-backoffice"
	return NewVerifier(cfg)
}

func TestSignAndVerify(t *testing.T) {
	v := newVerifier("s3cret")
	token, err := v.Sign(Actor{ID: "42", Role: RoleModerator}, time.Minute)
	require.NoError(t, err)

	actor, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, Actor{ID: "42", Role: RoleModerator}, actor)
}

func TestVerifyRejects(t *testing.T) {
	v := newVerifier("s3cret")

	other, err := newVerifier("different").Sign(Actor{ID: "42", Role: RoleOwner}, time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(other)
	require.ErrorIs(t, err, ErrInvalidToken)

	expired, err := v.Sign(Actor{ID: "42", Role: RoleOwner}, -time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(expired)
	require.ErrorIs(t, err, ErrInvalidToken)

	badRole, err := v.Sign(Actor{ID: "42", Role: Role("ROOT")}, time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(badRole)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestActorContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)

	ctx := WithActor(context.Background(), Actor{ID: "7", Role: RoleReader})
	a, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "7", a.ID)
	require.True(t, RoleWorkOwner.Valid())
	require.False(t, Role("reader").Valid())
}
