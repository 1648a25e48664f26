package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tobyv/vidrelay/internal/errs"
)

func TestToken_RoundTrip(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer("test-secret", time.Hour)

	token, err := issuer.Generate("user-42")
	req.NoError(err)

	claims, err := issuer.Validate(token)
	req.NoError(err)
	req.Equal("user-42", claims.UserID)
	req.Equal("vidrelay", claims.Issuer)
}

func TestToken_WrongSecretRejected(t *testing.T) {
	req := require.New(t)
	token, err := NewTokenIssuer("secret-a", time.Hour).Generate("user-42")
	req.NoError(err)

	_, err = NewTokenIssuer("secret-b", time.Hour).Validate(token)
	req.Error(err)
}

func TestToken_ExpiredRejected(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer("test-secret", -time.Minute)

	token, err := issuer.Generate("user-42")
	req.NoError(err)

	_, err = issuer.Validate(token)
	req.Error(err)
}

func TestToken_GarbageRejected(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer("test-secret", time.Hour)

	_, err := issuer.Validate("not-a-token")
	req.Error(err)
}

func TestPassword_HashAndCompare(t *testing.T) {
	req := require.New(t)

	hash, err := HashPassword("Sup3rSecret")
	req.NoError(err)
	req.Contains(hash, "$argon2id$")

	ok, err := ComparePassword("Sup3rSecret", hash)
	req.NoError(err)
	req.True(ok)

	ok, err = ComparePassword("wrong-password", hash)
	req.NoError(err)
	req.False(ok)
}

func TestPassword_SaltedHashesDiffer(t *testing.T) {
	req := require.New(t)

	h1, err := HashPassword("Sup3rSecret")
	req.NoError(err)
	h2, err := HashPassword("Sup3rSecret")
	req.NoError(err)
	req.NotEqual(h1, h2)
}

func TestPassword_MalformedHash(t *testing.T) {
	req := require.New(t)

	_, err := ComparePassword("whatever", "plainly-not-a-hash")
	req.Error(err)
}

func TestValidateSignup(t *testing.T) {
	valid := SignupRequest{Email: "a@example.com", Password: "Sup3rSecret", FullName: "Ada Lovelace"}

	tests := []struct {
		name    string
		mutate  func(*SignupRequest)
		wantErr bool
		errIs   error
	}{
		{name: "valid", mutate: func(*SignupRequest) {}},
		{name: "missing email", mutate: func(r *SignupRequest) { r.Email = "" }, wantErr: true},
		{name: "bad email", mutate: func(r *SignupRequest) { r.Email = "nope" }, wantErr: true},
		{name: "short password", mutate: func(r *SignupRequest) { r.Password = "Ab1" }, wantErr: true},
		{name: "missing name", mutate: func(r *SignupRequest) { r.FullName = "" }, wantErr: true},
		{name: "no uppercase", mutate: func(r *SignupRequest) { r.Password = "sup3rsecret" }, wantErr: true, errIs: errs.ErrInvalidPassword},
		{name: "no lowercase", mutate: func(r *SignupRequest) { r.Password = "SUP3RSECRET" }, wantErr: true, errIs: errs.ErrInvalidPassword},
		{name: "no digit", mutate: func(r *SignupRequest) { r.Password = "SuperSecret" }, wantErr: true, errIs: errs.ErrInvalidPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			r := valid
			tt.mutate(&r)
			err := ValidateSignup(r)
			if !tt.wantErr {
				req.NoError(err)
				return
			}
			req.Error(err)
			if tt.errIs != nil {
				req.ErrorIs(err, tt.errIs)
			}
		})
	}
}
