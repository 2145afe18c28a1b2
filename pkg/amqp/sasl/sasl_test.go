package sasl

import (
	"crypto/sha256"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"
)

func TestAnonymous(t *testing.T) {
	a := &Anonymous{Trace: "user@example.com"}
	require.True(t, a.InitClient())
	require.True(t, a.ProcessMechanisms("PLAIN ANONYMOUS SCRAM-SHA-256"))
	assert.Equal(t, "ANONYMOUS", a.Name())
	assert.Equal(t, []byte("user@example.com"), a.BytesOut())
	assert.True(t, a.Done())
}

func TestAnonymousRejectedWhenNotOffered(t *testing.T) {
	a := &Anonymous{}
	assert.False(t, a.ProcessMechanisms("PLAIN SCRAM-SHA-256"))
}

func TestPlainClientServerRoundTrip(t *testing.T) {
	client := &Plain{Authzid: "", User: "alice", Pass: "secret"}
	require.True(t, client.InitClient())

	var gotUser, gotPass string
	server := &Plain{Authenticate: func(authzid, user, pass string) error {
		gotUser, gotPass = user, pass
		return nil
	}}
	require.True(t, server.InitServer())
	require.NoError(t, server.ProcessInit("PLAIN", client.BytesOut()))

	assert.Equal(t, "alice", gotUser)
	assert.Equal(t, "secret", gotPass)
	assert.True(t, server.Done())
}

func TestPlainRejectsMalformedResponse(t *testing.T) {
	server := &Plain{Authenticate: func(string, string, string) error { return nil }}
	require.True(t, server.InitServer())
	err := server.ProcessInit("PLAIN", []byte("no-null-bytes"))
	assert.Error(t, err)
}

func TestPlainInitServerRequiresAuthenticate(t *testing.T) {
	server := &Plain{}
	assert.False(t, server.InitServer())
}

func TestScramSHA256ClientServerRoundTrip(t *testing.T) {
	const user, pass = "alice", "secret-password"
	salt := []byte("fixed-salt-for-test")
	iters := 4096
	saltedPass := pbkdf2.Key([]byte(pass), salt, iters, sha256.Size, sha256.New)

	server := &ScramSHA256{
		Lookup: func(u string) ([]byte, int, []byte, error) {
			require.Equal(t, user, u)
			return salt, iters, saltedPass, nil
		},
	}
	require.True(t, server.InitServer())

	client := &ScramSHA256{User: user, Pass: pass}
	require.True(t, client.InitClient())

	// client-first -> server-first
	require.NoError(t, server.ProcessInit("SCRAM-SHA-256", client.BytesOut()))
	serverFirst := append([]byte(nil), server.BytesOut()...)

	// server-first -> client-final
	require.NoError(t, client.ProcessChallenge(serverFirst))
	clientFinal := append([]byte(nil), client.BytesOut()...)
	require.False(t, client.Done())

	// client-final -> server verification + server-final
	require.NoError(t, server.ProcessResponse(clientFinal))
	require.True(t, server.Done())
	serverFinal := append([]byte(nil), server.BytesOut()...)

	// server-final -> client verifies server signature
	require.NoError(t, client.ProcessChallenge(serverFinal))
	assert.True(t, client.Done())
}

func TestScramSHA256RejectsBadClientProof(t *testing.T) {
	salt := []byte("fixed-salt-for-test")
	iters := 4096
	rightSalted := pbkdf2.Key([]byte("right-password"), salt, iters, sha256.Size, sha256.New)

	server := &ScramSHA256{
		Lookup: func(u string) ([]byte, int, []byte, error) {
			return salt, iters, rightSalted, nil
		},
	}
	require.True(t, server.InitServer())

	attacker := &ScramSHA256{User: "alice", Pass: "wrong-password"}
	require.True(t, attacker.InitClient())

	require.NoError(t, server.ProcessInit("SCRAM-SHA-256", attacker.BytesOut()))
	require.NoError(t, attacker.ProcessChallenge(server.BytesOut()))

	err := server.ProcessResponse(attacker.BytesOut())
	assert.Error(t, err)
}

func TestScramSHA256AdvertisesChannelBindingSupportWhenSecured(t *testing.T) {
	plain := &ScramSHA256{User: "alice", Pass: "secret"}
	require.True(t, plain.InitClient())
	assert.True(t, strings.HasPrefix(string(plain.BytesOut()), "n,,"))

	var _ ExternalSecurityAware = (*ScramSHA256)(nil)
	secured := &ScramSHA256{User: "alice", Pass: "secret"}
	secured.SetExternalSecurity(128, "")
	require.True(t, secured.InitClient())
	assert.True(t, strings.HasPrefix(string(secured.BytesOut()), "y,,"), "a TLS-secured client must flag channel-binding support even on a non-PLUS mechanism")
}

func TestContainsMechCaseInsensitive(t *testing.T) {
	assert.True(t, containsMech("PLAIN anonymous SCRAM-SHA-256", "Anonymous"))
	assert.False(t, containsMech("PLAIN", "ANONYMOUS"))
}
