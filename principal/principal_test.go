package principal

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/kms-identity/cryptoutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWellKnownPrincipals(t *testing.T) {
	assert.Equal(t, "2vxsx-fae", Anonymous.String())
	assert.Equal(t, "aaaaa-aa", ManagementCanister.String())
	assert.True(t, Anonymous.IsAnonymous())
	assert.False(t, Anonymous.IsSelfAuthenticating())

	p, err := FromText("2vxsx-fae")
	require.NoError(t, err)
	assert.True(t, p.Equal(Anonymous))

	p, err = FromText("aaaaa-aa")
	require.NoError(t, err)
	assert.Empty(t, p)
}

func TestSelfAuthenticating(t *testing.T) {
	der := []byte("some der encoded key")
	p := SelfAuthenticating(der)

	hash := sha256.Sum224(der)
	assert.Len(t, p, MaxLength)
	assert.Equal(t, hash[:], []byte(p[:28]))
	assert.Equal(t, byte(0x02), p[28])
	assert.True(t, p.IsSelfAuthenticating())

	assert.Equal(t, p, SelfAuthenticating(der), "derivation is deterministic")
	assert.NotEqual(t, p, SelfAuthenticating([]byte("another key")))
}

func TestTextRoundTrip(t *testing.T) {
	p := SelfAuthenticating([]byte("round trip"))
	text := p.String()

	// 4 checksum bytes + 29 bytes = 33 bytes -> 53 base32 chars, 10 dashes
	assert.Len(t, text, 63)

	parsed, err := FromText(text)
	require.NoError(t, err)
	assert.Equal(t, p, parsed)
}

func TestFromText_Rejects(t *testing.T) {
	valid := SelfAuthenticating([]byte("x")).String()
	tampered := []byte(valid)
	if tampered[0] == 'a' {
		tampered[0] = 'b'
	} else {
		tampered[0] = 'a'
	}

	cases := map[string]string{
		"bad alphabet": "2vxsx-fa1",
		"too short":    "aaa",
		"checksum":     string(tampered),
		"no dashes":    "2vxsxfae",
		"too long":     Principal(make([]byte, 30)).String(),
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromText(text)
			assert.ErrorIs(t, err, ErrInvalidPrincipal)
		})
	}
}

func TestFromTextAcceptsUppercase(t *testing.T) {
	p, err := FromText("2VXSX-FAE")
	require.NoError(t, err)
	assert.True(t, p.IsAnonymous())

	id := SelfAuthenticating([]byte("key"))
	p, err = FromText(strings.ToUpper(id.String()))
	require.NoError(t, err)
	assert.Equal(t, id, p)

	_, err = FromText("2VXSXFAE")
	assert.ErrorIs(t, err, ErrInvalidPrincipal)
}

func TestJSONMarshalling(t *testing.T) {
	type wrapper struct {
		Sender Principal `json:"sender"`
	}

	encoded, err := json.Marshal(wrapper{Sender: Anonymous})
	require.NoError(t, err)
	assert.JSONEq(t, `{"sender":"2vxsx-fae"}`, string(encoded))

	var decoded wrapper
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, Anonymous, decoded.Sender)

	assert.Error(t, json.Unmarshal([]byte(`{"sender":"nope"}`), &decoded))
}

func TestParseEncoding(t *testing.T) {
	enc, err := ParseEncoding("raw")
	require.NoError(t, err)
	assert.Equal(t, EncodingRaw, enc)

	enc, err = ParseEncoding("spki")
	require.NoError(t, err)
	assert.Equal(t, EncodingSPKI, enc)

	_, err = ParseEncoding("")
	assert.Error(t, err, "no implicit default")

	_, err = ParseEncoding("der")
	assert.Error(t, err)
}

func TestDerive_Conventions(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	point := crypto.FromECDSAPub(&key.PublicKey)

	spki, err := cryptoutils.EncodeSPKI(point)
	require.NoError(t, err)

	fromRawPoint, err := Derive(EncodingRaw, point)
	require.NoError(t, err)
	assert.Equal(t, SelfAuthenticating(point), fromRawPoint)

	fromSPKIConvention, err := Derive(EncodingSPKI, point)
	require.NoError(t, err)
	assert.Equal(t, SelfAuthenticating(spki), fromSPKIConvention)

	assert.NotEqual(t, fromRawPoint, fromSPKIConvention, "conventions give different principals for a bare point")

	// a key already in SPKI form derives the same principal under both conventions
	fromRawSPKI, err := Derive(EncodingRaw, spki)
	require.NoError(t, err)
	assert.Equal(t, fromSPKIConvention, fromRawSPKI)

	compressed, err := Derive(EncodingSPKI, crypto.CompressPubkey(&key.PublicKey))
	require.NoError(t, err)
	assert.Equal(t, fromSPKIConvention, compressed, "point compression does not change the spki principal")
}

func TestDerive_P256MatchesX509(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	p, err := Derive(EncodingSPKI, der)
	require.NoError(t, err)
	assert.Equal(t, SelfAuthenticating(der), p)
}

func TestDerive_Errors(t *testing.T) {
	_, err := Derive(EncodingSPKI, []byte("not a key"))
	assert.ErrorIs(t, err, cryptoutils.ErrEncoding)

	_, err = Derive(EncodingRaw, nil)
	assert.ErrorIs(t, err, cryptoutils.ErrEncoding)

	_, err = Derive(Encoding("bogus"), []byte{1})
	assert.ErrorIs(t, err, cryptoutils.ErrEncoding)
}
