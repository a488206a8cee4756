package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
)

func sampleRecord() Record {
	return Record{
		Owner:   id.AccountID(uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")),
		Profile: Profile{Name: "alice", Age: 31, Gender: "f"},
		Attributes: Attributes{
			DNA:      DNA{1, 2, 3},
			Seed:     []byte{7},
			Sequence: 42,
		},
		CreatedAt: 42,
	}
}

func TestIdentity_TextRoundTrip(t *testing.T) {
	var ident Identity
	for i := range ident {
		ident[i] = byte(i)
	}

	text := ident.String()
	assert.True(t, strings.HasPrefix(text, "b"), "CIDv1 renders in base32 by default")

	parsed, err := ParseIdentity(text)
	require.NoError(t, err)
	assert.Equal(t, ident, parsed)

	raw, err := json.Marshal(struct {
		ID Identity `json:"id"`
	}{ident})
	require.NoError(t, err)
	assert.Contains(t, string(raw), text)
}

func TestParseIdentity_Rejects(t *testing.T) {
	for name, input := range map[string]string{
		"empty":     "",
		"garbage":   "not-a-cid",
		"sha256cid": "bafkreihdwdcefgh4dqkjv67uzcmw7ojee6xedzdetojuzjevtenxquvyku",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseIdentity(input)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
}

func TestIdentityFromBytes_RequiresFullWidth(t *testing.T) {
	_, err := IdentityFromBytes(make([]byte, 31))
	assert.Error(t, err)

	got, err := IdentityFromBytes(make([]byte, IdentitySize))
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestCanonicalBytes(t *testing.T) {
	t.Run("is deterministic", func(t *testing.T) {
		assert.Equal(t, sampleRecord().CanonicalBytes(), sampleRecord().CanonicalBytes())
	})

	t.Run("ignores identity and wall clock", func(t *testing.T) {
		a := sampleRecord()
		b := sampleRecord()
		b.Identity = Identity{9}
		b.CreatedTime = b.CreatedTime.AddDate(1, 0, 0)
		assert.Equal(t, a.CanonicalBytes(), b.CanonicalBytes())
	})

	t.Run("covers every content field", func(t *testing.T) {
		base := sampleRecord().CanonicalBytes()
		mutations := map[string]func(*Record){
			"owner":    func(r *Record) { r.Owner = id.AccountID(uuid.New()) },
			"name":     func(r *Record) { r.Profile.Name = "bob" },
			"age":      func(r *Record) { r.Profile.Age++ },
			"gender":   func(r *Record) { r.Profile.Gender = "m" },
			"dna":      func(r *Record) { r.Attributes.DNA[31] = 1 },
			"seed":     func(r *Record) { r.Attributes.Seed = []byte{8} },
			"sequence": func(r *Record) { r.Attributes.Sequence++ },
			"created":  func(r *Record) { r.CreatedAt++ },
		}
		for name, mutate := range mutations {
			r := sampleRecord()
			mutate(&r)
			assert.NotEqual(t, base, r.CanonicalBytes(), name)
		}
	})

	t.Run("length prefixes keep field boundaries", func(t *testing.T) {
		a := sampleRecord()
		a.Profile.Name, a.Profile.Gender = "ab", "c"
		b := sampleRecord()
		b.Profile.Name, b.Profile.Gender = "a", "bc"
		assert.NotEqual(t, a.CanonicalBytes(), b.CanonicalBytes())
	})
}

func TestProfileValidate(t *testing.T) {
	assert.NoError(t, Profile{Name: "alice", Age: 30}.Validate())

	for name, p := range map[string]Profile{
		"missing name": {},
		"long name":    {Name: strings.Repeat("x", MaxNameLength+1)},
		"long gender":  {Name: "a", Gender: strings.Repeat("x", MaxGenderLength+1)},
		"age too high": {Name: "a", Age: MaxAge + 1},
		"invalid utf8": {Name: string([]byte{0xff})},
	} {
		t.Run(name, func(t *testing.T) {
			err := p.Validate()
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestValidateSeed(t *testing.T) {
	assert.NoError(t, ValidateSeed([]byte{1}))
	assert.Error(t, ValidateSeed(nil))
	assert.Error(t, ValidateSeed(make([]byte, MaxSeedLength+1)))
}

func TestDNA_TextRoundTrip(t *testing.T) {
	d := DNA{0xde, 0xad}
	text, err := d.MarshalText()
	require.NoError(t, err)

	var back DNA
	require.NoError(t, back.UnmarshalText(text))
	assert.Equal(t, d, back)
	assert.Error(t, back.UnmarshalText([]byte("abcd")))
}
