package users

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/backoffice/pkg/funds"
	"github.com/platinummonkey/backoffice/pkg/permissions"
)

func TestProfile_Validate(t *testing.T) {
	valid := Profile{Name: "Ana", Surname: "Souza", Email: "ana@fundo.com.br", CPF: "123.456.789-01"}

	tests := []struct {
		name       string
		mutate     func(p *Profile)
		wantFields []string
	}{
		{"valid", func(p *Profile) {}, nil},
		{"missing name", func(p *Profile) { p.Name = "  " }, []string{"name"}},
		{"missing surname and email", func(p *Profile) { p.Surname = ""; p.Email = "" }, []string{"surname", "email"}},
		{"bad email", func(p *Profile) { p.Email = "ana@" }, []string{"email"}},
		{"short cpf", func(p *Profile) { p.CPF = "123.456" }, []string{"cpf"}},
		{"short cnpj", func(p *Profile) { p.CNPJ = "12.345" }, []string{"cnpj"}},
		{"empty documents are fine", func(p *Profile) { p.CPF = ""; p.CNPJ = "" }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantFields == nil {
				assert.NoError(t, err)
				return
			}

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Len(t, verr.Fields, len(tt.wantFields))
			for _, f := range tt.wantFields {
				assert.Contains(t, verr.Fields, f)
				assert.Contains(t, err.Error(), f+":")
			}
		})
	}
}

func TestProfile_Normalized(t *testing.T) {
	p := Profile{Name: " Ana ", CPF: "123.456.789-01", CNPJ: "12.345.678/0001-95"}.Normalized()
	assert.Equal(t, "Ana", p.Name)
	assert.Equal(t, "12345678901", p.CPF)
	assert.Equal(t, "12345678000195", p.CNPJ)
	assert.Equal(t, "Ana Souza", Profile{Name: "Ana", Surname: "Souza"}.FullName())
}

func TestRecord_UnmarshalJSON(t *testing.T) {
	t.Run("legacy field names", func(t *testing.T) {
		doc := `{
			"id": 7,
			"nome": "Ana",
			"sobrenome": "Souza",
			"email": "ana@fundo.com.br",
			"cpf": "12345678901",
			"cgc": "12345678000195",
			"userPermissions": {"cotas": {"acesso": true, "edicao": false}},
			"acesso_a_fundos": {"Alpha": {"acesso": true, "classe": {"Senior": {"acesso": true}}}}
		}`
		var rec Record
		require.NoError(t, json.Unmarshal([]byte(doc), &rec))

		assert.Equal(t, int64(7), rec.ID)
		assert.Equal(t, "Ana", rec.Name)
		assert.Equal(t, "Souza", rec.Surname)
		assert.Equal(t, "12345678000195", rec.CNPJ)
		assert.True(t, rec.Permissions.EffectiveAccess([]string{"cotas"}))
		assert.True(t, rec.FundAccess.ClassAccessible("Alpha", "Senior"))
	})

	t.Run("current field names", func(t *testing.T) {
		in := Record{
			Profile:     Profile{ID: 3, Name: "Bia", Surname: "Lima", Email: "bia@x.io"},
			Permissions: permissions.Tree{"a": {Access: true}},
			FundAccess:  funds.Tree{"F": {Access: true}},
		}
		data, err := json.Marshal(in)
		require.NoError(t, err)

		var out Record
		require.NoError(t, json.Unmarshal(data, &out))
		assert.Equal(t, in.Profile, out.Profile)
		assert.True(t, permissions.Equal(in.Permissions, out.Permissions))
		assert.True(t, funds.Equal(in.FundAccess, out.FundAccess))
	})
}

func TestRecord_Clone(t *testing.T) {
	rec := &Record{
		Profile:     Profile{Name: "Ana"},
		Permissions: permissions.Tree{"a": {Access: true}},
		FundAccess:  funds.Tree{"F": {Access: true}},
	}
	clone := rec.Clone()
	clone.Permissions["a"].Access = false
	clone.FundAccess["F"].Access = false
	clone.Name = "Bia"

	assert.True(t, rec.Permissions["a"].Access)
	assert.True(t, rec.FundAccess["F"].Access)
	assert.Equal(t, "Ana", rec.Name)
	assert.Nil(t, (*Record)(nil).Clone())
}
