package users

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/platinummonkey/backoffice/pkg/funds"
	"github.com/platinummonkey/backoffice/pkg/permissions"
)

// Profile is the personal data of a dashboard user
type Profile struct {
	ID      int64  `json:"id,omitempty"`
	Name    string `json:"name"`
	Surname string `json:"surname"`
	Email   string `json:"email"`
	CPF     string `json:"cpf,omitempty"`
	Company string `json:"company,omitempty"`
	CNPJ    string `json:"cnpj,omitempty"`
}

// FullName joins name and surname
func (p Profile) FullName() string {
	return strings.TrimSpace(p.Name + " " + p.Surname)
}

// Normalized returns the profile trimmed, with CPF and CNPJ reduced to digits
func (p Profile) Normalized() Profile {
	p.Name = strings.TrimSpace(p.Name)
	p.Surname = strings.TrimSpace(p.Surname)
	p.Email = strings.TrimSpace(p.Email)
	p.Company = strings.TrimSpace(p.Company)
	p.CPF = Digits(p.CPF)
	p.CNPJ = Digits(p.CNPJ)
	return p
}

// ValidationError lists the fields that failed validation
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, field := range []string{"name", "surname", "email", "cpf", "cnpj", "password"} {
		if msg, ok := e.Fields[field]; ok {
			parts = append(parts, field+": "+msg)
		}
	}
	return fmt.Sprintf("invalid profile: %s", strings.Join(parts, ", "))
}

// Validate checks the required fields and document lengths
func (p Profile) Validate() error {
	p = p.Normalized()
	fields := make(map[string]string)

	if p.Name == "" {
		fields["name"] = "required"
	}
	if p.Surname == "" {
		fields["surname"] = "required"
	}
	if p.Email == "" {
		fields["email"] = "required"
	} else if !IsValidEmail(p.Email) {
		fields["email"] = "invalid address"
	}
	if p.CPF != "" && len(p.CPF) != cpfDigits {
		fields["cpf"] = fmt.Sprintf("must have %d digits", cpfDigits)
	}
	if p.CNPJ != "" && len(p.CNPJ) != cnpjDigits {
		fields["cnpj"] = fmt.Sprintf("must have %d digits", cnpjDigits)
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Record is a user as stored by the backend, including both access trees.
// Submissions always carry the complete trees.
type Record struct {
	Profile
	Password    string           `json:"password,omitempty"`
	Permissions permissions.Tree `json:"permissions"`
	FundAccess  funds.Tree       `json:"fundAccess"`
}

// Clone returns a deep copy of the record
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Permissions = r.Permissions.Clone()
	out.FundAccess = r.FundAccess.Clone()
	return &out
}

// UnmarshalJSON accepts the legacy Portuguese field names as well
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        int64  `json:"id"`
		Name      string `json:"name"`
		Nome      string `json:"nome"`
		Surname   string `json:"surname"`
		Sobrenome string `json:"sobrenome"`
		Email     string `json:"email"`
		CPF       string `json:"cpf"`
		Company   string `json:"company"`
		CNPJ      string `json:"cnpj"`
		CGC       string `json:"cgc"`
		Password  string `json:"password"`

		Permissions     permissions.Tree `json:"permissions"`
		UserPermissions permissions.Tree `json:"userPermissions"`
		FundAccess      funds.Tree       `json:"fundAccess"`
		AcessoAFundos   funds.Tree       `json:"acesso_a_fundos"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = Record{
		Profile: Profile{
			ID:      raw.ID,
			Name:    firstNonEmpty(raw.Name, raw.Nome),
			Surname: firstNonEmpty(raw.Surname, raw.Sobrenome),
			Email:   raw.Email,
			CPF:     raw.CPF,
			Company: raw.Company,
			CNPJ:    firstNonEmpty(raw.CNPJ, raw.CGC),
		},
		Password:    raw.Password,
		Permissions: raw.Permissions,
		FundAccess:  raw.FundAccess,
	}
	if r.Permissions == nil {
		r.Permissions = raw.UserPermissions
	}
	if r.FundAccess == nil {
		r.FundAccess = raw.AcessoAFundos
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
