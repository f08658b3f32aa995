package routes

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/platinummonkey/backoffice/pkg/catalog"
)

// Scope says what UI selection a page needs before its data can be fetched
type Scope string

const (
	// ScopeNone pages need no selection
	ScopeNone Scope = ""
	// ScopeFund pages need a selected fund
	ScopeFund Scope = "fund"
	// ScopeFundClass pages need a selected fund and share class
	ScopeFundClass Scope = "fund_class"
)

// Component is the page implementation bound to a catalog leaf
type Component struct {
	Name         string `json:"name"`
	DataEndpoint string `json:"dataEndpoint,omitempty"`
	Scope        Scope  `json:"scope,omitempty"`
	// FundParam is the query parameter carrying the selected fund, if any
	FundParam string `json:"fundParam,omitempty"`
}

// Query parameters carrying the selection to data endpoints that do not
// name their own
const (
	DefaultFundParam  = "fundo"
	DefaultClassParam = "classe"
)

// MissingSelection describes the selection the page still needs, or
// returns "" when fund and class satisfy its scope
func (c Component) MissingSelection(fund, class string) string {
	switch c.Scope {
	case ScopeFund:
		if fund == "" {
			return "select a fund first"
		}
	case ScopeFundClass:
		if fund == "" || class == "" {
			return "select a fund and class first"
		}
	}
	return ""
}

// Query copies in and sets the selection parameters the page's scope
// calls for. The selection overrides values already in in.
func (c Component) Query(in url.Values, fund, class string) url.Values {
	out := make(url.Values, len(in)+2)
	for k, v := range in {
		out[k] = append([]string(nil), v...)
	}
	if c.Scope == ScopeNone {
		return out
	}

	fundParam := c.FundParam
	if fundParam == "" {
		fundParam = DefaultFundParam
	}
	out.Set(fundParam, fund)
	if c.Scope == ScopeFundClass {
		out.Set(DefaultClassParam, class)
	}
	return out
}

// Registry maps page keys to their components
type Registry map[string]Component

// componentOverrides holds names that do not follow the PascalCase rule
var componentOverrides = map[string]string{
	"todososdados":      "TodosOsDados",
	"tabelasdoservidor": "Tabelas_do_servidor",
}

// ComponentName derives a component name from a key: "fluxo_de_caixa"
// becomes "FluxoDeCaixa". Segments are split on '/', '_' and '-'.
func ComponentName(key string) string {
	if name, ok := componentOverrides[strings.ToLower(key)]; ok {
		return name
	}

	parts := strings.FieldsFunc(key, func(r rune) bool {
		return r == '/' || r == '_' || r == '-'
	})
	var b strings.Builder
	for _, p := range parts {
		r, size := utf8.DecodeRuneInString(p)
		b.WriteRune(unicode.ToUpper(r))
		b.WriteString(p[size:])
	}
	return b.String()
}

// Resolve returns the registered component for a page key, or the default
// derived from the key
func (r Registry) Resolve(key string) Component {
	if c, ok := r[key]; ok {
		if c.Name == "" {
			c.Name = ComponentName(key)
		}
		return c
	}
	return Component{Name: ComponentName(key)}
}

// Keys lists the registered page keys, sorted
func (r Registry) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DefaultRegistry returns the components of the built-in catalog
func DefaultRegistry() Registry {
	return Registry{
		"fundo":   {Name: "Fundo", DataEndpoint: "/api/fundos"},
		"classes": {Name: "Classes", DataEndpoint: "/api/classes", Scope: ScopeFund, FundParam: "fundoID"},

		"balanco_administrador":       {DataEndpoint: "/api/balanco-patrimonial", Scope: ScopeFundClass},
		"balanco_gerencial":           {DataEndpoint: "/api/balanco-patrimonial", Scope: ScopeFundClass},
		"resultado_administrador":     {DataEndpoint: "/api/resultado", Scope: ScopeFundClass},
		"resultado_gerencial":         {DataEndpoint: "/api/resultado", Scope: ScopeFundClass},
		"extrato":                     {DataEndpoint: "/api/fluxo-de-caixa", Scope: ScopeFundClass},
		"reconciliacao_administrador": {Scope: ScopeFundClass},
		"reconciliacao_gerencial":     {Scope: ScopeFundClass},

		"cotas":                     {DataEndpoint: "/api/cotas", Scope: ScopeFundClass},
		"carteira_do_fundo":         {DataEndpoint: "/api/carteira-do-fundo", Scope: ScopeFundClass},
		"inadimplencia":             {Scope: ScopeFundClass},
		"rolagem":                   {Scope: ScopeFundClass},
		"calendario_de_eventos":     {DataEndpoint: "/api/calendario-de-eventos", Scope: ScopeFundClass},
		"repositorio_de_relatorios": {DataEndpoint: "/relatorios/repositorio/lista", Scope: ScopeFundClass},

		"usuariospage":   {Name: "UsuariosPage"},
		"investidorpage": {Name: "InvestidorPage"},
	}
}

// Validate checks a catalog and registry together: catalog invariants,
// registry entries without a page, and malformed data endpoints.
func Validate(cat *catalog.Catalog, reg Registry) error {
	var errs []error
	if err := catalog.Validate(cat); err != nil {
		errs = append(errs, err)
	}

	pages := make(map[string]bool)
	for _, leaf := range cat.Leaves() {
		pages[leaf.Node.Key] = true
	}

	for _, key := range reg.Keys() {
		c := reg[key]
		if !pages[key] {
			errs = append(errs, fmt.Errorf("registry entry %q has no page in the catalog", key))
		}
		if c.DataEndpoint != "" && !strings.HasPrefix(c.DataEndpoint, "/") {
			errs = append(errs, fmt.Errorf("registry entry %q: data endpoint %q must be an absolute path", key, c.DataEndpoint))
		}
		switch c.Scope {
		case ScopeNone, ScopeFund, ScopeFundClass:
		default:
			errs = append(errs, fmt.Errorf("registry entry %q: unknown scope %q", key, c.Scope))
		}
	}

	return errors.Join(errs...)
}
