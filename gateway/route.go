package gateway

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"

	"iam-gateway/middleware/ratelimit"
)

// Route liga um padrão de caminho a um upstream e às políticas da rota.
//
// Padrões: caminho exato ("/api/v1/users/health") ou prefixo com "/**"
// ("/api/v1/users/**", casa o próprio prefixo e tudo abaixo dele).
type Route struct {
	ID      string
	Pattern string
	// Methods vazio = todos.
	Methods []string
	// Exclusions são caminhos sob Pattern que não exigem autenticação.
	Exclusions []string
	Service    string
	Upstream   string

	RequiresAuth    bool
	RateLimitPolicy string
	KeyStrategy     ratelimit.KeyStrategy
	Breaker         string
	// Fallback é o serviço usado na resposta de fallback (/fallback/{Fallback}).
	Fallback string
	// RequestHeaders são fixos, enviados ao upstream em toda requisição da rota.
	RequestHeaders map[string]string
}

func (r *Route) FallbackPath() string {
	if r.Fallback == "" {
		return ""
	}
	return "/fallback/" + r.Fallback
}

// Match é o resultado de RouteTable.Match.
type Match struct {
	Route *Route
	// Excluded indica que o caminho caiu numa exclusão da rota (sem autenticação).
	Excluded bool
	// Path é o caminho normalizado usado no match.
	Path string
}

// RequiresAuth diz se o gate precisa validar o token para este match.
func (m Match) RequiresAuth() bool {
	return m.Route != nil && m.Route.RequiresAuth && !m.Excluded
}

type pattern struct {
	prefix   string
	wildcard bool
}

func compilePattern(p string) pattern {
	p = strings.TrimSpace(p)
	if p == "/**" || p == "**" {
		return pattern{wildcard: true}
	}
	if strings.HasSuffix(p, "/**") {
		return pattern{prefix: strings.TrimSuffix(p, "/**"), wildcard: true}
	}
	return pattern{prefix: p}
}

func (p pattern) matches(path string) bool {
	if !p.wildcard {
		return path == p.prefix
	}
	return path == p.prefix || strings.HasPrefix(path, p.prefix+"/")
}

type entry struct {
	route      *Route
	pattern    pattern
	exclusions []pattern
	methods    map[string]struct{}
	order      int
}

// RouteTable é imutável depois de NewRouteTable.
type RouteTable struct {
	entries []entry
	routes  []Route
}

func NewRouteTable(routes []Route) (*RouteTable, error) {
	if len(routes) == 0 {
		return nil, errors.New("route table is empty")
	}

	t := &RouteTable{routes: make([]Route, len(routes))}
	copy(t.routes, routes)

	seen := make(map[string]struct{}, len(routes))
	for i := range t.routes {
		rt := &t.routes[i]
		if rt.ID == "" {
			return nil, fmt.Errorf("route #%d: id is required", i)
		}
		if _, dup := seen[rt.ID]; dup {
			return nil, fmt.Errorf("route %q: duplicate id", rt.ID)
		}
		seen[rt.ID] = struct{}{}

		if !strings.HasPrefix(rt.Pattern, "/") {
			return nil, fmt.Errorf("route %q: pattern must start with /", rt.ID)
		}
		u, err := url.Parse(rt.Upstream)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("route %q: invalid upstream %q", rt.ID, rt.Upstream)
		}

		e := entry{route: rt, pattern: compilePattern(rt.Pattern), order: i}
		for _, ex := range rt.Exclusions {
			e.exclusions = append(e.exclusions, compilePattern(ex))
		}
		if len(rt.Methods) > 0 {
			e.methods = make(map[string]struct{}, len(rt.Methods))
			for _, m := range rt.Methods {
				e.methods[strings.ToUpper(m)] = struct{}{}
			}
		}
		t.entries = append(t.entries, e)
	}

	// prefixo literal mais longo primeiro; exato antes de curinga; empate = ordem de declaração.
	sort.SliceStable(t.entries, func(i, j int) bool {
		a, b := t.entries[i].pattern, t.entries[j].pattern
		if len(a.prefix) != len(b.prefix) {
			return len(a.prefix) > len(b.prefix)
		}
		if a.wildcard != b.wildcard {
			return !a.wildcard
		}
		return t.entries[i].order < t.entries[j].order
	})

	return t, nil
}

// Match devolve a rota do caminho/método. false = RouteNotFound.
func (t *RouteTable) Match(reqPath, method string) (Match, bool) {
	p := cleanPath(reqPath)
	method = strings.ToUpper(method)

	for _, e := range t.entries {
		if !e.pattern.matches(p) {
			continue
		}
		if e.methods != nil {
			if _, ok := e.methods[method]; !ok {
				continue
			}
		}
		m := Match{Route: e.route, Path: p}
		for _, ex := range e.exclusions {
			if ex.matches(p) {
				m.Excluded = true
				break
			}
		}
		return m, true
	}
	return Match{Path: p}, false
}

// Routes devolve uma cópia das rotas na ordem de declaração.
func (t *RouteTable) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// cleanPath resolve "..", "." e barras repetidas, para que uma exclusão
// não possa ser usada como atalho para um caminho protegido.
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}
