package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RouteRegistrar attaches its routes below a versioned API group
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router collects registrars and mounts them under /api/<version> on Setup
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
}

type RouterOption func(*Router)

// WithAPIVersion overrides the default "v1" path segment
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) { r.apiVersion = version }
}

func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{engine: engine, apiVersion: "v1"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/" + r.apiVersion)
	for _, reg := range r.registrars {
		reg.RegisterRoutes(api)
	}
}

// DomainGroup declares the routes of one resource (bills, stock, journal
// entries). Middleware added with Use wraps every route of the group and
// of its subgroups.
type DomainGroup struct {
	name       string
	prefix     string
	middleware []gin.HandlerFunc
	routes     []route
	children   []*DomainGroup
}

type route struct {
	method, path string
	chain        []gin.HandlerFunc
}

func NewDomainGroup(name, prefix string) *DomainGroup {
	return &DomainGroup{name: name, prefix: prefix}
}

func (g *DomainGroup) Name() string   { return g.name }
func (g *DomainGroup) Prefix() string { return g.prefix }

func (g *DomainGroup) Use(mw ...gin.HandlerFunc) *DomainGroup {
	g.middleware = append(g.middleware, mw...)
	return g
}

func (g *DomainGroup) GET(path string, chain ...gin.HandlerFunc) *DomainGroup {
	g.routes = append(g.routes, route{http.MethodGet, path, chain})
	return g
}

func (g *DomainGroup) POST(path string, chain ...gin.HandlerFunc) *DomainGroup {
	g.routes = append(g.routes, route{http.MethodPost, path, chain})
	return g
}

// Group returns a child group mounted below this group's prefix
func (g *DomainGroup) Group(name, prefix string) *DomainGroup {
	child := NewDomainGroup(name, prefix)
	g.children = append(g.children, child)
	return child
}

func (g *DomainGroup) RegisterRoutes(rg *gin.RouterGroup) {
	mounted := rg.Group(g.prefix, g.middleware...)
	for _, rt := range g.routes {
		mounted.Handle(rt.method, rt.path, rt.chain...)
	}
	for _, child := range g.children {
		child.RegisterRoutes(mounted)
	}
}
