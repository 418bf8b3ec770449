package humastar

import (
	"fmt"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
)

// Links holds RFC 8288 Link headers derived from the OpenAPI document,
// keyed by operation path.
type Links struct {
	// EntryPoint is the path that links to every collection.
	EntryPoint string
	// SkipTags excludes operations with these tags (Datastar endpoints).
	SkipTags []string

	mu     sync.RWMutex
	byPath map[string][]string
}

// NewLinks creates an empty link table rooted at entryPoint.
func NewLinks(entryPoint string, skipTags ...string) *Links {
	return &Links{EntryPoint: entryPoint, SkipTags: skipTags, byPath: map[string][]string{}}
}

type pathInfo struct {
	path string
	tags []string
}

// Build walks the OpenAPI paths and generates the link table. Call after
// every route is registered.
func (l *Links) Build(api huma.API) {
	oapi := api.OpenAPI()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.byPath = map[string][]string{}

	// Collection paths have no {param}, item paths do.
	var collections, items []pathInfo
	for p, pi := range oapi.Paths {
		tags := primaryTags(pi)
		if l.skipped(tags) {
			continue
		}
		info := pathInfo{path: p, tags: tags}
		if strings.Contains(p, "{") {
			items = append(items, info)
		} else {
			collections = append(collections, info)
		}
	}
	// Map iteration order is random; keep headers stable.
	byPath := func(a, b pathInfo) int { return strings.Compare(a.path, b.path) }
	slices.SortFunc(collections, byPath)
	slices.SortFunc(items, byPath)

	// Item → its collection.
	for _, item := range items {
		parent := path.Dir(item.path)
		if _, ok := oapi.Paths[parent]; ok {
			l.add(item.path, parent, "collection")
			l.add(item.path, parent, "up")
		}
	}

	// Collection → item template, and edit/create rels from methods.
	for _, coll := range collections {
		for _, item := range items {
			if path.Dir(item.path) == coll.path {
				l.add(coll.path, item.path, "item")
			}
		}
		if oapi.Paths[coll.path].Post != nil {
			l.add(coll.path, coll.path, "create-form")
		}
		if coll.path != l.EntryPoint {
			l.add(coll.path, l.EntryPoint, "up")
		}
	}
	for _, item := range items {
		pi := oapi.Paths[item.path]
		if pi.Put != nil || pi.Patch != nil {
			l.add(item.path, item.path, "edit")
		}
	}

	// Entry point → every collection plus discovery rels.
	for _, coll := range collections {
		if coll.path != l.EntryPoint {
			l.add(l.EntryPoint, coll.path, lastSegment(coll.path))
		}
	}
	l.add(l.EntryPoint, "/openapi.json", "service-desc")
	l.add(l.EntryPoint, "/docs", "service-doc")

	// describedby → JSON Schema of the GET response.
	for _, group := range [][]pathInfo{collections, items} {
		for _, pi := range group {
			if ref := responseSchemaRef(oapi.Paths[pi.path]); ref != "" {
				l.add(pi.path, "/openapi.json#/components/schemas/"+ref, "describedby")
			}
		}
	}

	// Document the relations in the OpenAPI document itself.
	for p, pi := range oapi.Paths {
		headers, ok := l.byPath[p]
		if !ok {
			continue
		}
		for _, op := range operationsOf(pi) {
			if op != nil {
				injectResponseLinks(op, headers)
			}
		}
	}
}

// For returns the link headers of an operation path.
func (l *Links) For(opPath string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.byPath[opPath])
}

// Transformer returns a Huma Transformer that writes the Link headers at
// runtime, plus self, pagination and action links from the response body.
func (l *Links) Transformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range l.For(op.Path) {
			ctx.AppendHeader("Link", link)
		}

		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}

		if p, ok := v.(Pager); ok {
			for _, link := range p.PaginationLinks(ctx.URL().Path) {
				ctx.AppendHeader("Link", link)
			}
		}

		if a, ok := v.(Actor); ok {
			for _, action := range a.Actions() {
				ctx.AppendHeader("Link", action.LinkHeader())
			}
		}

		return v, nil
	}
}

// add must be called with l.mu held.
func (l *Links) add(from, to, rel string) {
	val := fmt.Sprintf(`<%s>; rel="%s"`, to, rel)
	if !slices.Contains(l.byPath[from], val) {
		l.byPath[from] = append(l.byPath[from], val)
	}
}

func (l *Links) skipped(tags []string) bool {
	for _, t := range tags {
		if slices.Contains(l.SkipTags, t) {
			return true
		}
	}
	return false
}

func primaryTags(pi *huma.PathItem) []string {
	for _, op := range operationsOf(pi) {
		if op != nil && len(op.Tags) > 0 {
			return op.Tags
		}
	}
	return nil
}

func operationsOf(pi *huma.PathItem) []*huma.Operation {
	return []*huma.Operation{pi.Get, pi.Post, pi.Put, pi.Patch, pi.Delete}
}

func lastSegment(p string) string {
	parts := strings.Split(strings.TrimRight(p, "/"), "/")
	return parts[len(parts)-1]
}

// injectResponseLinks adds OpenAPI Link objects to the success response of op.
func injectResponseLinks(op *huma.Operation, headers []string) {
	if op.Responses == nil {
		return
	}
	var resp *huma.Response
	for code, r := range op.Responses {
		if strings.HasPrefix(code, "2") {
			resp = r
			break
		}
	}
	if resp == nil {
		return
	}
	if resp.Links == nil {
		resp.Links = map[string]*huma.Link{}
	}
	for _, h := range headers {
		rel, href := parseLinkHeader(h)
		if rel == "" {
			continue
		}
		resp.Links[rel] = &huma.Link{
			OperationRef: href,
			Description:  "Related: " + rel,
		}
	}
}

func responseSchemaRef(pi *huma.PathItem) string {
	if pi.Get == nil || pi.Get.Responses == nil {
		return ""
	}
	for code, resp := range pi.Get.Responses {
		if !strings.HasPrefix(code, "2") || resp.Content == nil {
			continue
		}
		for _, mt := range resp.Content {
			if mt.Schema != nil && mt.Schema.Ref != "" {
				return path.Base(mt.Schema.Ref)
			}
		}
	}
	return ""
}

// parseLinkHeader splits `<url>; rel="name"`.
func parseLinkHeader(h string) (rel, href string) {
	target, params, ok := strings.Cut(h, ";")
	if !ok {
		return "", ""
	}
	href = strings.Trim(strings.TrimSpace(target), "<>")
	params = strings.TrimSpace(params)
	if v, ok := strings.CutPrefix(params, "rel="); ok {
		rel = strings.Trim(v, `"`)
	}
	return rel, href
}
