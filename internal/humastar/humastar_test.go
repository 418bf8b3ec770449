package humastar

import (
	"context"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionLinkHeader(t *testing.T) {
	a := Action{Rel: "report", Href: "/api/v1/areas/42/reports", Method: "POST", Title: "Report a problem"}
	assert.Equal(t, `</api/v1/areas/42/reports>; rel="report"; method="POST"; title="Report a problem"`, a.LinkHeader())
	assert.Equal(t, `</x>; rel="self"`, Action{Rel: "self", Href: "/x"}.LinkHeader())
}

func TestActionsFor(t *testing.T) {
	defs := []ActionDef{
		{Rel: "report", Pattern: "/api/v1/areas/%s/reports", Method: "POST"},
		{Rel: "delete", Pattern: "/api/v1/areas/%s", Method: "DELETE", OwnerOnly: true},
	}

	got := ActionsFor("a1", false, defs)
	require.Len(t, got, 1)
	assert.Equal(t, "/api/v1/areas/a1/reports", got[0].Href)

	got = ActionsFor("a1", true, defs)
	require.Len(t, got, 2)
	assert.Equal(t, "delete", got[1].Rel)
	assert.Equal(t, "/api/v1/areas/a1", got[1].Href)
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	p := Paginate(items, 0, 2, 20)
	assert.Equal(t, []int{1, 2}, p.Data)
	assert.Equal(t, 5, p.Total)

	p = Paginate(items, 4, 2, 20)
	assert.Equal(t, []int{5}, p.Data)

	p = Paginate(items, 10, 2, 20)
	assert.Empty(t, p.Data)
	assert.NotNil(t, p.Data)

	p = Paginate(items, -3, 0, 20)
	assert.Equal(t, 0, p.Offset)
	assert.Equal(t, 20, p.Limit)
	assert.Len(t, p.Data, 5)
}

func TestPaginationLinks(t *testing.T) {
	p := PageBody[int]{Total: 5, Offset: 2, Limit: 2}
	assert.Equal(t, []string{
		`</r?offset=0&limit=2>; rel="first"`,
		`</r?offset=0&limit=2>; rel="prev"`,
		`</r?offset=4&limit=2>; rel="next"`,
		`</r?offset=4&limit=2>; rel="last"`,
	}, p.PaginationLinks("/r"))

	empty := PageBody[int]{Limit: 10}
	assert.Equal(t, []string{
		`</r?offset=0&limit=10>; rel="first"`,
		`</r?offset=0&limit=10>; rel="last"`,
	}, empty.PaginationLinks("/r"))

	assert.Nil(t, PageBody[int]{}.PaginationLinks("/r"))
}

type thing struct {
	ID string `json:"id"`
}

func TestLinksBuild(t *testing.T) {
	api := humago.New(http.NewServeMux(), huma.DefaultConfig("test", "1.0.0"))
	noop := func(ctx context.Context, in *struct{}) (*struct{ Body thing }, error) {
		return &struct{ Body thing }{}, nil
	}
	item := func(ctx context.Context, in *struct {
		ID string `path:"id"`
	}) (*struct{ Body thing }, error) {
		return &struct{ Body thing }{}, nil
	}
	huma.Get(api, "/health", noop, huma.OperationTags("health"))
	huma.Get(api, "/api/v1/things", noop, huma.OperationTags("things"))
	huma.Post(api, "/api/v1/things", noop, huma.OperationTags("things"))
	huma.Get(api, "/api/v1/things/{id}", item, huma.OperationTags("things"))
	huma.Patch(api, "/api/v1/things/{id}", item, huma.OperationTags("things"))
	huma.Post(api, "/ui/things", noop, huma.OperationTags("ui"))

	l := NewLinks("/health", "ui")
	l.Build(api)

	health := l.For("/health")
	assert.Contains(t, health, `</api/v1/things>; rel="things"`)
	assert.Contains(t, health, `</openapi.json>; rel="service-desc"`)
	assert.NotContains(t, health, `</ui/things>; rel="things"`)

	coll := l.For("/api/v1/things")
	assert.Contains(t, coll, `</api/v1/things/{id}>; rel="item"`)
	assert.Contains(t, coll, `</api/v1/things>; rel="create-form"`)
	assert.Contains(t, coll, `</health>; rel="up"`)

	items := l.For("/api/v1/things/{id}")
	assert.Contains(t, items, `</api/v1/things>; rel="collection"`)
	assert.Contains(t, items, `</api/v1/things/{id}>; rel="edit"`)

	assert.Empty(t, l.For("/ui/things"))
}

func TestParseLinkHeader(t *testing.T) {
	rel, href := parseLinkHeader(`</api/v1/things>; rel="collection"`)
	assert.Equal(t, "collection", rel)
	assert.Equal(t, "/api/v1/things", href)

	rel, _ = parseLinkHeader("garbage")
	assert.Empty(t, rel)
}
