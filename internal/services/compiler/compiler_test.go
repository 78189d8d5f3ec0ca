package compiler_test

import (
	"encoding/json"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	domainerrors "github.com/unifiedui/docdb-gateway/internal/domain/errors"
	"github.com/unifiedui/docdb-gateway/internal/domain/query"
	"github.com/unifiedui/docdb-gateway/internal/services/compiler"
)

func newCompiler() *compiler.Compiler {
	return compiler.New(compiler.Options{DefaultLimit: 50, MaxLimit: 100, MaxFilterBytes: 1024, MaxFilterDepth: 4})
}

func params(kv ...string) url.Values {
	v := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		v.Add(kv[i], kv[i+1])
	}
	return v
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	domainErr, ok := domainerrors.GetDomainError(err)
	require.True(t, ok, "expected domain error, got %T", err)
	assert.Equal(t, code, domainErr.Code)
	assert.Equal(t, 400, domainErr.HTTPStatus)
}

func TestCompile_Defaults(t *testing.T) {
	q, err := newCompiler().Compile("users", url.Values{})
	require.NoError(t, err)

	assert.Equal(t, query.CollectionRef("users"), q.Collection)
	assert.Equal(t, int64(50), q.Page.Limit)
	assert.Equal(t, int64(0), q.Page.Skip)
	assert.False(t, q.Page.Clamped)
	assert.True(t, q.Sort.IsEmpty())
	assert.True(t, q.Projection.IsEmpty())
	assert.Equal(t, query.KindObject, q.Filter.Kind())
	assert.Equal(t, bson.D{}, q.FilterDocument())
}

func TestCompile_FullRequest(t *testing.T) {
	q, err := newCompiler().Compile("users", params(
		"query", `{"active":true}`,
		"limit", "10",
		"skip", "5",
		"sort", "age:desc,name",
		"projection", "name,age,-_id",
	))
	require.NoError(t, err)

	assert.Equal(t, bson.D{{Key: "active", Value: true}}, q.FilterDocument())
	assert.Equal(t, query.PageBounds{Limit: 10, Skip: 5}, q.Page)
	assert.Equal(t, query.SortSpec{
		{Field: "age", Direction: query.Descending},
		{Field: "name", Direction: query.Ascending},
	}, q.Sort)
	assert.Equal(t, query.ProjectionSpec{Mode: query.ProjectionInclude, Fields: []string{"name", "age"}, ExcludeID: true}, q.Projection)
}

func TestCompile_FilterRoundTrip(t *testing.T) {
	inputs := []string{
		`{"active":true}`,
		`{"age":{"$gte":21},"name":{"$in":["a","b"]}}`,
		`{"nested":{"z":1,"a":[1.5,null,{"k":"v"}]}}`,
	}
	for _, in := range inputs {
		q, err := newCompiler().Compile("c", params("query", in))
		require.NoError(t, err)

		out, err := json.Marshal(q.Filter)
		require.NoError(t, err)

		again, err := query.Parse(out, 0)
		require.NoError(t, err)
		assert.True(t, q.Filter.Equal(again), in)
	}
}

func TestCompile_LimitClamped(t *testing.T) {
	q, err := newCompiler().Compile("c", params("limit", "100000"))
	require.NoError(t, err)
	assert.Equal(t, int64(100), q.Page.Limit)
	assert.True(t, q.Page.Clamped)
}

func TestCompile_FirstValueWins(t *testing.T) {
	q, err := newCompiler().Compile("c", params("limit", "3", "limit", "-1"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), q.Page.Limit)
}

func TestCompile_UnknownParametersIgnored(t *testing.T) {
	_, err := newCompiler().Compile("c", params("LIMIT", "nope", "foo", "bar"))
	assert.NoError(t, err)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name       string
		collection string
		params     url.Values
		code       string
	}{
		{name: "empty collection", collection: "", code: domainerrors.CodeInvalidCollection},
		{name: "dollar collection", collection: "a$b", code: domainerrors.CodeInvalidCollection},
		{name: "system collection", collection: "system.users", code: domainerrors.CodeInvalidCollection},
		{name: "trailing dot", collection: "users.", code: domainerrors.CodeInvalidCollection},
		{name: "long collection", collection: strings.Repeat("a", 256), code: domainerrors.CodeInvalidCollection},
		{name: "malformed filter", collection: "c", params: params("query", "{malformed"), code: domainerrors.CodeInvalidFilterSyntax},
		{name: "array filter", collection: "c", params: params("query", "[1]"), code: domainerrors.CodeInvalidFilterSyntax},
		{name: "duplicate key", collection: "c", params: params("query", `{"a":1,"a":2}`), code: domainerrors.CodeInvalidFilterSyntax},
		{name: "too deep", collection: "c", params: params("query", `{"a":{"b":{"c":{"d":{"e":1}}}}}`), code: domainerrors.CodeInvalidFilterSyntax},
		{name: "too long", collection: "c", params: params("query", `{"a":"`+strings.Repeat("x", 2000)+`"}`), code: domainerrors.CodeInvalidFilterSyntax},
		{name: "bad oid", collection: "c", params: params("query", `{"_id":{"$oid":"zz"}}`), code: domainerrors.CodeInvalidFilterSyntax},
		{name: "zero limit", collection: "c", params: params("limit", "0"), code: domainerrors.CodeInvalidLimit},
		{name: "negative limit", collection: "c", params: params("limit", "-5"), code: domainerrors.CodeInvalidLimit},
		{name: "text limit", collection: "c", params: params("limit", "ten"), code: domainerrors.CodeInvalidLimit},
		{name: "negative skip", collection: "c", params: params("skip", "-1"), code: domainerrors.CodeInvalidSkip},
		{name: "text skip", collection: "c", params: params("skip", "1.5"), code: domainerrors.CodeInvalidSkip},
		{name: "bad sort direction", collection: "c", params: params("sort", "age:up"), code: domainerrors.CodeInvalidSortSyntax},
		{name: "empty sort item", collection: "c", params: params("sort", "age,,name"), code: domainerrors.CodeInvalidSortSyntax},
		{name: "dollar sort field", collection: "c", params: params("sort", "$where"), code: domainerrors.CodeInvalidSortSyntax},
		{name: "duplicate sort field", collection: "c", params: params("sort", "a,a:desc"), code: domainerrors.CodeInvalidSortSyntax},
		{name: "empty direction", collection: "c", params: params("sort", "a:"), code: domainerrors.CodeInvalidSortSyntax},
		{name: "mixed projection", collection: "c", params: params("projection", "name,-age"), code: domainerrors.CodeMixedProjectionMode},
		{name: "empty projection item", collection: "c", params: params("projection", "name,"), code: domainerrors.CodeInvalidProjectionSyntax},
		{name: "bad projection path", collection: "c", params: params("projection", "a..b"), code: domainerrors.CodeInvalidProjectionSyntax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newCompiler().Compile(tt.collection, tt.params)
			assertCode(t, err, tt.code)
		})
	}
}

func TestCompile_DeniedOperators(t *testing.T) {
	tests := []struct {
		name   string
		filter string
	}{
		{name: "top level", filter: `{"$where":"sleep(1000)"}`},
		{name: "inside field", filter: `{"age":{"$function":{"body":"x","args":[],"lang":"js"}}}`},
		{name: "inside array", filter: `{"$or":[{"a":1},{"$where":"true"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newCompiler().Compile("c", params("query", tt.filter))
			assertCode(t, err, domainerrors.CodeInvalidFilterSyntax)

			domainErr, _ := domainerrors.GetDomainError(err)
			assert.Equal(t, compiler.ParamQuery, domainErr.Parameter)
		})
	}
}

func TestCompile_DeniedOperatorsConfigurable(t *testing.T) {
	filter := params("query", `{"$where":"true"}`)

	open := compiler.New(compiler.Options{DeniedOperators: []string{}})
	_, err := open.Compile("c", filter)
	assert.NoError(t, err)

	strict := compiler.New(compiler.Options{DeniedOperators: []string{"$regex"}})
	_, err = strict.Compile("c", params("query", `{"name":{"$regex":"^a"}}`))
	assertCode(t, err, domainerrors.CodeInvalidFilterSyntax)

	// a field value equal to an operator name is data, not an operator
	_, err = newCompiler().Compile("c", params("query", `{"note":"$where"}`))
	assert.NoError(t, err)
}

func TestCompile_ValidationOrder(t *testing.T) {
	c := newCompiler()

	_, err := c.Compile("$bad", params("query", "{", "limit", "0"))
	assertCode(t, err, domainerrors.CodeInvalidCollection)

	_, err = c.Compile("c", params("query", "{", "limit", "0"))
	assertCode(t, err, domainerrors.CodeInvalidFilterSyntax)

	_, err = c.Compile("c", params("limit", "0", "skip", "-1"))
	assertCode(t, err, domainerrors.CodeInvalidLimit)

	_, err = c.Compile("c", params("skip", "-1", "sort", "a:x"))
	assertCode(t, err, domainerrors.CodeInvalidSkip)

	_, err = c.Compile("c", params("sort", "a:x", "projection", "a,-b"))
	assertCode(t, err, domainerrors.CodeInvalidSortSyntax)
}

func TestCompile_Deterministic(t *testing.T) {
	p := params("query", `{"b":1,"a":2}`, "sort", "a:-1", "projection", "-secret")
	a, err := newCompiler().Compile("c", p)
	require.NoError(t, err)
	b, err := newCompiler().Compile("c", p)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestParseSort_Directions(t *testing.T) {
	spec, err := compiler.ParseSort("a:asc,b:DESC,c:1,d:-1,e:ascending,f:descending")
	require.NoError(t, err)

	want := []query.Direction{query.Ascending, query.Descending, query.Ascending, query.Descending, query.Ascending, query.Descending}
	require.Len(t, spec, len(want))
	for i, d := range want {
		assert.Equal(t, d, spec[i].Direction, spec[i].Field)
	}
}

func TestParseSort_TooManyKeys(t *testing.T) {
	keys := make([]string, 33)
	for i := range keys {
		keys[i] = "f" + strings.Repeat("x", i)
	}
	_, err := compiler.ParseSort(strings.Join(keys, ","))
	assertCode(t, err, domainerrors.CodeInvalidSortSyntax)
}

func TestParseProjection_Modes(t *testing.T) {
	exclude, err := compiler.ParseProjection("-password,-token")
	require.NoError(t, err)
	assert.Equal(t, query.ProjectionExclude, exclude.Mode)
	assert.Equal(t, []string{"password", "token"}, exclude.Fields)

	onlyID, err := compiler.ParseProjection("-_id")
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "_id", Value: 0}}, onlyID.ToBSON())

	nested, err := compiler.ParseProjection("address.city")
	require.NoError(t, err)
	assert.Equal(t, []string{"address.city"}, nested.Fields)
}

func TestNew_FillsDefaults(t *testing.T) {
	opts := compiler.New(compiler.Options{}).Options()
	assert.Equal(t, compiler.DefaultOptions(), opts)

	capped := compiler.New(compiler.Options{DefaultLimit: 500, MaxLimit: 10}).Options()
	assert.Equal(t, int64(10), capped.DefaultLimit)
}
