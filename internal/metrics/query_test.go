package metrics

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// promServer answers /api/v1/query with a canned vector per query.
func promServer(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/query" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, ok := results[r.Form.Get("query")]
		if !ok {
			result = "[]"
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"success","data":{"resultType":"vector","result":%s}}`, result)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestQueryClient_FetchNodeIDs(t *testing.T) {
	srv := promServer(t, map[string]string{
		NodeQuery: `[
			{"metric":{"__name__":"chord_successor","id":"17"},"value":[1700000000,"40"]},
			{"metric":{"__name__":"chord_successor","id":"40"},"value":[1700000000,"17"]}
		]`,
	})

	q, err := NewQueryClient(srv.URL)
	require.NoError(t, err)

	ids, err := q.FetchNodeIDs(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{17, 40}, ids)
}

func TestQueryClient_FetchKeyTotals(t *testing.T) {
	srv := promServer(t, map[string]string{
		KeyTotalQuery: `[
			{"metric":{"id":"5"},"value":[1700000000,"12"]},
			{"metric":{"id":"9"},"value":[1700000000,"0"]}
		]`,
	})

	// host:port form, as passed on the command line
	q, err := NewQueryClient(strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)

	totals, err := q.FetchKeyTotals(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []KeyTotal{{Total: 12, ID: 5}, {Total: 0, ID: 9}}, totals)
}

func TestQueryClient_MissingIDLabel(t *testing.T) {
	srv := promServer(t, map[string]string{
		KeyTotalQuery: `[{"metric":{"instance":"a"},"value":[1700000000,"1"]}]`,
	})

	q, err := NewQueryClient(srv.URL)
	require.NoError(t, err)

	_, err = q.FetchKeyTotals(context.Background())
	assert.Error(t, err)
}

func TestQueryClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"status":"error","errorType":"bad_data","error":"parse error"}`)
	}))
	defer srv.Close()

	q, err := NewQueryClient(srv.URL)
	require.NoError(t, err)

	_, err = q.FetchNodeIDs(context.Background())
	assert.Error(t, err)
}
