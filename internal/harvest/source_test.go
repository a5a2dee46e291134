package harvest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-intake/internal/phone"
	"github.com/sells-group/lead-intake/internal/resilience"
)

const leadsYAML = `
leads:
  - name: "DOE, JANE"
    primary: ["614-555-1212"]
    policy_blocks:
      - "Special 20.00 Ph: 614-555-4000"
  - name: "ROE, RICHARD"
    click_before: ["614-555-0000"]
    click_after: ["614-555-0000", "614-555-2222"]
    detail_text: "Menu Stage: Issued Special 55.00 Sec Ph: 614-555-3333"
`

func TestToInput(t *testing.T) {
	leads, err := Decode([]byte(leadsYAML), true)
	require.NoError(t, err)
	require.Len(t, leads, 2)

	in, err := ToInput(leads[0])
	require.NoError(t, err)
	assert.Equal(t, "DOE, JANE", in.Name)
	require.Len(t, in.Primary, 1)
	require.Len(t, in.Extra, 1)
	assert.Equal(t, "Ph", in.Extra[0].Label)

	in, err = ToInput(leads[1])
	require.NoError(t, err)
	require.Len(t, in.Primary, 1)
	assert.Equal(t, "614-555-2222", in.Primary[0].Text)
	assert.Equal(t, []string{"Issued Special 55.00 Sec Ph: 614-555-3333"}, in.PolicyBlocks)
	require.Len(t, in.Extra, 1)
	assert.Equal(t, "Sec Ph", in.Extra[0].Label)
}

func TestToInput_Empty(t *testing.T) {
	_, err := ToInput(RawLead{Name: "  "})
	assert.Error(t, err)
}

func TestDecodeJSON(t *testing.T) {
	leads, err := Decode([]byte(`[{"name":"a","primary":["6145551212"]}]`), false)
	require.NoError(t, err)
	require.Len(t, leads, 1)

	leads, err = Decode([]byte(`{"leads":[{"name":"a"},{"name":"b"}]}`), false)
	require.NoError(t, err)
	assert.Len(t, leads, 2)

	_, err = Decode([]byte(`{"leads":`), false)
	assert.Error(t, err)
}

func TestDecode_StringExtras(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		yaml bool
	}{
		{"json", `{"leads":[{"name":"x","primary":["614-555-1212"],"extra":["614-555-4000",{"text":"614-555-8888","label":"Fax"}]}]}`, false},
		{"yaml", "leads:\n  - name: x\n    primary: [\"614-555-1212\"]\n    extra:\n      - 614-555-4000\n      - text: 614-555-8888\n        label: Fax\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			leads, err := Decode([]byte(tt.doc), tt.yaml)
			require.NoError(t, err)
			require.Len(t, leads, 1)
			assert.Equal(t, []phone.Token{
				{Text: "614-555-4000"},
				{Text: "614-555-8888", Label: "Fax"},
			}, leads[0].Extra)

			in, err := ToInput(leads[0])
			require.NoError(t, err)
			set := phone.CollectTokens(in.Primary, in.Extra)
			assert.Len(t, set.Primary, 1)
			assert.Len(t, set.Extra, 2)
		})
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "leads.yml")
	require.NoError(t, os.WriteFile(path, []byte(leadsYAML), 0o644))

	leads, err := FileSource{Path: path}.Leads(context.Background())
	require.NoError(t, err)
	assert.Len(t, leads, 2)

	_, err = FileSource{Path: filepath.Join(dir, "missing.json")}.Leads(context.Background())
	assert.Error(t, err)
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"leads":[{"name":"a"}]}`))
		case "/busy":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	leads, err := HTTPSource{URL: srv.URL + "/ok"}.Leads(context.Background())
	require.NoError(t, err)
	assert.Len(t, leads, 1)

	_, err = HTTPSource{URL: srv.URL + "/busy"}.Leads(context.Background())
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))

	_, err = HTTPSource{URL: srv.URL + "/gone"}.Leads(context.Background())
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestNewSource(t *testing.T) {
	assert.IsType(t, HTTPSource{}, NewSource("https://example.com/leads"))
	assert.IsType(t, FileSource{}, NewSource("leads.json"))
}
