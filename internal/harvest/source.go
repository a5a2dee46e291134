package harvest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/lead-intake/internal/lead"
	"github.com/sells-group/lead-intake/internal/phone"
	"github.com/sells-group/lead-intake/internal/resilience"
)

// RawLead is one lead as handed over by the browser layer. It carries
// either pre-split tokens and policy sections, raw page snapshots, or both.
type RawLead struct {
	Name         string        `json:"name" yaml:"name"`
	Primary      []string      `json:"primary,omitempty" yaml:"primary,omitempty"`
	Extra        []phone.Token `json:"extra,omitempty" yaml:"extra,omitempty"`
	PolicyBlocks []string      `json:"policy_blocks,omitempty" yaml:"policy_blocks,omitempty"`

	// Snapshots of visible tokens before and after clicking "Call".
	ClickBefore []string `json:"click_before,omitempty" yaml:"click_before,omitempty"`
	ClickAfter  []string `json:"click_after,omitempty" yaml:"click_after,omitempty"`
	// Full text of the lead detail page.
	DetailText string `json:"detail_text,omitempty" yaml:"detail_text,omitempty"`
}

// Empty reports whether the lead carries nothing to summarize.
func (r RawLead) Empty() bool {
	return strings.TrimSpace(r.Name) == "" &&
		len(r.Primary) == 0 && len(r.Extra) == 0 && len(r.PolicyBlocks) == 0 &&
		len(r.ClickAfter) == 0 && strings.TrimSpace(r.DetailText) == ""
}

// ToInput resolves snapshots into tokens and policy sections. Primary
// numbers are the explicit list followed by the click diff; extra numbers
// are the explicit list followed by labeled numbers found in every policy
// section.
func ToInput(r RawLead) (lead.Input, error) {
	if r.Empty() {
		return lead.Input{}, eris.New("harvest: empty lead")
	}

	in := lead.Input{Name: r.Name}
	for _, t := range r.Primary {
		in.Primary = append(in.Primary, phone.Token{Text: t})
	}
	for _, t := range DiffTokens(r.ClickBefore, r.ClickAfter) {
		in.Primary = append(in.Primary, phone.Token{Text: t})
	}

	in.PolicyBlocks = append(in.PolicyBlocks, r.PolicyBlocks...)
	in.PolicyBlocks = append(in.PolicyBlocks, SplitPolicyBlocks(r.DetailText)...)

	in.Extra = append(in.Extra, r.Extra...)
	for _, b := range in.PolicyBlocks {
		in.Extra = append(in.Extra, LabeledTokens(b)...)
	}
	return in, nil
}

// Source supplies the raw leads of one job.
type Source interface {
	Leads(ctx context.Context) ([]RawLead, error)
}

type document struct {
	Leads []RawLead `json:"leads" yaml:"leads"`
}

// Decode parses a leads document. YAML is a superset of JSON, but JSON
// input goes through encoding/json so that field errors read the same as
// the HTTP API's.
func Decode(data []byte, yamlDoc bool) ([]RawLead, error) {
	var doc document
	if yamlDoc {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, eris.Wrap(err, "harvest: decode yaml")
		}
		return doc.Leads, nil
	}

	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var leads []RawLead
		if err := json.Unmarshal(data, &leads); err != nil {
			return nil, eris.Wrap(err, "harvest: decode json")
		}
		return leads, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "harvest: decode json")
	}
	return doc.Leads, nil
}

// FileSource reads leads from a JSON or YAML file.
type FileSource struct {
	Path string
}

// Leads implements Source.
func (f FileSource) Leads(_ context.Context) ([]RawLead, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "harvest: read %s", f.Path)
	}
	ext := strings.ToLower(filepath.Ext(f.Path))
	return Decode(data, ext == ".yaml" || ext == ".yml")
}

// HTTPSource fetches a JSON leads document from a URL, typically the
// export endpoint of the browser layer.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// Leads implements Source. 408, 429 and 5xx responses come back as
// transient errors so callers can retry them.
func (h HTTPSource) Leads(ctx context.Context) ([]RawLead, error) {
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "harvest: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "harvest: get %s", h.URL)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("harvest: get %s: status %d", h.URL, resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "harvest: read body")
	}
	ct := resp.Header.Get("Content-Type")
	return Decode(data, strings.Contains(ct, "yaml"))
}

// NewSource picks an HTTPSource for http(s) URLs and a FileSource otherwise.
func NewSource(location string) Source {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return HTTPSource{URL: location}
	}
	return FileSource{Path: location}
}

// String describes the source for logs.
func (h HTTPSource) String() string { return fmt.Sprintf("url:%s", h.URL) }

// String describes the source for logs.
func (f FileSource) String() string { return fmt.Sprintf("file:%s", f.Path) }
