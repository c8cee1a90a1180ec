package harvester

import (
	"context"
	"net"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kingrea/intel-lattice/internal/module"
	"github.com/kingrea/intel-lattice/internal/profile"
)

type fakeResolver struct {
	mx    map[string][]*net.MX
	txt   map[string][]string
	hosts map[string][]string
}

func (f fakeResolver) LookupMX(_ context.Context, name string) ([]*net.MX, error) {
	if records, ok := f.mx[name]; ok {
		return records, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

func (f fakeResolver) LookupTXT(_ context.Context, name string) ([]string, error) {
	return f.txt[name], nil
}

func (f fakeResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	if addrs, ok := f.hosts[host]; ok {
		return addrs, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

func TestExecuteMergesDNSResults(t *testing.T) {
	resolver := fakeResolver{
		mx:    map[string][]*net.MX{"example.com": {{Host: "MX2.example.com.", Pref: 20}, {Host: "mx1.example.com.", Pref: 10}}},
		txt:   map[string][]string{"example.com": {"v=spf1 -all", "contact=security@Example.com"}},
		hosts: map[string][]string{"example.com": {"203.0.113.9", "203.0.113.7"}},
	}
	snapshot := profile.Profile{
		"contact": map[string]any{"emails": []any{"Jane@example.com", "jane@other.org"}},
		"digital": map[string]any{"domains": []any{"https://Example.com/about"}, "ips": []any{"198.51.100.1"}},
	}
	update, err := New(WithResolver(resolver)).Execute(context.Background(), snapshot)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	digital := update["digital"].(map[string]any)
	if diff := cmp.Diff([]any{"https://Example.com/about", "example.com"}, digital["domains"]); diff != "" {
		t.Fatalf("domains mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{"198.51.100.1", "203.0.113.7", "203.0.113.9"}, digital["ips"]); diff != "" {
		t.Fatalf("ips mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{"mx1.example.com", "mx2.example.com"}, digital["mail_servers"]); diff != "" {
		t.Fatalf("mail servers mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{"jane@example.com", "security@example.com"}, digital["email_candidates"]); diff != "" {
		t.Fatalf("candidates mismatch (-want +got):\n%s", diff)
	}
	records := digital["dns_records"].([]any)
	if len(records) != 1 || records[0].(map[string]any)["domain"] != "example.com" {
		t.Fatalf("unexpected dns records: %+v", records)
	}
	if _, touched := snapshot["digital"].(map[string]any)["mail_servers"]; touched {
		t.Fatalf("snapshot must not be mutated")
	}
}

func TestExecuteDomainErrors(t *testing.T) {
	cases := []struct {
		name    string
		opts    []Option
		doc     profile.Profile
		wantErr string
	}{
		{name: "no domain", doc: profile.Profile{}, wantErr: "No target domain provided or available in profile.digital.domains"},
		{name: "invalid", doc: profile.Profile{"digital": map[string]any{"domains": []any{"not a domain"}}}, wantErr: "Invalid target domain: not a domain"},
		{name: "invalid override", opts: []Option{WithDomains("localhost")}, doc: profile.Profile{}, wantErr: "Invalid target domain: localhost"},
	}
	for _, tc := range cases {
		opts := append([]Option{WithResolver(fakeResolver{})}, tc.opts...)
		_, err := New(opts...).Execute(context.Background(), tc.doc)
		if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
			t.Fatalf("%s: expected %q, got %v", tc.name, tc.wantErr, err)
		}
	}
}

func TestRegisterReadsConfig(t *testing.T) {
	reg := module.NewRegistry()
	Register(reg, WithResolver(fakeResolver{hosts: map[string][]string{"co.io": {"192.0.2.1"}}}))
	mod, err := reg.Resolve(moduleID, module.Env{}, module.Config{"domains": "co.io"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	update, err := mod.Execute(context.Background(), profile.Profile{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if diff := cmp.Diff([]any{"192.0.2.1"}, update["digital"].(map[string]any)["ips"]); diff != "" {
		t.Fatalf("ips mismatch (-want +got):\n%s", diff)
	}
}
