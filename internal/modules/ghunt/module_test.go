package ghunt

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kingrea/intel-lattice/internal/module"
	"github.com/kingrea/intel-lattice/internal/profile"
)

type mxResolver map[string][]*net.MX

func (r mxResolver) LookupMX(_ context.Context, name string) ([]*net.MX, error) {
	if records, ok := r[name]; ok {
		return records, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

func (r mxResolver) LookupTXT(context.Context, string) ([]string, error) { return nil, nil }

func (r mxResolver) LookupHost(context.Context, string) ([]string, error) { return nil, nil }

func TestExecuteBuildsDevicesAndDomains(t *testing.T) {
	updated := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	var asked string
	lookup := LookupFunc(func(_ context.Context, email string) (Account, error) {
		asked = email
		return Account{
			Found:           true,
			PersonID:        "1234",
			Apps:            []string{"YouTube"},
			LastUpdated:     updated,
			ProfilePhotoURL: "https://lh3.example/p.jpg",
			MapsStatus:      "",
			MapsStats:       map[string]int{"reviews": 3, "photos": 1},
			MapsReviews:     3,
		}, nil
	})
	resolver := mxResolver{"co.io": {{Host: "ASPMX.L.GOOGLE.COM."}}}
	snapshot := profile.Profile{
		"contact": map[string]any{"emails": []any{" ", "Jane@Co.io"}},
		"digital": map[string]any{"domains": []any{"co.io"}, "devices": []any{map[string]any{"type": "laptop"}}},
	}
	update, err := New(WithLookup(lookup), WithResolver(resolver)).Execute(context.Background(), snapshot)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if asked != "jane@co.io" {
		t.Fatalf("unexpected lookup address %q", asked)
	}
	digital := update["digital"].(map[string]any)
	wantDomains := []any{"co.io", "youtube.com", "maps.google.com", "photos.google.com"}
	if diff := cmp.Diff(wantDomains, digital["domains"]); diff != "" {
		t.Fatalf("domains mismatch (-want +got):\n%s", diff)
	}
	var identifiers []string
	for _, raw := range digital["devices"].([]any) {
		if id, ok := raw.(map[string]any)["identifier"].(string); ok {
			identifiers = append(identifiers, id)
		}
	}
	wantIDs := []string{
		"gaia:1234;email:jane@co.io",
		"service:maps;confidence=0.90;reviews=3;photos=1",
		"service:photos;confidence=0.80",
		"service:youtube;confidence=0.70",
		"services=maps,photos,youtube;confidence=0.80",
	}
	if diff := cmp.Diff(wantIDs, identifiers); diff != "" {
		t.Fatalf("device identifiers mismatch (-want +got):\n%s", diff)
	}
	accounts := digital["google_accounts"].([]any)
	want := map[string]any{"email": "jane@co.io", "found": true, "person_id": "1234", "workspace": true}
	if diff := cmp.Diff(want, accounts[0]); diff != "" {
		t.Fatalf("account mismatch (-want +got):\n%s", diff)
	}
}

func TestExecuteNotFoundKeepsDomains(t *testing.T) {
	lookup := LookupFunc(func(context.Context, string) (Account, error) { return Account{}, nil })
	snapshot := profile.Profile{"contact": map[string]any{"emails": []any{"x@gmail.com"}}}
	update, err := New(WithLookup(lookup), WithResolver(mxResolver{})).Execute(context.Background(), snapshot)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	digital := update["digital"].(map[string]any)
	if len(digital["devices"].([]any)) != 0 || len(digital["domains"].([]any)) != 0 {
		t.Fatalf("expected no devices or domains, got %+v", digital)
	}
	if digital["google_accounts"].([]any)[0].(map[string]any)["workspace"] != false {
		t.Fatalf("consumer address must not be flagged as workspace")
	}
}

func TestExecuteErrors(t *testing.T) {
	lookup := LookupFunc(func(context.Context, string) (Account, error) { return Account{}, errors.New("rate limited") })
	_, err := New(WithLookup(lookup)).Execute(context.Background(), profile.Profile{})
	if err == nil || err.Error() != "No email address provided in profile.contact.emails." {
		t.Fatalf("expected missing email error, got %v", err)
	}
	_, err = New(WithLookup(lookup), WithEmail("a@b.io"), WithResolver(mxResolver{})).Execute(context.Background(), profile.Profile{})
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected lookup error, got %v", err)
	}
}

func TestSignalsPrivateMaps(t *testing.T) {
	devices, domains := Signals(Account{Found: true, MapsStatus: "private"}, "a@b.io")
	if diff := cmp.Diff([]string{"maps.google.com"}, domains); diff != "" {
		t.Fatalf("domains mismatch (-want +got):\n%s", diff)
	}
	if len(devices) != 1 || devices[0].(map[string]any)["identifier"] != "service:maps;confidence=0.50" {
		t.Fatalf("unexpected devices %+v", devices)
	}
	if devices[0].(map[string]any)["last_seen"] != nil {
		t.Fatalf("expected nil last_seen without timestamp")
	}
}

func TestParseExport(t *testing.T) {
	data := []byte(`{
  "PROFILE_CONTAINER": {
    "personId": "987",
    "profilePhotos": {"PROFILE": {"url": "https://p/1", "isDefault": false}},
    "coverPhotos": {"PROFILE": {"url": "https://c/1", "isDefault": true}},
    "sourceIds": {"PROFILE": {"lastUpdated": "2025-01-02T03:04:05Z"}},
    "inAppReachability": {"PROFILE": {"apps": ["YouTube", "Maps"]}}
  },
  "maps": {"status": "empty", "stats": {"reviews": 0}, "reviews": [], "photos": [{}]}
}`)
	account, err := ParseExport(data)
	if err != nil {
		t.Fatalf("ParseExport: %v", err)
	}
	want := Account{
		Found:           true,
		PersonID:        "987",
		Container:       "PROFILE",
		Apps:            []string{"YouTube", "Maps"},
		LastUpdated:     time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		ProfilePhotoURL: "https://p/1",
		MapsStatus:      "empty",
		MapsStats:       map[string]int{"reviews": 0},
		MapsPhotos:      1,
	}
	if diff := cmp.Diff(want, account); diff != "" {
		t.Fatalf("account mismatch (-want +got):\n%s", diff)
	}
	missing, err := ParseExport([]byte(`{}`))
	if err != nil || missing.Found {
		t.Fatalf("expected not found, got %+v (%v)", missing, err)
	}
}

func TestFactoryUnavailableWithoutBinary(t *testing.T) {
	reg := module.NewRegistry()
	Register(reg)
	_, err := reg.Resolve(moduleID, module.Env{}, module.Config{"binary": "ghunt-missing-for-test"})
	if !errors.Is(err, module.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
